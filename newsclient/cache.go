// Package newsclient is the client side of the news collection: a cache
// that reads through the site's news API, mirrors every good read and every
// write into local storage, and serves that mirror while the API is down.
package newsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/eringen/astrosite/news"
)

// MirrorKey is the local storage key holding the mirrored collection.
const MirrorKey = "astrosite_news_posts"

// PendingKey marks the mirror as holding a change the server has not
// accepted yet. While it is set, reads serve the mirror instead of
// replacing it with the server's copy.
const PendingKey = "astrosite_news_pending"

// ErrSyncFailed wraps a failed push of the collection to the server. The
// local mirror already holds the change when it is returned.
var ErrSyncFailed = errors.New("newsclient: sync with server failed")

// ErrNoMirror is returned by Sync when nothing has been mirrored yet.
var ErrNoMirror = errors.New("newsclient: no local copy to sync")

// Cache mediates every read and write of the news collection for one client
// session. Writes replace the whole collection on the server, so two
// clients saving at the same time end with the later save only.
type Cache struct {
	baseURL    string
	httpClient *http.Client
	local      LocalStorage
	defaults   []news.Post
	ttl        time.Duration
	logger     echo.Logger

	mu      sync.RWMutex
	posts   []news.Post
	fetched time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Cache) {
		c.httpClient = hc
	}
}

// WithDefaults sets the posts returned when neither the server nor the
// mirror can provide any.
func WithDefaults(posts []news.Post) Option {
	return func(c *Cache) {
		c.defaults = posts
	}
}

// WithTTL keeps a fetched collection in memory for ttl before the next read
// goes back to the server. The default of zero revalidates on every read.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithLogger sets the logger used for fallbacks and sync failures.
func WithLogger(l echo.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// New creates a Cache talking to the site at baseURL and mirroring into local.
func New(baseURL string, local LocalStorage, opts ...Option) *Cache {
	c := &Cache{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		local: local,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.New("newsclient")
	}
	return c
}

func (c *Cache) valid() bool {
	return c.ttl > 0 && c.posts != nil && time.Since(c.fetched) < c.ttl
}

// Invalidate drops the in-memory copy so the next read goes to the server.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.posts = nil
	c.mu.Unlock()
}

func (c *Cache) remember(posts []news.Post) {
	c.mu.Lock()
	c.posts = posts
	c.fetched = time.Now()
	c.mu.Unlock()
}

// Posts returns the current collection. It never fails: when the server
// cannot be reached it serves the mirror, and without a mirror the defaults.
// A pending change keeps the mirror authoritative until Sync succeeds.
func (c *Cache) Posts(ctx context.Context) []news.Post {
	c.mu.RLock()
	if c.valid() {
		posts := clonePosts(c.posts)
		c.mu.RUnlock()
		return posts
	}
	c.mu.RUnlock()

	if c.Pending(ctx) {
		mirrored, ok, err := c.readMirror(ctx)
		if err != nil {
			c.logger.Warnf("newsclient: read local copy: %v", err)
		}
		if ok {
			return mirrored
		}
	}

	posts, err := c.fetch(ctx)
	if err == nil {
		if err := c.writeMirror(ctx, posts); err != nil {
			c.logger.Warnf("newsclient: update local copy: %v", err)
		}
		c.remember(posts)
		return clonePosts(posts)
	}
	c.logger.Warnf("newsclient: fetch posts: %v; using local copy", err)

	mirrored, ok, err := c.readMirror(ctx)
	if err != nil {
		c.logger.Warnf("newsclient: read local copy: %v", err)
	}
	if ok {
		return mirrored
	}
	return clonePosts(c.defaults)
}

// PostBySlug returns the post with slug from the current collection.
func (c *Cache) PostBySlug(ctx context.Context, slug string) (news.Post, bool) {
	return news.FindBySlug(c.Posts(ctx), slug)
}

// SavePost inserts p, or replaces the post with the same id, and pushes the
// resulting collection. See commit for failure handling.
func (c *Cache) SavePost(ctx context.Context, p news.Post) error {
	return c.commit(ctx, news.Upsert(c.Posts(ctx), p))
}

// DeletePost removes the post with id and pushes the resulting collection.
func (c *Cache) DeletePost(ctx context.Context, id string) error {
	return c.commit(ctx, news.Remove(c.Posts(ctx), id))
}

// commit mirrors posts locally before pushing them, so the change survives
// in this session even when the push fails. A failed push is logged and
// returned as ErrSyncFailed; the mirror is not rolled back.
func (c *Cache) commit(ctx context.Context, posts []news.Post) error {
	if err := c.writeMirror(ctx, posts); err != nil {
		c.logger.Errorf("newsclient: update local copy: %v", err)
	}
	c.remember(posts)

	if err := c.push(ctx, posts); err != nil {
		c.logger.Errorf("newsclient: save posts: %v", err)
		c.setPending(ctx, true)
		return fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}
	c.setPending(ctx, false)
	return nil
}

// Sync pushes the mirrored collection to the server. It is the retry path
// after a save returned ErrSyncFailed.
func (c *Cache) Sync(ctx context.Context) error {
	posts, ok, err := c.readMirror(ctx)
	if err != nil {
		return fmt.Errorf("read local copy: %w", err)
	}
	if !ok {
		return ErrNoMirror
	}
	if err := c.push(ctx, posts); err != nil {
		c.logger.Errorf("newsclient: sync posts: %v", err)
		return fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}
	c.setPending(ctx, false)
	c.remember(posts)
	return nil
}

// Pending reports whether the mirror holds a change that has not reached
// the server.
func (c *Cache) Pending(ctx context.Context) bool {
	_, ok, err := c.local.GetItem(ctx, PendingKey)
	if err != nil {
		c.logger.Warnf("newsclient: read pending flag: %v", err)
		return false
	}
	return ok
}

func (c *Cache) setPending(ctx context.Context, pending bool) {
	var err error
	if pending {
		err = c.local.SetItem(ctx, PendingKey, "1")
	} else {
		err = c.local.RemoveItem(ctx, PendingKey)
	}
	if err != nil {
		c.logger.Warnf("newsclient: update pending flag: %v", err)
	}
}

func (c *Cache) fetch(ctx context.Context) ([]news.Post, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/news", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return decodePosts(body)
}

func (c *Cache) push(ctx context.Context, posts []news.Post) error {
	body, err := json.Marshal(nonNil(posts))
	if err != nil {
		return fmt.Errorf("encode posts: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/news", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	return nil
}

// Upload sends a file to the site's upload endpoint and returns its URL.
func (c *Cache) Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(name)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", apiError(resp)
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.URL == "" {
		return "", errors.New("upload: empty url in response")
	}
	return out.URL, nil
}

func (c *Cache) readMirror(ctx context.Context) ([]news.Post, bool, error) {
	raw, ok, err := c.local.GetItem(ctx, MirrorKey)
	if err != nil || !ok {
		return nil, false, err
	}
	posts, err := decodePosts([]byte(raw))
	if err != nil {
		return nil, false, fmt.Errorf("decode local copy: %w", err)
	}
	return posts, true, nil
}

func (c *Cache) writeMirror(ctx context.Context, posts []news.Post) error {
	data, err := json.Marshal(nonNil(posts))
	if err != nil {
		return err
	}
	return c.local.SetItem(ctx, MirrorKey, string(data))
}

func decodePosts(data []byte) ([]news.Post, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errors.New("response is not a JSON array")
	}
	posts := []news.Post{}
	if err := json.Unmarshal(trimmed, &posts); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}
	return posts, nil
}

func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return fmt.Errorf("status %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("status %d", resp.StatusCode)
}

func nonNil(posts []news.Post) []news.Post {
	if posts == nil {
		return []news.Post{}
	}
	return posts
}

func clonePosts(posts []news.Post) []news.Post {
	out := make([]news.Post, len(posts))
	copy(out, posts)
	return out
}

func escapeQuotes(s string) string {
	return strings.NewReplacer("\\", "\\\\", `"`, "\\\"").Replace(s)
}
