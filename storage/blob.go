package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBlobAPIURL is the blob service endpoint used when none is configured.
const DefaultBlobAPIURL = "https://blob.vercel-storage.com"

const blobAPIVersion = "7"

// Blob is a client for a hosted blob store that exposes list and put over
// HTTP with a bearer read/write token. Stored objects are public and are read
// back through the URL the service returns.
type Blob struct {
	apiURL     string
	token      string
	httpClient *http.Client
}

// BlobOption configures a Blob client.
type BlobOption func(*Blob)

// WithBlobAPIURL points the client at a different API endpoint.
func WithBlobAPIURL(u string) BlobOption {
	return func(b *Blob) {
		b.apiURL = strings.TrimRight(u, "/")
	}
}

// WithBlobHTTPClient replaces the default HTTP client.
func WithBlobHTTPClient(c *http.Client) BlobOption {
	return func(b *Blob) {
		b.httpClient = c
	}
}

// NewBlob creates a blob backend authenticated with token.
func NewBlob(token string, opts ...BlobOption) *Blob {
	b := &Blob{
		apiURL: DefaultBlobAPIURL,
		token:  token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements Backend.
func (b *Blob) Name() string { return "blob" }

type blobObject struct {
	URL        string    `json:"url"`
	Pathname   string    `json:"pathname"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}

type blobListResponse struct {
	Blobs   []blobObject `json:"blobs"`
	Cursor  string       `json:"cursor"`
	HasMore bool         `json:"hasMore"`
}

type blobPutResponse struct {
	URL      string `json:"url"`
	Pathname string `json:"pathname"`
}

type blobErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (b *Blob) do(req *http.Request, result interface{}) error {
	req.Header.Set("Authorization", "Bearer "+b.token)
	req.Header.Set("x-api-version", blobAPIVersion)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr blobErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("blob api: %s (%d)", apiErr.Error.Message, resp.StatusCode)
		}
		return fmt.Errorf("blob api: status %d", resp.StatusCode)
	}
	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// find lists objects under key as a prefix and returns the exact match.
func (b *Blob) find(ctx context.Context, key string) (blobObject, error) {
	cursor := ""
	for {
		q := url.Values{}
		q.Set("prefix", key)
		q.Set("limit", "100")
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.apiURL+"?"+q.Encode(), nil)
		if err != nil {
			return blobObject{}, fmt.Errorf("create request: %w", err)
		}
		var list blobListResponse
		if err := b.do(req, &list); err != nil {
			return blobObject{}, fmt.Errorf("list %s: %w", key, err)
		}
		for _, obj := range list.Blobs {
			if obj.Pathname == key {
				return obj, nil
			}
		}
		if !list.HasMore || list.Cursor == "" {
			return blobObject{}, ErrNotExist
		}
		cursor = list.Cursor
	}
}

// Get implements Backend.
func (b *Blob) Get(ctx context.Context, key string) ([]byte, error) {
	k, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	obj, err := b.find(ctx, k)
	if err != nil {
		return nil, err
	}

	// Public object URLs are fetched without the API token.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, obj.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotExist
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: status %d", key, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Put uploads data under the exact pathname key, overwriting any object
// already stored there.
func (b *Blob) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	k, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, b.apiURL+"/"+k, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("x-content-type", contentType)
	}
	req.Header.Set("x-add-random-suffix", "0")
	req.Header.Set("x-allow-overwrite", "1")

	var out blobPutResponse
	if err := b.do(req, &out); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("put %s: empty url in response", key)
	}
	return out.URL, nil
}
