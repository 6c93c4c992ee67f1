package news

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/eringen/astrosite/storage"
)

// Key is the object path the collection is stored under on every backend.
const Key = "data/news.json"

var (
	// ErrNotArray is returned by ReplaceAll when the payload is not a JSON array.
	ErrNotArray = errors.New("news: payload must be a JSON array of posts")
	// ErrNotFound is returned when a post lookup has no match.
	ErrNotFound = errors.New("news: post not found")
)

// PostStore owns the post collection. Every write replaces the whole
// collection; two overlapping writes end with whichever landed last.
type PostStore struct {
	durable storage.Backend
	local   storage.Backend
	logger  echo.Logger
}

// NewPostStore creates a store writing to durable (may be nil) and mirroring
// to local. With a nil durable backend the local backend is authoritative.
func NewPostStore(durable, local storage.Backend, logger echo.Logger) *PostStore {
	if logger == nil {
		logger = log.New("news")
	}
	return &PostStore{durable: durable, local: local, logger: logger}
}

// Backend names the authoritative backend.
func (s *PostStore) Backend() string {
	if s.durable != nil {
		return s.durable.Name()
	}
	return s.local.Name()
}

// GetRaw returns the stored collection exactly as it was written, or "[]"
// when nothing is stored yet. Durable read failures are logged and reported
// as an empty collection. Local read failures are returned.
func (s *PostStore) GetRaw(ctx context.Context) ([]byte, error) {
	if s.durable != nil {
		data, err := s.durable.Get(ctx, Key)
		if err != nil {
			if !errors.Is(err, storage.ErrNotExist) {
				s.logger.Errorf("news: read %s from %s: %v", Key, s.durable.Name(), err)
			}
			return []byte("[]"), nil
		}
		if _, err := decodeArray(data); err != nil {
			s.logger.Errorf("news: stored collection on %s is invalid: %v", s.durable.Name(), err)
			return []byte("[]"), nil
		}
		return data, nil
	}

	data, err := s.local.Get(ctx, Key)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return []byte("[]"), nil
		}
		return nil, fmt.Errorf("read local collection: %w", err)
	}
	if _, err := decodeArray(data); err != nil {
		return nil, fmt.Errorf("read local collection: %w", err)
	}
	return data, nil
}

// GetAll returns the stored posts, or an empty slice when none exist.
func (s *PostStore) GetAll(ctx context.Context) ([]Post, error) {
	data, err := s.GetRaw(ctx)
	if err != nil {
		return nil, err
	}
	posts := []Post{}
	if err := json.Unmarshal(data, &posts); err != nil {
		return nil, fmt.Errorf("decode collection: %w", err)
	}
	return posts, nil
}

// FindBySlug returns the first stored post with slug.
func (s *PostStore) FindBySlug(ctx context.Context, slug string) (Post, error) {
	posts, err := s.GetAll(ctx)
	if err != nil {
		return Post{}, err
	}
	p, ok := FindBySlug(posts, slug)
	if !ok {
		return Post{}, ErrNotFound
	}
	return p, nil
}

// ReplaceAll stores payload as the new collection. The payload only has to
// be a JSON array; its elements are kept as given. The durable backend is
// written first and the local file afterwards as a best-effort mirror.
func (s *PostStore) ReplaceAll(ctx context.Context, payload []byte) error {
	elems, err := decodeArray(payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(elems)
	if err != nil {
		return fmt.Errorf("encode collection: %w", err)
	}

	if s.durable == nil {
		if _, err := s.local.Put(ctx, Key, data, "application/json"); err != nil {
			return fmt.Errorf("write local collection: %w", err)
		}
		return nil
	}

	if _, err := s.durable.Put(ctx, Key, data, "application/json"); err != nil {
		return fmt.Errorf("write %s collection: %w", s.durable.Name(), err)
	}
	if s.local != nil {
		if _, err := s.local.Put(ctx, Key, data, "application/json"); err != nil {
			s.logger.Warnf("news: local mirror write failed: %v", err)
		}
	}
	return nil
}

// Save encodes posts and stores them with ReplaceAll.
func (s *PostStore) Save(ctx context.Context, posts []Post) error {
	if posts == nil {
		posts = []Post{}
	}
	data, err := json.Marshal(posts)
	if err != nil {
		return fmt.Errorf("encode posts: %w", err)
	}
	return s.ReplaceAll(ctx, data)
}

func decodeArray(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrNotArray
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotArray, err)
	}
	if elems == nil {
		elems = []json.RawMessage{}
	}
	return elems, nil
}
