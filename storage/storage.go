// Package storage provides the object backends the post store and media
// uploader persist to: a local filesystem tree and two durable backends
// (an HTTP blob service and a Postgres object table).
//
// A backend is chosen once at startup with Open and shared by every
// component that needs it.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrNotExist is returned by Get when no object is stored under the key.
var ErrNotExist = errors.New("storage: object does not exist")

// Backend stores whole objects under slash-separated keys such as
// "data/news.json" or "uploads/1700000000-cover.jpg". Put always replaces
// the previous object; there is no append and no versioning.
type Backend interface {
	// Name identifies the backend in logs and health output.
	Name() string
	// Get returns the object stored under key, or ErrNotExist.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores data under key and returns the URL it is reachable at.
	// Local backends return a site-relative URL ("/uploads/x.jpg").
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Config selects and configures the durable backend.
type Config struct {
	BlobToken   string // durable blob read/write credential
	BlobAPIURL  string // override for the blob API endpoint
	DatabaseURL string // Postgres DSN for the object table backend
}

// Open returns the durable backend described by cfg, or nil when no durable
// credential is configured and callers should fall back to the filesystem.
// The blob credential takes precedence over the database URL.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch {
	case cfg.BlobToken != "":
		var opts []BlobOption
		if cfg.BlobAPIURL != "" {
			opts = append(opts, WithBlobAPIURL(cfg.BlobAPIURL))
		}
		return NewBlob(cfg.BlobToken, opts...), nil
	case cfg.DatabaseURL != "":
		return OpenPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, nil
	}
}

// CleanKey normalizes key to a relative slash path and rejects keys that
// would escape the backend root.
func CleanKey(key string) (string, error) {
	if strings.Contains(key, "\\") {
		return "", errors.New("storage: invalid key " + key)
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+key), "/")
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") {
		return "", errors.New("storage: invalid key " + key)
	}
	return cleaned, nil
}
