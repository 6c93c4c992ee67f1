package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FS stores objects as files below a root directory.
type FS struct {
	root string
}

// NewFS returns a filesystem backend rooted at dir. The directory is created
// lazily on the first Put.
func NewFS(dir string) *FS {
	return &FS{root: dir}
}

// Name implements Backend.
func (f *FS) Name() string { return "fs" }

// Root returns the directory objects are stored under.
func (f *FS) Root() string { return f.root }

func (f *FS) path(key string) (string, string, error) {
	k, err := CleanKey(key)
	if err != nil {
		return "", "", err
	}
	return filepath.Join(f.root, filepath.FromSlash(k)), k, nil
}

// Get implements Backend.
func (f *FS) Get(ctx context.Context, key string) ([]byte, error) {
	p, _, err := f.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Put writes data to a temporary file next to the target and renames it into
// place, so readers see either the old or the new object.
func (f *FS) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	p, k, err := f.path(key)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(p)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("rename %s: %w", key, err)
	}
	return "/" + k, nil
}
