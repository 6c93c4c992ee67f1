package storage_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/eringen/astrosite/storage"
	"github.com/eringen/astrosite/storage/storagetest"
)

func TestCleanKey(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"data/news.json", "data/news.json", true},
		{"/uploads/a.jpg", "uploads/a.jpg", true},
		{"../etc/passwd", "", false},
		{"uploads/../../x", "", false},
		{"a//b", "", false},
		{"", "", false},
		{`uploads\x`, "", false},
	}
	for _, tt := range tests {
		got, err := storage.CleanKey(tt.input)
		if tt.ok && err != nil {
			t.Errorf("CleanKey(%q) error: %v", tt.input, err)
			continue
		}
		if !tt.ok && err == nil {
			t.Errorf("CleanKey(%q) = %q, want error", tt.input, got)
			continue
		}
		if got != tt.want {
			t.Errorf("CleanKey(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFSPutAndGet(t *testing.T) {
	dir := t.TempDir()
	fs := storage.NewFS(dir)
	ctx := context.Background()

	url, err := fs.Put(ctx, "data/news.json", []byte(`[1]`), "application/json")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if url != "/data/news.json" {
		t.Errorf("url = %q, want /data/news.json", url)
	}
	if _, err := os.Stat(filepath.Join(dir, "data", "news.json")); err != nil {
		t.Fatalf("file not written: %v", err)
	}

	if _, err := fs.Put(ctx, "data/news.json", []byte(`[2]`), "application/json"); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	got, err := fs.Get(ctx, "data/news.json")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `[2]` {
		t.Errorf("Get = %q, want [2]", got)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only news.json in data dir, found %d entries", len(entries))
	}
}

func TestFSGetMissing(t *testing.T) {
	fs := storage.NewFS(t.TempDir())
	_, err := fs.Get(context.Background(), "data/news.json")
	if !errors.Is(err, storage.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestFSRejectsEscapingKey(t *testing.T) {
	fs := storage.NewFS(t.TempDir())
	if _, err := fs.Put(context.Background(), "../outside.txt", []byte("x"), ""); err == nil {
		t.Fatal("expected error for key outside root")
	}
}

func TestBlobPutAndGet(t *testing.T) {
	srv := storagetest.NewBlobServer(t, "secret")
	b := storage.NewBlob("secret", storage.WithBlobAPIURL(srv.URL))
	ctx := context.Background()

	url, err := b.Put(ctx, "data/news.json", []byte(`[{"id":"a"}]`), "application/json")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if url != srv.URL+"/_obj/data/news.json" {
		t.Errorf("url = %q", url)
	}

	got, err := b.Get(ctx, "data/news.json")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `[{"id":"a"}]` {
		t.Errorf("Get = %q", got)
	}
}

func TestBlobGetMissing(t *testing.T) {
	srv := storagetest.NewBlobServer(t, "secret")
	b := storage.NewBlob("secret", storage.WithBlobAPIURL(srv.URL))

	// A prefix match must not be mistaken for the object itself.
	if _, err := b.Put(context.Background(), "data/news.json.bak", []byte(`[]`), ""); err != nil {
		t.Fatal(err)
	}
	_, err := b.Get(context.Background(), "data/news.json")
	if !errors.Is(err, storage.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestBlobBadToken(t *testing.T) {
	srv := storagetest.NewBlobServer(t, "secret")
	b := storage.NewBlob("wrong", storage.WithBlobAPIURL(srv.URL))

	_, err := b.Put(context.Background(), "data/news.json", []byte(`[]`), "")
	if err == nil {
		t.Fatal("expected error with bad token")
	}
	if errors.Is(err, storage.ErrNotExist) {
		t.Errorf("auth failure must not look like a missing object: %v", err)
	}
}

func TestOpenSelection(t *testing.T) {
	ctx := context.Background()

	b, err := storage.Open(ctx, storage.Config{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if b != nil {
		t.Errorf("expected no durable backend without credentials, got %s", b.Name())
	}

	b, err = storage.Open(ctx, storage.Config{BlobToken: "tok", DatabaseURL: "postgres://unused"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if b == nil || b.Name() != "blob" {
		t.Fatalf("expected blob backend, got %v", b)
	}
}

func TestPostgresPutAndGet(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	p, err := storage.OpenPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("OpenPostgres failed: %v", err)
	}
	defer p.Close()

	key := "test/" + t.Name() + ".json"
	url, err := p.Put(ctx, key, []byte(`[]`), "application/json")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if url != storage.MediaPrefix+key {
		t.Errorf("url = %q", url)
	}
	got, err := p.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `[]` {
		t.Errorf("Get = %q", got)
	}
	if _, err := p.Get(ctx, "test/missing"); !errors.Is(err, storage.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}
