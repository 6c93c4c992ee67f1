package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/eringen/astrosite/news"
	"github.com/eringen/astrosite/storage"
)

func newServer(t *testing.T) (*httptest.Server, *news.PostStore, *atomic.Bool) {
	t.Helper()
	store := news.NewPostStore(nil, storage.NewFS(t.TempDir()), nil)
	var down atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if down.Load() {
			http.Error(w, `{"error":"down"}`, http.StatusServiceUnavailable)
			return
		}
		switch r.Method {
		case http.MethodGet:
			data, _ := store.GetRaw(r.Context())
			w.Write(data)
		case http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			if err := store.ReplaceAll(r.Context(), body); err != nil {
				http.Error(w, `{"error":"bad"}`, http.StatusBadRequest)
				return
			}
			w.Write([]byte(`{"success":true}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, store, &down
}

func TestSaveListGetDelete(t *testing.T) {
	srv, store, _ := newServer(t)
	mirror := filepath.Join(t.TempDir(), "m.db")
	ctx := context.Background()
	base := []string{"--server", srv.URL, "--mirror", mirror}

	var out, errOut bytes.Buffer
	in := strings.NewReader(`{"id":"p1","title":"Venus enters Libra","text":"Harmony.","date":"2025-09-20","topic":"astrology"}`)
	if code := run(ctx, append(base, "save", "-"), in, &out, &errOut); code != 0 {
		t.Fatalf("save exit %d: %s", code, errOut.String())
	}
	posts, _ := store.GetAll(ctx)
	if len(posts) != 1 || posts[0].Slug != "venus-enters-libra-p1" || posts[0].Format != news.FormatFact {
		t.Fatalf("stored = %+v", posts)
	}

	out.Reset()
	if code := run(ctx, append(base, "list"), nil, &out, &errOut); code != 0 {
		t.Fatalf("list exit %d", code)
	}
	if !strings.Contains(out.String(), "Venus enters Libra") {
		t.Errorf("list output = %q", out.String())
	}

	out.Reset()
	if code := run(ctx, append(base, "get", "venus-enters-libra-p1"), nil, &out, &errOut); code != 0 {
		t.Fatalf("get exit %d", code)
	}
	if !strings.Contains(out.String(), `"id": "p1"`) {
		t.Errorf("get output = %q", out.String())
	}

	if code := run(ctx, append(base, "delete", "p1"), nil, &out, &errOut); code != 0 {
		t.Fatalf("delete exit %d", code)
	}
	if posts, _ := store.GetAll(ctx); len(posts) != 0 {
		t.Errorf("after delete: %+v", posts)
	}
}

func TestOfflineSaveThenSync(t *testing.T) {
	srv, store, down := newServer(t)
	mirror := filepath.Join(t.TempDir(), "m.db")
	ctx := context.Background()
	base := []string{"--server", srv.URL, "--mirror", mirror}

	down.Store(true)
	var out, errOut bytes.Buffer
	in := strings.NewReader(`{"title":"Full moon","topic":"astronomy"}`)
	if code := run(ctx, append(base, "save", "-"), in, &out, &errOut); code != 1 {
		t.Fatalf("save exit %d, want 1", code)
	}
	if !strings.Contains(errOut.String(), "newsctl sync") {
		t.Errorf("stderr = %q", errOut.String())
	}

	down.Store(false)
	if code := run(ctx, append(base, "sync"), nil, &out, &errOut); code != 0 {
		t.Fatalf("sync exit %d: %s", code, errOut.String())
	}
	posts, _ := store.GetAll(ctx)
	if len(posts) != 1 || posts[0].Title != "Full moon" {
		t.Fatalf("stored = %+v", posts)
	}
}

func TestReadPostValidation(t *testing.T) {
	if _, err := readPost("-", strings.NewReader(`{"text":"no title"}`)); err == nil {
		t.Error("expected error for missing title")
	}
	if _, err := readPost("-", strings.NewReader(`{"title":"x","topic":"tarot"}`)); err == nil {
		t.Error("expected error for unknown topic")
	}
	p, err := readPost("-", strings.NewReader(`{"title":"Life path 7"}`))
	if err != nil {
		t.Fatal(err)
	}
	if p.ID == "" || !strings.HasPrefix(p.Slug, "life-path-7-") {
		t.Errorf("post = %+v", p)
	}
}

func TestUnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	args := []string{"--mirror", filepath.Join(t.TempDir(), "m.db"), "frobnicate"}
	if code := run(context.Background(), args, nil, &out, &errOut); code != 1 {
		t.Errorf("exit %d, want 1", code)
	}
}
