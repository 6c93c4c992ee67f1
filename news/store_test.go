package news

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/eringen/astrosite/storage"
	"github.com/eringen/astrosite/storage/storagetest"
)

type failingBackend struct{}

func (failingBackend) Name() string { return "failing" }

func (failingBackend) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("disk on fire")
}

func (failingBackend) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	return "", errors.New("disk on fire")
}

func setupLocalStore(t *testing.T) (*PostStore, string) {
	t.Helper()
	dir := t.TempDir()
	return NewPostStore(nil, storage.NewFS(dir), nil), dir
}

func setupDurableStore(t *testing.T) (*PostStore, *storagetest.BlobServer, string) {
	t.Helper()
	srv := storagetest.NewBlobServer(t, "token")
	dir := t.TempDir()
	blob := storage.NewBlob("token", storage.WithBlobAPIURL(srv.URL))
	return NewPostStore(blob, storage.NewFS(dir), nil), srv, dir
}

func samplePosts() []Post {
	return []Post{
		{ID: "a", Slug: "venus-a", Title: "Venus", Text: "Morning star", Date: "2024-05-01", Topic: TopicAstronomy, Format: FormatFact},
		{ID: "b", Slug: "seven-b", Title: "Seven", Text: "A lucky number", Date: "2024-05-02", Topic: TopicNumerology, Format: FormatSeries,
			Images: []string{"/uploads/1.jpg", "/uploads/2.jpg"}, MetaTitle: "Seven"},
	}
}

func assertPosts(t *testing.T, got, want []Post) {
	t.Helper()
	g, _ := json.Marshal(got)
	w, _ := json.Marshal(want)
	if string(g) != string(w) {
		t.Errorf("posts = %s, want %s", g, w)
	}
}

func TestGetAllEmpty(t *testing.T) {
	local, _ := setupLocalStore(t)
	durable, _, _ := setupDurableStore(t)

	for name, s := range map[string]*PostStore{"local": local, "durable": durable} {
		posts, err := s.GetAll(context.Background())
		if err != nil {
			t.Fatalf("%s: GetAll failed: %v", name, err)
		}
		if posts == nil || len(posts) != 0 {
			t.Errorf("%s: expected empty non-nil slice, got %v", name, posts)
		}
	}
}

func TestRoundTripLocal(t *testing.T) {
	s, dir := setupLocalStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, samplePosts()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := s.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	assertPosts(t, got, samplePosts())

	if _, err := os.Stat(filepath.Join(dir, "data", "news.json")); err != nil {
		t.Errorf("local file not written: %v", err)
	}
	if s.Backend() != "fs" {
		t.Errorf("Backend = %q, want fs", s.Backend())
	}
}

func TestRoundTripDurable(t *testing.T) {
	s, srv, dir := setupDurableStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, samplePosts()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := s.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	assertPosts(t, got, samplePosts())

	if srv.Puts(Key) != 1 {
		t.Errorf("durable puts = %d, want 1", srv.Puts(Key))
	}
	// Dual write: the local file mirrors the durable object.
	local, err := os.ReadFile(filepath.Join(dir, "data", "news.json"))
	if err != nil {
		t.Fatalf("local mirror not written: %v", err)
	}
	remote, _ := srv.Object(Key)
	if string(local) != string(remote) {
		t.Errorf("local mirror = %s, durable = %s", local, remote)
	}
	if s.Backend() != "blob" {
		t.Errorf("Backend = %q, want blob", s.Backend())
	}
}

func TestReplaceAllRejectsNonArray(t *testing.T) {
	s, _ := setupLocalStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, samplePosts()); err != nil {
		t.Fatal(err)
	}
	for _, payload := range []string{`{"id":"x"}`, `"posts"`, `null`, ``, `[1,`} {
		err := s.ReplaceAll(ctx, []byte(payload))
		if !errors.Is(err, ErrNotArray) {
			t.Errorf("ReplaceAll(%q) err = %v, want ErrNotArray", payload, err)
		}
	}
	got, err := s.GetAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	assertPosts(t, got, samplePosts())
}

func TestReplaceAllKeepsElementsAsGiven(t *testing.T) {
	s, _ := setupLocalStore(t)
	ctx := context.Background()

	payload := `[{"id":"a","title":"X","extra":{"nested":true}}, {"id":"b"}]`
	if err := s.ReplaceAll(ctx, []byte(payload)); err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}
	raw, err := s.GetRaw(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := `[{"id":"a","title":"X","extra":{"nested":true}},{"id":"b"}]`
	if string(raw) != want {
		t.Errorf("GetRaw = %s, want %s", raw, want)
	}
}

func TestEmptyArrayClearsCollection(t *testing.T) {
	s, _, _ := setupDurableStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, samplePosts()); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplaceAll(ctx, []byte(`[]`)); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty collection, got %d posts", len(got))
	}
}

func TestLastWriterWins(t *testing.T) {
	s, _, _ := setupDurableStore(t)
	ctx := context.Background()

	first := []Post{{ID: "a", Title: "From admin one"}}
	second := []Post{{ID: "b", Title: "From admin two"}}
	if err := s.Save(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, second); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// The first writer's post is gone; there is no merge.
	assertPosts(t, got, second)
}

func TestDurableReadFailureReturnsEmpty(t *testing.T) {
	s, srv, _ := setupDurableStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, samplePosts()); err != nil {
		t.Fatal(err)
	}
	srv.SetFailing(true)
	got, err := s.GetAll(ctx)
	if err != nil {
		t.Fatalf("durable read failure should not surface, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty collection, got %d posts", len(got))
	}
}

func TestDurableWriteFailureSurfaces(t *testing.T) {
	s, srv, dir := setupDurableStore(t)
	srv.SetFailing(true)

	if err := s.Save(context.Background(), samplePosts()); err == nil {
		t.Fatal("expected error when the durable write fails")
	}
	if _, err := os.Stat(filepath.Join(dir, "data", "news.json")); !os.IsNotExist(err) {
		t.Errorf("local mirror must not be written before the durable write succeeds")
	}
}

func TestLocalMirrorFailureIsNotFatal(t *testing.T) {
	srv := storagetest.NewBlobServer(t, "token")
	blob := storage.NewBlob("token", storage.WithBlobAPIURL(srv.URL))
	s := NewPostStore(blob, failingBackend{}, nil)

	if err := s.Save(context.Background(), samplePosts()); err != nil {
		t.Fatalf("local mirror failure should not fail the write: %v", err)
	}
	if srv.Puts(Key) != 1 {
		t.Errorf("durable puts = %d, want 1", srv.Puts(Key))
	}
}

func TestLocalWriteFailureSurfaces(t *testing.T) {
	s := NewPostStore(nil, failingBackend{}, nil)
	if err := s.Save(context.Background(), samplePosts()); err == nil {
		t.Fatal("expected error when the only backend fails")
	}
	if _, err := s.GetAll(context.Background()); err == nil {
		t.Fatal("expected local read error to be returned")
	}
}

func TestFindBySlug(t *testing.T) {
	s, _ := setupLocalStore(t)
	ctx := context.Background()
	if err := s.Save(ctx, samplePosts()); err != nil {
		t.Fatal(err)
	}

	p, err := s.FindBySlug(ctx, "seven-b")
	if err != nil {
		t.Fatalf("FindBySlug failed: %v", err)
	}
	if p.ID != "b" {
		t.Errorf("ID = %q, want b", p.ID)
	}
	if _, err := s.FindBySlug(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
