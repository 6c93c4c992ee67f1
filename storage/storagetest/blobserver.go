// Package storagetest provides an in-process blob service for tests.
package storagetest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
)

// BlobServer emulates the list/put/fetch API the storage.Blob client talks to.
type BlobServer struct {
	*httptest.Server

	Token string

	mu      sync.Mutex
	objects map[string][]byte
	puts    map[string]int
	fail    bool
}

// NewBlobServer starts a blob service accepting token. It is closed when the
// test finishes.
func NewBlobServer(t *testing.T, token string) *BlobServer {
	t.Helper()
	s := &BlobServer{
		Token:   token,
		objects: make(map[string][]byte),
		puts:    make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// SetFailing makes every API call answer 503 until reset.
func (s *BlobServer) SetFailing(fail bool) {
	s.mu.Lock()
	s.fail = fail
	s.mu.Unlock()
}

// Object returns the stored bytes for pathname.
func (s *BlobServer) Object(pathname string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[pathname]
	return data, ok
}

// Puts reports how many times pathname was written.
func (s *BlobServer) Puts(pathname string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts[pathname]
}

func (s *BlobServer) handle(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/_obj/") {
		s.serveObject(w, strings.TrimPrefix(r.URL.Path, "/_obj/"))
		return
	}

	s.mu.Lock()
	failing := s.fail
	s.mu.Unlock()
	if failing {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error": map[string]string{"code": "unavailable", "message": "service unavailable"},
		})
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+s.Token {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error": map[string]string{"code": "forbidden", "message": "invalid token"},
		})
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/":
		s.list(w, r.URL.Query().Get("prefix"))
	case r.Method == http.MethodPut:
		s.put(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *BlobServer) list(w http.ResponseWriter, prefix string) {
	s.mu.Lock()
	var names []string
	for name := range s.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	s.mu.Unlock()
	sort.Strings(names)

	blobs := make([]map[string]any, 0, len(names))
	for _, name := range names {
		blobs = append(blobs, map[string]any{
			"url":      s.URL + "/_obj/" + name,
			"pathname": name,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"blobs": blobs, "hasMore": false})
}

func (s *BlobServer) put(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/")
	data, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.objects[name] = data
	s.puts[name]++
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{
		"url":      s.URL + "/_obj/" + name,
		"pathname": name,
	})
}

func (s *BlobServer) serveObject(w http.ResponseWriter, name string) {
	data, ok := s.Object(name)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
