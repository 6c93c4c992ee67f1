package newsclient

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// LocalStorage is device-local key/value storage the cache mirrors into.
type LocalStorage interface {
	// GetItem returns the value for key and whether it was present.
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// SQLiteStorage keeps items in a single-table SQLite database.
type SQLiteStorage struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path, creating its
// directory when needed.
func OpenSQLite(path string) (*SQLiteStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(2)
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStorage{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// GetItem implements LocalStorage.
func (s *SQLiteStorage) GetItem(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

// SetItem implements LocalStorage.
func (s *SQLiteStorage) SetItem(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339))
	return err
}

// RemoveItem implements LocalStorage.
func (s *SQLiteStorage) RemoveItem(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

// MemoryStorage is a LocalStorage that lives for the process only. The zero
// value is ready to use.
type MemoryStorage struct {
	mu    sync.Mutex
	items map[string]string
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{items: make(map[string]string)}
}

// GetItem implements LocalStorage.
func (m *MemoryStorage) GetItem(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[key]
	return v, ok, nil
}

// SetItem implements LocalStorage.
func (m *MemoryStorage) SetItem(ctx context.Context, key, value string) error {
	m.mu.Lock()
	if m.items == nil {
		m.items = make(map[string]string)
	}
	m.items[key] = value
	m.mu.Unlock()
	return nil
}

// RemoveItem implements LocalStorage.
func (m *MemoryStorage) RemoveItem(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}
