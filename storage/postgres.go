package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MediaPrefix is the site path Postgres-stored objects are served under.
const MediaPrefix = "/media/"

// Postgres stores objects as rows of a single table. It has no public
// object URLs of its own; Put returns a MediaPrefix path that the server
// answers from Get.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and ensures the objects table exists.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 8
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	p := &Postgres{pool: pool}
	if err := p.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return p, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS objects (
    key TEXT PRIMARY KEY,
    content BYTEA NOT NULL,
    content_type TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`)
	return err
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Name implements Backend.
func (p *Postgres) Name() string { return "postgres" }

// Get implements Backend.
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	k, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = p.pool.QueryRow(ctx, `SELECT content FROM objects WHERE key = $1`, k).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("select %s: %w", key, err)
	}
	return data, nil
}

// ContentType returns the content type recorded for key.
func (p *Postgres) ContentType(ctx context.Context, key string) (string, error) {
	k, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	var ct string
	err = p.pool.QueryRow(ctx, `SELECT content_type FROM objects WHERE key = $1`, k).Scan(&ct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotExist
		}
		return "", err
	}
	return ct, nil
}

// Put upserts the row for key in a single statement.
func (p *Postgres) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	k, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	_, err = p.pool.Exec(ctx, `
INSERT INTO objects (key, content, content_type, updated_at) VALUES ($1, $2, $3, now())
ON CONFLICT (key) DO UPDATE SET content = EXCLUDED.content, content_type = EXCLUDED.content_type, updated_at = now()`,
		k, data, contentType)
	if err != nil {
		return "", fmt.Errorf("upsert %s: %w", key, err)
	}
	return MediaPrefix + k, nil
}
