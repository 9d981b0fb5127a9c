// Package pgrecords keeps the per-image bookkeeping rows in PostgreSQL.
package pgrecords

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound means no row carries the requested id.
var ErrNotFound = errors.New("pgrecords: record not found")

const schema = `CREATE TABLE IF NOT EXISTS images (
	id         BIGSERIAL PRIMARY KEY,
	keyword    TEXT NOT NULL DEFAULT '',
	src        TEXT NOT NULL UNIQUE,
	alt        TEXT NOT NULL DEFAULT '',
	downloaded BOOLEAN NOT NULL DEFAULT FALSE,
	processed  BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Counts summarizes the bookkeeping table.
type Counts struct {
	Total      int64 `json:"total"`
	Downloaded int64 `json:"downloaded"`
	Processed  int64 `json:"processed"`
}

// KeywordCount is the number of rows collected for one search keyword.
type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int64  `json:"count"`
}

// Store implements imagecurate.RecordStore on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for databaseURL and verifies the connection.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolCfg.MaxConns = 8
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema creates the images table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Insert records a source URL found by the ingestion collaborator and
// returns its id. An existing row for src is returned unchanged.
func (s *Store) Insert(ctx context.Context, keyword, src, alt string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO images (keyword, src, alt) VALUES ($1, $2, $3)
		ON CONFLICT (src) DO UPDATE SET src = EXCLUDED.src
		RETURNING id`, keyword, src, alt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert image: %w", err)
	}
	return id, nil
}

// MarkDownloaded flags the row as downloaded.
func (s *Store) MarkDownloaded(ctx context.Context, id int64) error {
	return s.setFlag(ctx, `UPDATE images SET downloaded = TRUE WHERE id = $1`, id)
}

// MarkProcessed flags the row as normalized.
func (s *Store) MarkProcessed(ctx context.Context, id int64) error {
	return s.setFlag(ctx, `UPDATE images SET processed = TRUE WHERE id = $1`, id)
}

func (s *Store) setFlag(ctx context.Context, query string, id int64) error {
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("update image %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("image %d: %w", id, ErrNotFound)
	}
	return nil
}

// Counts returns total, downloaded and processed row counts.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE downloaded),
		       count(*) FILTER (WHERE processed)
		FROM images`).Scan(&c.Total, &c.Downloaded, &c.Processed)
	if err != nil {
		return Counts{}, fmt.Errorf("count images: %w", err)
	}
	return c, nil
}

// KeywordCounts returns the row count per keyword, largest first.
func (s *Store) KeywordCounts(ctx context.Context) ([]KeywordCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT keyword, count(*) FROM images
		GROUP BY keyword
		ORDER BY count(*) DESC, keyword`)
	if err != nil {
		return nil, fmt.Errorf("count keywords: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (KeywordCount, error) {
		var kc KeywordCount
		err := row.Scan(&kc.Keyword, &kc.Count)
		return kc, err
	})
	if err != nil {
		return nil, fmt.Errorf("count keywords: %w", err)
	}
	return out, nil
}
