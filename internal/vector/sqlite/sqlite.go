// Package sqlite implements vector.Repository as an embedded SQLite table
// with exact cosine search.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver

	"github.com/efebarandurmaz/docrag/internal/rag"
	"github.com/efebarandurmaz/docrag/internal/vector"
)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id        TEXT PRIMARY KEY,
	source    TEXT NOT NULL,
	text      TEXT NOT NULL,
	embedding BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source);
`

const upsertSQL = `
INSERT INTO chunks (id, source, text, embedding) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	source = excluded.source,
	text = excluded.text,
	embedding = excluded.embedding`

// Repository stores points in a single table.
type Repository struct {
	db *sql.DB
}

var (
	_ vector.Repository   = (*Repository)(nil)
	_ vector.SourceLister = (*Repository)(nil)
)

// Open opens (or creates) the index at dsn. Use ":memory:" for a private
// in-process index.
func Open(ctx context.Context, dsn string) (*Repository, error) {
	if dsn != ":memory:" && !strings.Contains(dsn, "?") {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &rag.StoreUnavailableError{Op: "open", Err: err}
	}
	if strings.HasPrefix(dsn, ":memory:") {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	r := &Repository{db: db}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, &rag.StoreUnavailableError{Op: "migrate", Err: err}
	}
	return r, nil
}

// New wraps an already opened database and creates the schema.
func New(ctx context.Context, db *sql.DB) (*Repository, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, &rag.StoreUnavailableError{Op: "migrate", Err: err}
	}
	return &Repository{db: db}, nil
}

// Upsert writes all points in one transaction.
func (r *Repository) Upsert(ctx context.Context, points []vector.Point) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("upsert", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return wrap("upsert", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, p.ID, p.Payload.Source, p.Payload.Text, encodeVector(p.Vector)); err != nil {
			return wrap("upsert", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return wrap("upsert", err)
	}
	return nil
}

// Search scans every row and keeps the topK most similar.
func (r *Repository) Search(ctx context.Context, query rag.Vector, topK int) ([]vector.Hit, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, source, text, embedding FROM chunks`)
	if err != nil {
		return nil, wrap("search", err)
	}
	defer rows.Close()

	best := newTopK(topK)
	for rows.Next() {
		var (
			hit  vector.Hit
			blob []byte
		)
		if err := rows.Scan(&hit.ID, &hit.Payload.Source, &hit.Payload.Text, &blob); err != nil {
			return nil, wrap("search", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("search: row %s: %w", hit.ID, err)
		}
		if len(vec) != len(query) {
			return nil, &rag.DimensionMismatchError{ID: hit.ID, Got: len(vec), Want: len(query)}
		}
		hit.Score = cosine(query, vec)
		best.offer(hit)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("search", err)
	}
	return best.sorted(), nil
}

func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, wrap("count", err)
	}
	return n, nil
}

// Sources lists the distinct source ids in the index.
func (r *Repository) Sources(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT source FROM chunks ORDER BY source`)
	if err != nil {
		return nil, wrap("sources", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, wrap("sources", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func wrap(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("sqlite %s: %w", op, err)
	}
	return &rag.StoreUnavailableError{Op: op, Err: err}
}
