package durable

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS steps (
	run_key    TEXT NOT NULL,
	name       TEXT NOT NULL,
	output     BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (run_key, name)
);
`

// StepRecord is one completed step.
type StepRecord struct {
	RunKey    string
	Name      string
	Output    json.RawMessage
	CreatedAt time.Time
}

// Journal persists step outputs in SQLite, keyed by run and step name.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// OpenJournal opens (or creates) a journal database at dsn.
func OpenJournal(ctx context.Context, dsn string) (*Journal, error) {
	if dsn != ":memory:" && !strings.Contains(dsn, "?") {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if strings.HasPrefix(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	j, err := NewJournal(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// NewJournal uses an already opened database.
func NewJournal(ctx context.Context, db *sql.DB) (*Journal, error) {
	if _, err := db.ExecContext(ctx, journalSchema); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

// Run returns a Runner bound to runKey. Calling it again with the same key
// resumes that run.
func (j *Journal) Run(runKey string) Runner {
	return &journalRun{j: j, key: runKey}
}

// Steps lists the completed steps of a run in completion order.
func (j *Journal) Steps(ctx context.Context, runKey string) ([]StepRecord, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT name, output, created_at FROM steps WHERE run_key = ? ORDER BY created_at, rowid`, runKey)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var out []StepRecord
	for rows.Next() {
		rec := StepRecord{RunKey: runKey}
		var ts int64
		if err := rows.Scan(&rec.Name, &rec.Output, &ts); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		rec.CreatedAt = time.Unix(0, ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Forget deletes the recorded steps of a finished run so the next run with
// the same key starts fresh.
func (j *Journal) Forget(ctx context.Context, runKey string) error {
	if _, err := j.db.ExecContext(ctx, `DELETE FROM steps WHERE run_key = ?`, runKey); err != nil {
		return fmt.Errorf("forget run %s: %w", runKey, err)
	}
	return nil
}

// Pending returns the keys of runs that have recorded steps.
func (j *Journal) Pending(ctx context.Context) ([]string, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT DISTINCT run_key FROM steps ORDER BY run_key`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error { return j.db.Close() }

type journalRun struct {
	j   *Journal
	key string
}

func (r *journalRun) RunStep(ctx context.Context, name string, out any, fn StepFunc) error {
	var data []byte
	err := r.j.db.QueryRowContext(ctx,
		`SELECT output FROM steps WHERE run_key = ? AND name = ?`, r.key, name).Scan(&data)
	switch {
	case err == nil:
		return decode(name, data, out)
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("step %s: read journal: %w", name, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	v, err := fn(ctx)
	if err != nil {
		return err
	}
	data, err = json.Marshal(v)
	if err != nil {
		return fmt.Errorf("step %s: encode output: %w", name, err)
	}
	if _, err := r.j.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO steps (run_key, name, output, created_at) VALUES (?, ?, ?, ?)`,
		r.key, name, data, r.j.now().UnixNano()); err != nil {
		return fmt.Errorf("step %s: record output: %w", name, err)
	}
	return decode(name, data, out)
}
