// Package storage persists collections, papers, citations and chunks in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
type DB struct {
	db *sql.DB
}

// Tx is a unit-of-work over the database. All reads and writes of a graph
// run go through one Tx and become visible to other connections only on
// Commit.
type Tx struct {
	tx *sql.Tx
}

// ErrTxDone is returned when a Tx is used after Commit or Rollback.
var ErrTxDone = errors.New("transaction already finished")

// busyTimeoutMillis is how long a writer waits for another writer's
// transaction before failing with SQLITE_BUSY.
const busyTimeoutMillis = 5000

// OpenDB opens or creates a SQLite database at the given path.
//
// Transactions are opened with BEGIN IMMEDIATE, so a unit-of-work takes the
// database write lock up front. Two graph runs against the same database
// (from this or another process) are serialized instead of racing on paper
// and citation creation.
func OpenDB(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		path, busyTimeoutMillis)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// createSchema creates the database schema if it doesn't exist.
func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS collections (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			owner_id TEXT,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS papers (
			id TEXT PRIMARY KEY,
			collection_id TEXT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
			doi TEXT,
			title TEXT NOT NULL,
			title_norm TEXT NOT NULL,
			abstract TEXT,
			year INTEGER,
			venue TEXT,
			url TEXT,
			pdf_path TEXT,
			source TEXT NOT NULL,
			provenance TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		-- Identity invariant: one paper per normalized DOI per collection,
		-- and one DOI-less paper per (title, year) per collection.
		CREATE UNIQUE INDEX IF NOT EXISTS uq_papers_collection_doi
			ON papers(collection_id, doi) WHERE doi IS NOT NULL;
		CREATE UNIQUE INDEX IF NOT EXISTS uq_papers_collection_title_year
			ON papers(collection_id, title_norm, year) WHERE doi IS NULL;
		CREATE INDEX IF NOT EXISTS idx_papers_title_year
			ON papers(collection_id, title_norm, year);

		CREATE TABLE IF NOT EXISTS paper_authors (
			paper_id TEXT NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
			author_order INTEGER NOT NULL,
			name TEXT NOT NULL,
			affiliation TEXT,
			orcid TEXT,
			PRIMARY KEY (paper_id, author_order)
		);

		CREATE TABLE IF NOT EXISTS citations (
			id TEXT PRIMARY KEY,
			src_paper_id TEXT NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
			dst_doi TEXT,
			dst_title TEXT,
			dst_year INTEGER,
			resolved_paper_id TEXT REFERENCES papers(id) ON DELETE CASCADE,
			created_at TEXT NOT NULL,
			resolved_at TEXT
		);

		CREATE UNIQUE INDEX IF NOT EXISTS uq_citations_src_dst
			ON citations(src_paper_id, dst_doi) WHERE dst_doi IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_citations_src ON citations(src_paper_id);
		CREATE INDEX IF NOT EXISTS idx_citations_resolved ON citations(resolved_paper_id);

		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			paper_id TEXT NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
			section TEXT NOT NULL,
			ord INTEGER NOT NULL,
			text TEXT NOT NULL,
			UNIQUE (paper_id, section, ord)
		);

		CREATE TABLE IF NOT EXISTS chunk_embeddings (
			chunk_id TEXT PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
			model_name TEXT NOT NULL,
			dimensions INTEGER NOT NULL,
			vector BLOB NOT NULL
		);

		CREATE TABLE IF NOT EXISTS gap_insights (
			id TEXT PRIMARY KEY,
			collection_id TEXT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
			insight TEXT NOT NULL,
			score REAL NOT NULL,
			evidence TEXT,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_gap_insights_collection ON gap_insights(collection_id);
	`

	_, err := db.Exec(schema)
	return err
}

// Begin opens a unit-of-work. The caller must Commit or Rollback it.
func (d *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Update runs fn in a unit-of-work and commits it if fn returns nil.
func (d *DB) Update(ctx context.Context, fn func(*Tx) error) error {
	tx, err := d.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// View runs fn in a unit-of-work that is always rolled back.
func (d *DB) View(ctx context.Context, fn func(*Tx) error) error {
	tx, err := d.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return fn(tx)
}

// Commit makes all writes of the unit-of-work durable.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return ErrTxDone
		}
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

// Rollback abandons the unit-of-work. Rolling back a finished Tx is a no-op.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rolling back: %w", err)
	}
	return nil
}

// scanner interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// nullableStringValue converts a string to sql.NullString, treating empty as NULL.
func nullableStringValue(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullableIntValue converts an int to sql.NullInt64, treating zero as NULL.
func nullableIntValue(n int) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}

// formatTime renders timestamps in a sortable UTC form.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a timestamp written by formatTime. Unparseable values
// return the zero time.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
