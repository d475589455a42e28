package state

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteTracker keeps delivered hashes in a SQLite database. Lookups go
// through an in-memory copy loaded at open.
type SQLiteTracker struct {
	*MemoryTracker
	db      *sql.DB
	persist bool
}

func NewSQLiteTracker(stateDir string, persist bool) (*SQLiteTracker, error) {
	if err := prepareDir(stateDir); err != nil {
		return nil, err
	}
	return openSQLite(filepath.Join(stateDir, "processed-msg.db"), persist)
}

func openSQLite(dsn string, persist bool) (*SQLiteTracker, error) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	t := &SQLiteTracker{MemoryTracker: NewMemoryTracker(), db: db, persist: persist}
	if err := t.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := t.load(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return t, nil
}

func (t *SQLiteTracker) ensureSchema(ctx context.Context) error {
	statements := []string{
		`PRAGMA journal_mode = WAL;`,
		`CREATE TABLE IF NOT EXISTS processed (
            hash TEXT PRIMARY KEY,
            source TEXT NOT NULL,
            processed_at INTEGER NOT NULL
        );`,
	}
	for _, statement := range statements {
		if _, err := t.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (t *SQLiteTracker) load(ctx context.Context) error {
	rows, err := t.db.QueryContext(ctx, `SELECT hash, source FROM processed;`)
	if err != nil {
		return fmt.Errorf("load processed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hash, source string
		if err := rows.Scan(&hash, &source); err != nil {
			return fmt.Errorf("scan processed: %w", err)
		}
		t.mark(hash, source)
	}
	return rows.Err()
}

func (t *SQLiteTracker) MarkProcessed(hash, source string) error {
	if hash == "" || !t.mark(hash, source) || !t.persist {
		return nil
	}
	_, err := t.db.ExecContext(context.Background(),
		`INSERT INTO processed (hash, source, processed_at) VALUES (?, ?, ?)
        ON CONFLICT(hash) DO NOTHING;`,
		hash, source, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("insert processed: %w", err)
	}
	return nil
}

func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}
