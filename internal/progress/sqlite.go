package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS progress_records (
	key            TEXT PRIMARY KEY,
	notes          TEXT    NOT NULL DEFAULT '',
	progress       TEXT    NOT NULL,
	target_time    INTEGER NOT NULL DEFAULT 0 CHECK (target_time >= 0),
	remaining_time INTEGER NOT NULL DEFAULT 0 CHECK (remaining_time >= 0),
	updated_at     TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
)`

// SQLiteStore keeps records in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (and creates) the database at path. ":memory:" gives a
// throwaway database.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Every new connection to :memory: would be a fresh empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating progress_records: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (Record, bool, error) {
	var rec Record
	var progress string
	err := s.db.QueryRowContext(ctx,
		`SELECT notes, progress, target_time, remaining_time FROM progress_records WHERE key = ?`,
		key,
	).Scan(&rec.Notes, &progress, &rec.TargetTime, &rec.RemainingTime)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("querying progress record: %w", err)
	}
	rec.Progress = migrateStatus(progress)
	return rec, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO progress_records (key, notes, progress, target_time, remaining_time, updated_at)
		 VALUES (?, ?, ?, ?, ?, strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		 ON CONFLICT(key) DO UPDATE SET
		   notes = excluded.notes,
		   progress = excluded.progress,
		   target_time = excluded.target_time,
		   remaining_time = excluded.remaining_time,
		   updated_at = excluded.updated_at`,
		key,
		rec.Notes,
		string(rec.Progress),
		rec.TargetTime,
		rec.RemainingTime,
	)
	if err != nil {
		return fmt.Errorf("upserting progress record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// migrateStatus maps legacy stored spellings onto the canonical set and keeps
// anything unknown as-is so Validate reports it.
func migrateStatus(s string) Status {
	if st, err := ParseStatus(s); err == nil {
		return st
	}
	return Status(s)
}
