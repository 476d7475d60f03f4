package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps records in the progress_records table. The table is
// created by database.DB.Migrate.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (Record, bool, error) {
	var rec Record
	var progress string
	err := s.pool.QueryRow(ctx,
		`SELECT notes, progress, target_time, remaining_time
		 FROM progress_records
		 WHERE key = $1`,
		key,
	).Scan(&rec.Notes, &progress, &rec.TargetTime, &rec.RemainingTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get progress record: %w", err)
	}
	rec.Progress = migrateStatus(progress)
	return rec, true, nil
}

func (s *PostgresStore) Put(ctx context.Context, key string, rec Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO progress_records (key, notes, progress, target_time, remaining_time, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 ON CONFLICT (key) DO UPDATE SET
		   notes = EXCLUDED.notes,
		   progress = EXCLUDED.progress,
		   target_time = EXCLUDED.target_time,
		   remaining_time = EXCLUDED.remaining_time,
		   updated_at = EXCLUDED.updated_at`,
		key,
		rec.Notes,
		string(rec.Progress),
		rec.TargetTime,
		rec.RemainingTime,
	)
	if err != nil {
		return fmt.Errorf("upsert progress record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close is a no-op: the pool belongs to database.DB.
func (s *PostgresStore) Close() error { return nil }
