package progress

import "context"

// Store is a durable key→record mapping. Implementations only move bytes:
// validation, key derivation, timeouts and per-key ordering live in Ledger.
type Store interface {
	// Get returns the record stored under key and whether one exists.
	Get(ctx context.Context, key string) (Record, bool, error)
	// Put replaces the whole record stored under key.
	Put(ctx context.Context, key string, rec Record) error
	// Ping verifies the back end is reachable.
	Ping(ctx context.Context) error
	Close() error
}
