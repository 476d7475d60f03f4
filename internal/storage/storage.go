// Package storage opens the configured progress ledger back end and event
// sink, and owns the connections behind them.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/p-n-ai/study-tracker/internal/platform/broker"
	"github.com/p-n-ai/study-tracker/internal/platform/cache"
	"github.com/p-n-ai/study-tracker/internal/platform/config"
	"github.com/p-n-ai/study-tracker/internal/platform/database"
	"github.com/p-n-ai/study-tracker/internal/platform/docstore"
	"github.com/p-n-ai/study-tracker/internal/progress"
)

// EventsExchange is the AMQP topic exchange progress events go to.
const EventsExchange = "progress.events"

// Handle is an open ledger plus the connections it depends on.
type Handle struct {
	Ledger  *progress.Ledger
	closers []func()
}

// Open connects to every service the configuration needs and returns the
// ledger. On error everything opened so far is closed again.
func Open(ctx context.Context, cfg *config.Config) (*Handle, error) {
	h := &Handle{}
	ok := false
	defer func() {
		if !ok {
			h.Close()
		}
	}()

	var db *database.DB
	if cfg.NeedsDatabase() {
		var err error
		db, err = database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		h.closers = append(h.closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrating database: %w", err)
		}
		slog.Info("database connected")
	}

	store, err := h.openStore(ctx, cfg, db)
	if err != nil {
		return nil, err
	}
	h.closers = append(h.closers, func() {
		if err := store.Close(); err != nil {
			slog.Warn("failed to close ledger store", "error", err)
		}
	})
	events, err := h.openEvents(cfg, db)
	if err != nil {
		return nil, err
	}

	h.Ledger = progress.NewLedger(store,
		progress.WithTimeout(cfg.Ledger.Timeout),
		progress.WithEventLogger(events),
	)

	ok = true
	return h, nil
}

func (h *Handle) openStore(ctx context.Context, cfg *config.Config, db *database.DB) (progress.Store, error) {
	switch cfg.Ledger.Backend {
	case config.BackendMemory:
		return progress.NewMemoryStore(), nil
	case config.BackendFile:
		return progress.NewFileStore(cfg.Ledger.FilePath)
	case config.BackendSQLite:
		return progress.OpenSQLiteStore(cfg.Ledger.SQLite)
	case config.BackendPostgres:
		return progress.NewPostgresStore(db.Pool)
	case config.BackendRedis:
		c, err := cache.New(ctx, cfg.Cache.URL, cfg.Cache.Prefix)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		h.closers = append(h.closers, func() { _ = c.Close() })
		return progress.NewRedisStore(c)
	case config.BackendMongo:
		ds, err := docstore.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.PoolSize)
		if err != nil {
			return nil, fmt.Errorf("connecting to mongo: %w", err)
		}
		h.closers = append(h.closers, func() { _ = ds.Close() })
		return progress.NewMongoStore(ds.Collection(cfg.Mongo.Collection))
	}
	return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
}

func (h *Handle) openEvents(cfg *config.Config, db *database.DB) (progress.EventLogger, error) {
	switch cfg.Events.Sink {
	case "none":
		return progress.NopEventLogger{}, nil
	case "postgres":
		return progress.NewPostgresEventLogger(db.Pool), nil
	case "amqp":
		pub, err := broker.New(cfg.Events.AMQPURL, EventsExchange)
		if err != nil {
			return nil, fmt.Errorf("connecting to broker: %w", err)
		}
		h.closers = append(h.closers, func() { _ = pub.Close() })
		return progress.NewAMQPEventLogger(pub), nil
	default:
		return progress.SlogEventLogger{}, nil
	}
}

// Close releases everything in reverse order of acquisition.
func (h *Handle) Close() {
	for i := len(h.closers) - 1; i >= 0; i-- {
		h.closers[i]()
	}
	h.closers = nil
}
