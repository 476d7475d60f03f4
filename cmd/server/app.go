package main

import (
	"context"
	"fmt"

	"github.com/p-n-ai/study-tracker/internal/curriculum"
	"github.com/p-n-ai/study-tracker/internal/httpapi"
	"github.com/p-n-ai/study-tracker/internal/platform/config"
	"github.com/p-n-ai/study-tracker/internal/progress"
	"github.com/p-n-ai/study-tracker/internal/reconcile"
	"github.com/p-n-ai/study-tracker/internal/storage"
)

// app holds everything main wires together.
type app struct {
	ledger  *progress.Ledger
	api     *httpapi.Server
	storage *storage.Handle
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	cur, err := curriculum.Open(cfg.Curriculum.Path)
	if err != nil {
		return nil, err
	}

	h, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	rec := reconcile.New(cur, h.Ledger, reconcile.WithConcurrency(cfg.Reconcile.Concurrency))
	if _, err := rec.BuildView(ctx); err != nil {
		h.Close()
		return nil, fmt.Errorf("building initial view: %w", err)
	}

	deb := reconcile.NewDebouncer(cfg.Reconcile.NoteDebounce, reconcile.NotesCommitter(rec), nil)
	return &app{
		ledger:  h.Ledger,
		api:     httpapi.New(cur, h.Ledger, rec, deb, httpapi.NewHub()),
		storage: h,
	}, nil
}

func (a *app) close() {
	a.storage.Close()
}
