package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/p-n-ai/study-tracker/internal/cli"
	"github.com/p-n-ai/study-tracker/internal/platform/config"
	"github.com/p-n-ai/study-tracker/internal/platform/logging"
	"github.com/p-n-ai/study-tracker/internal/progress"
	"github.com/p-n-ai/study-tracker/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	// Operators read stderr; keep it human.
	slog.SetDefault(logging.New(os.Stderr, cfg.Log.Level, "text", cfg.Log.AddSource))
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var handle *storage.Handle
	defer func() {
		if handle != nil {
			handle.Close()
		}
	}()

	app := &cli.App{
		CurriculumPath: cfg.Curriculum.Path,
		OpenLedger: func(ctx context.Context) (*progress.Ledger, error) {
			h, err := storage.Open(ctx, cfg)
			if err != nil {
				return nil, err
			}
			handle = h
			return h.Ledger, nil
		},
	}

	return cli.NewRootCmd(app).ExecuteContext(ctx)
}
