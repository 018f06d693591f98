package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"venuematch/internal/config"
	"venuematch/internal/fieldmap"
	"venuematch/internal/listener"
	"venuematch/internal/logging"
	"venuematch/internal/reconcile"
	"venuematch/internal/storage"
	"venuematch/internal/vendor"
)

func main() {
	cfg, err := config.Load()
	must(err)
	must(cfg.Require("SKIDDLE_API_KEY", cfg.SkiddleAPIKey))

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	registry, err := fieldmap.LoadRegistry(cfg.FieldMapDir)
	must(err)
	reconciler := reconcile.NewService(registry,
		reconcile.WithReferenceProvider(db),
		reconcile.WithRunRecorder(db),
		reconcile.WithWorkers(cfg.MatchWorkers),
		reconcile.WithLogger(logger),
	)

	svc := listener.NewService(vendor.NewFetchService(cfg, logger), reconciler, db, cfg, logger)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
