// Package server exposes reconciliation, field mapping, reference storage and
// vendor fetches over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"venuematch/internal"
	"venuematch/internal/reconcile"
	"venuematch/internal/reference"
	"venuematch/internal/vendor"
)

type Fetcher interface {
	FetchAll(ctx context.Context, vendorID string, req vendor.Request) (internal.FetchResult, error)
}

type RunStore interface {
	GetRun(ctx context.Context, id string) (*internal.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]internal.RunRecord, error)
}

type Options struct {
	Addr            string
	AllowedOrigin   string
	MaxPayloadBytes int64
}

type Server struct {
	reconciler *reconcile.Service
	references *reference.SyncService
	fetcher    Fetcher
	runs       RunStore
	opts       Options
	logger     zerolog.Logger
}

func New(reconciler *reconcile.Service, references *reference.SyncService, fetcher Fetcher, runs RunStore, opts Options, logger zerolog.Logger) *Server {
	if opts.MaxPayloadBytes <= 0 {
		opts.MaxPayloadBytes = 32 << 20
	}
	return &Server{
		reconciler: reconciler,
		references: references,
		fetcher:    fetcher,
		runs:       runs,
		opts:       opts,
		logger:     logger,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/vendors", s.handleVendors)
	mux.HandleFunc("POST /api/match/{vendor}", s.handleMatch)
	mux.HandleFunc("POST /api/map/{vendor}", s.handleMap)
	mux.HandleFunc("POST /api/reference", s.handleImportReference)
	mux.HandleFunc("GET /api/reference", s.handleGetReference)
	mux.HandleFunc("POST /api/vendors/{vendor}/fetch", s.handleFetch)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/runs/{id}/xlsx", s.handleRunXLSX)

	return chain(mux,
		requestID,
		accessLog(s.logger),
		cors(s.opts.AllowedOrigin),
	)
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.opts.Addr).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info().Msg("server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
