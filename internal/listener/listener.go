package listener

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"venuematch/internal"
	"venuematch/internal/config"
	"venuematch/internal/reconcile"
	"venuematch/internal/vendor"
)

const lastRunKey = "listener.last_run"

type Fetcher interface {
	FetchAll(ctx context.Context, vendorID string, req vendor.Request) (internal.FetchResult, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, vendorID string, payload internal.MatchPayload) (*reconcile.Result, error)
}

type MetadataStore interface {
	SetMetadata(key, value string) error
}

// Service periodically pulls vendor listings and reconciles them against the
// stored reference table.
type Service struct {
	fetcher    Fetcher
	reconciler Reconciler
	store      MetadataStore
	cfg        config.Config
	logger     zerolog.Logger
}

func NewService(fetcher Fetcher, reconciler Reconciler, store MetadataStore, cfg config.Config, logger zerolog.Logger) *Service {
	return &Service{fetcher: fetcher, reconciler: reconciler, store: store, cfg: cfg, logger: logger}
}

func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.ListenerIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	for {
		if _, err := s.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error().Err(err).Msg("listener cycle failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// RunCycle performs one fetch and reconcile pass and returns the run id.
func (s *Service) RunCycle(ctx context.Context) (string, error) {
	vendorID := strings.ToLower(strings.TrimSpace(s.cfg.ListenerVendor))
	params, err := vendor.ParseParams(s.cfg.ListenerParams)
	if err != nil {
		return "", err
	}

	fetched, err := s.fetcher.FetchAll(ctx, vendorID, vendor.Request{Params: params})
	if err != nil {
		return "", err
	}
	if len(fetched.Records) == 0 {
		s.logger.Info().Str("vendor", vendorID).Msg("listener cycle found no records")
		return "", nil
	}

	result, err := s.reconciler.Reconcile(ctx, vendorID, internal.MatchPayload{InputRecords: fetched.Records})
	if err != nil {
		return "", err
	}

	if s.cfg.ListenerAutoExport {
		outputPath := filepath.Join(s.cfg.OutputDir, "listener", result.RunID+".xlsx")
		if err := reconcile.ExportXLSX(result, outputPath); err != nil {
			return result.RunID, err
		}
	}

	_ = s.store.SetMetadata(lastRunKey, result.RunID+" "+time.Now().UTC().Format(time.RFC3339))

	s.logger.Info().
		Str("vendor", vendorID).
		Str("run_id", result.RunID).
		Int("fetched", len(fetched.Records)).
		Int("has_match", result.Response.HasMatchCount).
		Int("zero_match", result.Response.ZeroMatchCount).
		Msg("listener cycle done")
	return result.RunID, nil
}
