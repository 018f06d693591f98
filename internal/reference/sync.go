package reference

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"venuematch/internal"
	"venuematch/internal/tabular"
)

const lastImportKey = "reference.last_import"

type Store interface {
	SaveReference(ctx context.Context, csv string, rows int, source string) (int64, error)
	LatestReferenceRow(ctx context.Context) (*internal.ReferenceRow, error)
	SetMetadata(key, value string) error
}

// SyncService validates and stores new versions of the reference table.
type SyncService struct {
	store  Store
	logger zerolog.Logger
}

func NewSyncService(store Store, logger zerolog.Logger) *SyncService {
	return &SyncService{store: store, logger: logger}
}

type Summary struct {
	ID      int64    `json:"id"`
	Rows    int      `json:"rows"`
	Headers []string `json:"headers"`
	Source  string   `json:"source"`
}

// Import decodes text as a reference table and stores it unchanged when it parses.
func (s *SyncService) Import(ctx context.Context, text, source string) (Summary, error) {
	if strings.TrimSpace(text) == "" {
		return Summary{}, &internal.EmptyPayloadError{What: "reference table"}
	}

	headers, records, err := decode(text)
	if err != nil {
		return Summary{}, err
	}

	id, err := s.store.SaveReference(ctx, text, len(records), source)
	if err != nil {
		return Summary{}, err
	}
	_ = s.store.SetMetadata(lastImportKey, time.Now().UTC().Format(time.RFC3339))

	s.logger.Info().Int64("reference_id", id).Int("rows", len(records)).Str("source", source).Msg("reference table imported")
	return Summary{ID: id, Rows: len(records), Headers: headers, Source: source}, nil
}

func (s *SyncService) ImportFile(ctx context.Context, path string) (Summary, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, err
	}
	return s.Import(ctx, string(blob), filepath.Base(path))
}

func (s *SyncService) Latest(ctx context.Context) (*internal.ReferenceRow, error) {
	return s.store.LatestReferenceRow(ctx)
}

// Current describes the newest stored reference table, or nil when none exists.
func (s *SyncService) Current(ctx context.Context) (*Summary, error) {
	row, err := s.store.LatestReferenceRow(ctx)
	if err != nil || row == nil {
		return nil, err
	}
	headers, _, err := decode(row.CSV)
	if err != nil {
		return nil, err
	}
	return &Summary{ID: int64(row.ID), Rows: row.Rows, Headers: headers, Source: row.Source}, nil
}

func decode(text string) ([]string, []internal.Record, error) {
	dec, err := tabular.NewDecoder(strings.NewReader(text), tabular.ReferenceOptions)
	if err != nil {
		return nil, nil, err
	}
	records := make([]internal.Record, 0)
	for {
		rec, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return dec.Header(), records, nil
		}
		if err != nil {
			return nil, nil, err
		}
		records = append(records, rec)
	}
}
