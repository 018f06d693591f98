package reconcile

import (
	"context"
	"errors"
	"io"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"venuematch/internal"
	"venuematch/internal/fieldmap"
	"venuematch/internal/matching"
	"venuematch/internal/tabular"
)

// ReferenceProvider supplies the current reference table when a request does not carry one.
type ReferenceProvider interface {
	LatestReference(ctx context.Context) (string, error)
}

type RunRecorder interface {
	InsertRun(ctx context.Context, run internal.RunRecord) error
}

type Service struct {
	registry *fieldmap.Registry
	funnel   *matching.Funnel
	provider ReferenceProvider
	recorder RunRecorder
	workers  int
	logger   zerolog.Logger
}

type Option func(*Service)

func WithReferenceProvider(p ReferenceProvider) Option {
	return func(s *Service) { s.provider = p }
}

func WithRunRecorder(r RunRecorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithWorkers bounds parallel matching. n <= 0 uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(s *Service) { s.workers = n }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(registry *fieldmap.Registry, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		funnel:   matching.NewFunnel(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.workers <= 0 {
		s.workers = runtime.GOMAXPROCS(0)
	}
	return s
}

type Result struct {
	RunID     string
	Vendor    string
	Response  internal.MatchResponse
	Headers   []string
	HasMatch  []internal.Record
	ZeroMatch []internal.Record
	Timings   map[string]float64
}

func (s *Service) Reconcile(ctx context.Context, vendorID string, payload internal.MatchPayload) (*Result, error) {
	start := time.Now()
	timings := map[string]float64{}
	lap := func(name string, since time.Time) time.Time {
		now := time.Now()
		timings[name] = float64(now.Sub(since).Microseconds()) / 1000
		return now
	}

	mapper, err := s.registry.Mapper(vendorID)
	if err != nil {
		return nil, err
	}

	referenceText, err := s.referenceText(ctx, payload.LatestCSV)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(referenceText) == "" {
		return nil, &internal.EmptyPayloadError{What: "reference table"}
	}
	if len(payload.InputRecords) == 0 {
		return nil, &internal.EmptyPayloadError{What: "input records"}
	}

	step := time.Now()
	reference, err := decodeReference(referenceText)
	if err != nil {
		return nil, err
	}
	step = lap("decodeMs", step)

	headers := fieldmap.NewHeaderSet()
	candidates := mapper.MapAll(payload.InputRecords, headers)
	step = lap("mapMs", step)

	outcomes, err := s.matchAll(ctx, candidates, reference)
	if err != nil {
		return nil, err
	}
	step = lap("matchMs", step)

	columns := fieldmap.NewHeaderSet(headers.Names()...)
	for _, name := range internal.StageColumns() {
		columns.Add(name)
	}

	hasMatch := make([]internal.Record, 0)
	zeroMatch := make([]internal.Record, 0)
	for i, candidate := range candidates {
		annotated := outcomes[i].Annotate(candidate)
		if outcomes[i].MatchedFieldsNum() > 0 {
			hasMatch = append(hasMatch, annotated)
		} else {
			zeroMatch = append(zeroMatch, annotated)
		}
	}

	zeroCSV, err := tabular.Encode(zeroMatch, columns.Names())
	if err != nil {
		return nil, err
	}
	hasCSV, err := tabular.Encode(hasMatch, columns.Names())
	if err != nil {
		return nil, err
	}
	lap("encodeMs", step)
	lap("totalMs", start)

	result := &Result{
		RunID:  uuid.NewString(),
		Vendor: strings.ToLower(strings.TrimSpace(vendorID)),
		Response: internal.MatchResponse{
			ZeroMatchCSV:   zeroCSV,
			ZeroMatchCount: len(zeroMatch),
			HasMatchCSV:    hasCSV,
			HasMatchCount:  len(hasMatch),
		},
		Headers:   columns.Names(),
		HasMatch:  hasMatch,
		ZeroMatch: zeroMatch,
		Timings:   timings,
	}

	s.logger.Info().
		Str("run_id", result.RunID).
		Str("vendor", result.Vendor).
		Int("reference", len(reference)).
		Int("candidates", len(candidates)).
		Int("has_match", result.Response.HasMatchCount).
		Int("zero_match", result.Response.ZeroMatchCount).
		Float64("total_ms", timings["totalMs"]).
		Msg("reconciliation done")

	s.record(ctx, result, len(candidates))
	return result, nil
}

// MapOnly maps raw vendor records to canonical CSV. Columns start with the
// stored reference table's header row when one is available.
func (s *Service) MapOnly(ctx context.Context, vendorID string, raws []internal.Record) (string, error) {
	mapper, err := s.registry.Mapper(vendorID)
	if err != nil {
		return "", err
	}
	if len(raws) == 0 {
		return "", &internal.EmptyPayloadError{What: "input records"}
	}

	headers := fieldmap.NewHeaderSet(s.referenceHeader(ctx)...)
	mapped := mapper.MapAll(raws, headers)
	return tabular.Encode(mapped, headers.Names())
}

func (s *Service) Vendors() []string {
	return s.registry.Vendors()
}

func (s *Service) matchAll(ctx context.Context, candidates, reference []internal.Record) ([]internal.MatchOutcome, error) {
	outcomes := make([]internal.MatchOutcome, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = s.funnel.Match(candidates[i], reference)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// CheckVendor reports whether vendorID names a registered field map.
func (s *Service) CheckVendor(vendorID string) error {
	_, err := s.registry.Resolve(vendorID)
	return err
}

// decodeReference rejects reference tables without an id column.
func decodeReference(text string) ([]internal.Record, error) {
	dec, err := tabular.NewDecoder(strings.NewReader(text), tabular.ReferenceOptions)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(dec.Header(), internal.FieldID) {
		return nil, &internal.ParseError{Line: 1, Err: errors.New("reference table has no id column")}
	}
	var out []internal.Record
	for {
		rec, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

func (s *Service) referenceText(ctx context.Context, inline string) (string, error) {
	if strings.TrimSpace(inline) != "" || s.provider == nil {
		return inline, nil
	}
	return s.provider.LatestReference(ctx)
}

func (s *Service) referenceHeader(ctx context.Context) []string {
	if s.provider == nil {
		return nil
	}
	text, err := s.provider.LatestReference(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("reference header unavailable")
		return nil
	}
	dec, err := tabular.NewDecoder(strings.NewReader(text), tabular.ReferenceOptions)
	if err != nil {
		s.logger.Warn().Err(err).Msg("reference header unreadable")
		return nil
	}
	return dec.Header()
}

func (s *Service) record(ctx context.Context, result *Result, candidates int) {
	if s.recorder == nil {
		return
	}
	run := internal.RunRecord{
		ID:             result.RunID,
		Vendor:         result.Vendor,
		CandidateCount: candidates,
		HasMatchCount:  result.Response.HasMatchCount,
		ZeroMatchCount: result.Response.ZeroMatchCount,
		HasMatchCSV:    result.Response.HasMatchCSV,
		ZeroMatchCSV:   result.Response.ZeroMatchCSV,
		Timings:        result.Timings,
	}
	if err := s.recorder.InsertRun(ctx, run); err != nil {
		s.logger.Error().Err(err).Str("run_id", result.RunID).Msg("failed to record run")
	}
}
