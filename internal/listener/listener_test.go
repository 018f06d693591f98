package listener

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venuematch/internal"
	"venuematch/internal/config"
	"venuematch/internal/fieldmap"
	"venuematch/internal/reconcile"
	"venuematch/internal/vendor"
)

const referenceCSV = "id,venue_name,venue_city,venue_pcode,venue_phone\n" +
	"115852,Phase One Jacaranda,Liverpool,L14BE,01513631292\n"

type staticReference struct{}

func (staticReference) LatestReference(context.Context) (string, error) { return referenceCSV, nil }

type fakeFetcher struct {
	mu     sync.Mutex
	calls  int
	params map[string]string
	err    error
}

func (f *fakeFetcher) FetchAll(_ context.Context, vendorID string, req vendor.Request) (internal.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.params = req.Params
	if f.err != nil {
		return internal.FetchResult{}, f.err
	}
	return internal.FetchResult{TotalHits: 2, Records: []internal.Record{
		{{Name: "id", Value: "1"}, {Name: "name", Value: "Phase One"}, {Name: "postcode", Value: "L1 4BE"}},
		{{Name: "id", Value: "2"}, {Name: "name", Value: "Elsewhere"}},
	}}, nil
}

type memoryStore struct {
	mu   sync.Mutex
	meta map[string]string
}

func (m *memoryStore) SetMetadata(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.meta == nil {
		m.meta = map[string]string{}
	}
	m.meta[key] = value
	return nil
}

func newListener(t *testing.T, fetcher *fakeFetcher, store *memoryStore, cfg config.Config) *Service {
	t.Helper()
	reg, err := fieldmap.DefaultRegistry()
	require.NoError(t, err)
	svc := reconcile.NewService(reg, reconcile.WithReferenceProvider(staticReference{}))
	return NewService(fetcher, svc, store, cfg, zerolog.Nop())
}

func TestRunCycleExportsWorkbook(t *testing.T) {
	out := t.TempDir()
	fetcher := &fakeFetcher{}
	store := &memoryStore{}
	cfg := config.Config{
		ListenerVendor:     "Skiddle",
		ListenerParams:     "town=Liverpool&radius=5",
		ListenerAutoExport: true,
		OutputDir:          out,
	}

	runID, err := newListener(t, fetcher, store, cfg).RunCycle(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	assert.Equal(t, map[string]string{"town": "Liverpool", "radius": "5"}, fetcher.params)
	_, err = os.Stat(filepath.Join(out, "listener", runID+".xlsx"))
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(store.meta[lastRunKey], runID+" "))
}

func TestRunCycleWithoutExport(t *testing.T) {
	out := t.TempDir()
	cfg := config.Config{ListenerVendor: "skiddle", OutputDir: out}

	runID, err := newListener(t, &fakeFetcher{}, &memoryStore{}, cfg).RunCycle(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	_, err = os.Stat(filepath.Join(out, "listener"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunCycleErrors(t *testing.T) {
	store := &memoryStore{}
	_, err := newListener(t, &fakeFetcher{err: errors.New("upstream down")}, store, config.Config{ListenerVendor: "skiddle"}).RunCycle(context.Background())
	assert.ErrorContains(t, err, "upstream down")
	assert.Empty(t, store.meta)

	_, err = newListener(t, &fakeFetcher{}, store, config.Config{ListenerVendor: "skiddle", ListenerParams: "a=%zz"}).RunCycle(context.Background())
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("always failing")}
	svc := newListener(t, fetcher, &memoryStore{}, config.Config{ListenerVendor: "skiddle", ListenerIntervalSec: 3600})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool {
		fetcher.mu.Lock()
		defer fetcher.mu.Unlock()
		return fetcher.calls == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
}
