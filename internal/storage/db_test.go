package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venuematch/internal"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestReferenceVersions(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	text, err := db.LatestReference(ctx)
	require.NoError(t, err)
	assert.Empty(t, text)

	_, err = db.SaveReference(ctx, "id,venue_name\n1,A\n", 1, "first.csv")
	require.NoError(t, err)
	id, err := db.SaveReference(ctx, "id,venue_name\n1,A\n2,B\n", 2, "second.csv")
	require.NoError(t, err)

	row, err := db.LatestReferenceRow(ctx)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, int(id), row.ID)
	assert.Equal(t, 2, row.Rows)
	assert.Equal(t, "second.csv", row.Source)

	text, err = db.LatestReference(ctx)
	require.NoError(t, err)
	assert.Equal(t, "id,venue_name\n1,A\n2,B\n", text)
}

func TestRunsRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	run := internal.RunRecord{
		ID:             "run-1",
		Vendor:         "skiddle",
		CandidateCount: 3,
		HasMatchCount:  1,
		ZeroMatchCount: 2,
		HasMatchCSV:    "source_id\n1\n",
		ZeroMatchCSV:   "source_id\n2\n3\n",
		Timings:        map[string]float64{"totalMs": 1.5},
	}
	require.NoError(t, db.InsertRun(ctx, run))
	assert.Error(t, db.InsertRun(ctx, run), "duplicate id")

	got, err := db.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, run.HasMatchCSV, got.HasMatchCSV)
	assert.Equal(t, run.ZeroMatchCSV, got.ZeroMatchCSV)
	assert.Equal(t, 1.5, got.Timings["totalMs"])
	assert.NotEmpty(t, got.CreatedAt)

	missing, err := db.GetRun(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = db.MustRun(ctx, "nope")
	assert.Error(t, err)
}

func TestListRunsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, db.InsertRun(ctx, internal.RunRecord{
			ID:           fmt.Sprintf("run-%d", i),
			Vendor:       "skiddle",
			HasMatchCSV:  "x\n",
			ZeroMatchCSV: "x\n",
		}))
	}

	runs, err := db.ListRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-4", runs[0].ID)
	assert.Equal(t, "run-3", runs[1].ID)
	assert.Empty(t, runs[0].HasMatchCSV)
}

func TestMetadata(t *testing.T) {
	db := openTestDB(t)

	value, err := db.GetMetadata("listener.last_run")
	require.NoError(t, err)
	assert.Nil(t, value)

	require.NoError(t, db.SetMetadata("listener.last_run", "a"))
	require.NoError(t, db.SetMetadata("listener.last_run", "b"))

	value, err = db.GetMetadata("listener.last_run")
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, "b", *value)
}
