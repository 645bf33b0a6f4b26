package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamarack-wildlife/settle-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// --- Runs ---

func TestSQLite_GetRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetRun(ctx, "nonexistent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestSQLite_CompleteRun_NonexistentRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	err := st.CompleteRun(ctx, "does-not-exist", model.RunStatusComplete, &model.RunResult{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_ListRuns_FilterByStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, testParams())
	require.NoError(t, err)
	err = st.CompleteRun(ctx, run.ID, model.RunStatusComplete, &model.RunResult{Individuals: 3})
	require.NoError(t, err)

	// Create another run that stays queued.
	_, err = st.CreateRun(ctx, testParams())
	require.NoError(t, err)

	runs, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete, Limit: 10})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
}

func TestSQLite_ListRuns_FilterBySource(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, model.RunParams{Source: "spring.csv", GridPoints: 100, Workers: 2})
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, model.RunParams{Source: "autumn.xlsx", GridPoints: 100, Workers: 2})
	require.NoError(t, err)

	runs, err := st.ListRuns(ctx, RunFilter{Source: "spring.csv", Limit: 10})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, "spring.csv", runs[0].Params.Source)
}

func TestSQLite_ListRuns_Limit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := st.CreateRun(ctx, testParams())
		require.NoError(t, err)
	}

	runs, err := st.ListRuns(ctx, RunFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestSQLite_ListRuns_CreatedAfter(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, testParams())
	require.NoError(t, err)

	// A cutoff in the past keeps the run; one in the future excludes it.
	runs, err := st.ListRuns(ctx, RunFilter{CreatedAfter: time.Now().Add(-time.Hour), Limit: 10})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	runs, err = st.ListRuns(ctx, RunFilter{CreatedAfter: time.Now().Add(time.Hour), Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

// --- Samples ---

func TestSQLite_SaveSamples_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveSamples(ctx, "run-1", nil))

	samples, err := st.ListSamples(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, samples)
}

// --- Fits ---

func TestSQLite_SaveFit_Overwrite(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, testParams())
	require.NoError(t, err)

	require.NoError(t, st.SaveFit(ctx, run.ID, testFit(), nil))

	updated := testFit()
	updated.Asymptote = 2.3
	updated.Iterations = 19
	settlement := &model.Settlement{PlateauKm2: 2.185, SettlementDays: 16.1}
	require.NoError(t, st.SaveFit(ctx, run.ID, updated, settlement))

	fit, gotSettlement, err := st.GetFit(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, fit)
	assert.InDelta(t, 2.3, fit.Asymptote, 1e-9)
	assert.Equal(t, 19, fit.Iterations)
	require.NotNil(t, gotSettlement)
	assert.InDelta(t, 2.185, gotSettlement.PlateauKm2, 1e-9)
}

// --- Dispersals ---

func TestSQLite_SaveDispersals_Overwrite(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, testParams())
	require.NoError(t, err)

	err = st.SaveDispersals(ctx, run.ID, []model.Dispersal{{Individual: "F01", Fixes: 10, DistanceKm: 3.9}})
	require.NoError(t, err)

	err = st.SaveDispersals(ctx, run.ID, []model.Dispersal{{Individual: "F01", Fixes: 12, DistanceKm: 4.21}})
	require.NoError(t, err)

	got, err := st.ListDispersals(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 12, got[0].Fixes)
	assert.InDelta(t, 4.21, got[0].DistanceKm, 1e-9)
}

func TestSQLite_ListDispersals_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	got, err := st.ListDispersals(ctx, "no-such-run")
	require.NoError(t, err)
	assert.Empty(t, got)
}

// --- Migrate ---

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// Migrate was already called in newTestSQLiteStore; calling again should not error.
	err := st.Migrate(ctx)
	require.NoError(t, err)
}
