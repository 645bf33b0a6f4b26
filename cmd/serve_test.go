package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamarack-wildlife/settle-cli/internal/model"
	"github.com/tamarack-wildlife/settle-cli/internal/store"
)

func newServeTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// seedCompletedRun stores one run with samples, a fit, and a settlement.
func seedCompletedRun(t *testing.T, st store.Store) *model.Run {
	t.Helper()
	ctx := context.Background()

	run, err := st.CreateRun(ctx, model.RunParams{Source: "lynx.csv", GridPoints: 50, Workers: 2})
	require.NoError(t, err)

	base := time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC)
	samples := []model.RangeSample{
		{Individual: "F01", Time: base.Add(24 * time.Hour), Step: 2, AreaKm2: 0, Days: 1},
		{Individual: "F01", Time: base.Add(10 * 24 * time.Hour), Step: 3, AreaKm2: 4.2, Days: 10},
		{Individual: "F01", Time: base.Add(40 * 24 * time.Hour), Step: 4, AreaKm2: 18.9, Days: 40},
	}
	require.NoError(t, st.SaveSamples(ctx, run.ID, samples))

	fit := &model.FitResult{Asymptote: 20, Midpoint: 15, Scale: 5, N: 3, DOF: 0}
	settlement := &model.Settlement{PlateauKm2: 19, SettlementDays: 29.7}
	require.NoError(t, st.SaveFit(ctx, run.ID, fit, settlement))

	result := &model.RunResult{
		Individuals: 1,
		Fixes:       4,
		Samples:     len(samples),
		Fit:         fit,
		Settlement:  settlement,
	}
	require.NoError(t, st.CompleteRun(ctx, run.ID, model.RunStatusComplete, result))

	run.Status = model.RunStatusComplete
	run.Result = result
	return run
}

func TestNewRouter_Health(t *testing.T) {
	router := newRouter(newServeTestStore(t))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	err := json.Unmarshal(rr.Body.Bytes(), &body)
	require.NoError(t, err)
	assert.Equal(t, "ok", body["status"])
}

func TestNewRouter_Health_StoreDown(t *testing.T) {
	st := newServeTestStore(t)
	require.NoError(t, st.Close())

	router := newRouter(st)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "store unavailable")
}

func TestNewRouter_ListRuns(t *testing.T) {
	st := newServeTestStore(t)
	run := seedCompletedRun(t, st)

	_, err := st.CreateRun(context.Background(), model.RunParams{Source: "boar.csv", GridPoints: 100, Workers: 4})
	require.NoError(t, err)

	router := newRouter(st)

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var runs []model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	assert.Len(t, runs, 2)

	// Status filter narrows to the completed run.
	req = httptest.NewRequest(http.MethodGet, "/runs?status=complete", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
}

func TestNewRouter_ListRuns_BadLimit(t *testing.T) {
	router := newRouter(newServeTestStore(t))

	req := httptest.NewRequest(http.MethodGet, "/runs?limit=abc", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "limit must be an integer")
}

func TestNewRouter_GetRun(t *testing.T) {
	st := newServeTestStore(t)
	run := seedCompletedRun(t, st)

	router := newRouter(st)

	req := httptest.NewRequest(http.MethodGet, "/runs/"+run.ID, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var got model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, 1, got.Result.Individuals)
}

func TestNewRouter_GetRun_NotFound(t *testing.T) {
	router := newRouter(newServeTestStore(t))

	req := httptest.NewRequest(http.MethodGet, "/runs/nonexistent", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "run not found")
}

func TestNewRouter_Samples(t *testing.T) {
	st := newServeTestStore(t)
	run := seedCompletedRun(t, st)

	router := newRouter(st)

	req := httptest.NewRequest(http.MethodGet, "/runs/"+run.ID+"/samples", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var samples []model.RangeSample
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &samples))
	require.Len(t, samples, 3)
	assert.Equal(t, "F01", samples[0].Individual)
}

func TestNewRouter_Samples_RunNotFound(t *testing.T) {
	router := newRouter(newServeTestStore(t))

	req := httptest.NewRequest(http.MethodGet, "/runs/nonexistent/samples", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "run not found")
}

func TestNewRouter_Chart(t *testing.T) {
	st := newServeTestStore(t)
	run := seedCompletedRun(t, st)

	router := newRouter(st)

	req := httptest.NewRequest(http.MethodGet, "/runs/"+run.ID+"/chart", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")

	body := rr.Body.String()
	assert.Contains(t, body, "echarts")
	assert.Contains(t, body, "Days until settled")
}

func TestNewRouter_Chart_NoFit(t *testing.T) {
	st := newServeTestStore(t)

	run, err := st.CreateRun(context.Background(), model.RunParams{Source: "boar.csv", GridPoints: 100, Workers: 4})
	require.NoError(t, err)

	router := newRouter(st)

	req := httptest.NewRequest(http.MethodGet, "/runs/"+run.ID+"/chart", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "no fit stored for run")
}
