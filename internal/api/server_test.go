package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pointraster/internal/model"
	"github.com/sells-group/pointraster/internal/monitoring"
	"github.com/sells-group/pointraster/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "manifest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	srv := httptest.NewServer(NewServer(st).Handler())
	t.Cleanup(srv.Close)
	return srv, st
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	var body map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/health", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRunsEndpoints(t *testing.T) {
	t.Parallel()
	srv, st := newTestServer(t)
	ctx := context.Background()

	done, err := st.CreateRun(ctx, "a.las", model.ModeMedian)
	require.NoError(t, err)
	require.NoError(t, st.AddChunk(ctx, done.ID, model.ChunkResult{Index: 0, Points: 10, Raster: "a_0_0.tif"}))
	require.NoError(t, st.AddChunk(ctx, done.ID, model.ChunkResult{Index: 1, Points: 5, Raster: "a_50_0.tif"}))
	require.NoError(t, st.CompleteRun(ctx, done.ID, &model.RunSummary{RunID: done.ID, PointsIn: 15}))

	failed, err := st.CreateRun(ctx, "b.las", model.ModeMode)
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, failed.ID, assert.AnError))

	var runs []model.Run
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/runs", &runs))
	assert.Len(t, runs, 2)

	runs = nil
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/runs?status=failed", &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, failed.ID, runs[0].ID)

	var run model.Run
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/runs/"+done.ID, &run))
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.NotNil(t, run.Summary)
	assert.Equal(t, int64(15), run.Summary.PointsIn)

	var chunks []model.ChunkResult
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/runs/"+done.ID+"/chunks", &chunks))
	require.Len(t, chunks, 2)
	assert.Equal(t, "a_50_0.tif", chunks[1].Raster)

	chunks = nil
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/runs/"+failed.ID+"/chunks", &chunks))
	assert.Empty(t, chunks)
}

func TestRunsErrors(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	tests := []struct {
		path string
		want int
	}{
		{path: "/runs/missing", want: http.StatusNotFound},
		{path: "/runs/missing/chunks", want: http.StatusNotFound},
		{path: "/runs?limit=abc", want: http.StatusBadRequest},
		{path: "/runs?offset=-1", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var body map[string]string
			assert.Equal(t, tt.want, getJSON(t, srv.URL+tt.path, &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestStats(t *testing.T) {
	t.Parallel()
	srv, st := newTestServer(t)
	ctx := context.Background()

	ok, err := st.CreateRun(ctx, "a.las", model.ModeMean)
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, ok.ID, &model.RunSummary{
		PointsIn: 100, Skipped: 4, PointsRasterized: 96, Warnings: []string{"no points left to rasterize in a_0_0.las"},
	}))
	bad, err := st.CreateRun(ctx, "b.las", model.ModeMean)
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, bad.ID, assert.AnError))

	var snap monitoring.MetricsSnapshot
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/stats?hours=2", &snap))
	assert.Equal(t, 2, snap.RunsTotal)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, int64(4), snap.PointsSkipped)
	assert.Equal(t, 1, snap.DegradedRuns)
	assert.Equal(t, 2, snap.LookbackHours)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/stats?hours=x", nil))
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/runs", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
