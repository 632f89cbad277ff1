package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pointraster/internal/model"
	"github.com/sells-group/pointraster/internal/store"
)

// MetricsSnapshot holds a point-in-time view of run health.
type MetricsSnapshot struct {
	// Run counts within the lookback window.
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	FailRate     float64 `json:"fail_rate"`

	// Point accounting over completed runs.
	PointsIn         int64   `json:"points_in"`
	PointsSkipped    int64   `json:"points_skipped"`
	PointsRasterized int64   `json:"points_rasterized"`
	SkipRate         float64 `json:"skip_rate"`

	// Completed runs that reported at least one warning.
	DegradedRuns int `json:"degraded_runs"`
	Rasters      int `json:"rasters"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the run manifest.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.store.ListRuns(ctx, store.RunFilter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
		if r.Summary == nil {
			continue
		}
		snap.PointsIn += r.Summary.PointsIn
		snap.PointsSkipped += r.Summary.Skipped
		snap.PointsRasterized += r.Summary.PointsRasterized
		snap.Rasters += len(r.Summary.Rasters)
		if len(r.Summary.Warnings) > 0 {
			snap.DegradedRuns++
		}
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.PointsIn > 0 {
		snap.SkipRate = float64(snap.PointsSkipped) / float64(snap.PointsIn)
	}
	return snap, nil
}
