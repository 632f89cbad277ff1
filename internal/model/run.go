package model

import "time"

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one invocation of the pipeline as recorded in the run manifest.
type Run struct {
	ID        string          `json:"id"`
	Input     string          `json:"input"`
	Mode      AggregationMode `json:"mode"`
	Status    RunStatus       `json:"status"`
	Summary   *RunSummary     `json:"summary,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// FilterStat counts points entering and leaving one filter.
type FilterStat struct {
	Name string `json:"name" yaml:"name"`
	In   int    `json:"in" yaml:"in"`
	Out  int    `json:"out" yaml:"out"`
}

// ChunkResult describes the raster produced for one chunk.
type ChunkResult struct {
	Index    int          `json:"index" yaml:"index"`
	Bounds   BoundingBox  `json:"bounds" yaml:"bounds"`
	Source   string       `json:"source" yaml:"source"`
	Points   int          `json:"points" yaml:"points"`
	Polygons int          `json:"polygons" yaml:"polygons"`
	Filters  []FilterStat `json:"filters,omitempty" yaml:"filters,omitempty"`
	Raster   string       `json:"raster,omitempty" yaml:"raster,omitempty"`
	Rows     int          `json:"rows" yaml:"rows"`
	Cols     int          `json:"cols" yaml:"cols"`
	Warning  string       `json:"warning,omitempty" yaml:"warning,omitempty"`
}

// RunSummary is the report written at the end of a run.
type RunSummary struct {
	RunID            string          `json:"run_id" yaml:"run_id"`
	Input            string          `json:"input" yaml:"input"`
	Mode             AggregationMode `json:"mode" yaml:"mode"`
	CellSize         float64         `json:"cell_size" yaml:"cell_size"`
	CRS              string          `json:"crs" yaml:"crs"`
	PointsIn         int64           `json:"points_in" yaml:"points_in"`
	Routed           int64           `json:"routed" yaml:"routed"`
	Skipped          int64           `json:"skipped" yaml:"skipped"`
	PointsRasterized int64           `json:"points_rasterized" yaml:"points_rasterized"`
	Chunks           []ChunkResult   `json:"chunks" yaml:"chunks"`
	Rasters          []string        `json:"rasters" yaml:"rasters"`
	Merged           string          `json:"merged,omitempty" yaml:"merged,omitempty"`
	Warnings         []string        `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Duration         time.Duration   `json:"duration" yaml:"duration"`
}
