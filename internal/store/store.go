// Package store is the run manifest: a write-mostly record of pipeline runs
// and the chunk rasters each run produced.
package store

import (
	"context"
	"time"

	"github.com/sells-group/pointraster/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	Input        string          `json:"input,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// Store defines the run manifest operations.
type Store interface {
	CreateRun(ctx context.Context, input string, mode model.AggregationMode) (*model.Run, error)
	AddChunk(ctx context.Context, runID string, chunk model.ChunkResult) error
	CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error
	FailRun(ctx context.Context, runID string, cause error) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	ListChunks(ctx context.Context, runID string) ([]model.ChunkResult, error)

	Migrate(ctx context.Context) error
	Close() error
}
