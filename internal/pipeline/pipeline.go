// Package pipeline runs a point file through chunking, filtering,
// rasterization and mosaicking, and records the outcome.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/pointraster/internal/chunk"
	"github.com/sells-group/pointraster/internal/config"
	"github.com/sells-group/pointraster/internal/fetcher"
	"github.com/sells-group/pointraster/internal/model"
	"github.com/sells-group/pointraster/internal/polygons"
	"github.com/sells-group/pointraster/internal/raster"
	"github.com/sells-group/pointraster/internal/rasterio"
	"github.com/sells-group/pointraster/internal/store"
)

// Pipeline turns one point file into chunk rasters and a mosaic.
type Pipeline struct {
	cfg      *config.Config
	store    store.Store
	polygons polygons.Source
	resolver *fetcher.Resolver
	log      *zap.Logger
}

// New creates a Pipeline. st and src may be nil: runs are then not recorded
// and the spatial filter sees no polygons.
func New(cfg *config.Config, st store.Store, src polygons.Source, resolver *fetcher.Resolver) *Pipeline {
	if resolver == nil {
		resolver = fetcher.NewResolver(cfg.Pipeline.TempDir)
	}
	return &Pipeline{
		cfg:      cfg,
		store:    st,
		polygons: src,
		resolver: resolver,
		log:      zap.L().With(zap.String("component", "pipeline")),
	}
}

// chunkSource is one point file to rasterize.
type chunkSource struct {
	Index  int
	Bounds model.BoundingBox
	Path   string
}

// chunkOutput carries a processed chunk back to Run.
type chunkOutput struct {
	result model.ChunkResult
	raster *raster.Raster
	probe  []float64
}

// Run processes input end to end and returns the run summary. The summary is
// also written as YAML next to the rasters and recorded in the manifest.
func (p *Pipeline) Run(ctx context.Context, input string) (_ *model.RunSummary, err error) {
	if err := p.cfg.Validate("run"); err != nil {
		return nil, err
	}
	mode, err := model.ParseAggregationMode(p.cfg.Raster.Mode)
	if err != nil {
		return nil, err
	}
	noData, err := p.cfg.Raster.NoDataValue()
	if err != nil {
		return nil, err
	}
	ext, err := rasterio.Extension(p.cfg.Raster.Format)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	runID := uuid.NewString()
	if p.store != nil {
		run, createErr := p.store.CreateRun(ctx, input, mode)
		if createErr != nil {
			return nil, eris.Wrap(createErr, "pipeline: create run")
		}
		runID = run.ID
	}
	log := p.log.With(zap.String("run_id", runID), zap.String("input", input))
	log.Info("pipeline: starting run")

	sum := &model.RunSummary{
		RunID:    runID,
		Input:    input,
		Mode:     mode,
		CellSize: p.cfg.Raster.CellSize,
		CRS:      p.cfg.Raster.CRS,
	}
	defer func() {
		sum.Duration = time.Since(start)
		p.record(ctx, log, sum, err)
	}()

	var path string
	if err := phase(log, "resolve", func() error {
		var rerr error
		path, rerr = p.resolver.Resolve(ctx, input)
		return rerr
	}); err != nil {
		return nil, err
	}

	outDir := p.cfg.Pipeline.OutputDir
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, model.NewError(model.KindIO, "output dir", eris.Wrapf(err, "pipeline: mkdir %s", outDir))
	}

	var lines []*geom.LineString
	if p.cfg.Filter.Centerline {
		if lines, err = polygons.ReadLines(ctx, p.cfg.Filter.CenterlinePath); err != nil {
			return nil, err
		}
	}

	sources := []chunkSource{{Index: 0, Bounds: model.EmptyBounds(), Path: path}}
	if p.cfg.Chunk.Enabled {
		dir := filepath.Join(p.cfg.Pipeline.TempDir, runID)
		defer func() {
			if rmErr := os.RemoveAll(dir); rmErr != nil {
				log.Warn("pipeline: remove chunk dir", zap.String("dir", dir), zap.Error(rmErr))
			}
		}()
		var set *ChunkSet
		if err := phase(log, "chunk", func() error {
			var cerr error
			set, cerr = p.Chunk(ctx, path, dir)
			return cerr
		}); err != nil {
			return nil, err
		}
		sum.PointsIn = set.Route.Total
		sum.Routed = set.Route.Routed
		sum.Skipped = set.Route.Skipped
		sources = set.Sources
	}

	outputs := make([]*chunkOutput, len(sources))
	if err := phase(log, "rasterize", func() error {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.cfg.Pipeline.Concurrency)
		for i, src := range sources {
			g.Go(func() error {
				out, perr := p.processChunk(gctx, src, mode, ext, noData, lines)
				if perr != nil {
					return perr
				}
				outputs[i] = out
				return nil
			})
		}
		return g.Wait()
	}); err != nil {
		return nil, err
	}

	var rasters []*raster.Raster
	var probe []float64
	for _, out := range outputs {
		res := out.result
		if !p.cfg.Chunk.Enabled {
			sum.PointsIn += int64(res.Points)
			sum.Routed += int64(res.Points)
		}
		sum.Chunks = append(sum.Chunks, res)
		if res.Warning != "" {
			sum.Warnings = append(sum.Warnings, res.Warning)
		}
		if out.raster != nil {
			rasters = append(rasters, out.raster)
			sum.Rasters = append(sum.Rasters, res.Raster)
			sum.PointsRasterized += int64(rasterized(res))
		}
		probe = append(probe, out.probe...)
		if p.store != nil {
			if addErr := p.store.AddChunk(ctx, runID, res); addErr != nil {
				return nil, eris.Wrap(addErr, "pipeline: record chunk")
			}
		}
	}

	stem := chunk.Stem(path)
	if p.cfg.Pipeline.Merge && len(rasters) > 1 {
		if err := phase(log, "merge", func() error {
			merged, merr := raster.Merge(rasters)
			if merr != nil {
				return merr
			}
			sum.Merged = filepath.Join(outDir, stem+"_merged"+ext)
			if werr := rasterio.Write(sum.Merged, merged, noData); werr != nil {
				return werr
			}
			if p.cfg.Raster.Quicklook {
				p.quicklook(log, sum.Merged, merged)
			}
			return nil
		}); err != nil {
			return nil, err
		}
	}

	if p.cfg.Frequency.Enabled {
		if w := p.frequency(log, filepath.Join(outDir, stem+"_frequency.png"), probe); w != "" {
			sum.Warnings = append(sum.Warnings, w)
		}
	}

	sum.Duration = time.Since(start)
	if err := WriteSummary(filepath.Join(outDir, stem+"_summary.yaml"), sum); err != nil {
		return nil, err
	}

	log.Info("pipeline: run complete",
		zap.Int64("points_in", sum.PointsIn),
		zap.Int64("skipped", sum.Skipped),
		zap.Int64("points_rasterized", sum.PointsRasterized),
		zap.Int("rasters", len(sum.Rasters)),
		zap.Int("warnings", len(sum.Warnings)),
		zap.Duration("duration", sum.Duration),
	)
	return sum, nil
}

// rasterized is the number of points left after the last filter.
func rasterized(res model.ChunkResult) int {
	if len(res.Filters) == 0 {
		return res.Points
	}
	return res.Filters[len(res.Filters)-1].Out
}

// record closes the run in the manifest. Manifest failures are logged only.
func (p *Pipeline) record(ctx context.Context, log *zap.Logger, sum *model.RunSummary, runErr error) {
	if p.store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if runErr != nil {
		if err := p.store.FailRun(ctx, sum.RunID, runErr); err != nil {
			log.Warn("pipeline: failed to mark run failed", zap.Error(err))
		}
		return
	}
	if err := p.store.CompleteRun(ctx, sum.RunID, sum); err != nil {
		log.Warn("pipeline: failed to complete run", zap.Error(err))
	}
}

// phase runs fn and logs its duration and outcome.
func phase(log *zap.Logger, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start).Milliseconds()
	if err != nil {
		log.Error("pipeline: phase failed",
			zap.String("phase", name),
			zap.Int64("duration_ms", duration),
			zap.Error(err),
		)
		return err
	}
	log.Info("pipeline: phase complete",
		zap.String("phase", name),
		zap.Int64("duration_ms", duration),
	)
	return nil
}

// WriteSummary stores sum as YAML at path.
func WriteSummary(path string, sum *model.RunSummary) error {
	data, err := yaml.Marshal(sum)
	if err != nil {
		return eris.Wrap(err, "pipeline: marshal summary")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return model.NewError(model.KindIO, "write summary", eris.Wrapf(err, "pipeline: write %s", path))
	}
	return nil
}

// outputName joins stem and filter tags into a file name.
func outputName(stem string, tags []string, ext string) string {
	return strings.Join(append([]string{stem}, tags...), "_") + ext
}
