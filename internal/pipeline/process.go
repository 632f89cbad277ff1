package pipeline

import (
	"context"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sells-group/pointraster/internal/chunk"
	"github.com/sells-group/pointraster/internal/filter"
	"github.com/sells-group/pointraster/internal/model"
	"github.com/sells-group/pointraster/internal/pointio"
	"github.com/sells-group/pointraster/internal/polygons"
	"github.com/sells-group/pointraster/internal/quicklook"
	"github.com/sells-group/pointraster/internal/raster"
	"github.com/sells-group/pointraster/internal/rasterio"
)

// processChunk materializes one chunk, filters it and writes its raster.
// A chunk left empty by the filters yields a warning and no raster.
func (p *Pipeline) processChunk(ctx context.Context, src chunkSource, mode model.AggregationMode, ext string, noData float64, lines []*geom.LineString) (*chunkOutput, error) {
	log := p.log.With(zap.Int("chunk", src.Index), zap.String("source", src.Path))

	it, err := pointio.Open(src.Path, p.cfg.Chunk.BatchSize)
	if err != nil {
		return nil, err
	}
	pts, err := pointio.ReadAll(ctx, it)
	if cerr := it.Close(); cerr != nil && err == nil {
		err = model.NewError(model.KindIO, "close chunk", eris.Wrapf(cerr, "pipeline: close %s", src.Path))
	}
	if err != nil {
		return nil, err
	}

	bounds := src.Bounds
	if bounds.IsEmpty() {
		for _, pt := range pts {
			bounds = bounds.Extend(pt)
		}
	}
	out := &chunkOutput{result: model.ChunkResult{
		Index:  src.Index,
		Bounds: bounds,
		Source: src.Path,
		Points: len(pts),
	}}
	res := &out.result

	var steps []filter.Step
	if p.cfg.Filter.Spatial && !bounds.IsEmpty() {
		polys, ferr := polygons.FetchOrEmpty(ctx, log, p.polygons, bounds.Buffer(p.cfg.Polygons.BBoxBuffer))
		if ferr != nil {
			res.Warning = ferr.Error()
		}
		res.Polygons = len(polys)
		steps = append(steps, filter.SpatialStep(filter.NewPolygonIndex(polys)))
	}
	if p.cfg.Filter.ZRange {
		steps = append(steps, filter.ZRangeStep(p.cfg.Filter.ZMin, p.cfg.Filter.ZMax))
	}
	if p.cfg.Filter.Centerline {
		steps = append(steps, filter.CenterlineStep(lines, p.cfg.Filter.CenterlineBuffer))
	}

	kept, stats := filter.Apply(pts, steps...)
	for _, s := range stats {
		res.Filters = append(res.Filters, model.FilterStat{Name: s.Name, In: s.In, Out: s.Out})
	}

	tags := filter.Tags(steps)
	stem := chunk.Stem(src.Path)
	dir := p.cfg.Pipeline.OutputDir

	if p.cfg.Pipeline.ExportCSV {
		if err := exportCSV(filepath.Join(dir, outputName(stem, tags, ".csv")), kept); err != nil {
			return nil, err
		}
	}
	if p.cfg.Frequency.Enabled {
		out.probe = quicklook.ZWithinRadius(kept, p.cfg.Frequency.X, p.cfg.Frequency.Y, p.cfg.Frequency.Radius)
	}

	if len(kept) == 0 {
		res.Warning = joinWarning(res.Warning, "no points left to rasterize in "+filepath.Base(src.Path))
		log.Warn("pipeline: chunk empty after filtering", zap.Int("points_in", len(pts)))
		return out, nil
	}

	r, err := raster.Rasterize(kept, mode, p.cfg.Raster.CellSize, p.cfg.Raster.CRS)
	if err != nil {
		return nil, err
	}
	res.Raster = filepath.Join(dir, outputName(stem, tags, ext))
	if err := rasterio.Write(res.Raster, r, noData); err != nil {
		return nil, err
	}
	res.Rows, res.Cols = r.Rows, r.Cols
	out.raster = r

	if p.cfg.Raster.Quicklook {
		p.quicklook(log, res.Raster, r)
	}

	log.Debug("pipeline: chunk rasterized",
		zap.Int("points", len(kept)),
		zap.Int("rows", r.Rows),
		zap.Int("cols", r.Cols),
		zap.Strings("filters", tags),
	)
	return out, nil
}

// quicklook renders a PNG next to rasterPath. Failures are logged only.
func (p *Pipeline) quicklook(log *zap.Logger, rasterPath string, r *raster.Raster) {
	png := strings.TrimSuffix(rasterPath, filepath.Ext(rasterPath)) + ".png"
	if err := quicklook.RasterPNG(png, r, filepath.Base(rasterPath)); err != nil {
		log.Warn("pipeline: quicklook failed", zap.String("path", png), zap.Error(err))
	}
}

// frequency plots the Z values collected around the probe point and logs
// their mode. It returns a warning when no point was close enough.
func (p *Pipeline) frequency(log *zap.Logger, path string, z []float64) string {
	fc := p.cfg.Frequency
	if len(z) == 0 {
		log.Warn("pipeline: no points near frequency probe",
			zap.Float64("x", fc.X), zap.Float64("y", fc.Y), zap.Float64("radius", fc.Radius))
		return "no points within frequency radius"
	}
	z = slices.Clone(z)
	slices.Sort(z)
	if err := quicklook.FrequencyPNG(path, z, fc.Bins, "Frequency of Z"); err != nil {
		log.Warn("pipeline: frequency plot failed", zap.String("path", path), zap.Error(err))
	}
	log.Info("pipeline: frequency probe",
		zap.Int("points", len(z)),
		zap.Float64("mode", raster.Mode(z)),
	)
	return ""
}

func exportCSV(path string, pts []model.Point) (err error) {
	sink, err := pointio.CreateCSV(path)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, sink.Close()) }()
	return sink.Write(pts)
}

func joinWarning(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}
