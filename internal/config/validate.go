package config

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pointraster/internal/model"
	"github.com/sells-group/pointraster/internal/rasterio"
)

// Polygon source names accepted by polygons.source.
const (
	SourceNone    = "none"
	SourceFile    = "file"
	SourcePostGIS = "postgis"
	SourcePDOK    = "pdok"
)

// ParseTileSize parses a "WxH" tile size such as "50x64.17".
func ParseTileSize(s string) (model.TileSpec, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return model.TileSpec{}, model.Errorf(model.KindConfig, "tile size", "tile size %q must look like WxH", s)
	}
	width, err := strconv.ParseFloat(strings.TrimSpace(w), 64)
	if err != nil {
		return model.TileSpec{}, model.NewError(model.KindConfig, "tile size", eris.Wrapf(err, "config: parse width %q", w))
	}
	height, err := strconv.ParseFloat(strings.TrimSpace(h), 64)
	if err != nil {
		return model.TileSpec{}, model.NewError(model.KindConfig, "tile size", eris.Wrapf(err, "config: parse height %q", h))
	}
	spec := model.TileSpec{MaxWidth: width, MaxHeight: height}
	if err := spec.Validate(); err != nil {
		return model.TileSpec{}, err
	}
	return spec, nil
}

// TileSpec returns the configured chunk limits.
func (c ChunkConfig) TileSpec() model.TileSpec {
	return model.TileSpec{MaxWidth: c.MaxWidth, MaxHeight: c.MaxHeight}
}

// NoDataValue parses raster.nodata. "nan" and "" mean NaN.
func (r RasterConfig) NoDataValue() (float64, error) {
	s := strings.TrimSpace(r.NoData)
	if s == "" {
		s = "nan"
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, model.NewError(model.KindConfig, "raster nodata", eris.Wrapf(err, "config: parse nodata %q", r.NoData))
	}
	return v, nil
}

// Validate checks the settings a command mode depends on before any work
// starts. Modes are "run" and "serve".
func (c *Config) Validate(mode string) error {
	switch mode {
	case "run":
		return c.validateRun()
	case "serve":
		return c.validateServe()
	default:
		return model.Errorf(model.KindConfig, "config", "unknown mode %q", mode)
	}
}

func (c *Config) validateServe() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return model.Errorf(model.KindConfig, "server port", "server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Manifest.Path == "" {
		return model.Errorf(model.KindConfig, "manifest", "serve needs manifest.path")
	}
	if c.Monitoring.Enabled {
		if c.Monitoring.LookbackWindowHours <= 0 {
			return model.Errorf(model.KindConfig, "monitoring", "monitoring.lookback_window_hours must be > 0")
		}
		if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
			return model.Errorf(model.KindConfig, "monitoring", "monitoring.failure_rate_threshold must be within [0, 1]")
		}
	}
	return nil
}

func (c *Config) validateRun() error {
	if c.Chunk.Enabled {
		if err := c.Chunk.TileSpec().Validate(); err != nil {
			return err
		}
	}
	if c.Chunk.BatchSize <= 0 {
		return model.Errorf(model.KindConfig, "chunk batch size", "batch size must be positive, got %d", c.Chunk.BatchSize)
	}
	if _, err := model.ParseAggregationMode(c.Raster.Mode); err != nil {
		return err
	}
	if !(c.Raster.CellSize > 0) {
		return model.Errorf(model.KindConfig, "raster cell size", "cell size must be positive, got %g", c.Raster.CellSize)
	}
	if _, err := rasterio.Extension(c.Raster.Format); err != nil {
		return err
	}
	if _, err := c.Raster.NoDataValue(); err != nil {
		return err
	}
	if c.Filter.ZRange && c.Filter.ZMin >= c.Filter.ZMax {
		return model.Errorf(model.KindConfig, "filter zrange", "z_min %g must be below z_max %g", c.Filter.ZMin, c.Filter.ZMax)
	}
	if c.Filter.Centerline {
		if c.Filter.CenterlinePath == "" {
			return model.Errorf(model.KindConfig, "filter centerline", "centerline filter needs filter.centerline_path")
		}
		if c.Filter.CenterlineBuffer < 0 {
			return model.Errorf(model.KindConfig, "filter centerline", "centerline buffer must not be negative")
		}
	}
	switch c.Polygons.Source {
	case SourceNone, "":
		if c.Filter.Spatial {
			return model.Errorf(model.KindConfig, "filter spatial", "spatial filter needs a polygons.source")
		}
	case SourceFile:
		if c.Polygons.Path == "" {
			return model.Errorf(model.KindConfig, "polygons", "file source needs polygons.path")
		}
	case SourcePostGIS:
		if c.Polygons.DatabaseURL == "" || c.Polygons.Table == "" {
			return model.Errorf(model.KindConfig, "polygons", "postgis source needs polygons.database_url and polygons.table")
		}
	case SourcePDOK:
		if c.Polygons.PDOK.BaseURL == "" {
			return model.Errorf(model.KindConfig, "polygons", "pdok source needs polygons.pdok.base_url")
		}
	default:
		return model.Errorf(model.KindConfig, "polygons", "unknown polygon source %q", c.Polygons.Source)
	}
	if c.Pipeline.Concurrency <= 0 {
		return model.Errorf(model.KindConfig, "pipeline concurrency", "concurrency must be positive, got %d", c.Pipeline.Concurrency)
	}
	if c.Frequency.Enabled && !(c.Frequency.Radius > 0) {
		return model.Errorf(model.KindConfig, "frequency", "radius must be positive, got %g", c.Frequency.Radius)
	}
	return nil
}
