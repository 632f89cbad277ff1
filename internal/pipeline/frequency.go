package pipeline

import (
	"context"
	"slices"

	"github.com/sells-group/pointraster/internal/config"
	"github.com/sells-group/pointraster/internal/model"
	"github.com/sells-group/pointraster/internal/pointio"
	"github.com/sells-group/pointraster/internal/quicklook"
	"github.com/sells-group/pointraster/internal/raster"
)

// FrequencyResult summarizes the Z values around a probe point.
type FrequencyResult struct {
	Points int     `json:"points" yaml:"points"`
	Mode   float64 `json:"mode" yaml:"mode"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
	Plot   string  `json:"plot,omitempty" yaml:"plot,omitempty"`
}

// Frequency reads the point file at path, selects points within
// cfg.Radius of (cfg.X, cfg.Y) and plots their Z histogram to plot when it
// is not empty.
func Frequency(ctx context.Context, path string, cfg config.FrequencyConfig, plot string) (*FrequencyResult, error) {
	it, err := pointio.Open(path, pointio.DefaultBatchSize)
	if err != nil {
		return nil, err
	}
	defer it.Close() //nolint:errcheck

	pts, err := pointio.ReadAll(ctx, it)
	if err != nil {
		return nil, err
	}
	z := quicklook.ZWithinRadius(pts, cfg.X, cfg.Y, cfg.Radius)
	if len(z) == 0 {
		return nil, model.Errorf(model.KindInput, "frequency", "no points within %g of (%g, %g)", cfg.Radius, cfg.X, cfg.Y)
	}
	slices.Sort(z)

	res := &FrequencyResult{Points: len(z), Mode: raster.Mode(z), Min: z[0], Max: z[len(z)-1]}
	if plot != "" {
		if err := quicklook.FrequencyPNG(plot, z, cfg.Bins, "Frequency of Z"); err != nil {
			return nil, err
		}
		res.Plot = plot
	}
	return res, nil
}
