package pipeline

import (
	"go.uber.org/zap"

	"github.com/sells-group/pointraster/internal/model"
	"github.com/sells-group/pointraster/internal/raster"
	"github.com/sells-group/pointraster/internal/rasterio"
)

// MergeFiles mosaics the rasters at paths into out. All inputs must share
// pixel size, CRS and grid alignment.
func MergeFiles(paths []string, out string, noData float64) (*raster.Raster, error) {
	if len(paths) == 0 {
		return nil, model.Errorf(model.KindInput, "merge", "no rasters to merge")
	}
	rasters := make([]*raster.Raster, 0, len(paths))
	for _, path := range paths {
		r, err := rasterio.Read(path)
		if err != nil {
			return nil, err
		}
		rasters = append(rasters, r)
	}
	merged, err := raster.Merge(rasters)
	if err != nil {
		return nil, err
	}
	if err := rasterio.Write(out, merged, noData); err != nil {
		return nil, err
	}
	zap.L().With(zap.String("component", "pipeline")).Info("pipeline: merged rasters",
		zap.Int("inputs", len(paths)),
		zap.String("output", out),
		zap.Int("rows", merged.Rows),
		zap.Int("cols", merged.Cols),
	)
	return merged, nil
}
