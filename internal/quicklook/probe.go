package quicklook

import (
	"github.com/sells-group/pointraster/internal/model"
	"github.com/sells-group/pointraster/internal/raster"
)

// ZWithinRadius returns the Z values of points strictly within r of (x, y).
func ZWithinRadius(points []model.Point, x, y, r float64) []float64 {
	r2 := r * r
	var out []float64
	for _, p := range points {
		dx, dy := p.X-x, p.Y-y
		if dx*dx+dy*dy < r2 {
			out = append(out, p.Z)
		}
	}
	return out
}

// ModeWithinRadius is the most frequent Z within r of (x, y), smallest on
// ties. ok is false when no point is in range.
func ModeWithinRadius(points []model.Point, x, y, r float64) (z float64, n int, ok bool) {
	zs := ZWithinRadius(points, x, y, r)
	if len(zs) == 0 {
		return 0, 0, false
	}
	return raster.Mode(zs), len(zs), true
}
