package filter

import (
	"github.com/samber/lo"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/pointraster/internal/model"
)

// Output name tags for each filter, joined into raster file names.
const (
	TagSpatial    = "spatial"
	TagZRange     = "minmax"
	TagCenterline = "centerline"
)

// Stats records how many points one filter kept.
type Stats struct {
	Name string `json:"name" yaml:"name"`
	In   int    `json:"in" yaml:"in"`
	Out  int    `json:"out" yaml:"out"`
}

// Step is one named filter in a chain.
type Step struct {
	Name string
	Fn   func([]model.Point) []model.Point
}

// Apply runs steps in order and reports per-step counts.
func Apply(points []model.Point, steps ...Step) ([]model.Point, []Stats) {
	stats := make([]Stats, 0, len(steps))
	for _, s := range steps {
		in := len(points)
		points = s.Fn(points)
		stats = append(stats, Stats{Name: s.Name, In: in, Out: len(points)})
	}
	return points, stats
}

// Tags returns the step names in order.
func Tags(steps []Step) []string {
	return lo.Map(steps, func(s Step, _ int) string { return s.Name })
}

// Spatial keeps points inside any indexed polygon, then drops later points
// that repeat an earlier point's X and Y.
func Spatial(points []model.Point, idx *PolygonIndex) []model.Point {
	inside := lo.Filter(points, func(p model.Point, _ int) bool {
		return idx.Contains(p.X, p.Y)
	})
	return Dedupe(inside)
}

// Dedupe keeps the first point for each exact (X, Y) pair.
func Dedupe(points []model.Point) []model.Point {
	type xy struct{ x, y float64 }
	return lo.UniqBy(points, func(p model.Point) xy { return xy{p.X, p.Y} })
}

// ZRange keeps points with zmin < Z < zmax.
func ZRange(points []model.Point, zmin, zmax float64) []model.Point {
	return lo.Filter(points, func(p model.Point, _ int) bool {
		return p.Z > zmin && p.Z < zmax
	})
}

// SpatialStep wraps Spatial for Apply.
func SpatialStep(idx *PolygonIndex) Step {
	return Step{Name: TagSpatial, Fn: func(p []model.Point) []model.Point { return Spatial(p, idx) }}
}

// ZRangeStep wraps ZRange for Apply.
func ZRangeStep(zmin, zmax float64) Step {
	return Step{Name: TagZRange, Fn: func(p []model.Point) []model.Point { return ZRange(p, zmin, zmax) }}
}

// CenterlineStep wraps Centerline for Apply.
func CenterlineStep(lines []*geom.LineString, buffer float64) Step {
	idx := NewLineIndex(lines)
	return Step{Name: TagCenterline, Fn: func(p []model.Point) []model.Point { return idx.Within(p, buffer) }}
}
