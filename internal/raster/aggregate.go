package raster

import (
	"math"
	"slices"

	"github.com/sells-group/pointraster/internal/model"
)

// ErrNoPoints is returned when there is nothing to rasterize.
var ErrNoPoints = model.Errorf(model.KindInput, "aggregate", "no points to rasterize")

// DefaultMaxCells caps the dense grid so one stray point far from the rest
// cannot allocate an unbounded raster.
const DefaultMaxCells = 1 << 28

// Grid is the dense, not yet georeferenced result of Aggregate. Cell
// indices are the truncated coordinates divided by CellSize.
type Grid struct {
	Rows     int
	Cols     int
	MinCellX int32
	MaxCellY int32
	CellSize float64
	Values   []float64
	// Samples is the number of points reduced into each cell.
	Samples []int32
}

type cellKey struct{ x, y int32 }

type aggregateOptions struct {
	cellSize float64
	maxCells int
}

// AggregateOption tunes Aggregate.
type AggregateOption func(*aggregateOptions)

// WithCellSize bins coordinates by trunc(v / size) instead of trunc(v).
func WithCellSize(size float64) AggregateOption {
	return func(o *aggregateOptions) {
		if size > 0 {
			o.cellSize = size
		}
	}
}

// WithMaxCells overrides DefaultMaxCells.
func WithMaxCells(n int) AggregateOption {
	return func(o *aggregateOptions) {
		if n > 0 {
			o.maxCells = n
		}
	}
}

// Aggregate bins points into integer cells by truncating their coordinates
// toward zero, reduces each cell's Z values with mode, and lays the result
// out as a dense grid with the northernmost row first. Cells without points
// hold NoData.
//
// Z values are sorted per cell before reduction, so the result depends only
// on the multiset of input points, not their order.
func Aggregate(points []model.Point, mode model.AggregationMode, opts ...AggregateOption) (*Grid, error) {
	o := aggregateOptions{cellSize: 1, maxCells: DefaultMaxCells}
	for _, fn := range opts {
		fn(&o)
	}
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, ErrNoPoints
	}

	groups := make(map[cellKey][]float64)
	minX, minY := int32(math.MaxInt32), int32(math.MaxInt32)
	maxX, maxY := int32(math.MinInt32), int32(math.MinInt32)
	for _, p := range points {
		cx, err := truncate(p.X, o.cellSize)
		if err != nil {
			return nil, err
		}
		cy, err := truncate(p.Y, o.cellSize)
		if err != nil {
			return nil, err
		}
		k := cellKey{cx, cy}
		groups[k] = append(groups[k], p.Z)
		minX, maxX = min(minX, cx), max(maxX, cx)
		minY, maxY = min(minY, cy), max(maxY, cy)
	}

	cols := int64(maxX) - int64(minX) + 1
	rows := int64(maxY) - int64(minY) + 1
	if cols*rows > int64(o.maxCells) {
		return nil, model.Errorf(model.KindInput, "aggregate",
			"grid of %d x %d cells exceeds limit of %d", cols, rows, o.maxCells)
	}

	g := &Grid{
		Rows:     int(rows),
		Cols:     int(cols),
		MinCellX: minX,
		MaxCellY: maxY,
		CellSize: o.cellSize,
		Values:   make([]float64, rows*cols),
		Samples:  make([]int32, rows*cols),
	}
	for i := range g.Values {
		g.Values[i] = NoData
	}
	for k, zs := range groups {
		slices.Sort(zs)
		row := int(int64(maxY) - int64(k.y))
		col := int(int64(k.x) - int64(minX))
		g.Values[row*g.Cols+col] = reduce(mode, zs)
		g.Samples[row*g.Cols+col] = int32(len(zs))
	}
	return g, nil
}

// truncate maps a coordinate to its cell index, rounding toward zero.
func truncate(v, cellSize float64) (int32, error) {
	s := v / cellSize
	if math.IsNaN(s) || s >= math.MaxInt32+1 || s <= math.MinInt32-1 {
		return 0, model.Errorf(model.KindInput, "aggregate", "coordinate %g outside the integer cell range", v)
	}
	return int32(s), nil
}

// At returns the value at (row, col).
func (g *Grid) At(row, col int) float64 { return g.Values[row*g.Cols+col] }

// CellCount returns the number of cells holding data.
func (g *Grid) CellCount() int {
	n := 0
	for _, c := range g.Samples {
		if c > 0 {
			n++
		}
	}
	return n
}
