package raster

import (
	"math"

	"github.com/sells-group/pointraster/internal/model"
)

// CellSize is the pixel size of a north-up raster. Y is conventionally
// negative; only its magnitude is used.
type CellSize struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// UnitCell is the 1 x 1 cell produced by plain truncation.
var UnitCell = CellSize{X: 1, Y: -1}

// CorrectOrigin applies the half-pixel shift to a naive top-left corner:
// +0.5 x pixel width in X and -0.5 x pixel height in Y. Pixel height is
// negative on a north-up grid, so both moves are half a pixel, east and north.
// With a (1, -1) cell, (100, 200) becomes (100.5, 200.5).
func CorrectOrigin(naiveX, naiveY float64, cell CellSize) (x, y float64) {
	return naiveX + 0.5*math.Abs(cell.X), naiveY - 0.5*(-math.Abs(cell.Y))
}

// NaiveOrigin is the top-left corner a raster consumer derives when it reads
// the snapped cell coordinates as pixel centres: half a pixel west of the
// west-most cell and half a pixel north of the north-most one.
func NaiveOrigin(grid *Grid, cell CellSize) (x, y float64) {
	w, h := math.Abs(cell.X), math.Abs(cell.Y)
	return float64(grid.MinCellX)*w - 0.5*w, float64(grid.MaxCellY)*h + 0.5*h
}

// Georeference attaches a north-up affine transform and CRS to grid. The
// stored origin is NaiveOrigin after CorrectOrigin, which puts the top-left
// corner on the lower-left snap of the north-west cell plus one pixel north:
// every pixel footprint then covers exactly the points binned into it.
func Georeference(grid *Grid, cell CellSize, crs string) (*Raster, error) {
	if grid == nil {
		return nil, ErrNoPoints
	}
	if cell == (CellSize{}) {
		cell = CellSize{X: grid.CellSize, Y: -grid.CellSize}
	}
	w, h := math.Abs(cell.X), math.Abs(cell.Y)
	if !(w > 0) || !(h > 0) {
		return nil, model.Errorf(model.KindConfig, "georeference", "cell size must be non-zero, got %gx%g", cell.X, cell.Y)
	}
	if grid.CellSize > 0 && (grid.CellSize != w || grid.CellSize != h) {
		return nil, model.Errorf(model.KindConfig, "georeference",
			"cell size %gx%g does not match binning size %g", w, h, grid.CellSize)
	}
	if crs == "" {
		crs = DefaultCRS
	}

	nx, ny := NaiveOrigin(grid, cell)
	ox, oy := CorrectOrigin(nx, ny, cell)

	return &Raster{
		Rows: grid.Rows,
		Cols: grid.Cols,
		Transform: GeoTransform{
			OriginX:     ox,
			PixelWidth:  w,
			OriginY:     oy,
			PixelHeight: -h,
		},
		CRS:    crs,
		Values: append([]float64(nil), grid.Values...),
	}, nil
}

// Rasterize runs Aggregate and Georeference with a square cell.
func Rasterize(points []model.Point, mode model.AggregationMode, cellSize float64, crs string) (*Raster, error) {
	if cellSize <= 0 {
		cellSize = 1
	}
	g, err := Aggregate(points, mode, WithCellSize(cellSize))
	if err != nil {
		return nil, err
	}
	return Georeference(g, CellSize{X: cellSize, Y: -cellSize}, crs)
}
