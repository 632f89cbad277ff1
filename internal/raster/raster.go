// Package raster turns point sets into georeferenced single-band grids and
// merges grids that share a pixel lattice.
package raster

import (
	"math"

	"github.com/sells-group/pointraster/internal/model"
)

// DefaultCRS is the Dutch national grid (RD New), the CRS of AHN point
// clouds.
const DefaultCRS = "EPSG:28992"

// NoData marks a cell without samples. It is a NaN so no sampled elevation
// can collide with it.
var NoData = math.NaN()

// IsNoData reports whether v is the NoData marker.
func IsNoData(v float64) bool { return math.IsNaN(v) }

// GeoTransform is a north-up affine transform in GDAL coefficient order.
// The world coordinate of pixel corner (col, row) is
// (OriginX + col*PixelWidth + row*RowRotation, OriginY + col*ColumnRotation + row*PixelHeight).
type GeoTransform struct {
	OriginX        float64 `json:"origin_x" yaml:"origin_x"`
	PixelWidth     float64 `json:"pixel_width" yaml:"pixel_width"`
	RowRotation    float64 `json:"row_rotation" yaml:"row_rotation"`
	OriginY        float64 `json:"origin_y" yaml:"origin_y"`
	ColumnRotation float64 `json:"column_rotation" yaml:"column_rotation"`
	PixelHeight    float64 `json:"pixel_height" yaml:"pixel_height"`
}

// Coefficients returns the six values in GDAL order.
func (g GeoTransform) Coefficients() [6]float64 {
	return [6]float64{g.OriginX, g.PixelWidth, g.RowRotation, g.OriginY, g.ColumnRotation, g.PixelHeight}
}

// Raster is a dense single-band grid. Row 0 is the northernmost row and
// Values is row-major with len(Values) == Rows*Cols.
type Raster struct {
	Rows      int          `json:"rows" yaml:"rows"`
	Cols      int          `json:"cols" yaml:"cols"`
	Transform GeoTransform `json:"transform" yaml:"transform"`
	CRS       string       `json:"crs" yaml:"crs"`
	Values    []float64    `json:"-" yaml:"-"`
}

// New allocates a raster filled with NoData.
func New(rows, cols int, gt GeoTransform, crs string) *Raster {
	vals := make([]float64, rows*cols)
	for i := range vals {
		vals[i] = NoData
	}
	return &Raster{Rows: rows, Cols: cols, Transform: gt, CRS: crs, Values: vals}
}

// At returns the value at (row, col).
func (r *Raster) At(row, col int) float64 { return r.Values[row*r.Cols+col] }

// Set stores v at (row, col).
func (r *Raster) Set(row, col int, v float64) { r.Values[row*r.Cols+col] = v }

// Bounds returns the world extent covered by the raster's pixels.
func (r *Raster) Bounds() model.BoundingBox {
	gt := r.Transform
	x0, x1 := gt.OriginX, gt.OriginX+float64(r.Cols)*gt.PixelWidth
	y0, y1 := gt.OriginY, gt.OriginY+float64(r.Rows)*gt.PixelHeight
	return model.BoundingBox{
		XMin: math.Min(x0, x1), XMax: math.Max(x0, x1),
		YMin: math.Min(y0, y1), YMax: math.Max(y0, y1),
	}
}

// CellCenter returns the world coordinate of the centre of (row, col).
func (r *Raster) CellCenter(row, col int) (x, y float64) {
	gt := r.Transform
	return gt.OriginX + (float64(col)+0.5)*gt.PixelWidth,
		gt.OriginY + (float64(row)+0.5)*gt.PixelHeight
}

// Valid counts cells holding data.
func (r *Raster) Valid() int {
	n := 0
	for _, v := range r.Values {
		if !IsNoData(v) {
			n++
		}
	}
	return n
}

// MinMax returns the range of data cells. ok is false for an all-NoData
// raster.
func (r *Raster) MinMax() (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range r.Values {
		if IsNoData(v) {
			continue
		}
		lo, hi, ok = math.Min(lo, v), math.Max(hi, v), true
	}
	return lo, hi, ok
}

// Clone returns a deep copy.
func (r *Raster) Clone() *Raster {
	c := *r
	c.Values = append([]float64(nil), r.Values...)
	return &c
}
