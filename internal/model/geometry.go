package model

import (
	"fmt"
	"math"
)

// Point is a single sample of a point cloud in projected coordinates.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// BoundingBox is an axis-aligned rectangle. Degenerate boxes (zero width or
// height) are legal.
type BoundingBox struct {
	XMin float64 `json:"x_min" yaml:"x_min"`
	YMin float64 `json:"y_min" yaml:"y_min"`
	XMax float64 `json:"x_max" yaml:"x_max"`
	YMax float64 `json:"y_max" yaml:"y_max"`
}

// EmptyBounds returns an inverted box that any call to Extend will replace.
func EmptyBounds() BoundingBox {
	return BoundingBox{
		XMin: math.Inf(1),
		YMin: math.Inf(1),
		XMax: math.Inf(-1),
		YMax: math.Inf(-1),
	}
}

// Width returns XMax - XMin.
func (b BoundingBox) Width() float64 { return b.XMax - b.XMin }

// Height returns YMax - YMin.
func (b BoundingBox) Height() float64 { return b.YMax - b.YMin }

// Area returns Width * Height.
func (b BoundingBox) Area() float64 { return b.Width() * b.Height() }

// IsEmpty reports whether the box was never extended.
func (b BoundingBox) IsEmpty() bool { return b.XMin > b.XMax || b.YMin > b.YMax }

// Validate checks the ordering invariants and rejects NaN or infinite edges.
func (b BoundingBox) Validate() error {
	for _, v := range []float64{b.XMin, b.YMin, b.XMax, b.YMax} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Errorf(KindConfig, "bounds", "non-finite edge in %s", b)
		}
	}
	if b.XMin > b.XMax || b.YMin > b.YMax {
		return Errorf(KindConfig, "bounds", "inverted box %s", b)
	}
	return nil
}

// Extend grows the box to include p.
func (b BoundingBox) Extend(p Point) BoundingBox {
	return BoundingBox{
		XMin: math.Min(b.XMin, p.X),
		YMin: math.Min(b.YMin, p.Y),
		XMax: math.Max(b.XMax, p.X),
		YMax: math.Max(b.YMax, p.Y),
	}
}

// Union returns the smallest box containing both b and o.
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	return BoundingBox{
		XMin: math.Min(b.XMin, o.XMin),
		YMin: math.Min(b.YMin, o.YMin),
		XMax: math.Max(b.XMax, o.XMax),
		YMax: math.Max(b.YMax, o.YMax),
	}
}

// Buffer expands the box by d on every side.
func (b BoundingBox) Buffer(d float64) BoundingBox {
	return BoundingBox{XMin: b.XMin - d, YMin: b.YMin - d, XMax: b.XMax + d, YMax: b.YMax + d}
}

// Intersects reports whether the closed boxes share any point.
func (b BoundingBox) Intersects(o BoundingBox) bool {
	return b.XMin <= o.XMax && o.XMin <= b.XMax && b.YMin <= o.YMax && o.YMin <= b.YMax
}

// ContainsClosed reports whether p lies inside or on the edge of the box.
func (b BoundingBox) ContainsClosed(p Point) bool {
	return p.X >= b.XMin && p.X <= b.XMax && p.Y >= b.YMin && p.Y <= b.YMax
}

// WKT renders the box as a closed polygon ring, the format PDOK expects for
// its geofilter parameter.
func (b BoundingBox) WKT() string {
	return fmt.Sprintf("POLYGON((%s %s,%s %s,%s %s,%s %s,%s %s))",
		ftoa(b.XMin), ftoa(b.YMin),
		ftoa(b.XMax), ftoa(b.YMin),
		ftoa(b.XMax), ftoa(b.YMax),
		ftoa(b.XMin), ftoa(b.YMax),
		ftoa(b.XMin), ftoa(b.YMin),
	)
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("[%g %g, %g %g]", b.XMin, b.YMin, b.XMax, b.YMax)
}

func ftoa(v float64) string {
	return fmt.Sprintf("%.3f", v)
}

// TileSpec bounds the size of a single partition tile.
type TileSpec struct {
	MaxWidth  float64 `json:"max_width" yaml:"max_width" mapstructure:"max_width"`
	MaxHeight float64 `json:"max_height" yaml:"max_height" mapstructure:"max_height"`
}

// Validate requires both limits to be strictly positive.
func (t TileSpec) Validate() error {
	if !(t.MaxWidth > 0) || !(t.MaxHeight > 0) || math.IsInf(t.MaxWidth, 0) || math.IsInf(t.MaxHeight, 0) {
		return Errorf(KindConfig, "tile spec", "max width and height must be positive, got %gx%g", t.MaxWidth, t.MaxHeight)
	}
	return nil
}

// ChunkDescriptor identifies one tile of a partition.
type ChunkDescriptor struct {
	Index  int         `json:"index" yaml:"index"`
	Bounds BoundingBox `json:"bounds" yaml:"bounds"`
}
