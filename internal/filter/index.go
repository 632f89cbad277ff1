// Package filter narrows point sets before rasterization: by polygon
// membership, by elevation range, and by distance to a centerline.
package filter

import (
	"github.com/dhconnelly/rtreego"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
)

// rtree node fan-out.
const (
	minChildren = 25
	maxChildren = 50
)

// searchTolerance pads point queries so points on an envelope edge still
// reach the exact test.
const searchTolerance = 1e-9

type indexedPolygon struct {
	poly *geom.Polygon
	rect rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (p *indexedPolygon) Bounds() rtreego.Rect { return p.rect }

// PolygonIndex answers point-in-polygon queries over many polygons using an
// R-tree of their envelopes.
type PolygonIndex struct {
	tree *rtreego.Rtree
	n    int
}

// NewPolygonIndex indexes polys. Empty polygons and polygons with a zero-area
// envelope are skipped since no point can lie strictly inside them.
func NewPolygonIndex(polys []*geom.Polygon) *PolygonIndex {
	items := make([]rtreego.Spatial, 0, len(polys))
	for _, p := range polys {
		if p == nil || p.Empty() || p.NumLinearRings() == 0 {
			continue
		}
		b := p.Bounds()
		if b.Max(0) <= b.Min(0) || b.Max(1) <= b.Min(1) {
			continue
		}
		rect, err := rtreego.NewRectFromPoints(
			rtreego.Point{b.Min(0), b.Min(1)},
			rtreego.Point{b.Max(0), b.Max(1)},
		)
		if err != nil {
			continue
		}
		items = append(items, &indexedPolygon{poly: p, rect: rect})
	}
	return &PolygonIndex{tree: rtreego.NewTree(2, minChildren, maxChildren, items...), n: len(items)}
}

// Len returns the number of indexed polygons.
func (idx *PolygonIndex) Len() int { return idx.n }

// Contains reports whether (x, y) lies in the interior of some polygon:
// strictly inside its exterior ring and not inside or on any hole. Points on
// a boundary are outside.
func (idx *PolygonIndex) Contains(x, y float64) bool {
	if idx.n == 0 {
		return false
	}
	c := geom.Coord{x, y}
	for _, s := range idx.tree.SearchIntersect(rtreego.Point{x, y}.ToRect(searchTolerance)) {
		if inPolygon(s.(*indexedPolygon).poly, c) {
			return true
		}
	}
	return false
}

func inPolygon(p *geom.Polygon, c geom.Coord) bool {
	layout := p.Layout()
	if xy.LocatePointInRing(layout, c, p.LinearRing(0).FlatCoords()) != location.Interior {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		if xy.IsPointInRing(layout, c, p.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}
