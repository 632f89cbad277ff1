package filter

import (
	"github.com/dhconnelly/rtreego"
	"github.com/samber/lo"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/pointraster/internal/model"
)

type indexedLine struct {
	line *geom.LineString
	rect rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (l *indexedLine) Bounds() rtreego.Rect { return l.rect }

// LineIndex finds points near a set of line strings, typically a river or
// canal centerline.
type LineIndex struct {
	tree *rtreego.Rtree
	n    int
}

// NewLineIndex indexes lines by envelope. Lines with fewer than two vertices
// are skipped.
func NewLineIndex(lines []*geom.LineString) *LineIndex {
	items := make([]rtreego.Spatial, 0, len(lines))
	for _, l := range lines {
		if l == nil || l.NumCoords() < 2 {
			continue
		}
		b := l.Bounds()
		rect, err := rtreego.NewRectFromPoints(
			rtreego.Point{b.Min(0), b.Min(1)},
			rtreego.Point{b.Max(0), b.Max(1)},
		)
		if err != nil {
			continue
		}
		items = append(items, &indexedLine{line: l, rect: rect})
	}
	return &LineIndex{tree: rtreego.NewTree(2, minChildren, maxChildren, items...), n: len(items)}
}

// Len returns the number of indexed lines.
func (idx *LineIndex) Len() int { return idx.n }

// Near reports whether (x, y) is within buffer of any indexed line.
func (idx *LineIndex) Near(x, y, buffer float64) bool {
	if idx.n == 0 {
		return false
	}
	c := geom.Coord{x, y}
	for _, s := range idx.tree.SearchIntersect(rtreego.Point{x, y}.ToRect(buffer + searchTolerance)) {
		l := s.(*indexedLine).line
		if xy.DistanceFromPointToLineString(l.Layout(), c, l.FlatCoords()) <= buffer {
			return true
		}
	}
	return false
}

// Within keeps points within buffer of any indexed line.
func (idx *LineIndex) Within(points []model.Point, buffer float64) []model.Point {
	return lo.Filter(points, func(p model.Point, _ int) bool {
		return idx.Near(p.X, p.Y, buffer)
	})
}

// Centerline keeps points within buffer of any of lines.
func Centerline(points []model.Point, lines []*geom.LineString, buffer float64) []model.Point {
	return NewLineIndex(lines).Within(points, buffer)
}
