package chunk

import (
	"slices"
	"sort"

	"github.com/sells-group/pointraster/internal/model"
)

// maxIndexCells caps the edge table. Tile sets whose unique edges would
// need more cells fall back to an ordered scan.
const maxIndexCells = 1 << 24

// tileIndex maps a point to the single tile that owns it. Tiles are
// half-open on their max edges except where that edge lies on the envelope
// of all tiles.
type tileIndex struct {
	tiles  []model.ChunkDescriptor
	env    model.BoundingBox
	xs, ys []float64
	cells  []int32
	linear bool
}

func newTileIndex(tiles []model.ChunkDescriptor) *tileIndex {
	idx := &tileIndex{tiles: tiles, env: Envelope(tiles)}
	if len(tiles) == 0 {
		return idx
	}

	xs := make([]float64, 0, 2*len(tiles))
	ys := make([]float64, 0, 2*len(tiles))
	for _, t := range tiles {
		if t.Bounds.Width() <= 0 || t.Bounds.Height() <= 0 {
			idx.linear = true
			return idx
		}
		xs = append(xs, t.Bounds.XMin, t.Bounds.XMax)
		ys = append(ys, t.Bounds.YMin, t.Bounds.YMax)
	}
	slices.Sort(xs)
	slices.Sort(ys)
	xs = slices.Compact(xs)
	ys = slices.Compact(ys)

	nx, ny := len(xs)-1, len(ys)-1
	if nx*ny > maxIndexCells {
		idx.linear = true
		return idx
	}

	cells := make([]int32, nx*ny)
	for i := range cells {
		cells[i] = -1
	}
	for ti, t := range tiles {
		x0, _ := slices.BinarySearch(xs, t.Bounds.XMin)
		x1, _ := slices.BinarySearch(xs, t.Bounds.XMax)
		y0, _ := slices.BinarySearch(ys, t.Bounds.YMin)
		y1, _ := slices.BinarySearch(ys, t.Bounds.YMax)
		for iy := y0; iy < y1; iy++ {
			for ix := x0; ix < x1; ix++ {
				if c := &cells[iy*nx+ix]; *c < 0 {
					*c = int32(ti)
				}
			}
		}
	}
	idx.xs, idx.ys, idx.cells = xs, ys, cells
	return idx
}

// lookup returns the position in tiles that owns p, or -1.
func (idx *tileIndex) lookup(p model.Point) int {
	if len(idx.tiles) == 0 || !idx.env.ContainsClosed(p) {
		return -1
	}
	if idx.linear {
		for i, t := range idx.tiles {
			if idx.owns(t.Bounds, p) {
				return i
			}
		}
		return -1
	}
	ix := slot(idx.xs, p.X)
	iy := slot(idx.ys, p.Y)
	if ix < 0 || iy < 0 {
		return -1
	}
	return int(idx.cells[iy*(len(idx.xs)-1)+ix])
}

// owns applies the half-open rule directly, closing edges on the envelope.
func (idx *tileIndex) owns(b model.BoundingBox, p model.Point) bool {
	inX := p.X >= b.XMin && (p.X < b.XMax || (b.XMax == idx.env.XMax && p.X <= b.XMax))
	inY := p.Y >= b.YMin && (p.Y < b.YMax || (b.YMax == idx.env.YMax && p.Y <= b.YMax))
	return inX && inY
}

// slot returns i such that edges[i] <= v < edges[i+1], with v equal to the
// last edge mapped into the last slot.
func slot(edges []float64, v float64) int {
	i := sort.Search(len(edges), func(i int) bool { return edges[i] > v }) - 1
	if i == len(edges)-1 {
		i--
	}
	return i
}
