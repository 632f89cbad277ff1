// Package chunk partitions a point cloud's extent into bounded tiles and
// streams points into one sink per tile.
package chunk

import (
	"math"

	"github.com/sells-group/pointraster/internal/model"
)

// Split divides bounds into tiles no wider than tile.MaxWidth and no taller
// than tile.MaxHeight. X is halved first until the width fits, then Y. The
// split point is min + floor(size/2); sizes below 2 are bisected exactly so
// that neither half is ever empty.
//
// Tiles are returned in left-to-right, bottom-to-top split order. They cover
// bounds exactly and share only edges.
func Split(bounds model.BoundingBox, tile model.TileSpec) ([]model.BoundingBox, error) {
	if err := tile.Validate(); err != nil {
		return nil, err
	}
	if err := bounds.Validate(); err != nil {
		return nil, err
	}

	var out []model.BoundingBox
	stack := []model.BoundingBox{bounds}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch {
		case b.Width() > tile.MaxWidth && splittable(b.XMin, b.XMax):
			mid := b.XMin + half(b.Width())
			lo := model.BoundingBox{XMin: b.XMin, YMin: b.YMin, XMax: mid, YMax: b.YMax}
			hi := model.BoundingBox{XMin: mid, YMin: b.YMin, XMax: b.XMax, YMax: b.YMax}
			stack = append(stack, hi, lo)
		case b.Height() > tile.MaxHeight && splittable(b.YMin, b.YMax):
			mid := b.YMin + half(b.Height())
			lo := model.BoundingBox{XMin: b.XMin, YMin: b.YMin, XMax: b.XMax, YMax: mid}
			hi := model.BoundingBox{XMin: b.XMin, YMin: mid, XMax: b.XMax, YMax: b.YMax}
			stack = append(stack, hi, lo)
		default:
			out = append(out, b)
		}
	}
	return out, nil
}

func half(size float64) float64 {
	if h := math.Floor(size / 2); h >= 1 {
		return h
	}
	return size / 2
}

// splittable reports whether a midpoint strictly inside (lo, hi) is
// representable. Below that resolution the box is kept as a leaf.
func splittable(lo, hi float64) bool {
	mid := lo + half(hi-lo)
	return mid > lo && mid < hi
}

// Describe numbers tiles in order.
func Describe(tiles []model.BoundingBox) []model.ChunkDescriptor {
	out := make([]model.ChunkDescriptor, len(tiles))
	for i, t := range tiles {
		out[i] = model.ChunkDescriptor{Index: i, Bounds: t}
	}
	return out
}

// Envelope returns the smallest box containing every tile.
func Envelope(tiles []model.ChunkDescriptor) model.BoundingBox {
	env := model.EmptyBounds()
	for _, t := range tiles {
		env = env.Union(t.Bounds)
	}
	return env
}
