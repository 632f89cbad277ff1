package raster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pointraster/internal/model"
)

func TestCorrectOrigin(t *testing.T) {
	t.Parallel()

	x, y := CorrectOrigin(100, 200, UnitCell)
	assert.Equal(t, 100.5, x)
	assert.Equal(t, 200.5, y)

	x, y = CorrectOrigin(100, 200, CellSize{X: 2, Y: -2})
	assert.Equal(t, 101.0, x)
	assert.Equal(t, 201.0, y)

	// the sign of Y does not flip the shift
	x, y = CorrectOrigin(100, 200, CellSize{X: 2, Y: 2})
	assert.Equal(t, 101.0, x)
	assert.Equal(t, 201.0, y)
}

func TestNaiveOrigin(t *testing.T) {
	t.Parallel()

	g := &Grid{MinCellX: 100, MaxCellY: 200, CellSize: 1}
	x, y := NaiveOrigin(g, UnitCell)
	assert.Equal(t, 99.5, x)
	assert.Equal(t, 200.5, y)

	g = &Grid{MinCellX: 50, MaxCellY: 100, CellSize: 2}
	x, y = NaiveOrigin(g, CellSize{X: 2, Y: -2})
	assert.Equal(t, 99.0, x)
	assert.Equal(t, 201.0, y)
}

func TestGeoreference(t *testing.T) {
	t.Parallel()

	pts := []model.Point{
		{X: 100.2, Y: 200.7, Z: 1},
		{X: 102.9, Y: 198.1, Z: 2},
	}
	g, err := Aggregate(pts, model.ModeMean)
	require.NoError(t, err)

	r, err := Georeference(g, UnitCell, "")
	require.NoError(t, err)

	assert.Equal(t, DefaultCRS, r.CRS)
	assert.Equal(t, 3, r.Rows)
	assert.Equal(t, 3, r.Cols)
	assert.Equal(t, GeoTransform{OriginX: 100, PixelWidth: 1, OriginY: 201, PixelHeight: -1}, r.Transform)
	assert.Equal(t, [6]float64{100, 1, 0, 201, 0, -1}, r.Transform.Coefficients())
	assert.Equal(t, 1.0, r.At(0, 0))
	assert.Equal(t, 2.0, r.At(2, 2))
	assert.Equal(t, 2, r.Valid())

	// the grid is not aliased
	r.Set(0, 0, 42)
	assert.Equal(t, 1.0, g.At(0, 0))
}

func TestGeoreferenceCellSizeMismatch(t *testing.T) {
	t.Parallel()

	g, err := Aggregate([]model.Point{{X: 1, Y: 1, Z: 1}}, model.ModeMean, WithCellSize(2))
	require.NoError(t, err)

	_, err = Georeference(g, UnitCell, DefaultCRS)
	assert.True(t, model.IsKind(err, model.KindConfig))

	r, err := Georeference(g, CellSize{}, DefaultCRS)
	require.NoError(t, err)
	assert.Equal(t, 2.0, r.Transform.PixelWidth)
	assert.Equal(t, -2.0, r.Transform.PixelHeight)
}

func TestRasterize(t *testing.T) {
	t.Parallel()

	r, err := Rasterize(twoByTwo(), model.ModeMedian, 0, "EPSG:4326")
	require.NoError(t, err)
	assert.Equal(t, "EPSG:4326", r.CRS)
	assert.Equal(t, 3, r.Valid())

	lo, hi, ok := r.MinMax()
	require.True(t, ok)
	assert.Equal(t, 1.0, lo)
	assert.Equal(t, 5.0, hi)

	assert.Equal(t, model.BoundingBox{XMin: 0, YMin: 0, XMax: 2, YMax: 2}, r.Bounds())
	x, y := r.CellCenter(0, 0)
	assert.Equal(t, 0.5, x)
	assert.Equal(t, 1.5, y)
}

func TestRasterizeSinglePointFootprint(t *testing.T) {
	t.Parallel()

	r, err := Rasterize([]model.Point{{X: 100.2, Y: 200.3, Z: 7}}, model.ModeMean, 1, "")
	require.NoError(t, err)
	require.Equal(t, 1, r.Rows)
	require.Equal(t, 1, r.Cols)

	assert.Equal(t, model.BoundingBox{XMin: 100, YMin: 200, XMax: 101, YMax: 201}, r.Bounds())
	x, y := r.CellCenter(0, 0)
	assert.Equal(t, 100.5, x)
	assert.Equal(t, 200.5, y)
}

func TestRasterizePixelsContainTheirPoints(t *testing.T) {
	t.Parallel()

	pts := []model.Point{
		{X: 155000.2, Y: 463000.9, Z: 1},
		{X: 155003.7, Y: 463004.1, Z: 2},
		{X: 155001.0, Y: 463002.0, Z: 3},
		{X: 155005.99, Y: 463000.01, Z: 4},
		{X: 155002.5, Y: 463007.5, Z: 5},
	}
	for _, size := range []float64{1, 2, 0.5} {
		g, err := Aggregate(pts, model.ModeMean, WithCellSize(size))
		require.NoError(t, err)
		r, err := Georeference(g, CellSize{X: size, Y: -size}, "")
		require.NoError(t, err)

		for _, p := range pts {
			cx, err := truncate(p.X, size)
			require.NoError(t, err)
			cy, err := truncate(p.Y, size)
			require.NoError(t, err)
			row, col := int(g.MaxCellY-cy), int(cx-g.MinCellX)
			assert.Equal(t, p.Z, r.At(row, col), "size %g point %v", size, p)

			x, y := r.CellCenter(row, col)
			assert.LessOrEqual(t, math.Abs(p.X-x), size/2, "size %g point %v x", size, p)
			assert.LessOrEqual(t, math.Abs(p.Y-y), size/2, "size %g point %v y", size, p)
		}
	}
}
