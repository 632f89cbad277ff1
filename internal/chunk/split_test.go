package chunk

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pointraster/internal/model"
)

func box(xmin, ymin, xmax, ymax float64) model.BoundingBox {
	return model.BoundingBox{XMin: xmin, YMin: ymin, XMax: xmax, YMax: ymax}
}

func TestSplitAlongX(t *testing.T) {
	t.Parallel()

	got, err := Split(box(0, 0, 10, 4), model.TileSpec{MaxWidth: 4, MaxHeight: 4})
	require.NoError(t, err)

	want := []model.BoundingBox{
		box(0, 0, 2, 4),
		box(2, 0, 5, 4),
		box(5, 0, 7, 4),
		box(7, 0, 10, 4),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("tiles mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitAlongY(t *testing.T) {
	t.Parallel()

	got, err := Split(box(0, 0, 3, 9), model.TileSpec{MaxWidth: 5, MaxHeight: 4})
	require.NoError(t, err)

	want := []model.BoundingBox{
		box(0, 0, 3, 4),
		box(0, 4, 3, 6),
		box(0, 6, 3, 9),
	}
	assert.Empty(t, cmp.Diff(want, got))
}

func TestSplitXBeforeY(t *testing.T) {
	t.Parallel()

	got, err := Split(box(0, 0, 8, 8), model.TileSpec{MaxWidth: 4, MaxHeight: 4})
	require.NoError(t, err)

	want := []model.BoundingBox{
		box(0, 0, 4, 4),
		box(0, 4, 4, 8),
		box(4, 0, 8, 4),
		box(4, 4, 8, 8),
	}
	assert.Empty(t, cmp.Diff(want, got))
}

func TestSplitWithinLimits(t *testing.T) {
	t.Parallel()

	b := box(100, 200, 150, 260)
	got, err := Split(b, model.TileSpec{MaxWidth: 50, MaxHeight: 60})
	require.NoError(t, err)
	assert.Equal(t, []model.BoundingBox{b}, got)
}

func TestSplitDegenerate(t *testing.T) {
	t.Parallel()

	for _, b := range []model.BoundingBox{box(5, 5, 5, 5), box(0, 3, 0, 3000), box(0, 3, 10, 3)} {
		got, err := Split(b, model.TileSpec{MaxWidth: 1000, MaxHeight: 1000})
		require.NoError(t, err)
		if b.Width() <= 1000 && b.Height() <= 1000 {
			assert.Len(t, got, 1)
		}
		var area float64
		for _, tile := range got {
			area += tile.Area()
		}
		assert.Equal(t, 0.0, area)
	}
}

func TestSplitFractionalSizes(t *testing.T) {
	t.Parallel()

	got, err := Split(box(0, 0, 1.5, 1), model.TileSpec{MaxWidth: 0.5, MaxHeight: 1})
	require.NoError(t, err)
	require.Len(t, got, 4)
	for _, tile := range got {
		assert.InDelta(t, 0.375, tile.Width(), 1e-12)
	}
	assert.Equal(t, 0.0, got[0].XMin)
	assert.Equal(t, 1.5, got[3].XMax)
}

func TestSplitInvalidInput(t *testing.T) {
	t.Parallel()

	_, err := Split(box(0, 0, 10, 10), model.TileSpec{MaxWidth: 0, MaxHeight: 5})
	assert.True(t, model.IsKind(err, model.KindConfig))

	_, err = Split(box(10, 0, 0, 10), model.TileSpec{MaxWidth: 5, MaxHeight: 5})
	assert.True(t, model.IsKind(err, model.KindConfig))
}

func TestSplitProperties(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		xmin := float64(rng.Intn(200000))
		ymin := float64(rng.Intn(600000))
		b := box(xmin, ymin, xmin+rng.Float64()*5000, ymin+rng.Float64()*5000)
		ts := model.TileSpec{MaxWidth: 1 + rng.Float64()*1000, MaxHeight: 1 + rng.Float64()*1000}

		tiles, err := Split(b, ts)
		require.NoError(t, err)

		var area float64
		for j, a := range tiles {
			assert.LessOrEqual(t, a.Width(), ts.MaxWidth)
			assert.LessOrEqual(t, a.Height(), ts.MaxHeight)
			assert.Greater(t, a.Width(), 0.0)
			assert.Greater(t, a.Height(), 0.0)
			area += a.Area()
			for _, c := range tiles[j+1:] {
				assert.Zero(t, overlapArea(a, c), "tiles %v and %v overlap", a, c)
			}
		}
		assert.InDelta(t, b.Area(), area, b.Area()*1e-9)

		again, err := Split(b, ts)
		require.NoError(t, err)
		assert.Equal(t, tiles, again)
	}
}

func overlapArea(a, b model.BoundingBox) float64 {
	w := min(a.XMax, b.XMax) - max(a.XMin, b.XMin)
	h := min(a.YMax, b.YMax) - max(a.YMin, b.YMin)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

func TestDescribeAndEnvelope(t *testing.T) {
	t.Parallel()

	tiles := Describe([]model.BoundingBox{box(0, 0, 5, 4), box(5, 0, 10, 4)})
	require.Len(t, tiles, 2)
	assert.Equal(t, 0, tiles[0].Index)
	assert.Equal(t, 1, tiles[1].Index)
	assert.Equal(t, box(0, 0, 10, 4), Envelope(tiles))
}
