package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pointraster/internal/model"
)

func single(x, y, v float64) *Raster {
	r := New(1, 1, GeoTransform{OriginX: x, PixelWidth: 1, OriginY: y, PixelHeight: -1}, DefaultCRS)
	r.Values[0] = v
	return r
}

func TestMergeMeanOfOverlap(t *testing.T) {
	t.Parallel()

	out, err := Merge([]*Raster{single(10, 20, 4), single(10, 20, 6)})
	require.NoError(t, err)
	require.Equal(t, 1, out.Rows)
	require.Equal(t, 1, out.Cols)
	assert.Equal(t, 5.0, out.Values[0])
}

func TestMergeNoDataIgnored(t *testing.T) {
	t.Parallel()

	out, err := Merge([]*Raster{single(10, 20, 4), single(10, 20, NoData)})
	require.NoError(t, err)
	assert.Equal(t, 4.0, out.Values[0])

	out, err = Merge([]*Raster{single(10, 20, NoData), single(10, 20, NoData)})
	require.NoError(t, err)
	assert.True(t, IsNoData(out.Values[0]))
}

func TestMergeUnionExtent(t *testing.T) {
	t.Parallel()

	a := New(2, 2, GeoTransform{OriginX: 0.5, PixelWidth: 1, OriginY: 10.5, PixelHeight: -1}, DefaultCRS)
	copy(a.Values, []float64{1, 2, 3, 4})
	b := New(1, 2, GeoTransform{OriginX: 2.5, PixelWidth: 1, OriginY: 8.5, PixelHeight: -1}, DefaultCRS)
	copy(b.Values, []float64{7, 8})

	out, err := Merge([]*Raster{a, b})
	require.NoError(t, err)

	assert.Equal(t, GeoTransform{OriginX: 0.5, PixelWidth: 1, OriginY: 10.5, PixelHeight: -1}, out.Transform)
	require.Equal(t, 3, out.Rows)
	require.Equal(t, 4, out.Cols)

	want := []float64{
		1, 2, NoData, NoData,
		3, 4, NoData, NoData,
		NoData, NoData, 7, 8,
	}
	for i, w := range want {
		if IsNoData(w) {
			assert.True(t, IsNoData(out.Values[i]), "cell %d", i)
			continue
		}
		assert.Equal(t, w, out.Values[i], "cell %d", i)
	}
}

func TestMergeSingleInputIsCopy(t *testing.T) {
	t.Parallel()

	in := single(3, 4, 9)
	out, err := Merge([]*Raster{in})
	require.NoError(t, err)
	assert.Equal(t, in.Transform, out.Transform)
	assert.Equal(t, in.Values, out.Values)

	out.Values[0] = 1
	assert.Equal(t, 9.0, in.Values[0])
}

func TestMergeRejectsMismatch(t *testing.T) {
	t.Parallel()

	coarse := New(1, 1, GeoTransform{OriginX: 0, PixelWidth: 2, OriginY: 0, PixelHeight: -2}, DefaultCRS)
	shifted := single(10.25, 20, 1)
	otherCRS := single(10, 20, 1)
	otherCRS.CRS = "EPSG:4326"
	rotated := single(10, 20, 1)
	rotated.Transform.RowRotation = 0.1

	for name, r := range map[string]*Raster{"resolution": coarse, "alignment": shifted, "crs": otherCRS, "rotation": rotated} {
		_, err := Merge([]*Raster{single(10, 20, 4), r})
		assert.True(t, model.IsKind(err, model.KindConfig), name)
	}

	_, err := Merge(nil)
	assert.True(t, model.IsKind(err, model.KindInput))
}

func TestMergeChunksOfOnePointSet(t *testing.T) {
	t.Parallel()

	west := twoByTwo()[:4]
	east := twoByTwo()[4:]
	all, err := Rasterize(twoByTwo(), model.ModeMean, 1, DefaultCRS)
	require.NoError(t, err)

	a, err := Rasterize(west, model.ModeMean, 1, DefaultCRS)
	require.NoError(t, err)
	b, err := Rasterize(east, model.ModeMean, 1, DefaultCRS)
	require.NoError(t, err)

	merged, err := Merge([]*Raster{a, b})
	require.NoError(t, err)
	assert.Equal(t, all.Transform, merged.Transform)
	require.Equal(t, len(all.Values), len(merged.Values))
	for i := range all.Values {
		if IsNoData(all.Values[i]) {
			assert.True(t, IsNoData(merged.Values[i]))
			continue
		}
		assert.InDelta(t, all.Values[i], merged.Values[i], 1e-12)
	}
}
