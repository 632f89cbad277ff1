package raster

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pointraster/internal/model"
)

// twoByTwo returns points for a 2x2 grid whose north-west, north-east,
// south-west and south-east cells hold {1,1,3}, {5}, {} and {2,4}.
func twoByTwo() []model.Point {
	return []model.Point{
		{X: 0.2, Y: 1.1, Z: 1},
		{X: 0.7, Y: 1.9, Z: 1},
		{X: 0.5, Y: 1.5, Z: 3},
		{X: 1.5, Y: 1.5, Z: 5},
		{X: 1.1, Y: 0.3, Z: 2},
		{X: 1.9, Y: 0.9, Z: 4},
	}
}

func TestAggregateModes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode model.AggregationMode
		want []float64
	}{
		{model.ModeMean, []float64{5.0 / 3.0, 5, NoData, 3}},
		{model.ModeMedian, []float64{1, 5, NoData, 3}},
		{model.ModeMode, []float64{1, 5, NoData, 2}},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			t.Parallel()

			g, err := Aggregate(twoByTwo(), tt.mode)
			require.NoError(t, err)
			require.Equal(t, 2, g.Rows)
			require.Equal(t, 2, g.Cols)
			assert.Equal(t, int32(0), g.MinCellX)
			assert.Equal(t, int32(1), g.MaxCellY)

			for i, want := range tt.want {
				got := g.Values[i]
				if IsNoData(want) {
					assert.True(t, IsNoData(got), "cell %d should be NoData, got %g", i, got)
					continue
				}
				assert.InDelta(t, want, got, 1e-12, "cell %d", i)
			}
			assert.Equal(t, []int32{3, 1, 0, 2}, g.Samples)
			assert.Equal(t, 3, g.CellCount())
		})
	}
}

func TestAggregateTruncatesTowardZero(t *testing.T) {
	t.Parallel()

	pts := []model.Point{
		{X: -0.9, Y: 0.9, Z: 1}, // cell (0, 0)
		{X: 0.9, Y: -0.9, Z: 3}, // cell (0, 0)
		{X: -1.2, Y: 0.1, Z: 7}, // cell (-1, 0)
	}
	g, err := Aggregate(pts, model.ModeMean)
	require.NoError(t, err)
	assert.Equal(t, 1, g.Rows)
	assert.Equal(t, 2, g.Cols)
	assert.Equal(t, int32(-1), g.MinCellX)
	assert.Equal(t, []float64{7, 2}, g.Values)
}

func TestAggregateRowsNorthToSouth(t *testing.T) {
	t.Parallel()

	pts := []model.Point{
		{X: 10.5, Y: 20.5, Z: 1},
		{X: 10.5, Y: 22.5, Z: 3},
	}
	g, err := Aggregate(pts, model.ModeMean)
	require.NoError(t, err)
	require.Equal(t, 3, g.Rows)
	assert.Equal(t, 3.0, g.At(0, 0))
	assert.True(t, IsNoData(g.At(1, 0)))
	assert.Equal(t, 1.0, g.At(2, 0))
}

func TestAggregateCellSize(t *testing.T) {
	t.Parallel()

	pts := []model.Point{{X: 1, Y: 1, Z: 2}, {X: 4.9, Y: 4.9, Z: 4}, {X: 5.1, Y: 0, Z: 9}}
	g, err := Aggregate(pts, model.ModeMean, WithCellSize(5))
	require.NoError(t, err)
	assert.Equal(t, 1, g.Rows)
	assert.Equal(t, 2, g.Cols)
	assert.Equal(t, []float64{3, 9}, g.Values)
}

func TestAggregateOrderInvariantAndIdempotent(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(11))
	pts := make([]model.Point, 4000)
	for i := range pts {
		pts[i] = model.Point{X: 1000 + rng.Float64()*20, Y: 5000 + rng.Float64()*20, Z: rng.NormFloat64() * 1e6}
	}
	shuffled := append([]model.Point(nil), pts...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	for _, mode := range model.AggregationModes {
		a, err := Aggregate(pts, mode)
		require.NoError(t, err)
		b, err := Aggregate(pts, mode)
		require.NoError(t, err)
		c, err := Aggregate(shuffled, mode)
		require.NoError(t, err)

		for i := range a.Values {
			assert.Equal(t, math.Float64bits(a.Values[i]), math.Float64bits(b.Values[i]), "mode %s cell %d", mode, i)
			assert.Equal(t, math.Float64bits(a.Values[i]), math.Float64bits(c.Values[i]), "mode %s cell %d", mode, i)
		}
	}
}

func TestAggregateErrors(t *testing.T) {
	t.Parallel()

	_, err := Aggregate(nil, model.ModeMean)
	assert.ErrorIs(t, err, ErrNoPoints)
	assert.True(t, model.IsKind(err, model.KindInput))

	_, err = Aggregate(twoByTwo(), model.AggregationMode("max"))
	assert.True(t, model.IsKind(err, model.KindConfig))

	_, err = Aggregate([]model.Point{{X: 1e12, Y: 0}}, model.ModeMean)
	assert.True(t, model.IsKind(err, model.KindInput))

	_, err = Aggregate([]model.Point{{X: math.NaN(), Y: 0}}, model.ModeMean)
	assert.True(t, model.IsKind(err, model.KindInput))

	_, err = Aggregate([]model.Point{{X: 0, Y: 0}, {X: 5000, Y: 5000}}, model.ModeMean, WithMaxCells(1000))
	assert.True(t, model.IsKind(err, model.KindInput))
}

func TestReducers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 2.5, Median([]float64{1, 2, 3, 4}))
	assert.Equal(t, 3.0, Median([]float64{5, 1, 3}))
	assert.Equal(t, 2.0, Mode([]float64{4, 2, 4, 2}))
	assert.Equal(t, 7.0, Mode([]float64{7}))
	assert.Equal(t, 9.0, Mode([]float64{9, 1, 9, 3}))
	assert.Equal(t, 2.0, Mean([]float64{1, 2, 3}))
	assert.True(t, IsNoData(Mean(nil)))
	assert.True(t, IsNoData(Median(nil)))
	assert.True(t, IsNoData(Mode(nil)))
}
