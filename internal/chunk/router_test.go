package chunk

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/pointraster/internal/model"
	"github.com/sells-group/pointraster/internal/pointio"
)

type recordingSink struct {
	points   []model.Point
	closed   int
	writeErr error
	closeErr error
}

func (s *recordingSink) Write(points []model.Point) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.points = append(s.points, points...)
	return nil
}

func (s *recordingSink) Close() error {
	s.closed++
	return s.closeErr
}

type sinkSet struct {
	mu     sync.Mutex
	sinks  map[int]*recordingSink
	opens  map[int]int
	failOn map[int]*recordingSink
}

func newSinkSet() *sinkSet {
	return &sinkSet{sinks: map[int]*recordingSink{}, opens: map[int]int{}, failOn: map[int]*recordingSink{}}
}

func (s *sinkSet) factory(desc model.ChunkDescriptor) (pointio.PointSink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens[desc.Index]++
	rs := s.failOn[desc.Index]
	if rs == nil {
		rs = &recordingSink{}
	}
	s.sinks[desc.Index] = rs
	return rs, nil
}

func twoTiles() []model.ChunkDescriptor {
	return Describe([]model.BoundingBox{box(0, 0, 5, 4), box(5, 0, 10, 4)})
}

func newTestRouter(opts ...Option) *Router {
	return NewRouter(append([]Option{WithLogger(zap.NewNop())}, opts...)...)
}

func TestRouteSharedEdges(t *testing.T) {
	t.Parallel()

	pts := []model.Point{
		{X: 0, Y: 0, Z: 1},      // lower-left corner of tile 0
		{X: 5, Y: 2, Z: 2},      // shared edge goes right
		{X: 10, Y: 2, Z: 3},     // outer edge closed
		{X: 2, Y: 4, Z: 4},      // outer top closed
		{X: 10.001, Y: 1, Z: 5}, // outside
		{X: 3, Y: -0.5, Z: 6},   // outside
	}

	set := newSinkSet()
	res, err := newTestRouter().Route(context.Background(), pointio.NewSliceSource(pts, 2), twoTiles(), set.factory)
	require.NoError(t, err)

	assert.Equal(t, int64(6), res.Total)
	assert.Equal(t, int64(4), res.Routed)
	assert.Equal(t, int64(2), res.Skipped)
	assert.Equal(t, []int64{2, 2}, res.PerTile)
	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, 2, res.Opened)

	assert.Equal(t, []model.Point{pts[0], pts[3]}, set.sinks[0].points)
	assert.Equal(t, []model.Point{pts[1], pts[2]}, set.sinks[1].points)
}

func TestRouteLazyOpenAndCloseOnce(t *testing.T) {
	t.Parallel()

	tiles := Describe([]model.BoundingBox{box(0, 0, 5, 4), box(5, 0, 10, 4), box(10, 0, 15, 4)})
	pts := []model.Point{{X: 1, Y: 1}, {X: 2, Y: 1}, {X: 3, Y: 1}, {X: 11, Y: 1}, {X: 4, Y: 2}}

	set := newSinkSet()
	res, err := newTestRouter().Route(context.Background(), pointio.NewSliceSource(pts, 1), tiles, set.factory)
	require.NoError(t, err)

	assert.Equal(t, 1, set.opens[0])
	assert.Equal(t, 0, set.opens[1], "tile without points is never opened")
	assert.Equal(t, 1, set.opens[2])
	assert.Equal(t, 1, set.sinks[0].closed)
	assert.Equal(t, 1, set.sinks[2].closed)
	assert.Equal(t, 2, res.Opened)
}

func TestRouteWriteFailureClosesAll(t *testing.T) {
	t.Parallel()

	set := newSinkSet()
	set.failOn[1] = &recordingSink{writeErr: errors.New("disk full")}

	pts := []model.Point{{X: 1, Y: 1}, {X: 6, Y: 1}}
	res, err := newTestRouter().Route(context.Background(), pointio.NewSliceSource(pts, 10), twoTiles(), set.factory)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindIO))

	assert.Equal(t, 1, set.sinks[0].closed)
	assert.Equal(t, 1, set.sinks[1].closed)
	assert.Equal(t, 2, res.Opened)

	// tile 0 was written before tile 1 failed and stays credited
	assert.Len(t, set.sinks[0].points, 1)
	assert.Equal(t, []int64{1, 0}, res.PerTile)
	assert.Equal(t, int64(2), res.Total)
	assert.Equal(t, int64(1), res.Routed)
	assert.Equal(t, int64(1), res.Unwritten)
	assert.Equal(t, res.Total, res.Routed+res.Skipped+res.Unwritten)
}

func TestRouteWriteFailureWithWorkers(t *testing.T) {
	t.Parallel()

	set := newSinkSet()
	set.failOn[1] = &recordingSink{writeErr: errors.New("disk full")}

	pts := []model.Point{{X: 1, Y: 1}, {X: 6, Y: 1}, {X: 7, Y: 2}, {X: 20, Y: 20}}
	res, err := newTestRouter(WithWorkers(2)).Route(context.Background(), pointio.NewSliceSource(pts, 10), twoTiles(), set.factory)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindIO))

	var written int64
	for _, s := range set.sinks {
		written += int64(len(s.points))
		assert.Equal(t, 1, s.closed)
	}
	assert.Equal(t, written, res.Routed)
	assert.Equal(t, int64(1), res.Skipped)
	assert.Equal(t, res.Total, res.Routed+res.Skipped+res.Unwritten)
	assert.GreaterOrEqual(t, res.Unwritten, int64(2))
}

func TestWriteStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	set := newSinkSet()
	tiles := twoTiles()
	buckets := [][]model.Point{{{X: 1, Y: 1}}, nil}
	sinks := make([]pointio.PointSink, len(tiles))
	perTile := make([]int64, len(tiles))

	err := write(ctx, 0, tiles, buckets, sinks, set.factory, perTile)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, sinks[0])
	assert.Zero(t, set.opens[tiles[0].Index])
	assert.Zero(t, perTile[0])
}

func TestRouteCloseFailure(t *testing.T) {
	t.Parallel()

	set := newSinkSet()
	set.failOn[0] = &recordingSink{closeErr: errors.New("flush failed")}

	pts := []model.Point{{X: 1, Y: 1}, {X: 6, Y: 1}}
	_, err := newTestRouter().Route(context.Background(), pointio.NewSliceSource(pts, 10), twoTiles(), set.factory)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindIO))
	assert.Contains(t, err.Error(), "flush failed")
	assert.Equal(t, 1, set.sinks[1].closed)
}

func TestRouteFactoryFailure(t *testing.T) {
	t.Parallel()

	opened := &recordingSink{}
	factory := func(desc model.ChunkDescriptor) (pointio.PointSink, error) {
		if desc.Index == 1 {
			return nil, errors.New("permission denied")
		}
		return opened, nil
	}

	pts := []model.Point{{X: 1, Y: 1}, {X: 6, Y: 1}}
	_, err := newTestRouter().Route(context.Background(), pointio.NewSliceSource(pts, 10), twoTiles(), factory)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindIO))
	assert.Equal(t, 1, opened.closed)
}

type cancellingSource struct {
	pointio.BatchIterator
	cancel context.CancelFunc
	calls  int
}

func (c *cancellingSource) Next(ctx context.Context) ([]model.Point, error) {
	c.calls++
	if c.calls == 2 {
		c.cancel()
	}
	return c.BatchIterator.Next(ctx)
}

func TestRouteCancellationClosesSinks(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pts := []model.Point{{X: 1, Y: 1}, {X: 6, Y: 1}, {X: 2, Y: 2}, {X: 7, Y: 2}}
	src := &cancellingSource{BatchIterator: pointio.NewSliceSource(pts, 2), cancel: cancel}

	set := newSinkSet()
	res, err := newTestRouter().Route(ctx, src, twoTiles(), set.factory)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, int64(2), res.Routed)
	for _, s := range set.sinks {
		assert.Equal(t, 1, s.closed)
	}
}

func TestRouteConservationAndContainment(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	bounds := box(155000, 463000, 157000, 464500)
	parts, err := Split(bounds, model.TileSpec{MaxWidth: 300, MaxHeight: 250})
	require.NoError(t, err)
	tiles := Describe(parts)

	pts := make([]model.Point, 5000)
	for i := range pts {
		// roughly 10% land outside the bounds
		pts[i] = model.Point{
			X: bounds.XMin - 100 + rng.Float64()*(bounds.Width()+200),
			Y: bounds.YMin - 50 + rng.Float64()*(bounds.Height()+100),
			Z: rng.Float64(),
		}
	}
	// exact edges and corners
	for _, tile := range parts {
		pts = append(pts,
			model.Point{X: tile.XMin, Y: tile.YMin},
			model.Point{X: tile.XMax, Y: tile.YMax},
		)
	}

	for _, workers := range []int{1, 3} {
		set := newSinkSet()
		res, err := newTestRouter(WithWorkers(workers)).Route(context.Background(), pointio.NewSliceSource(pts, 333), tiles, set.factory)
		require.NoError(t, err)

		assert.Equal(t, int64(len(pts)), res.Total)
		assert.Equal(t, res.Total, res.Routed+res.Skipped)
		assert.Zero(t, res.Unwritten)

		env := Envelope(tiles)
		var sum int64
		for i, n := range res.PerTile {
			sum += n
			if s, ok := set.sinks[tiles[i].Index]; ok {
				assert.Len(t, s.points, int(n))
				for _, p := range s.points {
					assert.True(t, tiles[i].Bounds.ContainsClosed(p))
					if p.X == tiles[i].Bounds.XMax {
						assert.Equal(t, env.XMax, p.X, "only the outer edge is closed")
					}
				}
			}
		}
		assert.Equal(t, res.Routed, sum)
	}
}

func TestIndexMatchesLinearScan(t *testing.T) {
	t.Parallel()

	parts, err := Split(box(0, 0, 1000, 777), model.TileSpec{MaxWidth: 64, MaxHeight: 50})
	require.NoError(t, err)
	tiles := Describe(parts)

	fast := newTileIndex(tiles)
	require.False(t, fast.linear)
	slow := &tileIndex{tiles: tiles, env: Envelope(tiles), linear: true}

	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 20000; i++ {
		p := model.Point{X: rng.Float64()*1010 - 5, Y: rng.Float64()*790 - 5}
		if i%10 == 0 {
			p.X = float64(int(p.X))
			p.Y = float64(int(p.Y))
		}
		require.Equal(t, slow.lookup(p), fast.lookup(p), "point %+v", p)
	}
}

func TestIndexDegenerateTile(t *testing.T) {
	t.Parallel()

	tiles := Describe([]model.BoundingBox{box(5, 5, 5, 5)})
	idx := newTileIndex(tiles)
	assert.True(t, idx.linear)
	assert.Equal(t, 0, idx.lookup(model.Point{X: 5, Y: 5}))
	assert.Equal(t, -1, idx.lookup(model.Point{X: 5, Y: 5.1}))
}

func TestRouteNoTiles(t *testing.T) {
	t.Parallel()

	set := newSinkSet()
	res, err := newTestRouter().Route(context.Background(), pointio.NewSliceSource([]model.Point{{X: 1}}, 1), nil, set.factory)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Skipped)
	assert.Zero(t, res.Opened)
}
