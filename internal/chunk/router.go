package chunk

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/pointraster/internal/model"
	"github.com/sells-group/pointraster/internal/pointio"
)

// SinkFactory opens the sink for one tile. The router calls it at most once
// per tile, on the first point routed there.
type SinkFactory func(desc model.ChunkDescriptor) (pointio.PointSink, error)

// RouteResult summarizes one routing pass. Routed + Skipped + Unwritten
// always equals Total, including when Route fails part way. Unwritten counts
// points that were assigned a tile but never reached its sink; it is zero
// after a successful pass.
type RouteResult struct {
	Total     int64   `json:"total" yaml:"total"`
	Routed    int64   `json:"routed" yaml:"routed"`
	Skipped   int64   `json:"skipped" yaml:"skipped"`
	Unwritten int64   `json:"unwritten,omitempty" yaml:"unwritten,omitempty"`
	PerTile   []int64 `json:"per_tile" yaml:"per_tile"`
	Opened    int     `json:"opened" yaml:"opened"`
	Batches   int     `json:"batches" yaml:"batches"`
}

// Router streams points from a source into per-tile sinks.
type Router struct {
	workers int
	log     *zap.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithWorkers shards tiles over n writers. Each writer owns the sinks of
// the tiles whose position modulo n equals its id.
func WithWorkers(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Router) { r.log = l }
}

// NewRouter returns a single-writer router unless WithWorkers says otherwise.
func NewRouter(opts ...Option) *Router {
	r := &Router{workers: 1, log: zap.L().With(zap.String("component", "chunk.router"))}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Route reads src to exhaustion and writes every point to the sink of the
// tile that owns it. Points outside all tiles are counted as skipped. Every
// sink that was opened is closed exactly once before Route returns, whether
// it succeeds, fails, or ctx is cancelled. The result is returned even on
// error and reflects the batches consumed so far.
func (r *Router) Route(ctx context.Context, src pointio.BatchIterator, tiles []model.ChunkDescriptor, factory SinkFactory) (res *RouteResult, err error) {
	res = &RouteResult{PerTile: make([]int64, len(tiles))}
	idx := newTileIndex(tiles)
	sinks := make([]pointio.PointSink, len(tiles))
	buckets := make([][]model.Point, len(tiles))

	defer func() {
		res.Routed = 0
		for _, n := range res.PerTile {
			res.Routed += n
		}
		res.Unwritten = res.Total - res.Skipped - res.Routed

		var closeErr error
		for i, s := range sinks {
			if s == nil {
				continue
			}
			res.Opened++
			if cerr := s.Close(); cerr != nil {
				closeErr = multierr.Append(closeErr, eris.Wrapf(cerr, "chunk: close sink %d", tiles[i].Index))
			}
		}
		if closeErr != nil {
			err = multierr.Append(err, model.NewError(model.KindIO, "close sinks", closeErr))
		}
		if res.Skipped > 0 {
			r.log.Warn("points outside every tile were skipped",
				zap.String("kind", string(model.KindPartition)),
				zap.Int64("skipped", res.Skipped),
				zap.Int64("total", res.Total),
			)
		}
	}()

	for {
		if cerr := ctx.Err(); cerr != nil {
			return res, eris.Wrap(cerr, "chunk: route cancelled")
		}
		batch, nerr := src.Next(ctx)
		if nerr == io.EOF || eris.Is(nerr, io.EOF) {
			break
		}
		if nerr != nil {
			return res, eris.Wrap(nerr, "chunk: read batch")
		}
		res.Batches++

		for i := range buckets {
			buckets[i] = buckets[i][:0]
		}
		for _, p := range batch {
			res.Total++
			ti := idx.lookup(p)
			if ti < 0 {
				res.Skipped++
				continue
			}
			buckets[ti] = append(buckets[ti], p)
		}

		if err := r.flush(ctx, tiles, buckets, sinks, factory, res.PerTile); err != nil {
			return res, err
		}
	}

	r.log.Debug("routing complete",
		zap.Int64("total", res.Total),
		zap.Int64("skipped", res.Skipped),
		zap.Int("batches", res.Batches),
	)
	return res, nil
}

// flush writes one batch's buckets, opening sinks as needed. perTile[i] is
// credited as soon as bucket i is written; each index has a single writer.
// With several workers, the first failure cancels the others between tiles.
func (r *Router) flush(ctx context.Context, tiles []model.ChunkDescriptor, buckets [][]model.Point, sinks []pointio.PointSink, factory SinkFactory, perTile []int64) error {
	if r.workers <= 1 {
		for i := range buckets {
			if err := write(ctx, i, tiles, buckets, sinks, factory, perTile); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < r.workers; w++ {
		g.Go(func() error {
			for i := w; i < len(buckets); i += r.workers {
				if err := write(gctx, i, tiles, buckets, sinks, factory, perTile); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func write(ctx context.Context, i int, tiles []model.ChunkDescriptor, buckets [][]model.Point, sinks []pointio.PointSink, factory SinkFactory, perTile []int64) error {
	if len(buckets[i]) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return eris.Wrapf(err, "chunk: tile %d not written", tiles[i].Index)
	}
	if sinks[i] == nil {
		s, err := factory(tiles[i])
		if err != nil {
			return model.NewError(model.KindIO, "open sink", eris.Wrapf(err, "chunk: tile %d", tiles[i].Index))
		}
		sinks[i] = s
	}
	if err := sinks[i].Write(buckets[i]); err != nil {
		return model.NewError(model.KindIO, "write sink", eris.Wrapf(err, "chunk: tile %d", tiles[i].Index))
	}
	perTile[i] += int64(len(buckets[i]))
	return nil
}
