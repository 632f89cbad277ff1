package pipeline

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pointraster/internal/chunk"
	"github.com/sells-group/pointraster/internal/model"
	"github.com/sells-group/pointraster/internal/pointio"
)

// ChunkSet is the outcome of splitting and routing one point file.
type ChunkSet struct {
	Tiles   []model.ChunkDescriptor
	Route   *chunk.RouteResult
	Sources []chunkSource
}

// Paths returns the chunk files that received at least one point.
func (s *ChunkSet) Paths() []string {
	out := make([]string, len(s.Sources))
	for i, src := range s.Sources {
		out[i] = src.Path
	}
	return out
}

// Chunk splits the extent of the point file at path into tiles and routes
// its points into one file per tile under dir. Tiles that receive no point
// produce no file.
func (p *Pipeline) Chunk(ctx context.Context, path, dir string) (*ChunkSet, error) {
	spec := p.cfg.Chunk.TileSpec()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	batch := p.cfg.Chunk.BatchSize

	it, err := pointio.Open(path, batch)
	if err != nil {
		return nil, err
	}
	defer it.Close() //nolint:errcheck

	hdr := it.Header()
	bounds := hdr.Bounds
	if hdr.Count < 0 || bounds.IsEmpty() {
		if bounds, err = scanBounds(ctx, path, batch); err != nil {
			return nil, err
		}
	}

	boxes, err := chunk.Split(bounds, spec)
	if err != nil {
		return nil, err
	}
	tiles := chunk.Describe(boxes)

	ext := strings.ToLower(filepath.Ext(path))
	sinks, err := chunk.NewFileSinks(dir, chunk.Stem(path), ext, tiles, hdr)
	if err != nil {
		return nil, err
	}

	router := chunk.NewRouter(
		chunk.WithWorkers(p.cfg.Chunk.Workers),
		chunk.WithLogger(p.log.With(zap.String("stage", "route"))),
	)
	res, err := router.Route(ctx, it, tiles, sinks.Factory())
	if err != nil {
		return nil, err
	}

	set := &ChunkSet{Tiles: tiles, Route: res}
	for i, t := range tiles {
		if res.PerTile[i] == 0 {
			continue
		}
		set.Sources = append(set.Sources, chunkSource{Index: t.Index, Bounds: t.Bounds, Path: sinks.Path(t.Index)})
	}
	p.log.Info("pipeline: chunked input",
		zap.String("path", path),
		zap.Int("tiles", len(tiles)),
		zap.Int("written", len(set.Sources)),
		zap.Int64("skipped", res.Skipped),
	)
	return set, nil
}

// scanBounds reads path once to find the extent of sources whose header
// does not carry one.
func scanBounds(ctx context.Context, path string, batch int) (model.BoundingBox, error) {
	it, err := pointio.Open(path, batch)
	if err != nil {
		return model.BoundingBox{}, err
	}
	defer it.Close() //nolint:errcheck

	b := model.EmptyBounds()
	for {
		pts, err := it.Next(ctx)
		if eris.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return model.BoundingBox{}, err
		}
		for _, pt := range pts {
			b = b.Extend(pt)
		}
	}
	if b.IsEmpty() {
		return model.BoundingBox{}, model.Errorf(model.KindInput, "chunk", "%s holds no points", path)
	}
	return b, nil
}
