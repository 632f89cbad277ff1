// Package pointio reads and writes point clouds in bounded batches.
package pointio

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pointraster/internal/model"
)

// DefaultBatchSize matches the number of points read per batch when the
// caller does not choose one.
const DefaultBatchSize = 1_000_000

// Header describes a point source before any point is read.
type Header struct {
	Source string
	Count  int64
	Bounds model.BoundingBox
	Scale  [3]float64
	Offset [3]float64
}

// BatchIterator yields points in bounded batches. Next returns io.EOF once
// the source is exhausted. Returned slices may be reused by the next call.
type BatchIterator interface {
	Header() Header
	Next(ctx context.Context) ([]model.Point, error)
	Close() error
}

// PointSink receives routed or filtered points.
type PointSink interface {
	Write(points []model.Point) error
	Close() error
}

// Open returns a batch iterator for path, chosen by file extension.
func Open(path string, batchSize int) (BatchIterator, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".las":
		return OpenLAS(path, batchSize)
	case ".csv":
		return OpenCSV(path, batchSize)
	default:
		return nil, model.Errorf(model.KindInput, "open", "unsupported point file %q", path)
	}
}

// Create returns a sink for path, chosen by file extension. The header
// carries scale and offset for formats that store integer coordinates.
func Create(path string, hdr Header) (PointSink, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".las":
		return CreateLAS(path, hdr)
	case ".csv":
		return CreateCSV(path)
	default:
		return nil, model.Errorf(model.KindConfig, "create", "unsupported point file %q", path)
	}
}

// ReadAll drains it into a single slice. Only use this on a source that is
// already bounded, such as a single chunk.
func ReadAll(ctx context.Context, it BatchIterator) ([]model.Point, error) {
	var out []model.Point
	if n := it.Header().Count; n > 0 {
		out = make([]model.Point, 0, n)
	}
	for {
		batch, err := it.Next(ctx)
		if eris.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
}

// SliceSource serves an in-memory slice in batches.
type SliceSource struct {
	points    []model.Point
	batchSize int
	pos       int
	header    Header
}

// NewSliceSource wraps points. A non-positive batchSize uses DefaultBatchSize.
func NewSliceSource(points []model.Point, batchSize int) *SliceSource {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	bounds := model.EmptyBounds()
	for _, p := range points {
		bounds = bounds.Extend(p)
	}
	return &SliceSource{
		points:    points,
		batchSize: batchSize,
		header: Header{
			Source: "memory",
			Count:  int64(len(points)),
			Bounds: bounds,
			Scale:  [3]float64{0.001, 0.001, 0.001},
		},
	}
}

// Header implements BatchIterator.
func (s *SliceSource) Header() Header { return s.header }

// Next implements BatchIterator.
func (s *SliceSource) Next(ctx context.Context) ([]model.Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.points) {
		return nil, io.EOF
	}
	end := min(s.pos+s.batchSize, len(s.points))
	batch := s.points[s.pos:end]
	s.pos = end
	return batch, nil
}

// Close implements BatchIterator.
func (s *SliceSource) Close() error { return nil }

// MemorySink collects written points, mainly for tests and small exports.
type MemorySink struct {
	Points []model.Point
	Closed int
}

// Write implements PointSink.
func (m *MemorySink) Write(points []model.Point) error {
	m.Points = append(m.Points, points...)
	return nil
}

// Close implements PointSink.
func (m *MemorySink) Close() error {
	m.Closed++
	return nil
}
