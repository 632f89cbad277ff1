package pointio

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"math"
	"os"
	"time"

	"github.com/edaniels/lidario"
	"github.com/rotisserie/eris"
	"go.uber.org/multierr"

	"github.com/sells-group/pointraster/internal/model"
)

const (
	// lasHeaderSize is the LAS 1.2 public header block.
	lasHeaderSize = 227
	// lasCoordBytes is the X, Y, Z int32 triple every point format starts with.
	lasCoordBytes = 12
	// lasFormat0Length is the point data record length of point format 0.
	lasFormat0Length = 20
)

// LASReader streams points from a LAS file. Coordinates are returned in true
// units: the codec applies integer * scale + offset. Only one batch of
// records is held in memory at a time.
type LASReader struct {
	f         *os.File
	records   *io.SectionReader
	recLen    int
	header    Header
	batchSize int
	next      int
	total     int
	raw       []byte
	buf       []model.Point
}

// OpenLAS opens path for batched reading. The public header is parsed up
// front; point records are read on demand by Next.
func OpenLAS(path string, batchSize int) (*LASReader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, model.NewError(model.KindInput, "open las", eris.Wrapf(err, "pointio: stat %s", path))
	}
	lf, err := lidario.NewLasFile(path, "rh")
	if lf != nil {
		// Header-only mode keeps no point data; the handle is not needed past here.
		_ = lf.Close()
	}
	if err != nil {
		return nil, model.NewError(model.KindInput, "open las", eris.Wrapf(err, "pointio: read header %s", path))
	}
	h := lf.Header
	if h.PointRecordLength < lasCoordBytes {
		return nil, model.Errorf(model.KindInput, "open las", "%s: point record length %d is too short", path, h.PointRecordLength)
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, model.NewError(model.KindInput, "open las", eris.Wrapf(err, "pointio: open %s", path))
	}
	size := int64(h.NumberPoints) * int64(h.PointRecordLength)
	return &LASReader{
		f:         f,
		records:   io.NewSectionReader(f, int64(h.OffsetToPoints), size),
		recLen:    h.PointRecordLength,
		batchSize: batchSize,
		total:     h.NumberPoints,
		header: Header{
			Source: path,
			Count:  int64(h.NumberPoints),
			Bounds: model.BoundingBox{XMin: h.MinX, YMin: h.MinY, XMax: h.MaxX, YMax: h.MaxY},
			Scale:  [3]float64{h.XScaleFactor, h.YScaleFactor, h.ZScaleFactor},
			Offset: [3]float64{h.XOffset, h.YOffset, h.ZOffset},
		},
	}, nil
}

// Header implements BatchIterator.
func (r *LASReader) Header() Header { return r.header }

// Next implements BatchIterator.
func (r *LASReader) Next(ctx context.Context) ([]model.Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.next >= r.total {
		return nil, io.EOF
	}
	n := min(r.batchSize, r.total-r.next)
	need := n * r.recLen
	if cap(r.raw) < need {
		r.raw = make([]byte, need)
	}
	raw := r.raw[:need]
	if _, err := r.records.ReadAt(raw, int64(r.next)*int64(r.recLen)); err != nil {
		return nil, model.NewError(model.KindInput, "read las",
			eris.Wrapf(err, "pointio: points %d..%d of %s", r.next, r.next+n, r.header.Source))
	}

	sc, off := r.header.Scale, r.header.Offset
	r.buf = r.buf[:0]
	for i := 0; i < n; i++ {
		rec := raw[i*r.recLen:]
		r.buf = append(r.buf, model.Point{
			X: float64(int32(binary.LittleEndian.Uint32(rec[0:4])))*sc[0] + off[0],
			Y: float64(int32(binary.LittleEndian.Uint32(rec[4:8])))*sc[1] + off[1],
			Z: float64(int32(binary.LittleEndian.Uint32(rec[8:12])))*sc[2] + off[2],
		})
	}
	r.next += n
	return r.buf, nil
}

// Close implements BatchIterator.
func (r *LASReader) Close() error {
	return eris.Wrap(r.f.Close(), "pointio: close las")
}

// LASSink writes point format 0 records to a new LAS 1.2 file as they
// arrive. The header is reserved on create and rewritten with the final
// count and bounds on Close.
type LASSink struct {
	f       *os.File
	w       *bufio.Writer
	path    string
	scale   [3]float64
	offset  [3]float64
	hasOff  bool
	count   int64
	bounds  [6]float64 // min x y z, max x y z
	rec     [lasFormat0Length]byte
	closed  bool
	created time.Time
}

// CreateLAS creates path and reserves the header. Scale and offset come from
// hdr so chunk files keep the source precision; a zero offset is taken from
// the first point written.
func CreateLAS(path string, hdr Header) (*LASSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, model.NewError(model.KindIO, "create las", eris.Wrapf(err, "pointio: create %s", path))
	}

	s := &LASSink{
		f:       f,
		w:       bufio.NewWriterSize(f, 1<<20),
		path:    path,
		scale:   hdr.Scale,
		offset:  hdr.Offset,
		hasOff:  hdr.Offset != [3]float64{},
		created: time.Now().UTC(),
	}
	for i := range s.scale {
		if s.scale[i] <= 0 {
			s.scale[i] = 0.001
		}
	}
	for i := 0; i < 3; i++ {
		s.bounds[i] = math.Inf(1)
		s.bounds[i+3] = math.Inf(-1)
	}

	if _, err := s.w.Write(make([]byte, lasHeaderSize)); err != nil {
		return nil, multierr.Combine(
			model.NewError(model.KindIO, "create las", eris.Wrapf(err, "pointio: reserve header %s", path)),
			f.Close(),
		)
	}
	return s, nil
}

// Write implements PointSink.
func (s *LASSink) Write(points []model.Point) error {
	if s.closed {
		return model.Errorf(model.KindIO, "write las", "%s: sink is closed", s.path)
	}
	if len(points) == 0 {
		return nil
	}
	if !s.hasOff {
		s.offset = [3]float64{math.Floor(points[0].X), math.Floor(points[0].Y), math.Floor(points[0].Z)}
		s.hasOff = true
	}

	for _, p := range points {
		xyz := [3]float64{p.X, p.Y, p.Z}
		for i, v := range xyz {
			q := math.Round((v - s.offset[i]) / s.scale[i])
			if q < math.MinInt32 || q > math.MaxInt32 {
				return model.Errorf(model.KindIO, "write las",
					"%s: coordinate %g does not fit scale %g and offset %g", s.path, v, s.scale[i], s.offset[i])
			}
			binary.LittleEndian.PutUint32(s.rec[i*4:], uint32(int32(q)))
			s.bounds[i] = math.Min(s.bounds[i], v)
			s.bounds[i+3] = math.Max(s.bounds[i+3], v)
		}
		// Intensity 0, return 1 of 1, unclassified, point source 1.
		s.rec[12], s.rec[13] = 0, 0
		s.rec[14] = 1 | (1 << 3)
		s.rec[15], s.rec[16], s.rec[17] = 0, 0, 0
		binary.LittleEndian.PutUint16(s.rec[18:], 1)

		if _, err := s.w.Write(s.rec[:]); err != nil {
			return model.NewError(model.KindIO, "write las", eris.Wrapf(err, "pointio: write %s", s.path))
		}
		s.count++
	}
	return nil
}

// Close flushes buffered records and writes the final header. It is safe to
// call twice.
func (s *LASSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.w.Flush()
	if err == nil {
		_, err = s.f.WriteAt(s.encodeHeader(), 0)
	}
	err = multierr.Combine(err, s.f.Close())
	if err != nil {
		return model.NewError(model.KindIO, "close las", eris.Wrapf(err, "pointio: close %s", s.path))
	}
	return nil
}

func (s *LASSink) encodeHeader() []byte {
	b := make([]byte, lasHeaderSize)
	le := binary.LittleEndian
	copy(b[0:4], "LASF")
	b[24], b[25] = 1, 2
	copy(b[26:58], "OTHER")
	copy(b[58:90], "pointraster")
	le.PutUint16(b[90:], uint16(s.created.YearDay()))
	le.PutUint16(b[92:], uint16(s.created.Year()))
	le.PutUint16(b[94:], lasHeaderSize)
	le.PutUint32(b[96:], lasHeaderSize)
	le.PutUint32(b[100:], 0)
	b[104] = 0
	le.PutUint16(b[105:], lasFormat0Length)
	le.PutUint32(b[107:], uint32(s.count))
	le.PutUint32(b[111:], uint32(s.count))

	bounds := s.bounds
	if s.count == 0 {
		bounds = [6]float64{}
	}
	floats := []float64{
		s.scale[0], s.scale[1], s.scale[2],
		s.offset[0], s.offset[1], s.offset[2],
		bounds[3], bounds[0], bounds[4], bounds[1], bounds[5], bounds[2],
	}
	for i, v := range floats {
		le.PutUint64(b[131+i*8:], math.Float64bits(v))
	}
	return b
}
