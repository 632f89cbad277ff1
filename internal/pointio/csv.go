package pointio

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pointraster/internal/model"
)

// CSVReader streams X,Y,Z rows. A first row whose leading field is not a
// number is treated as a header and skipped. Extra columns are ignored.
type CSVReader struct {
	f         *os.File
	r         *csv.Reader
	path      string
	batchSize int
	line      int
	buf       []model.Point
	header    Header
}

// OpenCSV opens path for batched reading. The header count and bounds are
// unknown up front and left zero.
func OpenCSV(path string, batchSize int) (*CSVReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, model.NewError(model.KindInput, "open csv", eris.Wrapf(err, "pointio: open %s", path))
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1
	r.ReuseRecord = true
	r.TrimLeadingSpace = true
	return &CSVReader{
		f:         f,
		r:         r,
		path:      path,
		batchSize: batchSize,
		header: Header{
			Source: path,
			Count:  -1,
			Bounds: model.EmptyBounds(),
			Scale:  [3]float64{0.001, 0.001, 0.001},
		},
	}, nil
}

// Header implements BatchIterator.
func (c *CSVReader) Header() Header { return c.header }

// Next implements BatchIterator.
func (c *CSVReader) Next(ctx context.Context) ([]model.Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.buf = c.buf[:0]
	for len(c.buf) < c.batchSize {
		rec, err := c.r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, model.NewError(model.KindInput, "read csv", eris.Wrapf(err, "pointio: %s", c.path))
		}
		c.line++
		if len(rec) < 3 {
			return nil, model.Errorf(model.KindInput, "read csv", "%s line %d: want 3 columns, got %d", c.path, c.line, len(rec))
		}
		p, err := parseXYZ(rec)
		if err != nil {
			if c.line == 1 {
				continue
			}
			return nil, model.NewError(model.KindInput, "read csv", eris.Wrapf(err, "pointio: %s line %d", c.path, c.line))
		}
		c.header.Bounds = c.header.Bounds.Extend(p)
		c.buf = append(c.buf, p)
	}
	if len(c.buf) == 0 {
		return nil, io.EOF
	}
	return c.buf, nil
}

// Close implements BatchIterator.
func (c *CSVReader) Close() error {
	return eris.Wrap(c.f.Close(), "pointio: close csv")
}

func parseXYZ(rec []string) (model.Point, error) {
	var v [3]float64
	for i := range v {
		f, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
		if err != nil {
			return model.Point{}, err
		}
		v[i] = f
	}
	return model.Point{X: v[0], Y: v[1], Z: v[2]}, nil
}

// CSVSink writes points as X,Y,Z rows under a header line.
type CSVSink struct {
	f      *os.File
	w      *csv.Writer
	path   string
	closed bool
	row    [3]string
}

// CreateCSV creates path and writes the header row.
func CreateCSV(path string) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, model.NewError(model.KindIO, "create csv", eris.Wrapf(err, "pointio: create %s", path))
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"X", "Y", "Z"}); err != nil {
		_ = f.Close()
		return nil, model.NewError(model.KindIO, "create csv", eris.Wrapf(err, "pointio: header %s", path))
	}
	return &CSVSink{f: f, w: w, path: path}, nil
}

// Write implements PointSink.
func (s *CSVSink) Write(points []model.Point) error {
	for _, p := range points {
		s.row[0] = strconv.FormatFloat(p.X, 'f', -1, 64)
		s.row[1] = strconv.FormatFloat(p.Y, 'f', -1, 64)
		s.row[2] = strconv.FormatFloat(p.Z, 'f', -1, 64)
		if err := s.w.Write(s.row[:]); err != nil {
			return model.NewError(model.KindIO, "write csv", eris.Wrapf(err, "pointio: write %s", s.path))
		}
	}
	return nil
}

// Close flushes buffered rows and closes the file. It is safe to call twice.
func (s *CSVSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		_ = s.f.Close()
		return model.NewError(model.KindIO, "close csv", eris.Wrapf(err, "pointio: flush %s", s.path))
	}
	if err := s.f.Close(); err != nil {
		return model.NewError(model.KindIO, "close csv", eris.Wrapf(err, "pointio: close %s", s.path))
	}
	return nil
}
