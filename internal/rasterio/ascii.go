package rasterio

import (
	"bufio"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pointraster/internal/model"
	"github.com/sells-group/pointraster/internal/raster"
)

// DefaultASCIINoData is the NODATA_value written to Esri ASCII grids.
const DefaultASCIINoData = -9999.0

// WriteASCIIGrid writes r as an Esri ASCII grid. Pixels must be square.
func WriteASCIIGrid(path string, r *raster.Raster, noData float64) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return model.NewError(model.KindIO, "write ascii grid", eris.Wrapf(err, "rasterio: create %s", path))
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = model.NewError(model.KindIO, "write ascii grid", eris.Wrapf(cerr, "rasterio: close %s", path))
		}
	}()
	if err := EncodeASCIIGrid(f, r, noData); err != nil {
		return model.NewError(model.KindIO, "write ascii grid", eris.Wrapf(err, "rasterio: encode %s", path))
	}
	return nil
}

// EncodeASCIIGrid writes the Esri ASCII encoding of r to w.
func EncodeASCIIGrid(w io.Writer, r *raster.Raster, noData float64) error {
	if err := checkRaster(r); err != nil {
		return err
	}
	gt := r.Transform
	if gt.PixelWidth != -gt.PixelHeight {
		return model.Errorf(model.KindConfig, "write ascii grid", "ascii grids need square pixels, got %gx%g", gt.PixelWidth, gt.PixelHeight)
	}
	if math.IsNaN(noData) {
		noData = DefaultASCIINoData
	}
	b := r.Bounds()

	bw := bufio.NewWriter(w)
	var sb strings.Builder
	sb.WriteString("ncols " + strconv.Itoa(r.Cols) + "\n")
	sb.WriteString("nrows " + strconv.Itoa(r.Rows) + "\n")
	sb.WriteString("xllcorner " + ftoa(b.XMin) + "\n")
	sb.WriteString("yllcorner " + ftoa(b.YMin) + "\n")
	sb.WriteString("cellsize " + ftoa(gt.PixelWidth) + "\n")
	sb.WriteString("NODATA_value " + ftoa(noData) + "\n")
	if _, err := bw.WriteString(sb.String()); err != nil {
		return eris.Wrap(err, "rasterio: write ascii header")
	}

	for row := 0; row < r.Rows; row++ {
		for col := 0; col < r.Cols; col++ {
			v := r.At(row, col)
			if raster.IsNoData(v) {
				v = noData
			}
			if col > 0 {
				_ = bw.WriteByte(' ')
			}
			_, _ = bw.WriteString(ftoa(v))
		}
		if err := bw.WriteByte('\n'); err != nil {
			return eris.Wrap(err, "rasterio: write ascii row")
		}
	}
	return eris.Wrap(bw.Flush(), "rasterio: flush ascii grid")
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ReadASCIIGrid parses an Esri ASCII grid. Both corner and centre
// registration headers are accepted. The CRS is not stored in the format
// and is set to crs.
func ReadASCIIGrid(path, crs string) (*raster.Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, model.NewError(model.KindInput, "read ascii grid", eris.Wrapf(err, "rasterio: open %s", path))
	}
	defer f.Close() //nolint:errcheck

	r, err := DecodeASCIIGrid(f, crs)
	if err != nil {
		return nil, model.NewError(model.KindInput, "read ascii grid", eris.Wrapf(err, "rasterio: decode %s", path))
	}
	return r, nil
}

// DecodeASCIIGrid parses an Esri ASCII grid from rd.
func DecodeASCIIGrid(rd io.Reader, crs string) (*raster.Raster, error) {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 1<<20), 1<<28)
	sc.Split(bufio.ScanWords)

	hdr := map[string]float64{}
	var first string
	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		if _, err := strconv.ParseFloat(key, 64); err == nil {
			first = key
			break
		}
		if !sc.Scan() {
			return nil, eris.Errorf("rasterio: header %q has no value", key)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "rasterio: header %q", key)
		}
		hdr[key] = v
	}

	cols, rows, cell := int(hdr["ncols"]), int(hdr["nrows"]), hdr["cellsize"]
	if cols <= 0 || rows <= 0 || !(cell > 0) {
		return nil, eris.New("rasterio: ncols, nrows and cellsize must be positive")
	}
	x0, okX := hdr["xllcorner"]
	y0, okY := hdr["yllcorner"]
	if cx, ok := hdr["xllcenter"]; ok && !okX {
		x0, okX = cx-cell/2, true
	}
	if cy, ok := hdr["yllcenter"]; ok && !okY {
		y0, okY = cy-cell/2, true
	}
	if !okX || !okY {
		return nil, eris.New("rasterio: missing lower-left corner")
	}
	noData, hasNoData := hdr["nodata_value"]

	gt := raster.GeoTransform{OriginX: x0, PixelWidth: cell, OriginY: y0 + float64(rows)*cell, PixelHeight: -cell}
	out := raster.New(rows, cols, gt, crs)

	i := 0
	tok := first
	for {
		if tok == "" {
			if !sc.Scan() {
				break
			}
			tok = sc.Text()
		}
		if i >= len(out.Values) {
			return nil, eris.New("rasterio: more values than ncols*nrows")
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "rasterio: value %d", i)
		}
		if !(hasNoData && v == noData) {
			out.Values[i] = v
		}
		i++
		tok = ""
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "rasterio: scan ascii grid")
	}
	if i != len(out.Values) {
		return nil, eris.Errorf("rasterio: got %d values, want %d", i, len(out.Values))
	}
	return out, nil
}
