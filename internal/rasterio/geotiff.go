// Package rasterio reads and writes rasters as GeoTIFF and Esri ASCII grids.
package rasterio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pointraster/internal/model"
	"github.com/sells-group/pointraster/internal/raster"
)

// TIFF tags used by the writer and reader.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagSampleFormat    = 339
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGeoKeyDirectory = 34735
	tagGDALNoData      = 42113
)

// TIFF field types.
const (
	typeByte   = 1
	typeASCII  = 2
	typeShort  = 3
	typeLong   = 4
	typeDouble = 12
)

// GeoKeys.
const (
	keyModelType      = 1024
	keyRasterType     = 1025
	keyGeographicType = 2048
	keyProjectedCS    = 3072

	modelProjected    = 1
	modelGeographic   = 2
	rasterPixelIsArea = 1
)

var typeSize = map[uint16]int{typeByte: 1, typeASCII: 1, typeShort: 2, typeLong: 4, typeDouble: 8}

// geographicEPSG lists the geographic CRS codes written as
// GeographicTypeGeoKey instead of ProjectedCSTypeGeoKey.
var geographicEPSG = map[int]bool{4326: true, 4258: true, 4289: true}

// TIFFOptions controls GeoTIFF encoding.
type TIFFOptions struct {
	// NoData is written in place of NaN cells and recorded in the
	// GDAL_NODATA tag. NaN keeps cells as NaN.
	NoData float64
	// Float64 stores 64-bit samples instead of 32-bit.
	Float64 bool
}

// DefaultTIFFOptions keeps NaN as the NoData marker with 32-bit samples.
func DefaultTIFFOptions() TIFFOptions {
	return TIFFOptions{NoData: math.NaN()}
}

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

// WriteGeoTIFF writes r as an uncompressed single-band strip GeoTIFF with one
// row per strip.
func WriteGeoTIFF(path string, r *raster.Raster, opts TIFFOptions) (err error) {
	if err := checkRaster(r); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return model.NewError(model.KindIO, "write geotiff", eris.Wrapf(err, "rasterio: create %s", path))
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = model.NewError(model.KindIO, "write geotiff", eris.Wrapf(cerr, "rasterio: close %s", path))
		}
	}()
	if err := EncodeGeoTIFF(f, r, opts); err != nil {
		return model.NewError(model.KindIO, "write geotiff", eris.Wrapf(err, "rasterio: encode %s", path))
	}
	return nil
}

// EncodeGeoTIFF writes the GeoTIFF encoding of r to w.
func EncodeGeoTIFF(w io.Writer, r *raster.Raster, opts TIFFOptions) error {
	if err := checkRaster(r); err != nil {
		return err
	}
	bps := 4
	if opts.Float64 {
		bps = 8
	}
	rowBytes := uint64(r.Cols * bps)
	dataLen := rowBytes * uint64(r.Rows)
	if dataLen+8 > math.MaxUint32-1<<20 {
		return model.Errorf(model.KindConfig, "write geotiff", "%dx%d raster exceeds the classic TIFF size limit", r.Rows, r.Cols)
	}

	le := binary.LittleEndian
	offsets := make([]uint32, r.Rows)
	counts := make([]uint32, r.Rows)
	for i := range offsets {
		offsets[i] = uint32(8 + uint64(i)*rowBytes)
		counts[i] = uint32(rowBytes)
	}
	gt := r.Transform
	epsg, err := epsgCode(r.CRS)
	if err != nil {
		return err
	}

	entries := []ifdEntry{
		longs(tagImageWidth, uint32(r.Cols)),
		longs(tagImageLength, uint32(r.Rows)),
		shorts(tagBitsPerSample, uint16(bps*8)),
		shorts(tagCompression, 1),
		shorts(tagPhotometric, 1),
		longs(tagStripOffsets, offsets...),
		shorts(tagSamplesPerPixel, 1),
		longs(tagRowsPerStrip, 1),
		longs(tagStripByteCounts, counts...),
		shorts(tagPlanarConfig, 1),
		shorts(tagSampleFormat, 3),
		doubles(tagModelPixelScale, gt.PixelWidth, -gt.PixelHeight, 0),
		doubles(tagModelTiepoint, 0, 0, 0, gt.OriginX, gt.OriginY, 0),
		shorts(tagGeoKeyDirectory, geoKeys(epsg)...),
		ascii(tagGDALNoData, formatNoData(opts.NoData)),
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	ifdOffset := uint32(8 + dataLen)
	extra := ifdOffset + 2 + 12*uint32(len(entries)) + 4

	bw := bufio.NewWriterSize(w, 1<<20)
	hdr := make([]byte, 8)
	copy(hdr, "II")
	le.PutUint16(hdr[2:], 42)
	le.PutUint32(hdr[4:], ifdOffset)
	if _, err := bw.Write(hdr); err != nil {
		return eris.Wrap(err, "rasterio: write header")
	}

	row := make([]byte, rowBytes)
	for y := 0; y < r.Rows; y++ {
		for x := 0; x < r.Cols; x++ {
			v := r.Values[y*r.Cols+x]
			if raster.IsNoData(v) {
				v = opts.NoData
			}
			if bps == 8 {
				le.PutUint64(row[x*8:], math.Float64bits(v))
			} else {
				le.PutUint32(row[x*4:], math.Float32bits(float32(v)))
			}
		}
		if _, err := bw.Write(row); err != nil {
			return eris.Wrap(err, "rasterio: write strip")
		}
	}

	var ifd bytes.Buffer
	var tail bytes.Buffer
	_ = binary.Write(&ifd, le, uint16(len(entries)))
	for _, e := range entries {
		_ = binary.Write(&ifd, le, e.tag)
		_ = binary.Write(&ifd, le, e.typ)
		_ = binary.Write(&ifd, le, e.count)
		if len(e.data) <= 4 {
			var inline [4]byte
			copy(inline[:], e.data)
			ifd.Write(inline[:])
			continue
		}
		_ = binary.Write(&ifd, le, extra+uint32(tail.Len()))
		tail.Write(e.data)
		if tail.Len()%2 == 1 {
			tail.WriteByte(0)
		}
	}
	_ = binary.Write(&ifd, le, uint32(0))

	if _, err := bw.Write(ifd.Bytes()); err != nil {
		return eris.Wrap(err, "rasterio: write ifd")
	}
	if _, err := bw.Write(tail.Bytes()); err != nil {
		return eris.Wrap(err, "rasterio: write tag data")
	}
	return eris.Wrap(bw.Flush(), "rasterio: flush")
}

func longs(tag uint16, vals ...uint32) ifdEntry {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[i*4:], v)
	}
	return ifdEntry{tag: tag, typ: typeLong, count: uint32(len(vals)), data: b}
}

func shorts(tag uint16, vals ...uint16) ifdEntry {
	b := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(b[i*2:], v)
	}
	return ifdEntry{tag: tag, typ: typeShort, count: uint32(len(vals)), data: b}
}

func doubles(tag uint16, vals ...float64) ifdEntry {
	b := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(b[i*8:], math.Float64bits(v))
	}
	return ifdEntry{tag: tag, typ: typeDouble, count: uint32(len(vals)), data: b}
}

func ascii(tag uint16, s string) ifdEntry {
	b := append([]byte(s), 0)
	return ifdEntry{tag: tag, typ: typeASCII, count: uint32(len(b)), data: b}
}

func geoKeys(epsg int) []uint16 {
	mt, csKey := uint16(modelProjected), uint16(keyProjectedCS)
	if geographicEPSG[epsg] {
		mt, csKey = modelGeographic, keyGeographicType
	}
	return []uint16{
		1, 1, 0, 3,
		keyModelType, 0, 1, mt,
		keyRasterType, 0, 1, rasterPixelIsArea,
		csKey, 0, 1, uint16(epsg),
	}
}

func formatNoData(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// epsgCode parses identifiers such as "EPSG:28992". An empty CRS falls back
// to raster.DefaultCRS.
func epsgCode(crs string) (int, error) {
	if crs == "" {
		crs = raster.DefaultCRS
	}
	s := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(crs)), "EPSG:")
	code, err := strconv.Atoi(s)
	if err != nil || code <= 0 || code > math.MaxUint16 {
		return 0, model.Errorf(model.KindConfig, "crs", "unsupported CRS identifier %q (want EPSG:<code>)", crs)
	}
	return code, nil
}

func checkRaster(r *raster.Raster) error {
	if r == nil || r.Rows <= 0 || r.Cols <= 0 || len(r.Values) != r.Rows*r.Cols {
		return model.Errorf(model.KindInput, "raster", "empty or inconsistent raster")
	}
	gt := r.Transform
	if gt.RowRotation != 0 || gt.ColumnRotation != 0 {
		return model.Errorf(model.KindConfig, "raster", "rotated transforms are not supported")
	}
	return nil
}

// ReadGeoTIFF reads a little- or big-endian, uncompressed, single-band
// floating-point strip GeoTIFF such as the ones WriteGeoTIFF produces. Cells
// equal to the GDAL_NODATA value come back as NoData.
func ReadGeoTIFF(path string) (*raster.Raster, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, model.NewError(model.KindInput, "read geotiff", eris.Wrapf(err, "rasterio: read %s", path))
	}
	r, err := DecodeGeoTIFF(b)
	if err != nil {
		return nil, model.NewError(model.KindInput, "read geotiff", eris.Wrapf(err, "rasterio: decode %s", path))
	}
	return r, nil
}

// DecodeGeoTIFF parses an in-memory GeoTIFF.
func DecodeGeoTIFF(b []byte) (*raster.Raster, error) {
	if len(b) < 8 {
		return nil, eris.New("rasterio: file too short")
	}
	var bo binary.ByteOrder
	switch string(b[:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return nil, eris.New("rasterio: not a TIFF file")
	}
	if bo.Uint16(b[2:]) != 42 {
		return nil, eris.New("rasterio: BigTIFF and other variants are not supported")
	}

	tags, err := readIFD(b, bo, bo.Uint32(b[4:]))
	if err != nil {
		return nil, err
	}
	get := func(tag uint16) ([]float64, bool) {
		v, ok := tags[tag]
		return v.nums, ok
	}
	first := func(tag uint16, def float64) float64 {
		if v, ok := get(tag); ok && len(v) > 0 {
			return v[0]
		}
		return def
	}

	cols := int(first(tagImageWidth, 0))
	rows := int(first(tagImageLength, 0))
	bits := int(first(tagBitsPerSample, 0))
	if cols <= 0 || rows <= 0 {
		return nil, eris.New("rasterio: missing image dimensions")
	}
	if first(tagCompression, 1) != 1 {
		return nil, eris.New("rasterio: compressed TIFFs are not supported")
	}
	if first(tagSamplesPerPixel, 1) != 1 {
		return nil, eris.New("rasterio: only single-band rasters are supported")
	}
	if first(tagSampleFormat, 1) != 3 || (bits != 32 && bits != 64) {
		return nil, eris.Errorf("rasterio: want 32 or 64 bit floating-point samples, got %d bits", bits)
	}
	offsets, ok := get(tagStripOffsets)
	if !ok {
		return nil, eris.New("rasterio: tiled TIFFs are not supported")
	}
	rowsPerStrip := int(first(tagRowsPerStrip, float64(rows)))
	if rowsPerStrip <= 0 {
		rowsPerStrip = rows
	}

	scale, ok := get(tagModelPixelScale)
	if !ok || len(scale) < 2 {
		return nil, eris.New("rasterio: missing ModelPixelScale tag")
	}
	tie, ok := get(tagModelTiepoint)
	if !ok || len(tie) < 6 {
		return nil, eris.New("rasterio: missing ModelTiepoint tag")
	}

	crs := ""
	if keys, ok := get(tagGeoKeyDirectory); ok {
		crs = crsFromKeys(keys)
	}
	noData := math.NaN()
	if v, ok := tags[tagGDALNoData]; ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.text), 64); err == nil {
			noData = f
		}
	}

	bps := bits / 8
	gt := raster.GeoTransform{
		OriginX:     tie[3] - tie[0]*scale[0],
		PixelWidth:  scale[0],
		OriginY:     tie[4] + tie[1]*scale[1],
		PixelHeight: -scale[1],
	}
	out := raster.New(rows, cols, gt, crs)
	rowBytes := cols * bps
	for s, off := range offsets {
		for k := 0; k < rowsPerStrip; k++ {
			y := s*rowsPerStrip + k
			if y >= rows {
				break
			}
			start := int(off) + k*rowBytes
			if start < 0 || start+rowBytes > len(b) {
				return nil, eris.Errorf("rasterio: strip %d runs past end of file", s)
			}
			for x := 0; x < cols; x++ {
				var v float64
				if bps == 8 {
					v = math.Float64frombits(bo.Uint64(b[start+x*8:]))
				} else {
					v = float64(math.Float32frombits(bo.Uint32(b[start+x*4:])))
				}
				if v == noData || math.IsNaN(v) {
					v = raster.NoData
				}
				out.Values[y*cols+x] = v
			}
		}
	}
	return out, nil
}

type tagValue struct {
	nums []float64
	text string
}

func readIFD(b []byte, bo binary.ByteOrder, off uint32) (map[uint16]tagValue, error) {
	if int(off)+2 > len(b) {
		return nil, eris.New("rasterio: IFD offset out of range")
	}
	n := int(bo.Uint16(b[off:]))
	tags := make(map[uint16]tagValue, n)
	for i := 0; i < n; i++ {
		p := int(off) + 2 + i*12
		if p+12 > len(b) {
			return nil, eris.New("rasterio: truncated IFD")
		}
		tag := bo.Uint16(b[p:])
		typ := bo.Uint16(b[p+2:])
		count := int(bo.Uint32(b[p+4:]))
		size, ok := typeSize[typ]
		if !ok {
			continue
		}
		data := b[p+8 : p+12]
		if size*count > 4 {
			start := int(bo.Uint32(b[p+8:]))
			if start < 0 || start+size*count > len(b) {
				return nil, eris.Errorf("rasterio: tag %d data out of range", tag)
			}
			data = b[start : start+size*count]
		}
		var tv tagValue
		switch typ {
		case typeASCII:
			tv.text = strings.TrimRight(string(data[:count]), "\x00")
		default:
			tv.nums = make([]float64, count)
			for j := 0; j < count; j++ {
				switch typ {
				case typeByte:
					tv.nums[j] = float64(data[j])
				case typeShort:
					tv.nums[j] = float64(bo.Uint16(data[j*2:]))
				case typeLong:
					tv.nums[j] = float64(bo.Uint32(data[j*4:]))
				case typeDouble:
					tv.nums[j] = math.Float64frombits(bo.Uint64(data[j*8:]))
				}
			}
		}
		tags[tag] = tv
	}
	return tags, nil
}

func crsFromKeys(keys []float64) string {
	if len(keys) < 4 {
		return ""
	}
	n := int(keys[3])
	for i := 0; i < n && 4+i*4+3 < len(keys); i++ {
		k := keys[4+i*4:]
		if (k[0] == keyProjectedCS || k[0] == keyGeographicType) && k[1] == 0 {
			return fmt.Sprintf("EPSG:%d", int(k[3]))
		}
	}
	return ""
}
