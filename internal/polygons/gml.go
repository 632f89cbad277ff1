package polygons

import (
	"context"
	"encoding/xml"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"golang.org/x/text/encoding/htmlindex"
)

// ReadGML streams a GML or CityGML document and returns every polygon in it.
func ReadGML(ctx context.Context, path string) ([]*geom.Polygon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "polygons: open %s", path)
	}
	defer func() { _ = f.Close() }()
	return DecodeGML(ctx, f)
}

// DecodeGML parses gml:Polygon and gml:PolygonPatch elements from r.
// Rings may be given as gml:posList, a sequence of gml:pos, or a gml:Ring of
// curve segments. Only the first two ordinates of each position are kept.
func DecodeGML(ctx context.Context, r io.Reader) ([]*geom.Polygon, error) {
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "gml: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}

	var (
		polys   []*geom.Polygon
		p       gmlPolygon
		inPoly  bool
		inRing  bool
		ring    []float64
		dim     = 2
		listDim int
		collect bool
		text    strings.Builder
		tokens  int
	)

	for {
		tokens++
		if tokens%4096 == 0 && ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "gml: context cancelled")
		}

		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "gml: read token")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			d, hasDim := srsDimension(t)
			switch t.Name.Local {
			case "Polygon", "PolygonPatch":
				inPoly = true
				p = gmlPolygon{}
			case "exterior", "interior", "outerBoundaryIs", "innerBoundaryIs":
				if inPoly {
					inRing = true
					ring = ring[:0]
				}
			case "posList", "pos", "coordinates":
				if inRing {
					collect = true
					text.Reset()
					listDim = dim
					if hasDim {
						listDim = d
					}
				}
			default:
				if hasDim {
					dim = d
				}
			}
		case xml.CharData:
			if collect {
				text.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "posList", "pos":
				if collect {
					ring = appendPositions(ring, text.String(), listDim)
					collect = false
				}
			case "coordinates":
				if collect {
					ring = appendTuples(ring, text.String())
					collect = false
				}
			case "exterior", "outerBoundaryIs":
				if inRing {
					p.exterior = append([]float64(nil), ring...)
					inRing = false
				}
			case "interior", "innerBoundaryIs":
				if inRing {
					p.holes = append(p.holes, append([]float64(nil), ring...))
					inRing = false
				}
			case "Polygon", "PolygonPatch":
				if inPoly {
					if g := p.build(); g != nil {
						polys = append(polys, g)
					}
					inPoly = false
				}
			}
		}
	}
	return polys, nil
}

type gmlPolygon struct {
	exterior []float64
	holes    [][]float64
}

func (p gmlPolygon) build() *geom.Polygon {
	ext := normalizeRing(p.exterior)
	if ext == nil {
		return nil
	}
	flat := ext
	ends := []int{len(flat)}
	for _, h := range p.holes {
		if h = normalizeRing(h); h != nil {
			flat = append(flat, h...)
			ends = append(ends, len(flat))
		}
	}
	return geom.NewPolygonFlat(geom.XY, flat, ends)
}

// normalizeRing drops repeated vertices and closes the ring. Rings with fewer
// than three distinct vertices return nil.
func normalizeRing(flat []float64) []float64 {
	out := make([]float64, 0, len(flat)+2)
	for i := 0; i+1 < len(flat); i += 2 {
		n := len(out)
		if n >= 2 && out[n-2] == flat[i] && out[n-1] == flat[i+1] {
			continue
		}
		out = append(out, flat[i], flat[i+1])
	}
	if len(out) >= 4 && out[0] == out[len(out)-2] && out[1] == out[len(out)-1] {
		out = out[:len(out)-2]
	}
	if len(out) < 6 {
		return nil
	}
	return append(out, out[0], out[1])
}

func srsDimension(se xml.StartElement) (int, bool) {
	for _, a := range se.Attr {
		if a.Name.Local != "srsDimension" {
			continue
		}
		d, err := strconv.Atoi(strings.TrimSpace(a.Value))
		if err == nil && d >= 2 {
			return d, true
		}
	}
	return 0, false
}

func appendPositions(dst []float64, s string, dim int) []float64 {
	fields := strings.Fields(s)
	for i := 0; i+dim <= len(fields); i += dim {
		x, errX := strconv.ParseFloat(fields[i], 64)
		y, errY := strconv.ParseFloat(fields[i+1], 64)
		if errX != nil || errY != nil {
			continue
		}
		dst = append(dst, x, y)
	}
	return dst
}

// appendTuples handles the GML 2 "x,y x,y" form.
func appendTuples(dst []float64, s string) []float64 {
	for _, tuple := range strings.Fields(s) {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 {
			continue
		}
		x, errX := strconv.ParseFloat(parts[0], 64)
		y, errY := strconv.ParseFloat(parts[1], 64)
		if errX != nil || errY != nil {
			continue
		}
		dst = append(dst, x, y)
	}
	return dst
}
