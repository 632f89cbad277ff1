package polygons

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
	"go.uber.org/zap"
)

// ReadShapefile returns every polygon and polyline in a .shp file.
// Multi-part polygon records are split into one polygon per outer ring, with
// counter-clockwise rings attached as holes of the outer ring that contains
// them.
func ReadShapefile(path string) ([]*geom.Polygon, []*geom.LineString, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "polygons: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	var polys []*geom.Polygon
	var lines []*geom.LineString
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		switch s := shape.(type) {
		case *shp.Polygon:
			p := shapePolygons(s.NumParts, s.Parts, s.Points)
			if len(p) == 0 {
				skipped++
			}
			polys = append(polys, p...)
		case *shp.PolyLine:
			l := shapeLines(s.NumParts, s.Parts, s.Points)
			if len(l) == 0 {
				skipped++
			}
			lines = append(lines, l...)
		default:
			skipped++
		}
	}
	if skipped > 0 {
		zap.L().Debug("polygons: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return polys, lines, nil
}

// parts splits a shapefile point array into its parts.
func parts(numParts int32, starts []int32, pts []shp.Point) [][]float64 {
	if numParts == 0 || len(pts) == 0 {
		return nil
	}
	out := make([][]float64, 0, numParts)
	for i := int32(0); i < numParts && int(i) < len(starts); i++ {
		start := starts[i]
		end := int32(len(pts))
		if i+1 < numParts && int(i+1) < len(starts) {
			end = starts[i+1]
		}
		if start < 0 || start >= end || int(end) > len(pts) {
			continue
		}
		flat := make([]float64, 0, 2*(end-start))
		for _, p := range pts[start:end] {
			flat = append(flat, p.X, p.Y)
		}
		out = append(out, flat)
	}
	return out
}

func shapeLines(numParts int32, starts []int32, pts []shp.Point) []*geom.LineString {
	var out []*geom.LineString
	for _, flat := range parts(numParts, starts, pts) {
		if len(flat) >= 4 {
			out = append(out, geom.NewLineStringFlat(geom.XY, flat))
		}
	}
	return out
}

func shapePolygons(numParts int32, starts []int32, pts []shp.Point) []*geom.Polygon {
	var outers []*geom.Polygon
	var holes [][]float64
	for _, flat := range parts(numParts, starts, pts) {
		if len(flat) < 8 {
			continue
		}
		flat = closeRing(flat)
		// shapefile outer rings are clockwise, which gives a negative area
		if signedArea(flat) <= 0 {
			outers = append(outers, geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}))
		} else {
			holes = append(holes, flat)
		}
	}

	for _, h := range holes {
		c := geom.Coord{h[0], h[1]}
		attached := false
		for i, o := range outers {
			if xy.LocatePointInRing(geom.XY, c, o.LinearRing(0).FlatCoords()) == location.Exterior {
				continue
			}
			outers[i] = addHole(o, h)
			attached = true
			break
		}
		if !attached {
			// an orphan counter-clockwise ring is treated as an outer ring
			outers = append(outers, geom.NewPolygonFlat(geom.XY, h, []int{len(h)}))
		}
	}
	return outers
}

func addHole(p *geom.Polygon, ring []float64) *geom.Polygon {
	flat := append(append([]float64(nil), p.FlatCoords()...), ring...)
	ends := append(append([]int(nil), p.Ends()...), len(flat))
	return geom.NewPolygonFlat(geom.XY, flat, ends)
}

func closeRing(flat []float64) []float64 {
	n := len(flat)
	if flat[0] != flat[n-2] || flat[1] != flat[n-1] {
		flat = append(flat, flat[0], flat[1])
	}
	return flat
}

// signedArea is positive for counter-clockwise rings.
func signedArea(flat []float64) float64 {
	var a float64
	for i := 0; i+3 < len(flat); i += 2 {
		a += flat[i]*flat[i+3] - flat[i+2]*flat[i+1]
	}
	return a / 2
}
