package polygons

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// ReadGeoJSON reads a FeatureCollection or a bare geometry and returns its
// polygons and line strings.
func ReadGeoJSON(path string) ([]*geom.Polygon, []*geom.LineString, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "polygons: read %s", path)
	}
	return DecodeGeoJSON(data)
}

// DecodeGeoJSON is ReadGeoJSON on an in-memory document.
func DecodeGeoJSON(data []byte) ([]*geom.Polygon, []*geom.LineString, error) {
	var fc geojson.FeatureCollection
	err := json.Unmarshal(data, &fc)
	if err == nil {
		var polys []*geom.Polygon
		var lines []*geom.LineString
		for _, f := range fc.Features {
			if f == nil || f.Geometry == nil {
				continue
			}
			polys = append(polys, Flatten(f.Geometry)...)
			lines = append(lines, FlattenLines(f.Geometry)...)
		}
		return polys, lines, nil
	}

	var unsupported geojson.ErrUnsupportedType
	if !errors.As(err, &unsupported) {
		return nil, nil, eris.Wrap(err, "polygons: decode geojson")
	}

	var g geom.T
	if err := geojson.Unmarshal(data, &g); err != nil {
		return nil, nil, eris.Wrap(err, "polygons: decode geojson geometry")
	}
	return Flatten(g), FlattenLines(g), nil
}

// EncodeGeoJSON renders polys as a FeatureCollection tagged with source.
func EncodeGeoJSON(polys []*geom.Polygon, source string) ([]byte, error) {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(polys))}
	for _, p := range polys {
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry:   p,
			Properties: map[string]interface{}{"source": source},
		})
	}
	data, err := json.Marshal(fc)
	if err != nil {
		return nil, eris.Wrap(err, "polygons: encode geojson")
	}
	return data, nil
}

// WriteGeoJSON stores polys as a FeatureCollection at path.
func WriteGeoJSON(path string, polys []*geom.Polygon, source string) error {
	data, err := EncodeGeoJSON(polys, source)
	if err != nil {
		return err
	}
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "polygons: write %s", path)
}
