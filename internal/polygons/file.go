package polygons

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/pointraster/internal/model"
)

// File serves polygons from a shapefile, GeoJSON or GML file. The file is
// parsed on first use and reused for the lifetime of the value.
type File struct {
	Path string

	once  sync.Once
	polys []*geom.Polygon
	err   error
}

// NewFile returns a file-backed Source.
func NewFile(path string) *File { return &File{Path: path} }

// Name implements Source.
func (f *File) Name() string { return "file:" + filepath.Base(f.Path) }

// Polygons implements Source.
func (f *File) Polygons(ctx context.Context, _ model.BoundingBox) ([]*geom.Polygon, error) {
	f.once.Do(func() {
		f.polys, _, f.err = readFile(ctx, f.Path)
	})
	return f.polys, f.err
}

// ReadLines returns the line strings stored in a shapefile or GeoJSON file.
func ReadLines(ctx context.Context, path string) ([]*geom.LineString, error) {
	_, lines, err := readFile(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, model.Errorf(model.KindInput, "polygons: read lines", "%s contains no line geometries", path)
	}
	return lines, nil
}

func readFile(ctx context.Context, path string) ([]*geom.Polygon, []*geom.LineString, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return ReadShapefile(path)
	case ".geojson", ".json":
		return ReadGeoJSON(path)
	case ".gml", ".xml":
		polys, err := ReadGML(ctx, path)
		return polys, nil, err
	default:
		return nil, nil, model.NewError(model.KindInput, "polygons: read",
			eris.Errorf("unsupported vector format %q", filepath.Ext(path)))
	}
}
