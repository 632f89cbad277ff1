// Package polygons loads the auxiliary vector data used to filter point
// clouds: water polygons and centerlines from files, PostGIS, or the PDOK
// BGT download service.
package polygons

import (
	"context"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/pointraster/internal/model"
)

// Source returns polygons that may intersect a bounding box. Sources are free
// to return extra polygons outside bbox.
type Source interface {
	Name() string
	Polygons(ctx context.Context, bbox model.BoundingBox) ([]*geom.Polygon, error)
}

// FetchOrEmpty asks src for polygons and degrades to an empty set when the
// source fails. The failure is logged as a warning and returned as a
// KindExternal error alongside the empty result so callers can count it.
func FetchOrEmpty(ctx context.Context, log *zap.Logger, src Source, bbox model.BoundingBox) ([]*geom.Polygon, error) {
	if src == nil {
		return nil, nil
	}
	polys, err := src.Polygons(ctx, bbox)
	if err != nil {
		ext := model.NewError(model.KindExternal, src.Name(), err)
		log.Warn("polygon source failed, continuing with no polygons",
			zap.String("source", src.Name()),
			zap.Stringer("bbox", bbox),
			zap.Error(err),
		)
		return nil, ext
	}
	return Clip(polys, bbox), nil
}

// Clip drops polygons whose envelope does not intersect bbox.
func Clip(polys []*geom.Polygon, bbox model.BoundingBox) []*geom.Polygon {
	out := polys[:0:0]
	for _, p := range polys {
		if p == nil || p.Empty() {
			continue
		}
		if bbox.Intersects(envelope(p.Bounds())) {
			out = append(out, p)
		}
	}
	return out
}

func envelope(b *geom.Bounds) model.BoundingBox {
	return model.BoundingBox{XMin: b.Min(0), YMin: b.Min(1), XMax: b.Max(0), YMax: b.Max(1)}
}

// Flatten collects the polygons of g, descending into multi-polygons and
// collections. Other geometry types are ignored.
func Flatten(g geom.T) []*geom.Polygon {
	switch t := g.(type) {
	case *geom.Polygon:
		return []*geom.Polygon{t}
	case *geom.MultiPolygon:
		out := make([]*geom.Polygon, 0, t.NumPolygons())
		for i := 0; i < t.NumPolygons(); i++ {
			out = append(out, t.Polygon(i))
		}
		return out
	case *geom.GeometryCollection:
		var out []*geom.Polygon
		for _, sub := range t.Geoms() {
			out = append(out, Flatten(sub)...)
		}
		return out
	default:
		return nil
	}
}

// FlattenLines collects the line strings of g.
func FlattenLines(g geom.T) []*geom.LineString {
	switch t := g.(type) {
	case *geom.LineString:
		return []*geom.LineString{t}
	case *geom.MultiLineString:
		out := make([]*geom.LineString, 0, t.NumLineStrings())
		for i := 0; i < t.NumLineStrings(); i++ {
			out = append(out, t.LineString(i))
		}
		return out
	case *geom.GeometryCollection:
		var out []*geom.LineString
		for _, sub := range t.Geoms() {
			out = append(out, FlattenLines(sub)...)
		}
		return out
	default:
		return nil
	}
}

// Static serves a fixed polygon set.
type Static struct {
	Label string
	Items []*geom.Polygon
}

// Name implements Source.
func (s *Static) Name() string { return s.Label }

// Polygons implements Source.
func (s *Static) Polygons(_ context.Context, _ model.BoundingBox) ([]*geom.Polygon, error) {
	return s.Items, nil
}
