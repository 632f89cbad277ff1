package pdok

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/pointraster/internal/fetcher"
	"github.com/sells-group/pointraster/internal/model"
	"github.com/sells-group/pointraster/internal/polygons"
)

// Waterdelen serves BGT water polygons. It implements polygons.Source.
type Waterdelen struct {
	Client *Client
	// TempDir holds downloaded archives; empty uses the system temp dir.
	TempDir string
	Poll    []PollOption
}

// NewWaterdelen returns a BGT waterdeel source.
func NewWaterdelen(c *Client, tempDir string, poll ...PollOption) *Waterdelen {
	return &Waterdelen{Client: c, TempDir: tempDir, Poll: poll}
}

// Name implements polygons.Source.
func (w *Waterdelen) Name() string { return "pdok:waterdeel" }

// Polygons requests a CityGML extract for bbox, waits for it, downloads the
// archive and parses the first GML file in it.
func (w *Waterdelen) Polygons(ctx context.Context, bbox model.BoundingBox) ([]*geom.Polygon, error) {
	log := zap.L().With(zap.String("component", "pdok"))

	job, err := w.Client.RequestDownload(ctx, DownloadRequest{
		FeatureTypes: []string{"waterdeel"},
		Format:       "citygml",
		GeoFilter:    bbox.WKT(),
	})
	if err != nil {
		return nil, err
	}
	log.Info("requested waterdeel extract",
		zap.String("request_id", job.DownloadRequestID),
		zap.Stringer("bbox", bbox),
	)

	status, err := w.Client.Poll(ctx, job.Links.Status.Href, w.Poll...)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(w.TempDir, "bgt-*")
	if err != nil {
		return nil, eris.Wrap(err, "pdok: create temp dir")
	}
	defer func() { _ = os.RemoveAll(dir) }()

	archive := filepath.Join(dir, "extract.zip")
	f, err := os.Create(archive)
	if err != nil {
		return nil, eris.Wrap(err, "pdok: create archive file")
	}
	n, err := w.Client.Download(ctx, status.Links.Download.Href, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = eris.Wrap(cerr, "pdok: close archive file")
	}
	if err != nil {
		return nil, err
	}

	gml, err := fetcher.ExtractFirst(archive, dir, ".gml", ".xml")
	if err != nil {
		return nil, eris.Wrap(err, "pdok: extract gml")
	}
	polys, err := polygons.ReadGML(ctx, gml)
	if err != nil {
		return nil, eris.Wrap(err, "pdok: parse gml")
	}

	log.Info("downloaded waterdelen",
		zap.Int64("archive_bytes", n),
		zap.Int("polygons", len(polys)),
	)
	return polys, nil
}
