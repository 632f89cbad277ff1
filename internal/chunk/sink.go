package chunk

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pointraster/internal/model"
	"github.com/sells-group/pointraster/internal/pointio"
)

// FileSinks creates one point file per tile under dir, named by Names.
type FileSinks struct {
	Dir    string
	Names  []string
	Header pointio.Header

	byIndex map[int]string
}

// NewFileSinks prepares names for tiles. Files are created lazily by Factory.
func NewFileSinks(dir, stem, ext string, tiles []model.ChunkDescriptor, hdr pointio.Header) (*FileSinks, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, model.NewError(model.KindIO, "chunk dir", eris.Wrapf(err, "chunk: mkdir %s", dir))
	}
	names := Names(stem, tiles, ext)
	byIndex := make(map[int]string, len(tiles))
	for i, t := range tiles {
		byIndex[t.Index] = filepath.Join(dir, names[i])
	}
	return &FileSinks{Dir: dir, Names: names, Header: hdr, byIndex: byIndex}, nil
}

// Path returns the file path for a tile index.
func (f *FileSinks) Path(index int) string {
	return f.byIndex[index]
}

// Factory returns a SinkFactory bound to these names.
func (f *FileSinks) Factory() SinkFactory {
	return func(desc model.ChunkDescriptor) (pointio.PointSink, error) {
		path, ok := f.byIndex[desc.Index]
		if !ok {
			return nil, model.Errorf(model.KindConfig, "chunk sink", "unknown tile index %d", desc.Index)
		}
		return pointio.Create(path, f.Header)
	}
}

// Written returns the paths of tiles that received at least one point.
func (f *FileSinks) Written(tiles []model.ChunkDescriptor, res *RouteResult) []string {
	var out []string
	for i, t := range tiles {
		if res != nil && i < len(res.PerTile) && res.PerTile[i] > 0 {
			out = append(out, f.byIndex[t.Index])
		}
	}
	return out
}
