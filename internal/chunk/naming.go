package chunk

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/sells-group/pointraster/internal/model"
)

// Stem returns the base name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Name returns <stem>_<x>_<y><ext> where x and y are the tile's lower-left
// corner rounded half-to-even.
func Name(stem string, b model.BoundingBox, ext string) string {
	return fmt.Sprintf("%s_%d_%d%s", stem, int64(math.RoundToEven(b.XMin)), int64(math.RoundToEven(b.YMin)), ext)
}

// Names returns one file name per tile. Tiles whose rounded corners collide
// get their index appended, so the result is unique and stable for a given
// tile list.
func Names(stem string, tiles []model.ChunkDescriptor, ext string) []string {
	names := make([]string, len(tiles))
	seen := make(map[string]int, len(tiles))
	for i, t := range tiles {
		names[i] = Name(stem, t.Bounds, "")
		seen[names[i]]++
	}
	for i, t := range tiles {
		if seen[names[i]] > 1 {
			names[i] = fmt.Sprintf("%s_%d", names[i], t.Index)
		}
		names[i] += ext
	}
	return names
}
