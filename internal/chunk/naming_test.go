package chunk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pointraster/internal/model"
	"github.com/sells-group/pointraster/internal/pointio"
)

func TestStem(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "C_25GN1", Stem("/data/in/C_25GN1.las"))
	assert.Equal(t, "cloud", Stem("cloud"))
}

func TestNameUsesLowerLeftCorner(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "tile_155000_463001.las", Name("tile", box(155000.2, 463000.6, 155500, 463500), ".las"))
	assert.Equal(t, "tile_2_-3.las", Name("tile", box(2.5, -3.4, 4, 0), ".las"))
}

func TestNamesCollisions(t *testing.T) {
	t.Parallel()

	tiles := Describe([]model.BoundingBox{
		box(0, 0, 0.3, 1),
		box(0.3, 0, 0.6, 1),
		box(0.6, 0, 0.9, 1),
		box(10, 0, 11, 1),
	})
	names := Names("c", tiles, ".las")
	assert.Equal(t, []string{"c_0_0_0.las", "c_0_0_1.las", "c_1_0.las", "c_10_0.las"}, names)
	assert.Equal(t, names, Names("c", tiles, ".las"))
}

func TestFileSinksWritesOnlyNonEmptyTiles(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "chunks")
	tiles := twoTiles()
	fs, err := NewFileSinks(dir, "cloud", ".csv", tiles, pointio.Header{})
	require.NoError(t, err)

	pts := []model.Point{{X: 1, Y: 1, Z: 3}, {X: 2, Y: 2, Z: 4}}
	res, err := newTestRouter().Route(t.Context(), pointio.NewSliceSource(pts, 1), tiles, fs.Factory())
	require.NoError(t, err)

	written := fs.Written(tiles, res)
	require.Equal(t, []string{filepath.Join(dir, "cloud_0_0.csv")}, written)

	_, err = os.Stat(fs.Path(1))
	assert.True(t, os.IsNotExist(err))

	it, err := pointio.Open(written[0], 10)
	require.NoError(t, err)
	defer it.Close() //nolint:errcheck
	got, err := pointio.ReadAll(t.Context(), it)
	require.NoError(t, err)
	assert.Equal(t, pts, got)
}
