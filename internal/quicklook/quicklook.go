// Package quicklook renders preview images of rasters and Z distributions.
package quicklook

import (
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/sells-group/pointraster/internal/model"
	"github.com/sells-group/pointraster/internal/raster"
)

const (
	paletteColors = 255
	defaultBins   = 100
)

// Grid adapts a north-up raster to plotter.GridXYZ. The plotter expects
// ascending Y, so grid row 0 is the southernmost raster row.
type Grid struct {
	R *raster.Raster
}

// Dims implements plotter.GridXYZ.
func (g Grid) Dims() (c, r int) { return g.R.Cols, g.R.Rows }

// Z implements plotter.GridXYZ.
func (g Grid) Z(c, r int) float64 { return g.R.At(g.R.Rows-1-r, c) }

// X implements plotter.GridXYZ.
func (g Grid) X(c int) float64 {
	x, _ := g.R.CellCenter(0, c)
	return x
}

// Y implements plotter.GridXYZ.
func (g Grid) Y(r int) float64 {
	_, y := g.R.CellCenter(g.R.Rows-1-r, 0)
	return y
}

// RasterPNG writes a heat map of r to path. NoData cells are transparent.
func RasterPNG(path string, r *raster.Raster, title string) error {
	lo, hi, ok := r.MinMax()
	if !ok {
		return model.Errorf(model.KindInput, "quicklook: raster", "%s has no data cells", title)
	}
	if lo == hi {
		hi = lo + 1
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"

	hm := plotter.NewHeatMap(Grid{R: r}, moreland.SmoothBlueRed().Palette(paletteColors))
	hm.Min, hm.Max = lo, hi
	hm.NaN = color.Transparent
	hm.Rasterized = true
	p.Add(hm)

	return save(p, path)
}

// FrequencyPNG writes a histogram of z values to path. bins <= 0 selects 100.
func FrequencyPNG(path string, z []float64, bins int, title string) error {
	vals := make(plotter.Values, 0, len(z))
	for _, v := range z {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return model.Errorf(model.KindInput, "quicklook: frequency", "no finite Z values")
	}
	if bins <= 0 {
		bins = defaultBins
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Z (m NAP)"
	p.Y.Label.Text = "Number of points"

	h, err := plotter.NewHist(vals, bins)
	if err != nil {
		return eris.Wrap(err, "quicklook: histogram")
	}
	p.Add(h)

	return save(p, path)
}

func save(p *plot.Plot, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return model.NewError(model.KindIO, "quicklook: save", eris.Wrap(err, "create dir"))
	}
	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return model.NewError(model.KindIO, "quicklook: save", eris.Wrapf(err, "write %s", path))
	}
	return nil
}
