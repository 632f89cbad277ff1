package raster

import (
	"math"

	"github.com/sells-group/pointraster/internal/model"
)

// alignTolerance is the largest fractional-pixel offset accepted as aligned.
const alignTolerance = 1e-6

// Merge combines rasters that share pixel size, CRS and lattice into one
// raster covering the union of their extents. Where several inputs hold
// data for a cell the output is their mean; cells with no data anywhere
// stay NoData. Mismatched inputs are rejected, never resampled.
func Merge(rasters []*Raster) (*Raster, error) {
	if len(rasters) == 0 {
		return nil, model.Errorf(model.KindInput, "merge", "no rasters to merge")
	}
	ref := rasters[0]
	if err := checkNorthUp(ref); err != nil {
		return nil, err
	}
	if len(rasters) == 1 {
		return ref.Clone(), nil
	}
	w, h := ref.Transform.PixelWidth, ref.Transform.PixelHeight

	minX, maxY := ref.Transform.OriginX, ref.Transform.OriginY
	maxX := minX + float64(ref.Cols)*w
	minY := maxY + float64(ref.Rows)*h
	for i, r := range rasters[1:] {
		if err := checkNorthUp(r); err != nil {
			return nil, err
		}
		gt := r.Transform
		if !closeTo(gt.PixelWidth, w) || !closeTo(gt.PixelHeight, h) {
			return nil, model.Errorf(model.KindConfig, "merge",
				"raster %d has pixel size %gx%g, want %gx%g", i+1, gt.PixelWidth, gt.PixelHeight, w, h)
		}
		if r.CRS != "" && ref.CRS != "" && r.CRS != ref.CRS {
			return nil, model.Errorf(model.KindConfig, "merge", "raster %d is in %s, want %s", i+1, r.CRS, ref.CRS)
		}
		if !aligned((gt.OriginX-ref.Transform.OriginX)/w) || !aligned((gt.OriginY-ref.Transform.OriginY)/h) {
			return nil, model.Errorf(model.KindConfig, "merge",
				"raster %d origin (%g, %g) is not on the pixel lattice of raster 0", i+1, gt.OriginX, gt.OriginY)
		}
		minX = math.Min(minX, gt.OriginX)
		maxY = math.Max(maxY, gt.OriginY)
		maxX = math.Max(maxX, gt.OriginX+float64(r.Cols)*w)
		minY = math.Min(minY, gt.OriginY+float64(r.Rows)*h)
	}

	cols := int(math.Round((maxX - minX) / w))
	rows := int(math.Round((maxY - minY) / -h))
	crs := ref.CRS
	out := New(rows, cols, GeoTransform{OriginX: minX, PixelWidth: w, OriginY: maxY, PixelHeight: h}, crs)

	sum := make([]float64, rows*cols)
	count := make([]int32, rows*cols)
	for _, r := range rasters {
		colOff := int(math.Round((r.Transform.OriginX - minX) / w))
		rowOff := int(math.Round((r.Transform.OriginY - maxY) / h))
		for row := 0; row < r.Rows; row++ {
			base := (row+rowOff)*cols + colOff
			for col := 0; col < r.Cols; col++ {
				v := r.Values[row*r.Cols+col]
				if IsNoData(v) {
					continue
				}
				sum[base+col] += v
				count[base+col]++
			}
		}
	}
	for i, n := range count {
		if n > 0 {
			out.Values[i] = sum[i] / float64(n)
		}
	}
	return out, nil
}

func checkNorthUp(r *Raster) error {
	gt := r.Transform
	if gt.RowRotation != 0 || gt.ColumnRotation != 0 || !(gt.PixelWidth > 0) || !(gt.PixelHeight < 0) {
		return model.Errorf(model.KindConfig, "merge", "raster is not north-up: %+v", gt)
	}
	if len(r.Values) != r.Rows*r.Cols {
		return model.Errorf(model.KindInput, "merge", "raster has %d values for %dx%d cells", len(r.Values), r.Rows, r.Cols)
	}
	return nil
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b))
}

func aligned(pixels float64) bool {
	return math.Abs(pixels-math.Round(pixels)) <= alignTolerance
}
