package rasterio

import (
	"path/filepath"
	"strings"

	"github.com/sells-group/pointraster/internal/model"
	"github.com/sells-group/pointraster/internal/raster"
)

// Format names accepted in configuration.
const (
	FormatGeoTIFF = "gtiff"
	FormatASCII   = "aaigrid"
)

// Extension returns the file extension for a format name.
func Extension(format string) (string, error) {
	switch strings.ToLower(format) {
	case FormatGeoTIFF, "tif", "tiff", "geotiff":
		return ".tif", nil
	case FormatASCII, "asc", "ascii":
		return ".asc", nil
	default:
		return "", model.Errorf(model.KindConfig, "raster format", "unsupported raster format %q", format)
	}
}

// Write stores r at path, choosing the encoding from the extension. noData
// replaces NoData cells; NaN keeps GeoTIFF cells as NaN and uses
// DefaultASCIINoData for ASCII grids.
func Write(path string, r *raster.Raster, noData float64) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		return WriteGeoTIFF(path, r, TIFFOptions{NoData: noData})
	case ".asc":
		return WriteASCIIGrid(path, r, noData)
	default:
		return model.Errorf(model.KindConfig, "write raster", "unsupported raster file %q", path)
	}
}

// Read loads a raster written by Write. ASCII grids get the default CRS.
func Read(path string) (*raster.Raster, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		return ReadGeoTIFF(path)
	case ".asc":
		return ReadASCIIGrid(path, raster.DefaultCRS)
	default:
		return nil, model.Errorf(model.KindInput, "read raster", "unsupported raster file %q", path)
	}
}
