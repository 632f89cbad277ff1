package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sells-group/pointraster/internal/config"
)

// rasterFlags are the raster and filter settings shared by run and
// rasterize. Only flags set on the command line override the config.
type rasterFlags struct {
	mode       string
	cellSize   float64
	format     string
	outDir     string
	spatial    bool
	zrange     bool
	zmin       float64
	zmax       float64
	centerline string
	buffer     float64
	exportCSV  bool
	quicklook  bool
	source     string
	polygons   string
}

func (f *rasterFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.mode, "mode", "", "aggregation mode: mean, median or mode")
	fs.Float64Var(&f.cellSize, "cell-size", 0, "raster cell size in CRS units")
	fs.StringVar(&f.format, "format", "", "raster format: gtiff or aaigrid")
	fs.StringVarP(&f.outDir, "out", "o", "", "output directory")
	fs.BoolVar(&f.spatial, "spatial", false, "keep only points inside water polygons")
	fs.BoolVar(&f.zrange, "zrange", false, "keep only points with z-min < Z < z-max")
	fs.Float64Var(&f.zmin, "z-min", 0, "lower Z bound (exclusive)")
	fs.Float64Var(&f.zmax, "z-max", 0, "upper Z bound (exclusive)")
	fs.StringVar(&f.centerline, "centerline", "", "line file; keep only points near its lines")
	fs.Float64Var(&f.buffer, "centerline-buffer", 0, "distance kept around centerlines")
	fs.BoolVar(&f.exportCSV, "csv", false, "also export filtered points as CSV")
	fs.BoolVar(&f.quicklook, "quicklook", false, "render a PNG next to each raster")
	fs.StringVar(&f.source, "polygon-source", "", "polygon source: none, file, postgis or pdok")
	fs.StringVar(&f.polygons, "polygons", "", "polygon file for the file source")
}

// apply copies changed flags into c.
func (f *rasterFlags) apply(fs *pflag.FlagSet, c *config.Config) {
	set := func(name string, fn func()) {
		if fs.Changed(name) {
			fn()
		}
	}
	set("mode", func() { c.Raster.Mode = f.mode })
	set("cell-size", func() { c.Raster.CellSize = f.cellSize })
	set("format", func() { c.Raster.Format = f.format })
	set("out", func() { c.Pipeline.OutputDir = f.outDir })
	set("spatial", func() { c.Filter.Spatial = f.spatial })
	set("zrange", func() { c.Filter.ZRange = f.zrange })
	set("z-min", func() { c.Filter.ZMin = f.zmin })
	set("z-max", func() { c.Filter.ZMax = f.zmax })
	set("centerline", func() {
		c.Filter.Centerline = f.centerline != ""
		c.Filter.CenterlinePath = f.centerline
	})
	set("centerline-buffer", func() { c.Filter.CenterlineBuffer = f.buffer })
	set("csv", func() { c.Pipeline.ExportCSV = f.exportCSV })
	set("quicklook", func() { c.Raster.Quicklook = f.quicklook })
	set("polygon-source", func() { c.Polygons.Source = f.source })
	set("polygons", func() {
		c.Polygons.Path = f.polygons
		if !fs.Changed("polygon-source") {
			c.Polygons.Source = config.SourceFile
		}
	})
}
