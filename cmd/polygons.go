package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pointraster/internal/config"
	"github.com/sells-group/pointraster/internal/db"
	"github.com/sells-group/pointraster/internal/model"
	"github.com/sells-group/pointraster/internal/pipeline"
	"github.com/sells-group/pointraster/internal/polygons"
)

var polygonsCmd = &cobra.Command{
	Use:   "polygons",
	Short: "Fetch water polygons or load them into PostGIS",
}

// -- polygons fetch --

var polygonsFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch polygons for a bounding box and write them as GeoJSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		raw, _ := cmd.Flags().GetString("bbox")
		bbox, err := parseBBox(raw)
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")
		if s, _ := cmd.Flags().GetString("source"); s != "" {
			cfg.Polygons.Source = s
		}
		if cfg.Polygons.Source == config.SourceNone || cfg.Polygons.Source == "" {
			cfg.Polygons.Source = config.SourcePDOK
		}

		src, closeSrc, err := pipeline.NewSource(ctx, cfg.Polygons, cfg.Pipeline.TempDir)
		if err != nil {
			return err
		}
		defer closeSrc()

		polys, err := src.Polygons(ctx, bbox)
		if err != nil {
			return eris.Wrap(err, "polygons fetch")
		}
		polys = polygons.Clip(polys, bbox)
		if err := polygons.WriteGeoJSON(out, polys, src.Name()); err != nil {
			return err
		}

		zap.L().Info("polygons written",
			zap.String("source", src.Name()),
			zap.Int("polygons", len(polys)),
			zap.String("out", out),
		)
		_, _ = fmt.Fprintf(os.Stdout, "%d polygons from %s written to %s\n", len(polys), src.Name(), out)
		return nil
	},
}

// -- polygons load --

var polygonsLoadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Bulk-load a polygon file into the PostGIS table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cfg.Polygons.DatabaseURL == "" {
			return model.Errorf(model.KindConfig, "polygons load", "polygons.database_url is required (POINTRASTER_POLYGONS_DATABASE_URL)")
		}
		firstID, _ := cmd.Flags().GetInt64("first-id")

		polys, err := polygons.NewFile(args[0]).Polygons(ctx, model.BoundingBox{})
		if err != nil {
			return err
		}

		pool, err := db.Connect(ctx, cfg.Polygons.DatabaseURL, db.PoolConfig{})
		if err != nil {
			return eris.Wrap(err, "polygons load: connect")
		}
		defer pool.Close()

		pg := polygons.NewPostGIS(pool, cfg.Polygons.Table, cfg.Polygons.SRID)
		if err := pg.EnsureTable(ctx); err != nil {
			return err
		}
		n, err := pg.Load(ctx, filepath.Base(args[0]), firstID, polys)
		if err != nil {
			return eris.Wrap(err, "polygons load")
		}

		_, _ = fmt.Fprintf(os.Stdout, "%d polygons loaded into %s\n", n, cfg.Polygons.Table)
		return nil
	},
}

func init() {
	polygonsFetchCmd.Flags().String("bbox", "", "bounding box as xmin,ymin,xmax,ymax (required)")
	polygonsFetchCmd.Flags().String("out", "polygons.geojson", "output GeoJSON file")
	polygonsFetchCmd.Flags().String("source", "", "polygon source (default polygons.source, or pdok)")
	_ = polygonsFetchCmd.MarkFlagRequired("bbox")

	polygonsLoadCmd.Flags().Int64("first-id", 1, "id of the first inserted row")

	polygonsCmd.AddCommand(polygonsFetchCmd)
	polygonsCmd.AddCommand(polygonsLoadCmd)
	rootCmd.AddCommand(polygonsCmd)
}

// parseBBox parses "xmin,ymin,xmax,ymax".
func parseBBox(s string) (model.BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return model.BoundingBox{}, model.Errorf(model.KindConfig, "bbox", "bbox %q must be xmin,ymin,xmax,ymax", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return model.BoundingBox{}, model.NewError(model.KindConfig, "bbox", eris.Wrapf(err, "parse %q", p))
		}
		v[i] = f
	}
	b := model.BoundingBox{XMin: v[0], YMin: v[1], XMax: v[2], YMax: v[3]}
	if err := b.Validate(); err != nil {
		return model.BoundingBox{}, err
	}
	return b, nil
}
