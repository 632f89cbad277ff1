package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pointraster/internal/pipeline"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <output> <raster>...",
	Short: "Mosaic aligned rasters, averaging overlapping cells",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		noData, err := cfg.Raster.NoDataValue()
		if err != nil {
			return err
		}
		merged, err := pipeline.MergeFiles(args[1:], args[0], noData)
		if err != nil {
			return eris.Wrap(err, "merge")
		}
		_, _ = fmt.Fprintf(os.Stdout, "%s: %d rows x %d cols, %d valid cells\n",
			args[0], merged.Rows, merged.Cols, merged.Valid())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}
