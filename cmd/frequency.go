package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pointraster/internal/pipeline"
)

var frequencyPlot string

var frequencyCmd = &cobra.Command{
	Use:   "frequency <input>",
	Short: "Plot the Z frequency around a probe point and print its mode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		fc := cfg.Frequency
		fs := cmd.Flags()
		if fs.Changed("x") {
			fc.X, _ = fs.GetFloat64("x")
		}
		if fs.Changed("y") {
			fc.Y, _ = fs.GetFloat64("y")
		}
		if fs.Changed("radius") {
			fc.Radius, _ = fs.GetFloat64("radius")
		}
		if fs.Changed("bins") {
			fc.Bins, _ = fs.GetInt("bins")
		}

		path, err := fetcherFor().Resolve(ctx, args[0])
		if err != nil {
			return err
		}
		res, err := pipeline.Frequency(ctx, path, fc, frequencyPlot)
		if err != nil {
			return eris.Wrap(err, "frequency")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	frequencyCmd.Flags().Float64("x", 0, "probe X (default frequency.x)")
	frequencyCmd.Flags().Float64("y", 0, "probe Y (default frequency.y)")
	frequencyCmd.Flags().Float64("radius", 0, "probe radius (default frequency.radius)")
	frequencyCmd.Flags().Int("bins", 0, "histogram bins (default frequency.bins)")
	frequencyCmd.Flags().StringVar(&frequencyPlot, "plot", "", "write the histogram PNG here")
	rootCmd.AddCommand(frequencyCmd)
}
