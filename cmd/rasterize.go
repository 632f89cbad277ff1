package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var rasterizeFlags rasterFlags

var rasterizeCmd = &cobra.Command{
	Use:   "rasterize <input>",
	Short: "Filter and rasterize one point file without chunking",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		rasterizeFlags.apply(cmd.Flags(), cfg)
		cfg.Chunk.Enabled = false

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sum, err := env.Pipeline.Run(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "rasterize")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sum.Chunks)
	},
}

func init() {
	rasterizeFlags.register(rasterizeCmd)
	rootCmd.AddCommand(rasterizeCmd)
}
