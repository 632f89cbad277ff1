package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pointraster/internal/config"
	"github.com/sells-group/pointraster/internal/pipeline"
)

var (
	chunkSize    string
	chunkOut     string
	chunkWorkers int
)

var chunkCmd = &cobra.Command{
	Use:   "chunk <input>",
	Short: "Split a point file into tiles no larger than --size",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		spec, err := config.ParseTileSize(chunkSize)
		if err != nil {
			return err
		}
		cfg.Chunk.Enabled = true
		cfg.Chunk.MaxWidth, cfg.Chunk.MaxHeight = spec.MaxWidth, spec.MaxHeight
		if cmd.Flags().Changed("workers") {
			cfg.Chunk.Workers = chunkWorkers
		}
		out := chunkOut
		if out == "" {
			out = cfg.Pipeline.OutputDir
		}

		path, err := fetcherFor().Resolve(ctx, args[0])
		if err != nil {
			return err
		}

		set, err := pipeline.New(cfg, nil, nil, nil).Chunk(ctx, path, out)
		if err != nil {
			return eris.Wrap(err, "chunk")
		}
		formatChunkSet(os.Stdout, set)
		return nil
	},
}

func init() {
	chunkCmd.Flags().StringVar(&chunkSize, "size", "", "maximum tile size as WxH, e.g. 50x64.17 (required)")
	chunkCmd.Flags().StringVarP(&chunkOut, "out", "o", "", "directory for chunk files (default pipeline.output_dir)")
	chunkCmd.Flags().IntVar(&chunkWorkers, "workers", 1, "sink writer shards")
	_ = chunkCmd.MarkFlagRequired("size")
	rootCmd.AddCommand(chunkCmd)
}

// formatChunkSet writes the routing totals and chunk files to w.
func formatChunkSet(out io.Writer, set *pipeline.ChunkSet) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Tiles:\t%d\n", len(set.Tiles))
	_, _ = fmt.Fprintf(w, "Points:\t%d\n", set.Route.Total)
	_, _ = fmt.Fprintf(w, "Routed:\t%d\n", set.Route.Routed)
	_, _ = fmt.Fprintf(w, "Skipped:\t%d\n", set.Route.Skipped)
	for _, p := range set.Paths() {
		_, _ = fmt.Fprintf(w, "  %s\n", p)
	}
	_ = w.Flush()
}
