package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pointraster/internal/model"
	"github.com/sells-group/pointraster/internal/monitoring"
	"github.com/sells-group/pointraster/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the run manifest",
	Long:  "Commands for listing runs and viewing their summaries and chunk rasters.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pipeline runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		input, _ := cmd.Flags().GetString("input")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(status),
			Input:  input,
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs chunks --

var runsChunksCmd = &cobra.Command{
	Use:   "chunks <run-id>",
	Short: "List the chunk rasters of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		chunks, err := st.ListChunks(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs chunks")
		}
		if len(chunks) == 0 {
			fmt.Fprintln(os.Stderr, "No chunks recorded.")
			return nil
		}

		formatChunks(os.Stdout, chunks)
		return nil
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize run health over a lookback window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		hours, _ := cmd.Flags().GetInt("hours")
		if hours <= 0 {
			hours = cfg.Monitoring.LookbackWindowHours
		}

		snap, err := monitoring.NewCollector(st).Collect(ctx, hours)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatStats(os.Stdout, snap, monitoring.NewAlerter(cfg.Monitoring).Evaluate(snap))
		return nil
	},
}

func init() {
	runsStatsCmd.Flags().Int("hours", 0, "lookback window in hours (default from config)")

	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, failed)")
	runsListCmd.Flags().String("input", "", "filter by input path or URL")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsChunksCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tINPUT\tMODE\tSTATUS\tRASTERS\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-----\t----\t------\t-------\t-------\t--------")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()

		rasters := "-"
		if r.Summary != nil {
			rasters = fmt.Sprint(len(r.Summary.Rasters))
		}

		input := filepath.Base(r.Input)
		if len(input) > 30 {
			input = input[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			input,
			r.Mode,
			r.Status,
			rasters,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatChunks writes one line per chunk to w.
func formatChunks(out io.Writer, chunks []model.ChunkResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "INDEX\tPOINTS\tPOLYGONS\tSIZE\tRASTER\tWARNING")
	for _, c := range chunks {
		raster := c.Raster
		if raster == "" {
			raster = "-"
		}
		_, _ = fmt.Fprintf(w, "%d\t%d\t%d\t%dx%d\t%s\t%s\n",
			c.Index, c.Points, c.Polygons, c.Cols, c.Rows, raster, c.Warning)
	}
	_ = w.Flush()
}

// formatStats writes a metrics snapshot and any threshold breaches to w.
func formatStats(out io.Writer, snap *monitoring.MetricsSnapshot, alerts []monitoring.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\t%dh\n", snap.LookbackHours)
	_, _ = fmt.Fprintf(w, "Runs:\t%d (complete %d, failed %d, running %d)\n",
		snap.RunsTotal, snap.RunsComplete, snap.RunsFailed, snap.RunsRunning)
	_, _ = fmt.Fprintf(w, "Failure rate:\t%.1f%%\n", snap.FailRate*100)
	_, _ = fmt.Fprintf(w, "Points in:\t%d\n", snap.PointsIn)
	_, _ = fmt.Fprintf(w, "Skipped:\t%d (%.2f%%)\n", snap.PointsSkipped, snap.SkipRate*100)
	_, _ = fmt.Fprintf(w, "Rasterized:\t%d\n", snap.PointsRasterized)
	_, _ = fmt.Fprintf(w, "Rasters:\t%d\n", snap.Rasters)
	_, _ = fmt.Fprintf(w, "Degraded runs:\t%d\n", snap.DegradedRuns)
	_ = w.Flush()

	for _, a := range alerts {
		_, _ = fmt.Fprintf(out, "[%s] %s\n", a.Severity, a.Message)
	}
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
