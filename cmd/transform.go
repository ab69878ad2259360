package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/shelfindex/internal/model"
	"github.com/derickschaefer/shelfindex/internal/pipeline"
	"github.com/derickschaefer/shelfindex/internal/render"
	"github.com/derickschaefer/shelfindex/internal/transform"
)

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Transform an index series (reads JSONL from stdin)",
	Long: `Transform operators read JSONL index points from stdin and write JSONL
to stdout, so they can be chained:

  shelfindex index --name milk --format jsonl | shelfindex transform fill --granularity week
  shelfindex index --format jsonl | shelfindex transform rebase --base 100 | shelfindex chart plot`,
}

// ─── transform fill ───────────────────────────────────────────────────────────

var transformFillGranularity string

var transformFillCmd = &cobra.Command{
	Use:   "fill",
	Short: "Forward-fill a sparse series onto a regular grid",
	Example: `  shelfindex index --format jsonl | shelfindex transform fill
  shelfindex index --format jsonl | shelfindex transform fill --granularity month`,
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := model.ParseGranularity(transformFillGranularity)
		if err != nil {
			return err
		}
		points, err := pipeline.ReadPoints(cmd.InOrStdin())
		if err != nil {
			return err
		}
		return writeTransformOutput(cmd, "transform fill", transform.FillForward(points, g))
	},
}

// ─── transform window ─────────────────────────────────────────────────────────

var (
	transformWindowAfter  string
	transformWindowBefore string
)

var transformWindowCmd = &cobra.Command{
	Use:     "window",
	Short:   "Keep points with after <= date < before",
	Example: `  shelfindex index --format jsonl | shelfindex transform window --after 2024-01-01 --before 2025-01-01`,
	RunE: func(cmd *cobra.Command, args []string) error {
		after, err := parseDateFlag("after", transformWindowAfter)
		if err != nil {
			return err
		}
		before, err := parseDateFlag("before", transformWindowBefore)
		if err != nil {
			return err
		}
		points, err := pipeline.ReadPoints(cmd.InOrStdin())
		if err != nil {
			return err
		}
		out := transform.Window(points, transform.WindowOptions{After: after, Before: before})
		return writeTransformOutput(cmd, "transform window", out)
	},
}

// ─── transform rebase ─────────────────────────────────────────────────────────

var (
	transformRebaseBase   float64
	transformRebaseAnchor string
)

var transformRebaseCmd = &cobra.Command{
	Use:   "rebase",
	Short: "Scale the series so the anchor date equals --base",
	Long: `Rescales every point so the value at --anchor equals --base. Without
--anchor the first point is used, so "--base 100" turns a factor series
into a familiar 100-based index.`,
	Example: `  shelfindex index --format jsonl | shelfindex transform rebase --base 100
  shelfindex index --format jsonl | shelfindex transform rebase --anchor 2024-06-01`,
	RunE: func(cmd *cobra.Command, args []string) error {
		anchor, err := parseDateFlag("anchor", transformRebaseAnchor)
		if err != nil {
			return err
		}
		points, err := pipeline.ReadPoints(cmd.InOrStdin())
		if err != nil {
			return err
		}
		if anchor.IsZero() {
			anchor = points[0].Time
		}
		out, err := transform.Rebase(points, transformRebaseBase, anchor)
		if err != nil {
			return err
		}
		return writeTransformOutput(cmd, "transform rebase", out)
	},
}

// ─── transform round ──────────────────────────────────────────────────────────

var transformRoundPlaces int

var transformRoundCmd = &cobra.Command{
	Use:     "round",
	Short:   "Round every value to N decimal places",
	Example: `  shelfindex index --format jsonl | shelfindex transform round --places 2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if transformRoundPlaces < 0 {
			return fmt.Errorf("--places must be >= 0")
		}
		points, err := pipeline.ReadPoints(cmd.InOrStdin())
		if err != nil {
			return err
		}
		out := make([]model.IndexPoint, len(points))
		for i, p := range points {
			out[i] = model.IndexPoint{Time: p.Time, Value: transform.Round(p.Value, transformRoundPlaces)}
		}
		return writeTransformOutput(cmd, "transform round", out)
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(transformCmd)
	transformCmd.AddCommand(transformFillCmd)
	transformCmd.AddCommand(transformWindowCmd)
	transformCmd.AddCommand(transformRebaseCmd)
	transformCmd.AddCommand(transformRoundCmd)

	transformFillCmd.Flags().StringVar(&transformFillGranularity, "granularity", "day", "grid spacing: day|week|month")
	_ = transformFillCmd.RegisterFlagCompletionFunc("granularity", fixedChoices("day", "week", "month"))
	transformWindowCmd.Flags().StringVar(&transformWindowAfter, "after", "", "keep points on or after this date (YYYY-MM-DD)")
	transformWindowCmd.Flags().StringVar(&transformWindowBefore, "before", "", "keep points before this date (YYYY-MM-DD)")
	transformRebaseCmd.Flags().Float64Var(&transformRebaseBase, "base", 100, "value the anchor point is scaled to")
	transformRebaseCmd.Flags().StringVar(&transformRebaseAnchor, "anchor", "", "anchor date (default: first point)")
	transformRoundCmd.Flags().IntVar(&transformRoundPlaces, "places", 3, "decimal places")
}

// writeTransformOutput writes JSONL when piped or when --format jsonl is set,
// and a table when stdout is a terminal.
func writeTransformOutput(cmd *cobra.Command, command string, points []model.IndexPoint) error {
	format := globalFlags.Format
	if format == "" {
		format = render.FormatJSONL
		if globalFlags.Out == "" && cmd.OutOrStdout() == os.Stdout && pipeline.IsTTY(os.Stdout) {
			format = render.FormatTable
		}
	}

	if format == render.FormatJSONL {
		w, closeFn, err := outputWriter(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if err := pipeline.WritePoints(w, points); err != nil {
			closeFn()
			return err
		}
		return closeFn()
	}

	data := &model.IndexChart{ChartData: render.BuildChart(points)}
	result := newResult(command, model.KindIndexChart, data, len(points), time.Now())
	return emit(cmd.OutOrStdout(), cmd.ErrOrStderr(), result, format, globalFlags.Verbose)
}
