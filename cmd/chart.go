package cmd

import (
	"github.com/spf13/cobra"

	"github.com/derickschaefer/shelfindex/internal/chart"
	"github.com/derickschaefer/shelfindex/internal/pipeline"
)

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Render an index series as an ASCII chart (reads JSONL from stdin)",
	Long: `Chart commands read JSONL index points from stdin and draw them in the terminal.

  shelfindex index --name milk --format jsonl | shelfindex chart plot
  shelfindex index --format jsonl | shelfindex transform fill | shelfindex chart plot --title "All products"`,
}

// ─── chart plot ──────────────────────────────────────────────────────────────

var (
	chartPlotWidth  int
	chartPlotHeight int
	chartPlotTitle  string
)

var chartPlotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Line chart with labeled axes and a 1.0 guide",
	Long: `Renders a line chart with Y-axis tick labels and the first and last dates
on the X axis. A dotted guide marks 1.0 when it lies inside the plotted range.

Width auto-detects from $COLUMNS (falls back to 80).`,
	Example: `  shelfindex index --format jsonl | shelfindex chart plot
  shelfindex index --name bread --format jsonl | shelfindex chart plot --height 8 --title bread`,
	RunE: func(cmd *cobra.Command, args []string) error {
		points, err := pipeline.ReadPoints(cmd.InOrStdin())
		if err != nil {
			return err
		}
		title := chartPlotTitle
		if title == "" {
			title = "index"
		}
		return chart.Plot(cmd.OutOrStdout(), points, chart.PlotOptions{
			Width:  chartPlotWidth,
			Height: chartPlotHeight,
			Title:  title,
		})
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(chartCmd)
	chartCmd.AddCommand(chartPlotCmd)

	chartPlotCmd.Flags().IntVar(&chartPlotWidth, "width", 0,
		"chart width in characters (default: auto-detect from $COLUMNS, fallback 80)")
	chartPlotCmd.Flags().IntVar(&chartPlotHeight, "height", 12, "chart height in rows")
	chartPlotCmd.Flags().StringVar(&chartPlotTitle, "title", "", "chart title (default: index)")

	chartCmd.SilenceUsage = true
	chartPlotCmd.SilenceUsage = true
}
