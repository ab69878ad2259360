package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/shelfindex/internal/analyze"
	"github.com/derickschaefer/shelfindex/internal/chart"
	"github.com/derickschaefer/shelfindex/internal/engine"
	"github.com/derickschaefer/shelfindex/internal/model"
	"github.com/derickschaefer/shelfindex/internal/util"
)

var indexFlags struct {
	Strategy    string
	Granularity string
	Mode        string
	Name        string
	Identity    string
	Baseline    string
	Steps       int
	Fill        bool
	After       string
	Before      string
	Summary     bool
	Plot        bool
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Compute the price inflation index",
	Long: `Compute an inflation index over every product whose name contains --name
(case-insensitive; empty = all products).

The index is 1.0 at the baseline day, which defaults to the day of the
earliest matching observation. The baseline itself is not emitted as a point.

Output is a chart payload (labels + raw values) by default, or a table of
(date, value rounded to 3 decimals) with --mode table.`,
	Example: `  shelfindex index --name milk
  shelfindex index --name milk --mode table --granularity week
  shelfindex index --strategy nearest --granularity month --baseline 2024-01-01
  shelfindex index --name bread --identity catalog --fill --summary
  shelfindex index --format jsonl | shelfindex analyze trend`,
	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.Config.Validate(); err != nil {
			return err
		}

		q, mode, err := buildQuery(deps.Config.Strategy, deps.Config.Granularity, deps.Config.Identity)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		src, err := deps.Source(ctx, "")
		if err != nil {
			return err
		}
		series, err := deps.Engine(src).Run(ctx, q)
		if err != nil {
			return err
		}

		kind, data := engine.Present(series, mode)
		result := newResult("index", kind, data, len(series.Points), started)
		result.Warnings = series.Warnings
		result.Stats.Variants = series.Variants

		if err := emit(cmd.OutOrStdout(), cmd.ErrOrStderr(), result, resolveFormat(deps.Config.Format), deps.Config.Verbose); err != nil {
			return err
		}
		if deps.Config.Quiet {
			return nil
		}
		if series.IsEmpty() && indexFlags.Name != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "No observations matched %q.\n", indexFlags.Name)
		}
		if indexFlags.Summary {
			printIndexSummary(cmd.ErrOrStderr(), series.Points)
		}
		if indexFlags.Plot && len(series.Points) >= 2 {
			title := fmt.Sprintf("%s index", series.Strategy)
			if indexFlags.Name != "" {
				title = fmt.Sprintf("%s · %s", title, indexFlags.Name)
			}
			return chart.Plot(cmd.ErrOrStderr(), series.Points, chart.PlotOptions{Title: title})
		}
		return nil
	},
}

// buildQuery turns the index flags, falling back to configured defaults,
// into an engine query and a presentation mode.
func buildQuery(cfgStrategy, cfgGranularity, cfgIdentity string) (engine.Query, model.Mode, error) {
	var q engine.Query

	strategy := indexFlags.Strategy
	if strategy == "" {
		strategy = cfgStrategy
	}
	q.Strategy = model.StrategyName(strategy)

	gran := indexFlags.Granularity
	if gran == "" {
		gran = cfgGranularity
	}
	g, err := model.ParseGranularity(gran)
	if err != nil {
		return q, "", err
	}
	q.Granularity = g

	mode, err := model.ParseMode(indexFlags.Mode)
	if err != nil {
		return q, "", err
	}

	q.Identity = indexFlags.Identity
	if q.Identity == "" {
		q.Identity = cfgIdentity
	}
	if _, err := model.ParseIdentity(q.Identity); err != nil {
		return q, "", err
	}

	if indexFlags.Steps < 0 {
		return q, "", fmt.Errorf("--steps must not be negative")
	}
	q.Steps = indexFlags.Steps
	q.NameFilter = indexFlags.Name
	q.FillForward = indexFlags.Fill

	if q.Baseline, err = parseDateFlag("baseline", indexFlags.Baseline); err != nil {
		return q, "", err
	}
	if q.After, err = parseDateFlag("after", indexFlags.After); err != nil {
		return q, "", err
	}
	if q.Before, err = parseDateFlag("before", indexFlags.Before); err != nil {
		return q, "", err
	}
	if !q.After.IsZero() && !q.Before.IsZero() && q.Before.Before(q.After) {
		return q, "", fmt.Errorf("--before %s is earlier than --after %s",
			util.FormatDate(q.Before), util.FormatDate(q.After))
	}
	// --before names the last day kept; the window bound is exclusive.
	if !q.Before.IsZero() {
		q.Before = q.Before.AddDate(0, 0, 1)
	}
	return q, mode, nil
}

// printIndexSummary writes descriptive statistics and a linear trend.
func printIndexSummary(w io.Writer, points []model.IndexPoint) {
	if len(points) == 0 {
		return
	}
	s := analyze.Summarize(points)
	rows := [][]string{
		{"points", fmt.Sprintf("%d", s.Count)},
		{"span", fmt.Sprintf("%s to %s", util.FormatDate(s.From), util.FormatDate(s.To))},
		{"first", fmtStat(s.First)},
		{"last", fmtStat(s.Last)},
		{"min", fmtStat(s.Min)},
		{"max", fmtStat(s.Max)},
		{"change_pct", fmtStatPct(s.ChangePct)},
		{"annualized", fmtStatPct(s.AnnualizedPct)},
	}
	if tr, err := analyze.Trend(points, analyze.TrendLinear); err == nil {
		rows = append(rows,
			[]string{"trend", tr.Direction},
			[]string{"slope_per_year", fmt.Sprintf("%.4f", tr.SlopePerYear)},
		)
	}
	fmt.Fprintln(w)
	printKVTable(w, rows)
}

func init() {
	rootCmd.AddCommand(indexCmd)

	f := indexCmd.Flags()
	f.StringVar(&indexFlags.Strategy, "strategy", "", "alignment strategy: compound|nearest (default: compound)")
	f.StringVar(&indexFlags.Granularity, "granularity", "", "checkpoint spacing: day|week|month (default: day)")
	f.StringVar(&indexFlags.Mode, "mode", "chart", "presentation: chart|table")
	f.StringVar(&indexFlags.Name, "name", "", "case-insensitive product name filter")
	f.StringVar(&indexFlags.Identity, "identity", "", "variant key: seller-sku|catalog (default: seller-sku)")
	f.StringVar(&indexFlags.Baseline, "baseline", "", "baseline day YYYY-MM-DD (default: earliest observation)")
	f.IntVar(&indexFlags.Steps, "steps", 0, "nearest: number of checkpoints (0 = whole observation window)")
	f.BoolVar(&indexFlags.Fill, "fill", false, "compound: carry values forward onto every granularity step")
	f.StringVar(&indexFlags.After, "after", "", "only emit points on or after YYYY-MM-DD")
	f.StringVar(&indexFlags.Before, "before", "", "only emit points on or before YYYY-MM-DD")
	f.BoolVar(&indexFlags.Summary, "summary", false, "print summary statistics after the output")
	f.BoolVar(&indexFlags.Plot, "plot", false, "draw an ASCII chart of the index after the output")

	_ = indexCmd.RegisterFlagCompletionFunc("strategy", fixedChoices("compound", "nearest"))
	_ = indexCmd.RegisterFlagCompletionFunc("granularity", fixedChoices("day", "week", "month"))
	_ = indexCmd.RegisterFlagCompletionFunc("mode", fixedChoices("chart", "table"))
	_ = indexCmd.RegisterFlagCompletionFunc("identity", fixedChoices("seller-sku", "catalog"))
}
