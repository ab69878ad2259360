package cmd

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/shelfindex/internal/analyze"
	"github.com/derickschaefer/shelfindex/internal/pipeline"
	"github.com/derickschaefer/shelfindex/internal/render"
	"github.com/derickschaefer/shelfindex/internal/util"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze an index series (reads JSONL from stdin)",
	Long: `Analyze operators read JSONL index points ({"date","value"}) from stdin
and print results.

Examples:
  shelfindex index --name milk --format jsonl | shelfindex analyze summary
  shelfindex index --format jsonl | shelfindex transform fill | shelfindex analyze trend`,
}

// ─── analyze summary ─────────────────────────────────────────────────────────

var analyzeSummaryCmd = &cobra.Command{
	Use:     "summary",
	Short:   "Descriptive statistics plus the implied annual inflation rate",
	Example: `  shelfindex index --name milk --format jsonl | shelfindex analyze summary`,
	RunE: func(cmd *cobra.Command, args []string) error {
		points, err := pipeline.ReadPoints(cmd.InOrStdin())
		if err != nil {
			return err
		}
		s := analyze.Summarize(points)

		w, closeFn, err := outputWriter(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer closeFn()
		if resolveFormat("") == render.FormatJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(summaryJSON(s))
		}

		printKVTable(w, [][]string{
			{"count", fmt.Sprintf("%d", s.Count)},
			{"from", util.FormatDate(s.From)},
			{"to", util.FormatDate(s.To)},
			{"mean", fmtStat(s.Mean)},
			{"std", fmtStat(s.Std)},
			{"min", fmtStat(s.Min)},
			{"median", fmtStat(s.Median)},
			{"max", fmtStat(s.Max)},
			{"first", fmtStat(s.First)},
			{"last", fmtStat(s.Last)},
			{"change", fmtStat(s.Change)},
			{"change_pct", fmtStatPct(s.ChangePct)},
			{"annualized", fmtStatPct(s.AnnualizedPct)},
		})
		return nil
	},
}

// ─── analyze trend ────────────────────────────────────────────────────────────

var analyzeTrendMethod string

var analyzeTrendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Fit a linear trend: slope, intercept, R², direction",
	Example: `  shelfindex index --format jsonl | shelfindex analyze trend
  shelfindex index --format jsonl | shelfindex analyze trend --method theil-sen`,
	RunE: func(cmd *cobra.Command, args []string) error {
		method, err := analyze.ParseTrendMethod(analyzeTrendMethod)
		if err != nil {
			return err
		}
		points, err := pipeline.ReadPoints(cmd.InOrStdin())
		if err != nil {
			return err
		}
		tr, err := analyze.Trend(points, method)
		if err != nil {
			return err
		}

		w, closeFn, err := outputWriter(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer closeFn()
		if resolveFormat("") == render.FormatJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(tr)
		}

		printKVTable(w, [][]string{
			{"method", string(tr.Method)},
			{"direction", tr.Direction},
			{"slope_per_day", fmt.Sprintf("%.6f", tr.Slope)},
			{"slope_per_year", fmt.Sprintf("%.4f", tr.SlopePerYear)},
			{"intercept", fmt.Sprintf("%.4f", tr.Intercept)},
			{"r2", fmt.Sprintf("%.4f", tr.R2)},
		})
		return nil
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.AddCommand(analyzeSummaryCmd)
	analyzeCmd.AddCommand(analyzeTrendCmd)

	analyzeTrendCmd.Flags().StringVar(&analyzeTrendMethod, "method", "linear",
		"regression method: linear|theil-sen")
	_ = analyzeTrendCmd.RegisterFlagCompletionFunc("method", fixedChoices("linear", "theil-sen"))
}

// summaryJSON maps a Summary to JSON, with undefined statistics as null.
// encoding/json rejects NaN.
func summaryJSON(s analyze.Summary) map[string]interface{} {
	num := func(v float64) interface{} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return v
	}
	return map[string]interface{}{
		"count":          s.Count,
		"from":           util.FormatDate(s.From),
		"to":             util.FormatDate(s.To),
		"mean":           num(s.Mean),
		"std":            num(s.Std),
		"min":            num(s.Min),
		"median":         num(s.Median),
		"max":            num(s.Max),
		"first":          num(s.First),
		"last":           num(s.Last),
		"change":         num(s.Change),
		"change_pct":     num(s.ChangePct),
		"annualized_pct": num(s.AnnualizedPct),
	}
}
