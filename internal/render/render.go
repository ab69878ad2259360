// Package render converts Result values into human-readable or machine-parseable
// output. Each format is a separate function; the top-level Render dispatcher
// selects based on the format string.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/derickschaefer/shelfindex/internal/model"
	"github.com/derickschaefer/shelfindex/internal/pipeline"
	"github.com/olekukonko/tablewriter"
)

// Format constants matching --format flag values.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
	FormatTSV   = "tsv"
	FormatMD    = "md"
)

// ValidFormat reports whether f is a known --format value.
func ValidFormat(f string) bool {
	switch f {
	case FormatTable, FormatJSON, FormatJSONL, FormatCSV, FormatTSV, FormatMD:
		return true
	}
	return false
}

// Render writes result to w in the specified format.
func Render(w io.Writer, result *model.Result, format string) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, result)
	case FormatJSONL:
		return renderJSONL(w, result)
	case FormatCSV:
		return renderDelimited(w, result, ',')
	case FormatTSV:
		return renderDelimited(w, result, '\t')
	case FormatMD:
		return renderMarkdown(w, result)
	default:
		return renderTable(w, result)
	}
}

// RenderTo writes to stdout by default; if path is non-empty, writes to file.
func RenderTo(path string, result *model.Result, format string) error {
	if path == "" {
		return Render(os.Stdout, result, format)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()
	return Render(f, result, format)
}

// ─── JSON ─────────────────────────────────────────────────────────────────────

func renderJSON(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// ─── JSONL ────────────────────────────────────────────────────────────────────

// pointRow is one index point as a JSONL record.
type pointRow struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

func renderJSONL(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	switch data := result.Data.(type) {
	case *model.IndexTable:
		for _, r := range data.Rows {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	case *model.IndexChart:
		for i := range data.Labels {
			if err := enc.Encode(pointRow{Date: data.Labels[i], Value: data.Values[i]}); err != nil {
				return err
			}
		}
		return nil
	case []model.PriceRecord:
		return pipeline.WriteRecords(w, data)
	case []model.VariantSummary:
		for _, v := range data {
			if err := enc.Encode(v); err != nil {
				return err
			}
		}
		return nil
	default:
		return enc.Encode(result.Data)
	}
}

// ─── Table ────────────────────────────────────────────────────────────────────

func newTable(w io.Writer, header []string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)
	return tw
}

func renderTable(w io.Writer, result *model.Result) error {
	switch data := result.Data.(type) {
	case *model.IndexTable:
		return renderIndexTable(w, data)
	case *model.IndexChart:
		return renderIndexChartTable(w, data)
	case []model.VariantSummary:
		return renderVariantsTable(w, data)
	case []model.PriceRecord:
		return renderRecordsTable(w, data)
	case *model.SourceStats:
		return renderSourceStatsTable(w, data)
	default:
		// Fallback: JSON
		return renderJSON(w, result)
	}
}

func renderIndexTable(w io.Writer, t *model.IndexTable) error {
	if t.Baseline != "" {
		fmt.Fprintf(w, "Index (%s), baseline %s = 1.000\n", t.Strategy, t.Baseline)
	}
	tw := newTable(w, []string{"DATE", "INDEX"})
	tw.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	for _, r := range t.Rows {
		tw.Append([]string{r.Date, r.Value})
	}
	tw.Render()
	return nil
}

func renderIndexChartTable(w io.Writer, c *model.IndexChart) error {
	if c.Baseline != "" {
		fmt.Fprintf(w, "Index (%s), baseline %s = 1.0\n", c.Strategy, c.Baseline)
	}
	tw := newTable(w, []string{"LABEL", "VALUE"})
	tw.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	for i := range c.Labels {
		tw.Append([]string{c.Labels[i], formatValue(c.Values[i])})
	}
	tw.Render()
	return nil
}

func renderVariantsTable(w io.Writer, vs []model.VariantSummary) error {
	tw := newTable(w, []string{"SELLER", "SKU", "CATALOG ID", "NAME", "OBS", "FIRST", "LAST", "LAST PRICE"})
	tw.SetColWidth(40)
	for _, v := range vs {
		tw.Append([]string{
			v.Variant.Seller,
			v.Variant.SKU,
			v.Variant.CatalogID,
			truncate(v.Variant.Name, 40),
			fmt.Sprintf("%d", v.Observations),
			formatDate(v.First),
			formatDate(v.Last),
			formatValue(v.LastPrice),
		})
	}
	tw.Render()
	return nil
}

func renderRecordsTable(w io.Writer, records []model.PriceRecord) error {
	tw := newTable(w, []string{"OBSERVED AT", "SELLER", "SKU", "NAME", "PRICE"})
	tw.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT,
	})
	for _, r := range records {
		tw.Append([]string{
			r.ObservedAt.UTC().Format(time.RFC3339),
			r.Variant.Seller,
			r.Variant.SKU,
			truncate(r.Variant.Name, 40),
			formatValue(r.Price),
		})
	}
	tw.Render()
	return nil
}

func renderSourceStatsTable(w io.Writer, s *model.SourceStats) error {
	tw := newTable(w, []string{"FIELD", "VALUE"})
	for _, r := range sourceStatsRows(s) {
		tw.Append(r)
	}
	tw.Render()
	return nil
}

func sourceStatsRows(s *model.SourceStats) [][]string {
	return [][]string{
		{"total", fmt.Sprintf("%d", s.Total)},
		{"unique", fmt.Sprintf("%d", s.Unique)},
		{"outdated", fmt.Sprintf("%d", s.Outdated)},
		{"not_yet_scraped", fmt.Sprintf("%d", s.NotYetScraped)},
	}
}

// ─── CSV / TSV ────────────────────────────────────────────────────────────────

func renderDelimited(w io.Writer, result *model.Result, sep rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep

	switch data := result.Data.(type) {
	case *model.IndexTable:
		_ = cw.Write([]string{"date", "value"})
		for _, r := range data.Rows {
			_ = cw.Write([]string{r.Date, r.Value})
		}
	case *model.IndexChart:
		_ = cw.Write([]string{"label", "value"})
		for i := range data.Labels {
			_ = cw.Write([]string{data.Labels[i], formatValue(data.Values[i])})
		}
	case []model.PriceRecord:
		_ = cw.Write([]string{"observed_at", "catalog_id", "seller", "sku", "name", "price"})
		for _, r := range data {
			_ = cw.Write([]string{
				r.ObservedAt.UTC().Format(time.RFC3339),
				r.Variant.CatalogID, r.Variant.Seller, r.Variant.SKU, r.Variant.Name,
				formatValue(r.Price),
			})
		}
	case []model.VariantSummary:
		_ = cw.Write([]string{"catalog_id", "seller", "sku", "name", "observations", "first", "last", "last_price"})
		for _, v := range data {
			_ = cw.Write([]string{
				v.Variant.CatalogID, v.Variant.Seller, v.Variant.SKU, v.Variant.Name,
				fmt.Sprintf("%d", v.Observations),
				formatDate(v.First), formatDate(v.Last),
				formatValue(v.LastPrice),
			})
		}
	case *model.SourceStats:
		_ = cw.Write([]string{"field", "value"})
		for _, r := range sourceStatsRows(data) {
			_ = cw.Write(r)
		}
	default:
		// Fallback: serialize as JSON on a single line
		b, _ := json.Marshal(result.Data)
		_ = cw.Write([]string{string(b)})
	}

	cw.Flush()
	return cw.Error()
}

// ─── Markdown ─────────────────────────────────────────────────────────────────

func renderMarkdown(w io.Writer, result *model.Result) error {
	switch data := result.Data.(type) {
	case *model.IndexTable:
		fmt.Fprintf(w, "| DATE | INDEX |\n|------|-------|\n")
		for _, r := range data.Rows {
			fmt.Fprintf(w, "| %s | %s |\n", r.Date, r.Value)
		}
		return nil
	case *model.IndexChart:
		fmt.Fprintf(w, "| LABEL | VALUE |\n|-------|-------|\n")
		for i := range data.Labels {
			fmt.Fprintf(w, "| %s | %s |\n", data.Labels[i], formatValue(data.Values[i]))
		}
		return nil
	case []model.VariantSummary:
		fmt.Fprintf(w, "| SELLER | SKU | NAME | OBS | LAST PRICE |\n|----|----|----|----|----|\n")
		for _, v := range data {
			fmt.Fprintf(w, "| %s | %s | %s | %d | %s |\n",
				mdEscape(v.Variant.Seller), mdEscape(v.Variant.SKU),
				mdEscape(truncate(v.Variant.Name, 50)), v.Observations, formatValue(v.LastPrice))
		}
		return nil
	default:
		return renderJSON(w, result)
	}
}

// ─── Warnings / Stats Footer ─────────────────────────────────────────────────

// PrintFooter writes warnings and stats to w when verbose mode is on.
func PrintFooter(w io.Writer, result *model.Result, verbose bool) {
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "⚠  %s\n", warn)
	}
	if verbose {
		fmt.Fprintf(w, "\n[%s • %d items • %d variants • %dms]\n",
			result.GeneratedAt.Format(time.RFC3339),
			result.Stats.Items,
			result.Stats.Variants,
			result.Stats.DurationMs,
		)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// formatValue formats a price or raw index value for display.
// Always shows at least one decimal place (e.g. 4.0, not 4).
// Trims unnecessary trailing zeros beyond the first (e.g. 3.400000 → 3.4).
func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "."
	}
	s := strings.TrimRight(fmt.Sprintf("%.6f", v), "0")
	if strings.HasSuffix(s, ".") {
		s += "0" // "4." → "4.0"
	}
	return s
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(DateLayout)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
