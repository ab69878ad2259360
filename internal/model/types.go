// Package model defines the canonical data types used throughout shelfindex.
// These types are the single source of truth for price records, the derived
// index entities, and the result envelope that every command returns.
package model

import (
	"fmt"
	"strings"
	"time"
)

// ─── Source Types ─────────────────────────────────────────────────────────────

// Variant carries the raw identity fields of a tracked product instance as a
// source delivers them. Which fields form the variant key is decided per
// query by an IdentityFunc.
type Variant struct {
	CatalogID string `json:"catalog_id"`
	Seller    string `json:"seller,omitempty"`
	SKU       string `json:"sku,omitempty"`
	Name      string `json:"name"`
}

// PriceRecord is one timestamped price reading for a variant, exactly as the
// observation source produced it.
type PriceRecord struct {
	Variant    Variant   `json:"variant"`
	Price      float64   `json:"price"`
	ObservedAt time.Time `json:"observed_at"`
}

// Observation is a price reading keyed by the variant ID chosen for the
// current query. Observations are read-only to the engine.
type Observation struct {
	VariantID  string    `json:"variant_id"`
	Price      float64   `json:"price"`
	ObservedAt time.Time `json:"observed_at"`
}

// ─── Derived Types ────────────────────────────────────────────────────────────

// GrowthSample is the relative price change between two consecutive
// observations of one variant, plus its annualized rate.
// Invariant: To is after From.
type GrowthSample struct {
	VariantID      string    `json:"variant_id"`
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	Ratio          float64   `json:"ratio"`
	AnnualizedRate float64   `json:"annualized_rate"`
}

// DailyRate is the cross-variant mean annualized growth rate attributed to
// one UTC calendar day.
type DailyRate struct {
	Date               time.Time `json:"date"`
	MeanAnnualizedRate float64   `json:"mean_annualized_rate"`
	Samples            int       `json:"samples"`
}

// IndexPoint is one value of an index series. Value is never negative,
// NaN or infinite.
type IndexPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Checkpoint is a grid point at Baseline + Step × granularity days.
type Checkpoint struct {
	Step int       `json:"step"`
	Time time.Time `json:"time"`
}

// ─── Query Enums ──────────────────────────────────────────────────────────────

// Granularity selects checkpoint spacing.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// Days returns the day-count multiplier for g: 1, 7 or 30.
func (g Granularity) Days() int {
	switch g {
	case GranularityWeek:
		return 7
	case GranularityMonth:
		return 30
	default:
		return 1
	}
}

// Step returns the checkpoint spacing as a duration.
func (g Granularity) Step() time.Duration {
	return time.Duration(g.Days()) * 24 * time.Hour
}

// ParseGranularity accepts day|week|month (case-insensitive, "" = day).
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "day", "daily", "d":
		return GranularityDay, nil
	case "week", "weekly", "w":
		return GranularityWeek, nil
	case "month", "monthly", "m":
		return GranularityMonth, nil
	default:
		return "", fmt.Errorf("unknown granularity %q (use day, week, month)", s)
	}
}

// Mode selects the presentation payload.
type Mode string

const (
	ModeTable Mode = "table"
	ModeChart Mode = "chart"
)

// ParseMode accepts table|chart ("" = chart).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "chart":
		return ModeChart, nil
	case "table":
		return ModeTable, nil
	default:
		return "", fmt.Errorf("unknown mode %q (use table or chart)", s)
	}
}

// StrategyName identifies an index alignment strategy.
type StrategyName string

const (
	StrategyCompound StrategyName = "compound"
	StrategyNearest  StrategyName = "nearest"
)

// ─── Index Output ─────────────────────────────────────────────────────────────

// IndexSeries is the engine's output before presentation.
// Baseline carries the implicit value 1.0 and is not part of Points.
type IndexSeries struct {
	QueryID     string       `json:"query_id,omitempty"`
	Strategy    StrategyName `json:"strategy"`
	Granularity Granularity  `json:"granularity"`
	Baseline    time.Time    `json:"baseline"`
	Points      []IndexPoint `json:"points"`
	Variants    int          `json:"variants"`
	Samples     int          `json:"samples"`
	Warnings    []string     `json:"warnings,omitempty"`
}

// IsEmpty reports whether the series has no points.
func (s *IndexSeries) IsEmpty() bool {
	return s == nil || len(s.Points) == 0
}

// TableRow is one presented row: ISO date and the value rounded to 3 decimals.
type TableRow struct {
	Date  string `json:"date"`
	Value string `json:"value"`
}

// ChartData is the chart payload: parallel label and raw value arrays in
// ascending date order.
type ChartData struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// IndexTable is the table-mode payload.
type IndexTable struct {
	Strategy StrategyName `json:"strategy"`
	Baseline string       `json:"baseline"`
	Rows     []TableRow   `json:"rows"`
}

// IndexChart is the chart-mode payload.
type IndexChart struct {
	Strategy StrategyName `json:"strategy"`
	Baseline string       `json:"baseline"`
	ChartData
}

// ─── Result Envelope ─────────────────────────────────────────────────────────

// ResultStats carries performance metadata for a command result.
type ResultStats struct {
	DurationMs int64 `json:"duration_ms"`
	Items      int   `json:"items"`
	Variants   int   `json:"variants,omitempty"`
}

// Result is the uniform envelope returned by every command.
// The Data field holds the typed payload; Kind identifies what is in it.
// Renderers switch on Kind to format output appropriately.
type Result struct {
	Kind        string      `json:"kind"`
	GeneratedAt time.Time   `json:"generated_at"`
	Command     string      `json:"command"`
	Data        interface{} `json:"data"`
	Warnings    []string    `json:"warnings,omitempty"`
	Stats       ResultStats `json:"stats"`
}

// Kind constants for Result.Kind.
const (
	KindIndexTable  = "index_table"
	KindIndexChart  = "index_chart"
	KindVariants    = "variants"
	KindRecords     = "records"
	KindSourceStats = "source_stats"
)

// VariantSummary describes one stored variant for listings.
type VariantSummary struct {
	Variant      Variant   `json:"variant"`
	Observations int       `json:"observations"`
	First        time.Time `json:"first"`
	Last         time.Time `json:"last"`
	LastPrice    float64   `json:"last_price"`
}

// SourceStats mirrors the scrape bookkeeping counters of a relational source.
type SourceStats struct {
	Total         int64 `json:"total"`
	Unique        int64 `json:"unique"`
	Outdated      int64 `json:"outdated"`
	NotYetScraped int64 `json:"not_yet_scraped"`
}
