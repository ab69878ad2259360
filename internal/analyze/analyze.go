// Package analyze computes presentation hints over an index series:
// descriptive statistics, the implied annual inflation rate, and a fitted
// trend. All functions are pure; no I/O.
package analyze

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/derickschaefer/shelfindex/internal/model"
)

// ─── Summary ──────────────────────────────────────────────────────────────────

// Summary holds descriptive statistics for an index series.
type Summary struct {
	Count     int       `json:"count"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Mean      float64   `json:"mean"`
	Std       float64   `json:"std"`
	Min       float64   `json:"min"`
	Median    float64   `json:"median"`
	Max       float64   `json:"max"`
	First     float64   `json:"first"`
	Last      float64   `json:"last"`
	Change    float64   `json:"change"`     // Last - First
	ChangePct float64   `json:"change_pct"` // (Last-First)/First * 100
	// AnnualizedPct is the constant yearly inflation rate that turns First
	// into Last over the span From..To.
	AnnualizedPct float64 `json:"annualized_pct"`
}

// Summarize computes descriptive statistics over points, which must be in
// ascending time order. NaN values are skipped.
func Summarize(points []model.IndexPoint) Summary {
	var (
		s    Summary
		vals []float64
		kept []model.IndexPoint
	)
	for _, p := range points {
		if math.IsNaN(p.Value) {
			continue
		}
		vals = append(vals, p.Value)
		kept = append(kept, p)
	}
	s.Count = len(vals)
	if len(vals) == 0 {
		nan := math.NaN()
		s.Mean, s.Std, s.Min, s.Median, s.Max = nan, nan, nan, nan, nan
		s.First, s.Last, s.Change, s.ChangePct, s.AnnualizedPct = nan, nan, nan, nan, nan
		return s
	}

	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Mean = sumF(vals) / float64(len(vals))
	s.Std = stddevF(vals, s.Mean)
	s.Median = percentile(sorted, 50)

	first, last := kept[0], kept[len(kept)-1]
	s.From, s.To = first.Time, last.Time
	s.First, s.Last = first.Value, last.Value
	s.Change = s.Last - s.First
	s.ChangePct = math.NaN()
	if s.First != 0 {
		s.ChangePct = s.Change / math.Abs(s.First) * 100
	}
	s.AnnualizedPct = annualized(s.First, s.Last, s.To.Sub(s.From))
	return s
}

// annualized returns the yearly percentage rate r such that
// first * (1 + r/100)^(span in years) == last.
func annualized(first, last float64, span time.Duration) float64 {
	days := span.Hours() / 24
	if first <= 0 || last < 0 || days <= 0 {
		return math.NaN()
	}
	return (math.Pow(last/first, 365.25/days) - 1) * 100
}

// ─── Trend ────────────────────────────────────────────────────────────────────

// TrendMethod selects the regression algorithm.
type TrendMethod string

const (
	TrendLinear   TrendMethod = "linear"
	TrendTheilSen TrendMethod = "theil-sen"
)

// ParseTrendMethod validates a --method value ("" = linear).
func ParseTrendMethod(s string) (TrendMethod, error) {
	switch TrendMethod(s) {
	case "", TrendLinear:
		return TrendLinear, nil
	case TrendTheilSen:
		return TrendTheilSen, nil
	default:
		return "", fmt.Errorf("unknown trend method %q (use linear or theil-sen)", s)
	}
}

// TrendResult holds the output of a trend analysis.
type TrendResult struct {
	Method       TrendMethod `json:"method"`
	Slope        float64     `json:"slope"` // index units per day
	Intercept    float64     `json:"intercept"`
	R2           float64     `json:"r2"`
	Direction    string      `json:"direction"`      // "up", "down", "flat"
	SlopePerYear float64     `json:"slope_per_year"` // slope * 365.25
}

// flatBand is the |slope per year| below which an index counts as flat.
const flatBand = 0.001

// Trend fits a linear trend to points. X values are days since the first
// point. NaN values are excluded.
func Trend(points []model.IndexPoint, method TrendMethod) (TrendResult, error) {
	tr := TrendResult{Method: method}

	var pts []point
	var t0 time.Time
	for _, p := range points {
		if math.IsNaN(p.Value) {
			continue
		}
		if len(pts) == 0 {
			t0 = p.Time
		}
		x := p.Time.Sub(t0).Hours() / 24
		pts = append(pts, point{x, p.Value})
	}
	if len(pts) < 2 {
		return tr, fmt.Errorf("trend: need at least 2 index points, got %d", len(pts))
	}

	switch method {
	case TrendTheilSen:
		tr.Slope = theilSenSlope(pts)
		xMean := meanPts(pts, func(p point) float64 { return p.x })
		yMean := meanPts(pts, func(p point) float64 { return p.y })
		tr.Intercept = yMean - tr.Slope*xMean
	default:
		tr.Method = TrendLinear
		tr.Slope, tr.Intercept = olsRegress(pts)
	}

	tr.R2 = r2(pts, tr.Slope, tr.Intercept)
	tr.SlopePerYear = tr.Slope * 365.25

	switch {
	case tr.SlopePerYear > flatBand:
		tr.Direction = "up"
	case tr.SlopePerYear < -flatBand:
		tr.Direction = "down"
	default:
		tr.Direction = "flat"
	}
	return tr, nil
}

// ─── Math helpers ─────────────────────────────────────────────────────────────

func sumF(vals []float64) float64 {
	var s float64
	for _, v := range vals {
		s += v
	}
	return s
}

func stddevF(vals []float64, m float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	var sq float64
	for _, v := range vals {
		d := v - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(vals)-1))
}

func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	idx := p / 100 * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

type point struct{ x, y float64 }

func olsRegress(pts []point) (slope, intercept float64) {
	n := float64(len(pts))
	var xSum, ySum, xySum, x2Sum float64
	for _, p := range pts {
		xSum += p.x
		ySum += p.y
		xySum += p.x * p.y
		x2Sum += p.x * p.x
	}
	denom := n*x2Sum - xSum*xSum
	if denom == 0 {
		return 0, ySum / n
	}
	slope = (n*xySum - xSum*ySum) / denom
	intercept = (ySum - slope*xSum) / n
	return
}

func theilSenSlope(pts []point) float64 {
	var slopes []float64
	for i := 0; i < len(pts); i++ {
		for j := i + 1; j < len(pts); j++ {
			dx := pts[j].x - pts[i].x
			if dx == 0 {
				continue
			}
			slopes = append(slopes, (pts[j].y-pts[i].y)/dx)
		}
	}
	if len(slopes) == 0 {
		return 0
	}
	sort.Float64s(slopes)
	return percentile(slopes, 50)
}

func r2(pts []point, slope, intercept float64) float64 {
	var yMean float64
	for _, p := range pts {
		yMean += p.y
	}
	yMean /= float64(len(pts))

	var ssTot, ssRes float64
	for _, p := range pts {
		pred := slope*p.x + intercept
		ssTot += (p.y - yMean) * (p.y - yMean)
		ssRes += (p.y - pred) * (p.y - pred)
	}
	if ssTot == 0 {
		return 1
	}
	return 1 - ssRes/ssTot
}

func meanPts(pts []point, f func(point) float64) float64 {
	var s float64
	for _, p := range pts {
		s += f(p)
	}
	return s / float64(len(pts))
}
