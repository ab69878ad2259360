package inflation

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/derickschaefer/shelfindex/internal/model"
)

// daysPerYear converts an annualized rate into a daily factor.
const daysPerYear = 365.0

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// ─── Daily Aggregation ────────────────────────────────────────────────────────

// DailyRates buckets samples by the UTC day of To and averages the
// annualized rates in each bucket. Days without samples are absent.
// Sums are accumulated in input order, so a deterministic input order gives
// bit-identical output.
func DailyRates(samples []model.GrowthSample) []model.DailyRate {
	type acc struct {
		sum float64
		n   int
	}
	buckets := make(map[time.Time]*acc)
	for _, s := range samples {
		d := Day(s.To)
		a, ok := buckets[d]
		if !ok {
			a = &acc{}
			buckets[d] = a
		}
		a.sum += s.AnnualizedRate
		a.n++
	}

	out := make([]model.DailyRate, 0, len(buckets))
	for d, a := range buckets {
		out = append(out, model.DailyRate{
			Date:               d,
			MeanAnnualizedRate: a.sum / float64(a.n),
			Samples:            a.n,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// ─── Compounding ──────────────────────────────────────────────────────────────

// Compound walks rates in date order from a value of 1.0 at baseline and
// emits one point per rate dated strictly after the baseline day.
// Rates on or before the baseline are skipped; a negative daily factor is
// clamped to zero. If the running product leaves the float range, the
// series stops at the last finite point. All three cases are reported as
// warnings.
func Compound(rates []model.DailyRate, baseline time.Time) ([]model.IndexPoint, []string) {
	base := Day(baseline)
	out := make([]model.IndexPoint, 0, len(rates))
	var warnings []string

	skipped, clamped, dropped := 0, 0, 0
	var overflowAt time.Time
	value := 1.0
	for i, r := range rates {
		if !r.Date.After(base) {
			skipped++
			continue
		}
		factor := 1 + r.MeanAnnualizedRate/daysPerYear
		if factor < 0 {
			factor = 0
			clamped++
		}
		value *= factor
		if math.IsInf(value, 0) || math.IsNaN(value) {
			overflowAt = r.Date
			dropped = len(rates) - i
			break
		}
		out = append(out, model.IndexPoint{Time: r.Date, Value: value})
	}

	if skipped > 0 {
		warnings = append(warnings, fmt.Sprintf("%d daily rate(s) on or before baseline %s ignored",
			skipped, base.Format("2006-01-02")))
	}
	if clamped > 0 {
		warnings = append(warnings, fmt.Sprintf("%d daily factor(s) below zero clamped to 0", clamped))
	}
	if dropped > 0 {
		warnings = append(warnings, fmt.Sprintf("index overflowed on %s; %d point(s) from there on dropped",
			overflowAt.Format("2006-01-02"), dropped))
	}
	return out, warnings
}
