package inflation_test

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/derickschaefer/shelfindex/internal/inflation"
	"github.com/derickschaefer/shelfindex/internal/model"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

var day0 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

// at returns day0 plus n days.
func at(n int) time.Time { return day0.AddDate(0, 0, n) }

// ob builds one observation for variant id at day n.
func ob(id string, n int, price float64) model.Observation {
	return model.Observation{VariantID: id, Price: price, ObservedAt: at(n)}
}

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func mustNoNaN(t *testing.T, points []model.IndexPoint) {
	t.Helper()
	for i, p := range points {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) || p.Value < 0 {
			t.Fatalf("point %d has invalid value %g", i, p.Value)
		}
	}
}

// scenarioAB is variant A 10→12 and variant B 20→20 over ten days.
func scenarioAB() []model.Observation {
	return []model.Observation{
		ob("A", 0, 10), ob("A", 10, 12),
		ob("B", 0, 20), ob("B", 10, 20),
	}
}

// ─── Grouping ─────────────────────────────────────────────────────────────────

func TestGroupByVariantSortsDefensively(t *testing.T) {
	obs := []model.Observation{
		ob("B", 5, 2), ob("A", 3, 1), ob("B", 1, 3), ob("A", 0, 4),
	}
	groups := inflation.GroupByVariant(obs)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].VariantID != "A" || groups[1].VariantID != "B" {
		t.Errorf("groups not sorted by ID: %s, %s", groups[0].VariantID, groups[1].VariantID)
	}
	for _, g := range groups {
		for i := 1; i < len(g.Obs); i++ {
			if g.Obs[i].ObservedAt.Before(g.Obs[i-1].ObservedAt) {
				t.Errorf("%s: observations not sorted at %d", g.VariantID, i)
			}
		}
	}
}

// ─── Growth ───────────────────────────────────────────────────────────────────

func TestGrowthScenarioA(t *testing.T) {
	s, ok := inflation.Growth(ob("A", 0, 10), ob("A", 10, 12))
	if !ok {
		t.Fatal("expected a sample")
	}
	if !approxEqual(s.Ratio, 0.2, 1e-12) {
		t.Errorf("ratio: expected 0.2, got %g", s.Ratio)
	}
	// 0.2 / (10 / 365.25)
	if !approxEqual(s.AnnualizedRate, 7.305, 1e-9) {
		t.Errorf("annualized: expected 7.305, got %g", s.AnnualizedRate)
	}
	if !s.To.After(s.From) {
		t.Error("To must be after From")
	}
}

func TestGrowthSkipsDegeneratePairs(t *testing.T) {
	cases := []struct {
		name     string
		from, to model.Observation
	}{
		{"zero start price", ob("A", 0, 0), ob("A", 1, 5)},
		{"negative start price", ob("A", 0, -1), ob("A", 1, 5)},
		{"duplicate timestamp", ob("A", 3, 5), ob("A", 3, 6)},
		{"reversed timestamps", ob("A", 4, 5), ob("A", 3, 6)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := inflation.Growth(tc.from, tc.to); ok {
				t.Errorf("expected pair to be skipped")
			}
		})
	}
}

func TestExtractEmitsCountMinusOne(t *testing.T) {
	var obs []model.Observation
	counts := map[string]int{"A": 5, "B": 2, "C": 9}
	for id, n := range counts {
		for i := 0; i < n; i++ {
			obs = append(obs, ob(id, i*3, 10+float64(i)))
		}
	}
	samples, err := inflation.Extract(context.Background(), inflation.GroupByVariant(obs), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	perVariant := make(map[string]int)
	seen := make(map[string]bool)
	for _, s := range samples {
		perVariant[s.VariantID]++
		key := s.VariantID + s.To.String()
		if seen[key] {
			t.Errorf("duplicate sample %s", key)
		}
		seen[key] = true
	}
	for id, n := range counts {
		if perVariant[id] != n-1 {
			t.Errorf("%s: expected %d samples, got %d", id, n-1, perVariant[id])
		}
	}
}

func TestExtractSingleObservationYieldsNothing(t *testing.T) {
	samples, err := inflation.Extract(context.Background(),
		inflation.GroupByVariant([]model.Observation{ob("A", 0, 10)}), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("expected no samples, got %d", len(samples))
	}
}

func TestExtractDuplicateTimestampsAfterSort(t *testing.T) {
	// Two readings share day 2: that pair is dropped, the rest survive.
	obs := []model.Observation{ob("A", 2, 11), ob("A", 0, 10), ob("A", 2, 12), ob("A", 4, 13)}
	samples, err := inflation.Extract(context.Background(), inflation.GroupByVariant(obs), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
}

func TestExtractHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := inflation.Extract(ctx, inflation.GroupByVariant(scenarioAB()), 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// ─── Daily Aggregation & Compounding ──────────────────────────────────────────

func TestDailyRatesMeanPerDay(t *testing.T) {
	samples := []model.GrowthSample{
		{VariantID: "A", From: at(0), To: at(10), AnnualizedRate: 2},
		{VariantID: "B", From: at(0), To: at(10).Add(3 * time.Hour), AnnualizedRate: 4},
		{VariantID: "A", From: at(10), To: at(12), AnnualizedRate: 1},
	}
	rates := inflation.DailyRates(samples)
	if len(rates) != 2 {
		t.Fatalf("expected 2 days, got %d", len(rates))
	}
	if !rates[0].Date.Before(rates[1].Date) {
		t.Error("rates not in date order")
	}
	if rates[0].MeanAnnualizedRate != 3 || rates[0].Samples != 2 {
		t.Errorf("day 10: expected mean 3 over 2 samples, got %g over %d",
			rates[0].MeanAnnualizedRate, rates[0].Samples)
	}
	if rates[1].MeanAnnualizedRate != 1 {
		t.Errorf("day 12: expected mean 1, got %g", rates[1].MeanAnnualizedRate)
	}
}

func TestCompoundRunningProduct(t *testing.T) {
	rates := []model.DailyRate{
		{Date: inflation.Day(at(1)), MeanAnnualizedRate: 36.5},
		{Date: inflation.Day(at(3)), MeanAnnualizedRate: -36.5},
	}
	points, warnings := inflation.Compound(rates, at(0))
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if !approxEqual(points[0].Value, 1.1, 1e-12) {
		t.Errorf("points[0]: expected 1.1, got %g", points[0].Value)
	}
	if !approxEqual(points[1].Value, 0.99, 1e-12) {
		t.Errorf("points[1]: expected 0.99, got %g", points[1].Value)
	}
}

func TestCompoundSkipsRatesOnOrBeforeBaseline(t *testing.T) {
	rates := []model.DailyRate{
		{Date: inflation.Day(at(0)), MeanAnnualizedRate: 100},
		{Date: inflation.Day(at(2)), MeanAnnualizedRate: 0},
	}
	points, warnings := inflation.Compound(rates, at(0))
	if len(points) != 1 || points[0].Value != 1.0 {
		t.Fatalf("expected single point of 1.0, got %+v", points)
	}
	if len(warnings) != 1 {
		t.Errorf("expected one warning, got %v", warnings)
	}
}

func TestCompoundClampsNegativeFactor(t *testing.T) {
	rates := []model.DailyRate{{Date: inflation.Day(at(1)), MeanAnnualizedRate: -1000}}
	points, warnings := inflation.Compound(rates, at(0))
	mustNoNaN(t, points)
	if points[0].Value != 0 {
		t.Errorf("expected clamped value 0, got %g", points[0].Value)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "clamped") {
		t.Errorf("expected clamp warning, got %v", warnings)
	}
}

func TestCompoundStopsAtOverflow(t *testing.T) {
	rates := []model.DailyRate{
		{Date: inflation.Day(at(1)), MeanAnnualizedRate: 1e300},
		{Date: inflation.Day(at(2)), MeanAnnualizedRate: 1e300},
		{Date: inflation.Day(at(3)), MeanAnnualizedRate: -1e300},
		{Date: inflation.Day(at(4)), MeanAnnualizedRate: 0},
	}
	points, warnings := inflation.Compound(rates, at(0))
	mustNoNaN(t, points)
	if len(points) != 1 {
		t.Fatalf("expected only the finite day-1 point, got %d", len(points))
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "3 point(s)") {
		t.Errorf("expected overflow warning, got %v", warnings)
	}
}

func TestCompoundingMillisecondPairsStayFinite(t *testing.T) {
	var obs []model.Observation
	for n := 1; n <= 80; n++ {
		obs = append(obs,
			model.Observation{VariantID: "A", Price: 1, ObservedAt: at(n)},
			model.Observation{VariantID: "A", Price: 2, ObservedAt: at(n).Add(time.Millisecond)},
		)
	}
	out, err := inflation.Compounding{}.Compute(context.Background(), obs, inflation.Params{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mustNoNaN(t, out.Points)
	if len(out.Points) == 0 || len(out.Points) >= 79 {
		t.Errorf("expected the series to stop early, got %d points", len(out.Points))
	}
	found := false
	for _, w := range out.Warnings {
		if strings.Contains(w, "overflowed") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected overflow warning, got %v", out.Warnings)
	}
}

func TestContributorsExcludesNonPositiveFirstPrice(t *testing.T) {
	groups := inflation.GroupByVariant([]model.Observation{
		ob("neg", 0, -5), ob("neg", 1, 5),
		ob("zero", 0, 0), ob("zero", 1, 5),
		ob("ok", 0, 5), ob("ok", 1, 6),
	})
	usable, excluded := inflation.Contributors(groups)
	if len(usable) != 1 || usable[0].VariantID != "ok" {
		t.Errorf("expected only 'ok' to contribute, got %+v", usable)
	}
	if !reflect.DeepEqual(excluded, []string{"neg", "zero"}) {
		t.Errorf("excluded: got %v", excluded)
	}
}

// ─── Strategies ───────────────────────────────────────────────────────────────

func TestCompoundingScenarioAB(t *testing.T) {
	out, err := inflation.Compounding{}.Compute(context.Background(), scenarioAB(), inflation.Params{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Baseline.Equal(inflation.Day(at(0))) {
		t.Errorf("baseline: expected %s, got %s", inflation.Day(at(0)), out.Baseline)
	}
	if len(out.Points) != 1 {
		t.Fatalf("expected exactly one point, got %d", len(out.Points))
	}
	p := out.Points[0]
	if !p.Time.Equal(inflation.Day(at(10))) {
		t.Errorf("point date: expected day 10, got %s", p.Time)
	}
	// mean 3.6525 → 1 + 3.6525/365
	if !approxEqual(p.Value, 1.010007, 1e-6) {
		t.Errorf("value: expected ≈1.010, got %g", p.Value)
	}
	if out.Samples != 2 || out.Variants != 2 {
		t.Errorf("expected 2 samples over 2 variants, got %d over %d", out.Samples, out.Variants)
	}
}

func TestCompoundingStrictlyOrdered(t *testing.T) {
	var obs []model.Observation
	for i := 0; i < 40; i++ {
		obs = append(obs, ob("A", i, 10+float64(i%7)), ob("B", i*2, 5+float64(i%3)))
	}
	out, err := inflation.Compounding{}.Compute(context.Background(), obs, inflation.Params{Workers: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mustNoNaN(t, out.Points)
	for i := 1; i < len(out.Points); i++ {
		if !out.Points[i].Time.After(out.Points[i-1].Time) {
			t.Fatalf("points not strictly ordered at %d", i)
		}
	}
}

func TestCompoundingDeterministic(t *testing.T) {
	var obs []model.Observation
	for i := 0; i < 60; i++ {
		for _, id := range []string{"A", "B", "C", "D"} {
			obs = append(obs, ob(id, i+len(id), 1+float64((i*7+len(id))%11)))
		}
	}
	first, err := inflation.Compounding{}.Compute(context.Background(), obs, inflation.Params{Workers: 8})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for run := 0; run < 5; run++ {
		again, err := inflation.Compounding{}.Compute(context.Background(), obs, inflation.Params{Workers: 3})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(first.Points, again.Points) {
			t.Fatalf("run %d produced a different series", run)
		}
	}
}

func TestCompoundingEmptyInput(t *testing.T) {
	out, err := inflation.Compounding{}.Compute(context.Background(), nil, inflation.Params{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Points) != 0 {
		t.Errorf("expected empty series, got %d points", len(out.Points))
	}
}

func TestCompoundingSingleObservations(t *testing.T) {
	obs := []model.Observation{ob("A", 0, 10), ob("B", 3, 4)}
	out, err := inflation.Compounding{}.Compute(context.Background(), obs, inflation.Params{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Points) != 0 || out.Samples != 0 {
		t.Errorf("expected empty series, got %+v", out)
	}
}

// ─── Nearest Prior ────────────────────────────────────────────────────────────

func TestLookupIndex(t *testing.T) {
	series := []model.Observation{ob("A", 0, 1), ob("A", 5, 2), ob("A", 10, 3)}
	cases := []struct {
		name   string
		target time.Time
		want   int
	}{
		{"before all clamps to first", at(-3), 0},
		{"exact first", at(0), 0},
		{"between uses prior", at(7), 1},
		{"exact middle", at(5), 1},
		{"after all uses last", at(30), 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := inflation.LookupIndex(series, tc.target); got != tc.want {
				t.Errorf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestMeanRatioEmptyIsError(t *testing.T) {
	if _, err := inflation.MeanRatio(nil); !errors.Is(err, inflation.ErrEmptyContributors) {
		t.Errorf("expected ErrEmptyContributors, got %v", err)
	}
}

func TestAlignClampedCheckpointIsOne(t *testing.T) {
	groups := inflation.GroupByVariant([]model.Observation{ob("A", 5, 10), ob("A", 10, 20)})
	cps := []model.Checkpoint{{Step: 0, Time: at(0)}}
	points, _, err := inflation.Align(context.Background(), groups, cps, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 1 || points[0].Value != 1.0 {
		t.Errorf("expected ratio 1.0, got %+v", points)
	}
}

func TestAlignExcludesZeroBaseline(t *testing.T) {
	obs := []model.Observation{
		ob("A", 0, 10), ob("A", 10, 15),
		ob("C", 0, 0), ob("C", 10, 5),
	}
	cps := []model.Checkpoint{{Step: 0, Time: at(0)}, {Step: 1, Time: at(10)}}
	points, warnings, err := inflation.Align(context.Background(), inflation.GroupByVariant(obs), cps, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mustNoNaN(t, points)
	if len(points) != 2 || !approxEqual(points[1].Value, 1.5, 1e-12) {
		t.Errorf("expected [1.0 1.5] from A only, got %+v", points)
	}
	if len(warnings) == 0 || !strings.Contains(warnings[0], "C") {
		t.Errorf("expected exclusion warning naming C, got %v", warnings)
	}
}

func TestAlignAllZeroBaselineOmitsPoints(t *testing.T) {
	obs := []model.Observation{ob("C", 0, 0), ob("C", 4, 2)}
	cps := []model.Checkpoint{{Step: 0, Time: at(0)}, {Step: 1, Time: at(4)}}
	points, warnings, err := inflation.Align(context.Background(), inflation.GroupByVariant(obs), cps, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 0 {
		t.Errorf("expected no points, got %+v", points)
	}
	if len(warnings) != 2 {
		t.Errorf("expected exclusion and gap warnings, got %v", warnings)
	}
}

func TestNearestPriorMonthGranularity(t *testing.T) {
	var obs []model.Observation
	for d := 0; d <= 100; d += 4 {
		obs = append(obs, ob("A", d, 10+float64(d)/10), ob("B", d+1, 20))
	}
	out, err := inflation.NearestPrior{}.Compute(context.Background(), obs,
		inflation.Params{Granularity: model.GranularityMonth})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	limit := int(math.Ceil(100.0/30.0)) + 1
	if len(out.Points) == 0 || len(out.Points) > limit {
		t.Fatalf("expected 1..%d checkpoints, got %d", limit, len(out.Points))
	}
	if out.Points[0].Value != 1.0 {
		t.Errorf("first checkpoint: expected 1.0, got %g", out.Points[0].Value)
	}
	for i := 1; i < len(out.Points); i++ {
		gap := out.Points[i].Time.Sub(out.Points[i-1].Time)
		if gap != 30*24*time.Hour {
			t.Errorf("checkpoint spacing %d: expected 30 days, got %s", i, gap)
		}
	}
}

func TestNearestPriorScenarioC(t *testing.T) {
	obs := []model.Observation{
		ob("C", 0, 0), ob("C", 6, 3),
		ob("D", 0, 4), ob("D", 6, 5),
	}
	out, err := inflation.NearestPrior{}.Compute(context.Background(), obs,
		inflation.Params{Granularity: model.GranularityWeek, Steps: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mustNoNaN(t, out.Points)
	if len(out.Points) != 2 || !approxEqual(out.Points[1].Value, 1.25, 1e-12) {
		t.Errorf("expected D-only series [1 1.25], got %+v", out.Points)
	}
}

func TestForName(t *testing.T) {
	for _, name := range []string{"", "compound", "NEAREST"} {
		if _, err := inflation.ForName(name); err != nil {
			t.Errorf("%q: unexpected error %v", name, err)
		}
	}
	if _, err := inflation.ForName("median"); !errors.Is(err, inflation.ErrUnknownStrategy) {
		t.Errorf("expected ErrUnknownStrategy, got %v", err)
	}
}
