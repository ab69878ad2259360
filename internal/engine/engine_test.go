package engine_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/derickschaefer/shelfindex/internal/engine"
	"github.com/derickschaefer/shelfindex/internal/model"
	"github.com/derickschaefer/shelfindex/internal/source"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

var day0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func rec(seller, sku, gtin, name string, day int, price float64) model.PriceRecord {
	return model.PriceRecord{
		Variant:    model.Variant{CatalogID: gtin, Seller: seller, SKU: sku, Name: name},
		Price:      price,
		ObservedAt: day0.AddDate(0, 0, day),
	}
}

// basket has milk at two sellers plus a loaf of bread.
func basket() source.Static {
	return source.Static{
		rec("shopa", "m1", "0001", "Whole Milk 1L", 0, 10),
		rec("shopa", "m1", "0001", "Whole Milk 1L", 10, 12),
		rec("shopb", "x9", "0001", "Whole Milk 1L", 0, 20),
		rec("shopb", "x9", "0001", "Whole Milk 1L", 10, 20),
		rec("shopa", "b1", "0002", "Rye Bread", 0, 3),
		rec("shopa", "b1", "0002", "Rye Bread", 5, 3.3),
	}
}

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// ─── Run ──────────────────────────────────────────────────────────────────────

func TestRunCompoundScenario(t *testing.T) {
	e := engine.New(basket(), engine.WithWorkers(2))
	series, err := e.Run(context.Background(), engine.Query{NameFilter: "milk"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if series.Strategy != model.StrategyCompound {
		t.Errorf("default strategy: got %s", series.Strategy)
	}
	if series.Variants != 2 {
		t.Errorf("expected 2 variants under seller-sku identity, got %d", series.Variants)
	}
	if len(series.Points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(series.Points))
	}
	if !approxEqual(series.Points[0].Value, 1.010007, 1e-6) {
		t.Errorf("expected ≈1.010, got %g", series.Points[0].Value)
	}
	if series.QueryID == "" {
		t.Error("expected a query ID")
	}
}

func TestRunCatalogIdentityMergesSellers(t *testing.T) {
	e := engine.New(basket())
	series, err := e.Run(context.Background(), engine.Query{
		NameFilter: "milk",
		Identity:   model.IdentityCatalog,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if series.Variants != 1 {
		t.Errorf("expected sellers to merge into 1 variant, got %d", series.Variants)
	}
}

func TestRunEmptyFilterMatch(t *testing.T) {
	e := engine.New(basket())
	series, err := e.Run(context.Background(), engine.Query{NameFilter: "caviar"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !series.IsEmpty() || series.Points == nil {
		t.Errorf("expected empty non-nil points, got %+v", series.Points)
	}
}

func TestRunDropsRecordsWithoutKey(t *testing.T) {
	src := append(basket(), rec("", "", "", "Whole Milk 1L", 3, 11))
	series, err := engine.New(src).Run(context.Background(), engine.Query{NameFilter: "milk"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(series.Warnings) == 0 {
		t.Error("expected a dropped-record warning")
	}
}

func TestRunSourceFailure(t *testing.T) {
	boom := errors.New("connection refused")
	src := source.Func(func(context.Context, string) ([]model.PriceRecord, error) {
		return nil, boom
	})
	_, err := engine.New(src).Run(context.Background(), engine.Query{})
	if !errors.Is(err, source.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected underlying error to be preserved, got %v", err)
	}
}

func TestRunCancelledIsNotSourceFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := source.Func(func(ctx context.Context, _ string) ([]model.PriceRecord, error) {
		return nil, fmt.Errorf("query aborted: %w", ctx.Err())
	})
	_, err := engine.New(src).Run(ctx, engine.Query{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, source.ErrUnavailable) {
		t.Errorf("cancellation should not be reported as unavailable: %v", err)
	}
}

func TestRunUnknownStrategy(t *testing.T) {
	if _, err := engine.New(basket()).Run(context.Background(), engine.Query{Strategy: "median"}); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestRunNearestFirstCheckpointIsOne(t *testing.T) {
	series, err := engine.New(basket()).Run(context.Background(), engine.Query{
		Strategy:    model.StrategyNearest,
		Granularity: model.GranularityWeek,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(series.Points) != 2 {
		t.Fatalf("expected checkpoints at day 0 and 7, got %d", len(series.Points))
	}
	if series.Points[0].Value != 1.0 {
		t.Errorf("first checkpoint: expected 1.0, got %g", series.Points[0].Value)
	}
	// Day 7 sees milk A at 10, milk B at 20, bread at 3.3.
	if !approxEqual(series.Points[1].Value, (1+1+1.1)/3, 1e-12) {
		t.Errorf("day 7: got %g", series.Points[1].Value)
	}
}

func TestRunDeterministic(t *testing.T) {
	e := engine.New(basket(), engine.WithWorkers(4))
	first, err := e.Run(context.Background(), engine.Query{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := e.Run(context.Background(), engine.Query{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(first.Points, again.Points) {
			t.Fatalf("run %d differs", i)
		}
	}
}

func TestRunFillAndWindow(t *testing.T) {
	series, err := engine.New(basket()).Run(context.Background(), engine.Query{FillForward: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Rates land on day 5 and day 10; fill covers 5..10 daily.
	if len(series.Points) != 6 {
		t.Fatalf("expected 6 filled points, got %d", len(series.Points))
	}

	windowed, err := engine.New(basket()).Run(context.Background(), engine.Query{
		After: day0.AddDate(0, 0, 6),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(windowed.Points) != 1 {
		t.Errorf("expected only the day-10 point, got %d", len(windowed.Points))
	}
}

// ─── Present ──────────────────────────────────────────────────────────────────

func TestPresentModes(t *testing.T) {
	series, err := engine.New(basket()).Run(context.Background(), engine.Query{NameFilter: "milk"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	kind, data := engine.Present(series, model.ModeTable)
	tbl, ok := data.(*model.IndexTable)
	if kind != model.KindIndexTable || !ok {
		t.Fatalf("table mode: got kind %s, %T", kind, data)
	}
	if tbl.Rows[0].Date != "2024-03-11" || tbl.Rows[0].Value != "1.010" {
		t.Errorf("unexpected row %+v", tbl.Rows[0])
	}
	if tbl.Baseline != "2024-03-01" {
		t.Errorf("baseline: got %s", tbl.Baseline)
	}

	kind, data = engine.Present(series, model.ModeChart)
	ch, ok := data.(*model.IndexChart)
	if kind != model.KindIndexChart || !ok {
		t.Fatalf("chart mode: got kind %s, %T", kind, data)
	}
	if len(ch.Labels) != 1 || ch.Values[0] != series.Points[0].Value {
		t.Errorf("chart values must be raw: %+v", ch.ChartData)
	}
}
