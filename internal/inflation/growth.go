// Package inflation implements the price inflation index computations:
// growth extraction, daily aggregation and compounding, and nearest-prior
// alignment. All functions are pure over their inputs; no I/O.
package inflation

import (
	"context"
	"math"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/derickschaefer/shelfindex/internal/model"
)

// yearLength is the length of a year used to annualize growth.
const yearLength = time.Duration(365.25 * 24 * float64(time.Hour))

// ─── Grouping ─────────────────────────────────────────────────────────────────

// VariantSeries is one variant's observations in ascending time order.
type VariantSeries struct {
	VariantID string
	Obs       []model.Observation
}

// GroupByVariant partitions obs by VariantID. Groups are returned sorted by
// ID and each group is stable-sorted by ObservedAt, so unsorted input and
// map iteration order never leak into results.
func GroupByVariant(obs []model.Observation) []VariantSeries {
	byID := make(map[string][]model.Observation)
	for _, o := range obs {
		byID[o.VariantID] = append(byID[o.VariantID], o)
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]VariantSeries, len(ids))
	for i, id := range ids {
		group := byID[id]
		sort.SliceStable(group, func(a, b int) bool {
			return group[a].ObservedAt.Before(group[b].ObservedAt)
		})
		out[i] = VariantSeries{VariantID: id, Obs: group}
	}
	return out
}

// ─── Growth Extraction ────────────────────────────────────────────────────────

// Growth computes the sample between two consecutive observations.
// ok is false when the pair is unusable: non-positive starting price,
// zero or negative elapsed time, or a non-finite result.
func Growth(from, to model.Observation) (model.GrowthSample, bool) {
	if from.Price <= 0 {
		return model.GrowthSample{}, false
	}
	years := float64(to.ObservedAt.Sub(from.ObservedAt)) / float64(yearLength)
	if years <= 0 {
		return model.GrowthSample{}, false
	}
	ratio := to.Price/from.Price - 1
	rate := ratio / years
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return model.GrowthSample{}, false
	}
	return model.GrowthSample{
		VariantID:      from.VariantID,
		From:           from.ObservedAt,
		To:             to.ObservedAt,
		Ratio:          ratio,
		AnnualizedRate: rate,
	}, true
}

// scanSeries walks one sorted series and emits a sample per usable pair.
func scanSeries(vs VariantSeries) []model.GrowthSample {
	if len(vs.Obs) < 2 {
		return nil
	}
	out := make([]model.GrowthSample, 0, len(vs.Obs)-1)
	for i := 1; i < len(vs.Obs); i++ {
		if s, ok := Growth(vs.Obs[i-1], vs.Obs[i]); ok {
			out = append(out, s)
		}
	}
	return out
}

// Extract emits growth samples for every variant. Variants are scanned in
// parallel on at most workers goroutines (workers <= 0 uses NumCPU); each
// goroutine writes only its own slot. Output is ordered by variant ID then
// by To.
func Extract(ctx context.Context, groups []VariantSeries, workers int) ([]model.GrowthSample, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	slots := make([][]model.GrowthSample, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range groups {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slots[i] = scanSeries(groups[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, s := range slots {
		total += len(s)
	}
	out := make([]model.GrowthSample, 0, total)
	for _, s := range slots {
		out = append(out, s...)
	}
	return out, nil
}
