package inflation

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/derickschaefer/shelfindex/internal/model"
)

// ErrEmptyContributors is returned when a checkpoint has no variant to
// average over.
var ErrEmptyContributors = errors.New("no contributing variants")

// LookupIndex returns the index of the observation at or before target in
// a series sorted by time. An exact match wins; otherwise the most recent
// earlier observation is used. A target before every observation clamps to
// 0. The caller guarantees len(obs) > 0.
func LookupIndex(obs []model.Observation, target time.Time) int {
	i := sort.Search(len(obs), func(k int) bool {
		return !obs[k].ObservedAt.Before(target)
	})
	if i < len(obs) && obs[i].ObservedAt.Equal(target) {
		return i
	}
	if i-1 < 0 {
		return 0
	}
	return i - 1
}

// MeanRatio averages ratios. An empty slice is an error, not NaN.
func MeanRatio(ratios []float64) (float64, error) {
	if len(ratios) == 0 {
		return 0, ErrEmptyContributors
	}
	var sum float64
	for _, r := range ratios {
		sum += r
	}
	return sum / float64(len(ratios)), nil
}

// Contributors returns the groups usable for alignment: at least one
// observation and a positive first price. excluded lists the variant IDs
// dropped for an undefined baseline.
func Contributors(groups []VariantSeries) (usable []VariantSeries, excluded []string) {
	usable = make([]VariantSeries, 0, len(groups))
	for _, g := range groups {
		if len(g.Obs) == 0 {
			continue
		}
		if g.Obs[0].Price <= 0 {
			excluded = append(excluded, g.VariantID)
			continue
		}
		usable = append(usable, g)
	}
	return usable, excluded
}

// Align samples every variant at each checkpoint, normalizes against the
// variant's first observation, and averages across variants. Checkpoints are
// evaluated in parallel; a checkpoint without contributors is omitted and
// reported as a warning.
func Align(ctx context.Context, groups []VariantSeries, checkpoints []model.Checkpoint, workers int) ([]model.IndexPoint, []string, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	usable, excluded := Contributors(groups)

	var warnings []string
	if len(excluded) > 0 {
		warnings = append(warnings, fmt.Sprintf("%d variant(s) excluded for a non-positive starting price: %s",
			len(excluded), previewIDs(excluded, 5)))
	}

	type slot struct {
		value float64
		ok    bool
	}
	slots := make([]slot, len(checkpoints))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range checkpoints {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ratios := make([]float64, 0, len(usable))
			for _, vs := range usable {
				idx := LookupIndex(vs.Obs, checkpoints[i].Time)
				ratios = append(ratios, vs.Obs[idx].Price/vs.Obs[0].Price)
			}
			mean, err := MeanRatio(ratios)
			if errors.Is(err, ErrEmptyContributors) {
				return nil
			}
			if err != nil {
				return err
			}
			slots[i] = slot{value: mean, ok: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	out := make([]model.IndexPoint, 0, len(checkpoints))
	gaps := 0
	for i, s := range slots {
		if !s.ok {
			gaps++
			continue
		}
		out = append(out, model.IndexPoint{Time: checkpoints[i].Time, Value: s.value})
	}
	if gaps > 0 {
		warnings = append(warnings, fmt.Sprintf("%d checkpoint(s) had no contributing variants: %v",
			gaps, ErrEmptyContributors))
	}
	return out, warnings, nil
}

// previewIDs joins up to n IDs, noting how many were left out.
func previewIDs(ids []string, n int) string {
	if len(ids) <= n {
		return fmt.Sprintf("%v", ids)
	}
	return fmt.Sprintf("%v and %d more", ids[:n], len(ids)-n)
}
