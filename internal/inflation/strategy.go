package inflation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/derickschaefer/shelfindex/internal/model"
	"github.com/derickschaefer/shelfindex/internal/transform"
)

// ErrUnknownStrategy is returned by ForName for an unrecognised name.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Params are the per-query knobs shared by all strategies.
type Params struct {
	// Baseline anchors the index at 1.0. Zero means the UTC day of the
	// earliest observation.
	Baseline    time.Time
	Granularity model.Granularity
	// Steps caps the number of checkpoints (nearest only). 0 = cover the
	// whole observation window.
	Steps   int
	Workers int
}

// Outcome is what a strategy computed for one snapshot.
type Outcome struct {
	Baseline time.Time
	Points   []model.IndexPoint
	Variants int
	Samples  int // growth samples (compound) or checkpoints (nearest)
	Warnings []string
}

// Strategy turns a snapshot of observations into an index series.
type Strategy interface {
	Name() model.StrategyName
	Compute(ctx context.Context, obs []model.Observation, p Params) (Outcome, error)
}

// ForName returns the strategy registered under name ("" = compound).
func ForName(name string) (Strategy, error) {
	switch model.StrategyName(strings.ToLower(strings.TrimSpace(name))) {
	case "", model.StrategyCompound:
		return Compounding{}, nil
	case model.StrategyNearest:
		return NearestPrior{}, nil
	default:
		return nil, fmt.Errorf("%w %q (use compound or nearest)", ErrUnknownStrategy, name)
	}
}

// ─── Compounding ──────────────────────────────────────────────────────────────

// Compounding compounds the cross-variant mean daily growth rate from the
// baseline. Points are sparse: only days with at least one sample appear.
type Compounding struct{}

func (Compounding) Name() model.StrategyName { return model.StrategyCompound }

func (Compounding) Compute(ctx context.Context, obs []model.Observation, p Params) (Outcome, error) {
	groups := GroupByVariant(obs)
	out := Outcome{Baseline: resolveBaseline(p.Baseline, groups), Variants: len(groups)}
	if len(groups) == 0 {
		return out, nil
	}

	samples, err := Extract(ctx, groups, p.Workers)
	if err != nil {
		return out, fmt.Errorf("extracting growth: %w", err)
	}
	out.Samples = len(samples)
	if len(samples) == 0 {
		out.Warnings = append(out.Warnings, "no variant has two usable observations")
		return out, nil
	}

	points, warnings := Compound(DailyRates(samples), out.Baseline)
	out.Points = points
	out.Warnings = append(out.Warnings, warnings...)
	return out, nil
}

// ─── Nearest Prior ────────────────────────────────────────────────────────────

// NearestPrior samples each variant at evenly spaced checkpoints using the
// most recent observation at or before the checkpoint, normalizes it against
// the variant's first price and averages across variants.
type NearestPrior struct{}

func (NearestPrior) Name() model.StrategyName { return model.StrategyNearest }

func (NearestPrior) Compute(ctx context.Context, obs []model.Observation, p Params) (Outcome, error) {
	groups := GroupByVariant(obs)
	out := Outcome{Baseline: resolveBaseline(p.Baseline, groups), Variants: len(groups)}
	if len(groups) == 0 {
		return out, nil
	}

	_, last := span(groups)
	grid := transform.Grid(out.Baseline, last, p.Granularity, p.Steps)

	points, warnings, err := Align(ctx, groups, grid, p.Workers)
	if err != nil {
		return out, fmt.Errorf("aligning checkpoints: %w", err)
	}
	out.Samples = len(grid)
	out.Points = points
	out.Warnings = warnings
	return out, nil
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// resolveBaseline returns the explicit baseline day, or the day of the
// earliest observation when none is given.
func resolveBaseline(explicit time.Time, groups []VariantSeries) time.Time {
	if !explicit.IsZero() {
		return Day(explicit)
	}
	first, _ := span(groups)
	if first.IsZero() {
		return time.Time{}
	}
	return Day(first)
}

// span returns the earliest and latest observation times across groups.
func span(groups []VariantSeries) (first, last time.Time) {
	for _, g := range groups {
		if len(g.Obs) == 0 {
			continue
		}
		f, l := g.Obs[0].ObservedAt, g.Obs[len(g.Obs)-1].ObservedAt
		if first.IsZero() || f.Before(first) {
			first = f
		}
		if last.IsZero() || l.After(last) {
			last = l
		}
	}
	return first, last
}
