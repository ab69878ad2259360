// Package transform implements stateless operators over index series and
// the checkpoint grid that drives nearest-prior alignment. Each operator is
// a pure function; no side effects, no I/O.
package transform

import (
	"fmt"
	"math"
	"time"

	"github.com/derickschaefer/shelfindex/internal/model"
)

// ─── Checkpoint Grid ──────────────────────────────────────────────────────────

// Grid returns evenly spaced checkpoints start + i × g.Days() days.
// With steps > 0 exactly steps checkpoints are produced; otherwise the grid
// runs from start up to and including end. An end before start yields only
// the start checkpoint.
func Grid(start, end time.Time, g model.Granularity, steps int) []model.Checkpoint {
	step := g.Step()
	if steps > 0 {
		out := make([]model.Checkpoint, steps)
		for i := range out {
			out[i] = model.Checkpoint{Step: i, Time: start.Add(time.Duration(i) * step)}
		}
		return out
	}

	var out []model.Checkpoint
	for i := 0; ; i++ {
		t := start.Add(time.Duration(i) * step)
		if i > 0 && t.After(end) {
			break
		}
		out = append(out, model.Checkpoint{Step: i, Time: t})
	}
	return out
}

// ─── Window ───────────────────────────────────────────────────────────────────

// WindowOptions bounds a series by date.
type WindowOptions struct {
	After  time.Time // keep points with time >= After (zero = no lower bound)
	Before time.Time // keep points with time < Before (zero = no upper bound)
}

// Window returns the points inside opts.
func Window(points []model.IndexPoint, opts WindowOptions) []model.IndexPoint {
	out := make([]model.IndexPoint, 0, len(points))
	for _, p := range points {
		if !opts.After.IsZero() && p.Time.Before(opts.After) {
			continue
		}
		if !opts.Before.IsZero() && !p.Time.Before(opts.Before) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ─── Forward Fill ─────────────────────────────────────────────────────────────

// FillForward turns a sparse series into one point every g.Days() days from
// the first point to the last, carrying the last known value across gaps.
// Points already on the grid keep their own value.
func FillForward(points []model.IndexPoint, g model.Granularity) []model.IndexPoint {
	if len(points) < 2 {
		return points
	}
	step := g.Step()
	first, last := points[0].Time, points[len(points)-1].Time

	out := make([]model.IndexPoint, 0, int(last.Sub(first)/step)+1)
	j := 0
	current := points[0].Value
	for t := first; !t.After(last); t = t.Add(step) {
		for j < len(points) && !points[j].Time.After(t) {
			current = points[j].Value
			j++
		}
		out = append(out, model.IndexPoint{Time: t, Value: current})
	}
	if !out[len(out)-1].Time.Equal(last) {
		out = append(out, model.IndexPoint{Time: last, Value: points[len(points)-1].Value})
	}
	return out
}

// ─── Rebase ───────────────────────────────────────────────────────────────────

// Rebase re-scales the series so the value at anchor equals base.
// All other values are scaled proportionally.
func Rebase(points []model.IndexPoint, base float64, anchor time.Time) ([]model.IndexPoint, error) {
	var anchorVal float64
	found := false
	for _, p := range points {
		if sameDay(p.Time, anchor) {
			if p.Value == 0 {
				return nil, fmt.Errorf("rebase: anchor date %s has zero value, cannot rebase",
					anchor.Format("2006-01-02"))
			}
			anchorVal = p.Value
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("rebase: anchor date %s not found in series",
			anchor.Format("2006-01-02"))
	}

	scale := base / anchorVal
	out := make([]model.IndexPoint, len(points))
	for i, p := range points {
		out[i] = model.IndexPoint{Time: p.Time, Value: p.Value * scale}
	}
	return out, nil
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// Round rounds v to places decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
