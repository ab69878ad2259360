// Package engine orchestrates one index query: fetch a snapshot from the
// observation source, key it by variant, run the selected strategy and
// post-process the series.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/derickschaefer/shelfindex/internal/inflation"
	"github.com/derickschaefer/shelfindex/internal/model"
	"github.com/derickschaefer/shelfindex/internal/render"
	"github.com/derickschaefer/shelfindex/internal/source"
	"github.com/derickschaefer/shelfindex/internal/transform"
)

// Query is the full set of parameters for one index computation.
type Query struct {
	Strategy    model.StrategyName
	Granularity model.Granularity
	NameFilter  string
	// Identity is the scheme name understood by model.ParseIdentity.
	// IdentityFunc, when set, takes precedence.
	Identity     string
	IdentityFunc model.IdentityFunc
	Baseline     time.Time // zero = day of the earliest observation
	Steps        int       // nearest only; 0 = whole window
	FillForward  bool
	After        time.Time // inclusive
	Before       time.Time // exclusive
}

// Engine runs queries against a single source.
type Engine struct {
	src     source.Source
	workers int
	log     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers bounds per-query parallelism. n <= 0 uses NumCPU.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the logger used for query lifecycle lines.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// New returns an Engine reading from src.
func New(src source.Source, opts ...Option) *Engine {
	e := &Engine{
		src:     src,
		workers: runtime.NumCPU(),
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run executes q against a fresh snapshot. The only terminal error besides
// invalid parameters and cancellation is a source failure, wrapped with
// source.ErrUnavailable. An empty snapshot yields an empty series.
func (e *Engine) Run(ctx context.Context, q Query) (*model.IndexSeries, error) {
	strategy, err := inflation.ForName(string(q.Strategy))
	if err != nil {
		return nil, err
	}
	granularity := q.Granularity
	if granularity == "" {
		granularity = model.GranularityDay
	}
	identity := q.IdentityFunc
	if identity == nil {
		if identity, err = model.ParseIdentity(q.Identity); err != nil {
			return nil, err
		}
	}

	queryID := uuid.NewString()
	log := e.log.With("query", queryID, "strategy", strategy.Name())
	start := time.Now()

	records, err := e.src.Observations(ctx, q.NameFilter)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Debug("source failed", "filter", q.NameFilter, "error", err)
		return nil, fmt.Errorf("%w: %w", source.ErrUnavailable, err)
	}
	log.Debug("snapshot fetched", "filter", q.NameFilter, "records", len(records))

	series := &model.IndexSeries{
		QueryID:     queryID,
		Strategy:    strategy.Name(),
		Granularity: granularity,
		Points:      []model.IndexPoint{},
	}

	obs, dropped := model.ToObservations(records, identity)
	if dropped > 0 {
		series.Warnings = append(series.Warnings,
			fmt.Sprintf("%d record(s) dropped: identity key missing", dropped))
	}
	if len(obs) == 0 {
		log.Debug("no observations", "elapsed", time.Since(start))
		return series, nil
	}

	out, err := strategy.Compute(ctx, obs, inflation.Params{
		Baseline:    q.Baseline,
		Granularity: granularity,
		Steps:       q.Steps,
		Workers:     e.workers,
	})
	if err != nil {
		return nil, err
	}

	points := out.Points
	if q.FillForward && strategy.Name() == model.StrategyCompound {
		points = transform.FillForward(points, granularity)
	}
	if !q.After.IsZero() || !q.Before.IsZero() {
		points = transform.Window(points, transform.WindowOptions{After: q.After, Before: q.Before})
	}
	if points == nil {
		points = []model.IndexPoint{}
	}

	series.Baseline = out.Baseline
	series.Points = points
	series.Variants = out.Variants
	series.Samples = out.Samples
	series.Warnings = append(series.Warnings, out.Warnings...)

	log.Debug("query complete",
		"variants", out.Variants,
		"samples", out.Samples,
		"points", len(points),
		"warnings", len(series.Warnings),
		"elapsed", time.Since(start),
	)
	return series, nil
}

// Present builds the payload for mode from series. The returned value is
// *model.IndexTable or *model.IndexChart together with its Result kind.
func Present(series *model.IndexSeries, mode model.Mode) (kind string, data interface{}) {
	var (
		points   []model.IndexPoint
		strategy model.StrategyName
		baseline string
	)
	if series != nil {
		points = series.Points
		strategy = series.Strategy
		if !series.Baseline.IsZero() {
			baseline = series.Baseline.UTC().Format(render.DateLayout)
		}
	}

	if mode == model.ModeTable {
		return model.KindIndexTable, &model.IndexTable{
			Strategy: strategy,
			Baseline: baseline,
			Rows:     render.BuildTable(points),
		}
	}
	return model.KindIndexChart, &model.IndexChart{
		Strategy:  strategy,
		Baseline:  baseline,
		ChartData: render.BuildChart(points),
	}
}
