// Package analytics turns price and usage events into cost trends,
// consumption patterns and usage heatmaps. The Aggregate*, Analyze* and
// Build* functions are pure; Engine adds input validation, window
// resolution relative to an explicit asOf, fetching and data-gap logging.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nixlim/pantrycost/internal/period"
	"github.com/nixlim/pantrycost/internal/records"
)

// Engine computes analytics over snapshots read from a records.Fetcher.
// It holds no state between calls and is safe for concurrent use.
type Engine struct {
	fetcher records.Fetcher
	opts    Options
	logger  *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithOptions replaces the default heuristics. Fields left at zero keep
// their defaults.
func WithOptions(o Options) EngineOption {
	return func(e *Engine) {
		e.opts = o.withDefaults()
	}
}

// WithLogger sets the logger used for data-gap warnings.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewEngine(f records.Fetcher, opts ...EngineOption) *Engine {
	e := &Engine{
		fetcher: f,
		opts:    DefaultOptions(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Options returns the effective heuristics.
func (e *Engine) Options() Options {
	return e.opts
}

// snapshot is everything fetched for one request.
type snapshot struct {
	prices      []records.PriceEvent
	usage       []records.UsageEvent
	ingredients map[string]records.Ingredient
}

type fetchPlan struct {
	prices      bool
	usage       bool
	ingredients bool
}

func (e *Engine) fetch(ctx context.Context, w Window, f Filter, plan fetchPlan) (*snapshot, error) {
	snap := &snapshot{}
	g, gctx := errgroup.WithContext(ctx)

	if plan.prices {
		g.Go(func() error {
			prices, err := e.fetcher.FetchPriceEvents(gctx, w.Start, w.End, "")
			if err != nil {
				return fmt.Errorf("fetching price events: %w", err)
			}
			snap.prices = prices
			return nil
		})
	}
	if plan.usage {
		g.Go(func() error {
			usage, err := e.fetcher.FetchUsageEvents(gctx, w.Start, w.End, f.IngredientID, f.UsageType)
			if err != nil {
				return fmt.Errorf("fetching usage events: %w", err)
			}
			snap.usage = usage
			return nil
		})
	}
	if plan.ingredients {
		g.Go(func() error {
			ingredients, err := e.fetcher.FetchIngredients(gctx)
			if err != nil {
				return fmt.Errorf("fetching ingredients: %w", err)
			}
			snap.ingredients = ingredients
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap.prices = pricesInWindow(snap.prices, w)
	snap.usage = usageMatching(snap.usage, w, f)
	return snap, nil
}

// pricesInWindow drops events a fetcher returned outside the window.
func pricesInWindow(events []records.PriceEvent, w Window) []records.PriceEvent {
	out := events[:0:0]
	for _, e := range events {
		if w.Contains(e.OccurredAt) {
			out = append(out, e)
		}
	}
	return out
}

func usageMatching(events []records.UsageEvent, w Window, f Filter) []records.UsageEvent {
	out := events[:0:0]
	for _, e := range events {
		if !w.Contains(e.OccurredAt) {
			continue
		}
		if f.IngredientID != "" && e.IngredientID != f.IngredientID {
			continue
		}
		if f.UsageType != "" && e.UsageType != f.UsageType {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (e *Engine) logGaps(analysis string, ids []string) {
	if len(ids) == 0 {
		return
	}
	e.logger.Warn("events reference unresolved ingredients",
		zap.String("analysis", analysis),
		zap.Strings("ingredient_ids", ids),
	)
}

// CostTrends summarises price events of the windowDays days up to asOf in
// buckets of the given granularity.
func (e *Engine) CostTrends(ctx context.Context, asOf time.Time, windowDays int, g period.Granularity) ([]CostTrendPeriod, error) {
	w, err := NewWindow(asOf, windowDays)
	if err != nil {
		return nil, err
	}
	if err := validateGranularity(g); err != nil {
		return nil, err
	}

	snap, err := e.fetch(ctx, w, Filter{}, fetchPlan{prices: true, ingredients: true})
	if err != nil {
		return nil, err
	}

	trends, gaps := AggregateCostTrends(snap.prices, snap.ingredients, g, e.opts)
	e.logGaps("cost_trends", gaps)
	return trends, nil
}

// ConsumptionPatterns computes per-ingredient daily usage statistics.
func (e *Engine) ConsumptionPatterns(ctx context.Context, asOf time.Time, windowDays int, f Filter) ([]ConsumptionPattern, error) {
	w, err := NewWindow(asOf, windowDays)
	if err != nil {
		return nil, err
	}
	if err := validateFilter(f); err != nil {
		return nil, err
	}

	snap, err := e.fetch(ctx, w, f, fetchPlan{usage: true})
	if err != nil {
		return nil, err
	}
	return AnalyzeConsumption(snap.usage, e.opts), nil
}

// UsageHeatmap builds dense per-ingredient daily usage rows for the window.
func (e *Engine) UsageHeatmap(ctx context.Context, asOf time.Time, windowDays int, f Filter) ([]UsageHeatmapRow, error) {
	w, err := NewWindow(asOf, windowDays)
	if err != nil {
		return nil, err
	}
	if err := validateFilter(f); err != nil {
		return nil, err
	}

	snap, err := e.fetch(ctx, w, f, fetchPlan{usage: true, ingredients: true})
	if err != nil {
		return nil, err
	}

	rows, gaps := BuildHeatmap(snap.usage, snap.ingredients, w, e.opts)
	e.logGaps("usage_heatmap", gaps)
	return rows, nil
}

// Report runs all three analyses over a single fetch. The filter narrows
// patterns and heatmap only; cost trends always cover every ingredient.
func (e *Engine) Report(ctx context.Context, req Request) (*Report, error) {
	w, err := NewWindow(req.AsOf, req.WindowDays)
	if err != nil {
		return nil, err
	}
	if err := validateGranularity(req.Granularity); err != nil {
		return nil, err
	}
	if err := validateFilter(req.Filter); err != nil {
		return nil, err
	}

	snap, err := e.fetch(ctx, w, req.Filter, fetchPlan{prices: true, usage: true, ingredients: true})
	if err != nil {
		return nil, err
	}

	trends, trendGaps := AggregateCostTrends(snap.prices, snap.ingredients, req.Granularity, e.opts)
	heatmap, heatGaps := BuildHeatmap(snap.usage, snap.ingredients, w, e.opts)
	gaps := mergeSorted(trendGaps, heatGaps)
	e.logGaps("report", gaps)

	return &Report{
		ID:                    uuid.NewString(),
		AsOf:                  req.AsOf,
		Window:                w,
		Granularity:           req.Granularity,
		CostTrends:            trends,
		Patterns:              AnalyzeConsumption(snap.usage, e.opts),
		Heatmap:               heatmap,
		UnresolvedIngredients: gaps,
	}, nil
}

func mergeSorted(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		set[s] = struct{}{}
	}
	return sortedKeys(set)
}
