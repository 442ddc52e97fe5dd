package analytics

import (
	"sort"

	"github.com/nixlim/pantrycost/internal/period"
	"github.com/nixlim/pantrycost/internal/records"
)

// dailySeries is one ingredient's usage summed per calendar day.
type dailySeries struct {
	ingredientID string
	totals       map[period.Key]float64
}

// groupDaily sums usage per ingredient and day. The returned series are
// sorted by ingredient id.
func groupDaily(events []records.UsageEvent) []dailySeries {
	byIngr := make(map[string]map[period.Key]float64)
	for _, e := range events {
		days, ok := byIngr[e.IngredientID]
		if !ok {
			days = make(map[period.Key]float64)
			byIngr[e.IngredientID] = days
		}
		days[period.DayKey(e.OccurredAt)] += e.Quantity
	}

	series := make([]dailySeries, 0, len(byIngr))
	for id, totals := range byIngr {
		series = append(series, dailySeries{ingredientID: id, totals: totals})
	}
	sort.Slice(series, func(i, j int) bool {
		return series[i].ingredientID < series[j].ingredientID
	})
	return series
}

// AnalyzeConsumption computes daily usage statistics per ingredient.
// Buckets are always daily regardless of any display granularity, and only
// days with at least one event contribute. Ingredients without events in
// the input are absent from the result, which is sorted by ingredient id.
func AnalyzeConsumption(events []records.UsageEvent, opts Options) []ConsumptionPattern {
	opts = opts.withDefaults()
	series := groupDaily(events)

	patterns := make([]ConsumptionPattern, len(series))
	forEachIndex(len(series), opts.Workers, func(i int) {
		patterns[i] = patternFor(series[i], opts)
	})
	return patterns
}

func patternFor(s dailySeries, opts Options) ConsumptionPattern {
	days := make([]period.Key, 0, len(s.totals))
	for d := range s.totals {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	values := make([]float64, len(days))
	for i, d := range days {
		values[i] = s.totals[d]
	}

	avg := mean(values)
	low, peak := minMax(values)
	trend, _ := splitHalfTrend(values, opts.TrendThresholdPercent)
	sigma := populationStdDev(values, avg)

	return ConsumptionPattern{
		IngredientID: s.ingredientID,
		Granularity:  period.Daily,
		AverageUsage: avg,
		PeakUsage:    peak,
		LowUsage:     low,
		Trend:        trend,
		Seasonal:     sigma > opts.SeasonalityRatio*avg,
		ActiveDays:   len(values),
	}
}
