package analytics

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nixlim/pantrycost/internal/period"
	"github.com/nixlim/pantrycost/internal/records"
)

func at(y int, m time.Month, d, hour int) time.Time {
	return time.Date(y, m, d, hour, 0, 0, 0, time.UTC)
}

func ingredientTable(ids ...string) map[string]records.Ingredient {
	out := make(map[string]records.Ingredient, len(ids))
	for _, id := range ids {
		out[id] = records.Ingredient{ID: id, Name: "name-" + id, Active: true}
	}
	return out
}

func price(id string, p float64, ts time.Time) records.PriceEvent {
	return records.PriceEvent{IngredientID: id, Price: p, OccurredAt: ts}
}

func TestAggregateCostTrends_SingleEvent(t *testing.T) {
	ingredients := map[string]records.Ingredient{
		"flour": {ID: "flour", Name: "Flour", Active: true},
	}
	events := []records.PriceEvent{price("flour", 5.00, at(2025, 3, 10, 9))}

	got, unresolved := AggregateCostTrends(events, ingredients, period.Daily, DefaultOptions())

	require.Len(t, got, 1)
	assert.Empty(t, unresolved)
	p := got[0]
	assert.Equal(t, period.Key("2025-03-10"), p.Period)
	assert.Equal(t, at(2025, 3, 10, 0), p.PeriodStart)
	assert.InDelta(t, 5.0, p.TotalCost, 1e-9)
	assert.InDelta(t, 5.0, p.AverageCost, 1e-9)
	assert.Equal(t, 1, p.EventCount)
	require.Len(t, p.TopExpensiveIngredients, 1)
	assert.Equal(t, "Flour", p.TopExpensiveIngredients[0].Name)
	assert.InDelta(t, 5.0, p.TopExpensiveIngredients[0].AverageCostInPeriod, 1e-9)
	assert.InDelta(t, 100.0, p.TopExpensiveIngredients[0].PercentageOfPeriodTotal, 1e-9)
}

func TestAggregateCostTrends_EmptyInput(t *testing.T) {
	got, unresolved := AggregateCostTrends(nil, nil, period.Weekly, DefaultOptions())
	assert.Empty(t, got)
	assert.Empty(t, unresolved)
}

func TestAggregateCostTrends_EventCountsSumToInput(t *testing.T) {
	ingredients := ingredientTable("a", "b", "c")
	var events []records.PriceEvent
	for d := 1; d <= 40; d++ {
		id := []string{"a", "b", "c"}[d%3]
		events = append(events, price(id, float64(d), at(2025, 1, 1, 12).AddDate(0, 0, d)))
	}

	for _, g := range []period.Granularity{period.Daily, period.Weekly, period.Monthly} {
		t.Run(string(g), func(t *testing.T) {
			got, _ := AggregateCostTrends(events, ingredients, g, DefaultOptions())
			total := 0
			for i, p := range got {
				total += p.EventCount
				if i > 0 {
					assert.Less(t, string(got[i-1].Period), string(p.Period), "periods must be ascending")
				}
			}
			assert.Equal(t, len(events), total)
		})
	}
}

func TestAggregateCostTrends_TopRankingCappedAndSorted(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f", "g"}
	ingredients := ingredientTable(ids...)
	day := at(2025, 6, 2, 10)

	// e and b tie on mean; ids break the tie.
	prices := map[string]float64{"a": 1, "b": 7, "c": 3, "d": 9, "e": 7, "f": 2, "g": 4}
	var events []records.PriceEvent
	for _, id := range ids {
		events = append(events, price(id, prices[id], day))
	}

	got, _ := AggregateCostTrends(events, ingredients, period.Daily, DefaultOptions())
	require.Len(t, got, 1)

	top := got[0].TopExpensiveIngredients
	require.Len(t, top, DefaultTopN)
	order := make([]string, len(top))
	for i, r := range top {
		order[i] = r.IngredientID
	}
	assert.Equal(t, []string{"d", "b", "e", "g", "c"}, order)
}

func TestAggregateCostTrends_MeanPerIngredient(t *testing.T) {
	ingredients := ingredientTable("butter", "sugar")
	events := []records.PriceEvent{
		price("butter", 4, at(2025, 2, 3, 8)),
		price("butter", 6, at(2025, 2, 5, 8)),
		price("sugar", 2, at(2025, 2, 4, 8)),
	}

	got, _ := AggregateCostTrends(events, ingredients, period.Weekly, DefaultOptions())
	require.Len(t, got, 1)
	p := got[0]
	assert.Equal(t, period.Key("2025-W06"), p.Period)
	assert.InDelta(t, 12.0, p.TotalCost, 1e-9)
	assert.InDelta(t, 4.0, p.AverageCost, 1e-9)

	require.Len(t, p.TopExpensiveIngredients, 2)
	butter := p.TopExpensiveIngredients[0]
	assert.Equal(t, "butter", butter.IngredientID)
	assert.InDelta(t, 5.0, butter.AverageCostInPeriod, 1e-9)
	assert.InDelta(t, 5.0/12.0*100, butter.PercentageOfPeriodTotal, 1e-9)
}

func TestAggregateCostTrends_UnresolvedIngredients(t *testing.T) {
	ingredients := ingredientTable("flour")
	ingredients["retired"] = records.Ingredient{ID: "retired", Name: "Retired", Active: false}

	day := at(2025, 4, 1, 10)
	events := []records.PriceEvent{
		price("flour", 2, day),
		price("ghost", 50, day),
		price("retired", 30, day),
	}

	got, unresolved := AggregateCostTrends(events, ingredients, period.Daily, DefaultOptions())
	require.Len(t, got, 1)
	assert.Equal(t, []string{"ghost", "retired"}, unresolved)

	p := got[0]
	assert.Equal(t, 3, p.EventCount)
	assert.InDelta(t, 82.0, p.TotalCost, 1e-9)
	require.Len(t, p.TopExpensiveIngredients, 1)
	assert.Equal(t, "flour", p.TopExpensiveIngredients[0].IngredientID)
}

func TestAggregateCostTrends_WeeklyAcrossYearBoundary(t *testing.T) {
	ingredients := ingredientTable("milk")
	events := []records.PriceEvent{
		price("milk", 1, at(2024, 12, 30, 10)),
		price("milk", 3, at(2025, 1, 2, 10)),
		price("milk", 5, at(2025, 1, 6, 10)),
	}

	got, _ := AggregateCostTrends(events, ingredients, period.Weekly, DefaultOptions())
	require.Len(t, got, 2)
	assert.Equal(t, period.Key("2025-W01"), got[0].Period)
	assert.Equal(t, 2, got[0].EventCount)
	assert.Equal(t, at(2024, 12, 30, 0), got[0].PeriodStart)
	assert.Equal(t, period.Key("2025-W02"), got[1].Period)
}

func TestAggregateCostTrends_ZeroPricesNoNaN(t *testing.T) {
	ingredients := ingredientTable("water")
	events := []records.PriceEvent{price("water", 0, at(2025, 5, 5, 5))}

	got, _ := AggregateCostTrends(events, ingredients, period.Monthly, DefaultOptions())
	require.Len(t, got, 1)
	require.Len(t, got[0].TopExpensiveIngredients, 1)
	assert.Zero(t, got[0].TopExpensiveIngredients[0].PercentageOfPeriodTotal)
	assert.Zero(t, got[0].AverageCost)
}

func TestAggregateCostTrends_WorkersDoNotChangeResult(t *testing.T) {
	var ids []string
	for i := 0; i < 12; i++ {
		ids = append(ids, fmt.Sprintf("ing-%02d", i))
	}
	ingredients := ingredientTable(ids...)
	var events []records.PriceEvent
	for d := 0; d < 90; d++ {
		events = append(events, price(ids[d%len(ids)], float64(d%17)+0.5, at(2025, 1, 1, 6).AddDate(0, 0, d)))
	}

	seq, _ := AggregateCostTrends(events, ingredients, period.Daily, DefaultOptions())
	opts := DefaultOptions()
	opts.Workers = 8
	par, _ := AggregateCostTrends(events, ingredients, period.Daily, opts)
	assert.Equal(t, seq, par)

	again, _ := AggregateCostTrends(events, ingredients, period.Daily, DefaultOptions())
	assert.Equal(t, seq, again)
}
