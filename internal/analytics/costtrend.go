package analytics

import (
	"sort"
	"time"

	"github.com/nixlim/pantrycost/internal/period"
	"github.com/nixlim/pantrycost/internal/records"
)

type ingredientCost struct {
	sum   float64
	count int
}

type periodBucket struct {
	key    period.Key
	start  time.Time
	total  float64
	count  int
	byIngr map[string]*ingredientCost
}

// AggregateCostTrends buckets price events by period and ranks each
// period's most expensive ingredients by mean price. Every event counts
// towards its period's totals; ingredients that do not resolve in the
// lookup table are left out of the ranking and returned as unresolved ids.
// Periods are returned in ascending key order.
func AggregateCostTrends(events []records.PriceEvent, ingredients map[string]records.Ingredient, g period.Granularity, opts Options) ([]CostTrendPeriod, []string) {
	opts = opts.withDefaults()

	buckets := make(map[period.Key]*periodBucket)
	unresolved := make(map[string]struct{})
	for _, e := range events {
		key := period.KeyFor(e.OccurredAt, g)
		b, ok := buckets[key]
		if !ok {
			b = &periodBucket{
				key:    key,
				start:  period.StartOf(e.OccurredAt, g),
				byIngr: make(map[string]*ingredientCost),
			}
			buckets[key] = b
		}
		b.total += e.Price
		b.count++

		ic, ok := b.byIngr[e.IngredientID]
		if !ok {
			ic = &ingredientCost{}
			b.byIngr[e.IngredientID] = ic
		}
		ic.sum += e.Price
		ic.count++

		if _, ok := records.Lookup(ingredients, e.IngredientID); !ok {
			unresolved[e.IngredientID] = struct{}{}
		}
	}

	ordered := make([]*periodBucket, 0, len(buckets))
	for _, b := range buckets {
		ordered = append(ordered, b)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].key < ordered[j].key
	})

	result := make([]CostTrendPeriod, len(ordered))
	forEachIndex(len(ordered), opts.Workers, func(i int) {
		result[i] = summarisePeriod(ordered[i], ingredients, opts.TopN)
	})

	return result, sortedKeys(unresolved)
}

func summarisePeriod(b *periodBucket, ingredients map[string]records.Ingredient, topN int) CostTrendPeriod {
	ranked := make([]RankedIngredient, 0, len(b.byIngr))
	for id, ic := range b.byIngr {
		ing, ok := records.Lookup(ingredients, id)
		if !ok {
			continue
		}
		avg := safeDiv(ic.sum, float64(ic.count))
		ranked = append(ranked, RankedIngredient{
			IngredientID:            id,
			Name:                    ing.Name,
			AverageCostInPeriod:     avg,
			PercentageOfPeriodTotal: safeDiv(avg, b.total) * 100,
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].AverageCostInPeriod != ranked[j].AverageCostInPeriod {
			return ranked[i].AverageCostInPeriod > ranked[j].AverageCostInPeriod
		}
		return ranked[i].IngredientID < ranked[j].IngredientID
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}

	return CostTrendPeriod{
		Period:                  b.key,
		PeriodStart:             b.start,
		TotalCost:               b.total,
		AverageCost:             safeDiv(b.total, float64(b.count)),
		EventCount:              b.count,
		TopExpensiveIngredients: ranked,
	}
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
