package analytics

import (
	"github.com/nixlim/pantrycost/internal/period"
	"github.com/nixlim/pantrycost/internal/records"
)

// BuildHeatmap produces one dense row per ingredient present in events, with
// a cell for every calendar day of the window. Intensity is usage divided by
// opts.HeatmapScale, clamped to [0, 1]. Ingredients that do not resolve keep
// their row under UnresolvedName and are returned as unresolved ids.
func BuildHeatmap(events []records.UsageEvent, ingredients map[string]records.Ingredient, w Window, opts Options) ([]UsageHeatmapRow, []string) {
	opts = opts.withDefaults()
	series := groupDaily(events)
	days := period.Days(w.Start, w.End)

	unresolved := make(map[string]struct{})
	rows := make([]UsageHeatmapRow, len(series))
	for i, s := range series {
		name := UnresolvedName
		if ing, ok := records.Lookup(ingredients, s.ingredientID); ok {
			name = ing.Name
		} else {
			unresolved[s.ingredientID] = struct{}{}
		}
		rows[i] = UsageHeatmapRow{IngredientID: s.ingredientID, Name: name}
	}

	forEachIndex(len(series), opts.Workers, func(i int) {
		cells := make([]HeatmapCell, len(days))
		for j, d := range days {
			usage := series[i].totals[period.DayKey(d)]
			cells[j] = HeatmapCell{
				Date:      d,
				Usage:     usage,
				Intensity: clamp01(safeDiv(usage, opts.HeatmapScale)),
			}
		}
		rows[i].DailyUsage = cells
	})

	return rows, sortedKeys(unresolved)
}
