package analytics

import (
	"time"

	"github.com/nixlim/pantrycost/internal/period"
	"github.com/nixlim/pantrycost/internal/records"
)

const (
	DefaultTopN                  = 5
	DefaultHeatmapScale          = 100.0
	DefaultSeasonalityRatio      = 0.3
	DefaultTrendThresholdPercent = 10.0
)

// UnresolvedName is shown for heatmap rows whose ingredient is missing or
// inactive in the lookup table.
const UnresolvedName = "unknown ingredient"

// Options tunes the business heuristics. A zero or negative field selects
// its default, so a threshold or ratio of exactly zero cannot be expressed;
// use a small positive value such as 0.01 instead.
type Options struct {
	// TopN caps the ranked contributor list of each cost period.
	TopN int
	// HeatmapScale is the usage that maps to full intensity.
	HeatmapScale float64
	// SeasonalityRatio flags an ingredient as seasonal when the standard
	// deviation of its daily totals exceeds ratio * mean. This is a
	// variance heuristic, not a seasonal decomposition.
	SeasonalityRatio float64
	// TrendThresholdPercent is the split-half change beyond which usage is
	// classified as increasing or decreasing.
	TrendThresholdPercent float64
	// Workers bounds per-period and per-ingredient fan-out. Values below 2
	// run sequentially.
	Workers int
}

// DefaultOptions returns the stock heuristics.
func DefaultOptions() Options {
	return Options{
		TopN:                  DefaultTopN,
		HeatmapScale:          DefaultHeatmapScale,
		SeasonalityRatio:      DefaultSeasonalityRatio,
		TrendThresholdPercent: DefaultTrendThresholdPercent,
		Workers:               1,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TopN <= 0 {
		o.TopN = d.TopN
	}
	if o.HeatmapScale <= 0 {
		o.HeatmapScale = d.HeatmapScale
	}
	if o.SeasonalityRatio <= 0 {
		o.SeasonalityRatio = d.SeasonalityRatio
	}
	if o.TrendThresholdPercent <= 0 {
		o.TrendThresholdPercent = d.TrendThresholdPercent
	}
	if o.Workers < 1 {
		o.Workers = d.Workers
	}
	return o
}

// Window is an inclusive time range.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewWindow returns the window covering the windowDays days before asOf
// plus asOf's own day, from the start of the first day to the end of asOf's
// day. Both bounds use asOf's location.
func NewWindow(asOf time.Time, windowDays int) (Window, error) {
	if windowDays <= 0 {
		return Window{}, &InputError{Field: "windowDays", Value: windowDays, Reason: "must be positive"}
	}
	return Window{
		Start: period.StartOfDay(asOf.AddDate(0, 0, -windowDays)),
		End:   period.EndOfDay(asOf),
	}, nil
}

// Contains reports whether t lies inside the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return records.InWindow(t, w.Start, w.End)
}

// Filter narrows usage analysis. Zero fields match everything.
type Filter struct {
	IngredientID string
	UsageType    records.UsageType
}

// RankedIngredient is one entry of a period's top-cost list.
type RankedIngredient struct {
	IngredientID            string  `json:"ingredientId"`
	Name                    string  `json:"name"`
	AverageCostInPeriod     float64 `json:"averageCostInPeriod"`
	PercentageOfPeriodTotal float64 `json:"percentageOfPeriodTotal"`
}

// CostTrendPeriod summarises the price events of one calendar bucket.
type CostTrendPeriod struct {
	Period                  period.Key         `json:"period"`
	PeriodStart             time.Time          `json:"periodStart"`
	TotalCost               float64            `json:"totalCost"`
	AverageCost             float64            `json:"averageCost"`
	EventCount              int                `json:"eventCount"`
	TopExpensiveIngredients []RankedIngredient `json:"topExpensiveIngredients"`
}

// Trend is the split-half direction of an ingredient's daily usage.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// ConsumptionPattern holds daily usage statistics for one ingredient.
type ConsumptionPattern struct {
	IngredientID string             `json:"ingredientId"`
	Granularity  period.Granularity `json:"granularity"`
	AverageUsage float64            `json:"averageUsage"`
	PeakUsage    float64            `json:"peakUsage"`
	LowUsage     float64            `json:"lowUsage"`
	Trend        Trend              `json:"trend"`
	Seasonal     bool               `json:"seasonal"`
	ActiveDays   int                `json:"activeDays"`
}

// HeatmapCell is one day of one ingredient's heatmap row.
type HeatmapCell struct {
	Date      time.Time `json:"date"`
	Usage     float64   `json:"usage"`
	Intensity float64   `json:"intensity"`
}

// UsageHeatmapRow is the dense day-by-day usage of one ingredient.
type UsageHeatmapRow struct {
	IngredientID string        `json:"ingredientId"`
	Name         string        `json:"name"`
	DailyUsage   []HeatmapCell `json:"dailyUsage"`
}

// Request parameterises a full report.
type Request struct {
	AsOf        time.Time
	WindowDays  int
	Granularity period.Granularity
	Filter      Filter
}

// Report bundles the three analyses computed over one fetched snapshot.
type Report struct {
	ID                    string               `json:"id"`
	AsOf                  time.Time            `json:"asOf"`
	Window                Window               `json:"window"`
	Granularity           period.Granularity   `json:"granularity"`
	CostTrends            []CostTrendPeriod    `json:"costTrends"`
	Patterns              []ConsumptionPattern `json:"patterns"`
	Heatmap               []UsageHeatmapRow    `json:"heatmap"`
	UnresolvedIngredients []string             `json:"unresolvedIngredients,omitempty"`
}
