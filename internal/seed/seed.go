// Package seed generates a plausible bakery ingredient catalogue with price
// and usage history, for demos and for exercising a fresh store.
package seed

import (
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/jaswdr/faker"
	"github.com/lucsky/cuid"
	"github.com/schollz/progressbar/v3"

	"github.com/nixlim/pantrycost/internal/period"
	"github.com/nixlim/pantrycost/internal/records"
)

type catalogueItem struct {
	name      string
	category  records.Category
	unit      records.Unit
	basePrice float64
	dailyUse  int
}

var catalogue = []catalogueItem{
	{"All-purpose flour", records.CategoryFlour, records.UnitKilogram, 1.20, 40},
	{"Bread flour", records.CategoryFlour, records.UnitKilogram, 1.45, 30},
	{"Caster sugar", records.CategorySugar, records.UnitKilogram, 1.10, 15},
	{"Brown sugar", records.CategorySugar, records.UnitKilogram, 1.60, 6},
	{"Whole milk", records.CategoryDairy, records.UnitLiter, 0.95, 20},
	{"Double cream", records.CategoryDairy, records.UnitLiter, 3.80, 5},
	{"Free-range eggs", records.CategoryEggs, records.UnitPiece, 0.28, 120},
	{"Unsalted butter", records.CategoryFats, records.UnitKilogram, 7.50, 12},
	{"Dried yeast", records.CategoryLeavening, records.UnitGram, 0.02, 300},
	{"Baking powder", records.CategoryLeavening, records.UnitGram, 0.01, 150},
	{"Vanilla extract", records.CategoryFlavoring, records.UnitMilliliter, 0.15, 40},
	{"Ground almonds", records.CategoryNuts, records.UnitKilogram, 11.00, 2},
	{"Raspberries", records.CategoryFruits, records.UnitKilogram, 9.50, 3},
	{"Dark chocolate", records.CategoryChocolate, records.UnitKilogram, 12.40, 4},
	{"Ground cinnamon", records.CategorySpices, records.UnitGram, 0.03, 60},
	{"Pectin", records.CategoryPreservatives, records.UnitGram, 0.05, 20},
}

// Options controls the size and shape of the generated data.
type Options struct {
	Ingredients int
	// Days of history generated, ending on AsOf's day.
	Days int
	AsOf time.Time
	// PriceEveryDays is the mean gap between price changes.
	PriceEveryDays int
	Seed           int64
	// Progress receives a progress bar; nil disables it.
	Progress io.Writer
}

func (o Options) withDefaults() Options {
	if o.Ingredients <= 0 {
		o.Ingredients = len(catalogue)
	}
	if o.Days <= 0 {
		o.Days = 90
	}
	if o.AsOf.IsZero() {
		o.AsOf = time.Now()
	}
	if o.PriceEveryDays <= 0 {
		o.PriceEveryDays = 7
	}
	return o
}

// Generate builds an import batch. Price events carry no ChangePercentage
// so the store derives it on import. Inactive ingredients are mixed in at
// roughly one in ten to exercise unresolved-ingredient handling.
func Generate(opts Options) records.Batch {
	opts = opts.withDefaults()
	fake := faker.NewWithSeed(rand.NewSource(opts.Seed))

	var progress io.Writer = io.Discard
	if opts.Progress != nil {
		progress = opts.Progress
	}
	bar := progressbar.NewOptions(opts.Ingredients,
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetDescription("generating ingredient history"),
		progressbar.OptionShowCount(),
	)

	first := period.StartOfDay(opts.AsOf.AddDate(0, 0, -opts.Days))
	var b records.Batch
	for i := 0; i < opts.Ingredients; i++ {
		item := catalogue[i%len(catalogue)]
		name := item.name
		if i >= len(catalogue) {
			name = fmt.Sprintf("%s #%d", item.name, i/len(catalogue)+1)
		}
		ing := records.Ingredient{
			ID:       cuid.New(),
			Name:     name,
			Category: item.category,
			Unit:     item.unit,
			Active:   fake.IntBetween(1, 10) > 1,
		}

		prices := priceHistory(fake, ing.ID, item.basePrice, first, opts)
		ing.CurrentPrice = prices[len(prices)-1].Price
		b.Ingredients = append(b.Ingredients, ing)
		b.PriceEvents = append(b.PriceEvents, prices...)
		b.UsageEvents = append(b.UsageEvents, usageHistory(fake, ing, item.dailyUse, first, opts)...)
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	return b
}

func priceHistory(fake faker.Faker, ingredientID string, base float64, first time.Time, opts Options) []records.PriceEvent {
	supplier := fake.Company().Name()
	price := base
	var out []records.PriceEvent
	for day := 0; day <= opts.Days; {
		date := first.AddDate(0, 0, day)
		out = append(out, records.PriceEvent{
			ID:           cuid.New(),
			IngredientID: ingredientID,
			Price:        roundCents(price),
			OccurredAt:   fake.Time().TimeBetween(date.Add(6*time.Hour), date.Add(10*time.Hour)),
			SupplierID:   supplier,
		})
		// Drift within +-8% per change, never below a tenth of base.
		drift := float64(fake.IntBetween(-80, 80)) / 1000
		price = max(price*(1+drift), base/10)
		day += fake.IntBetween(1, 2*opts.PriceEveryDays-1)
	}
	return out
}

func usageHistory(fake faker.Faker, ing records.Ingredient, dailyUse int, first time.Time, opts Options) []records.UsageEvent {
	var out []records.UsageEvent
	for day := 0; day <= opts.Days; day++ {
		date := first.AddDate(0, 0, day)
		// Closed roughly one day in seven.
		if fake.IntBetween(1, 7) == 1 {
			continue
		}
		weekend := date.Weekday() == time.Saturday || date.Weekday() == time.Sunday
		runs := fake.IntBetween(1, 3)
		for r := 0; r < runs; r++ {
			qty := fake.IntBetween(max(dailyUse/2, 1), dailyUse+dailyUse/2)
			if weekend {
				qty += qty / 2
			}
			out = append(out, records.UsageEvent{
				ID:           cuid.New(),
				IngredientID: ing.ID,
				Quantity:     float64(qty) / float64(runs),
				Unit:         string(ing.Unit),
				OccurredAt:   fake.Time().TimeBetween(date.Add(5*time.Hour), date.Add(20*time.Hour)),
				UsageType:    records.UsageProduction,
				RecipeID:     fake.Lorem().Word(),
			})
		}
		if fake.IntBetween(1, 10) == 1 {
			out = append(out, records.UsageEvent{
				ID:           cuid.New(),
				IngredientID: ing.ID,
				Quantity:     float64(fake.IntBetween(1, max(dailyUse/10, 1))),
				Unit:         string(ing.Unit),
				OccurredAt:   date.Add(21 * time.Hour),
				UsageType:    records.UsageWaste,
				Notes:        fake.Lorem().Sentence(4),
			})
		}
	}
	return out
}

func roundCents(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
