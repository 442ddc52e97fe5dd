package records

import (
	"context"
	"sync"
	"testing"
	"time"
)

var day0 = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func TestMemoryStore_FetchPriceEventsOrderedAndBounded(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	err := ms.AppendPriceEvents(ctx, []PriceEvent{
		{ID: "p3", IngredientID: "flour", Price: 6, OccurredAt: day0.Add(72 * time.Hour)},
		{ID: "p1", IngredientID: "flour", Price: 5, OccurredAt: day0},
		{ID: "p2", IngredientID: "sugar", Price: 3, OccurredAt: day0.Add(24 * time.Hour)},
		{ID: "p4", IngredientID: "flour", Price: 7, OccurredAt: day0.Add(240 * time.Hour)},
	})
	if err != nil {
		t.Fatalf("AppendPriceEvents: %v", err)
	}

	got, err := ms.FetchPriceEvents(ctx, day0, day0.Add(72*time.Hour), "")
	if err != nil {
		t.Fatalf("FetchPriceEvents: %v", err)
	}
	wantIDs := []string{"p1", "p2", "p3"}
	if len(got) != len(wantIDs) {
		t.Fatalf("want %d events, got %d", len(wantIDs), len(got))
	}
	for i, id := range wantIDs {
		if got[i].ID != id {
			t.Errorf("event %d: want %s, got %s", i, id, got[i].ID)
		}
	}

	flourOnly, err := ms.FetchPriceEvents(ctx, day0, day0.Add(72*time.Hour), "flour")
	if err != nil {
		t.Fatalf("FetchPriceEvents: %v", err)
	}
	if len(flourOnly) != 2 {
		t.Errorf("flour filter: want 2 events, got %d", len(flourOnly))
	}
}

func TestMemoryStore_DerivesChangePercentage(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	err := ms.AppendPriceEvents(ctx, []PriceEvent{
		{IngredientID: "flour", Price: 4, OccurredAt: day0},
		{IngredientID: "flour", Price: 5, OccurredAt: day0.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("AppendPriceEvents: %v", err)
	}

	got, _ := ms.FetchPriceEvents(ctx, day0, day0.Add(2*time.Hour), "flour")
	if len(got) != 2 {
		t.Fatalf("want 2 events, got %d", len(got))
	}
	if got[0].ChangePercentage != nil {
		t.Errorf("first price: want no change percentage, got %v", *got[0].ChangePercentage)
	}
	if got[1].ChangePercentage == nil || *got[1].ChangePercentage != 25 {
		t.Errorf("second price: want 25%% change, got %v", got[1].ChangePercentage)
	}
}

func TestMemoryStore_ExplicitChangePercentageKept(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	pct := -3.5

	_ = ms.AppendPriceEvents(ctx, []PriceEvent{{IngredientID: "flour", Price: 4, OccurredAt: day0}})
	_ = ms.AppendPriceEvents(ctx, []PriceEvent{{IngredientID: "flour", Price: 8, OccurredAt: day0.Add(time.Hour), ChangePercentage: &pct}})

	got, _ := ms.FetchPriceEvents(ctx, day0, day0.Add(time.Hour), "flour")
	if *got[1].ChangePercentage != -3.5 {
		t.Errorf("want explicit -3.5, got %v", *got[1].ChangePercentage)
	}
}

func TestMemoryStore_FetchUsageEventsFilters(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	_ = ms.AppendUsageEvents(ctx, []UsageEvent{
		{ID: "u1", IngredientID: "flour", Quantity: 2, OccurredAt: day0, UsageType: UsageProduction},
		{ID: "u2", IngredientID: "flour", Quantity: 1, OccurredAt: day0.Add(time.Hour), UsageType: UsageWaste},
		{ID: "u3", IngredientID: "eggs", Quantity: 12, OccurredAt: day0.Add(2 * time.Hour), UsageType: UsageProduction},
	})

	tests := []struct {
		name       string
		ingredient string
		usageType  UsageType
		want       int
	}{
		{"no filter", "", "", 3},
		{"ingredient", "flour", "", 2},
		{"usage type", "", UsageProduction, 2},
		{"both", "flour", UsageWaste, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ms.FetchUsageEvents(ctx, day0, day0.Add(24*time.Hour), tt.ingredient, tt.usageType)
			if err != nil {
				t.Fatalf("FetchUsageEvents: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("want %d events, got %d", tt.want, len(got))
			}
		})
	}
}

func TestMemoryStore_SetLocationConvertsReads(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	loc := time.FixedZone("BRT", -3*3600)
	ms.SetLocation(loc)

	_ = ms.AppendUsageEvents(ctx, []UsageEvent{{IngredientID: "flour", Quantity: 1, OccurredAt: day0.Add(2 * time.Hour)}})

	got, _ := ms.FetchUsageEvents(ctx, day0, day0.Add(24*time.Hour), "", "")
	if len(got) != 1 {
		t.Fatalf("want 1 event, got %d", len(got))
	}
	if got[0].OccurredAt.Location() != loc {
		t.Errorf("want location %v, got %v", loc, got[0].OccurredAt.Location())
	}
	if got[0].OccurredAt.Day() != 9 {
		t.Errorf("02:00 UTC is the previous day in BRT; want day 9, got %d", got[0].OccurredAt.Day())
	}
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ms := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := ms.FetchIngredients(ctx); err == nil {
		t.Error("want error for cancelled context, got nil")
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = ms.AppendUsageEvents(ctx, []UsageEvent{{IngredientID: "flour", Quantity: float64(i + 1), OccurredAt: day0.Add(time.Duration(i) * time.Minute)}})
		}(i)
		go func() {
			defer wg.Done()
			_, _ = ms.FetchUsageEvents(ctx, day0, day0.Add(time.Hour), "", "")
		}()
	}
	wg.Wait()

	got, _ := ms.FetchUsageEvents(ctx, day0, day0.Add(time.Hour), "", "")
	if len(got) != 8 {
		t.Errorf("want 8 events, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].OccurredAt.Before(got[i-1].OccurredAt) {
			t.Fatalf("events out of order at %d", i)
		}
	}
}

func TestLookup_InactiveDoesNotResolve(t *testing.T) {
	table := map[string]Ingredient{
		"flour": {ID: "flour", Name: "Flour", Active: true},
		"lard":  {ID: "lard", Name: "Lard", Active: false},
	}
	if _, ok := Lookup(table, "flour"); !ok {
		t.Error("flour: want resolved")
	}
	if _, ok := Lookup(table, "lard"); ok {
		t.Error("lard: inactive ingredient must not resolve")
	}
	if _, ok := Lookup(table, "missing"); ok {
		t.Error("missing: want unresolved")
	}
}

func TestParseUsageType(t *testing.T) {
	if ut, err := ParseUsageType("Waste"); err != nil || ut != UsageWaste {
		t.Errorf("want waste, got %q (%v)", ut, err)
	}
	if ut, err := ParseUsageType(""); err != nil || ut != "" {
		t.Errorf("empty: want zero value, got %q (%v)", ut, err)
	}
	if _, err := ParseUsageType("theft"); err == nil {
		t.Error("want error for unknown usage type")
	}
}
