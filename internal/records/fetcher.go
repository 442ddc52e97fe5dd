// Package records defines the record types read by the analytics engine and
// the storage contract it reads them through. Records are immutable once
// written; nothing in this package updates or deletes an event.
package records

import (
	"context"
	"time"
)

// Fetcher is the read contract the analytics engine depends on.
// Implementations return events ordered by OccurredAt ascending and bounded
// to [start, end] inclusive. An empty ingredientID or usageType disables
// that filter.
type Fetcher interface {
	FetchPriceEvents(ctx context.Context, start, end time.Time, ingredientID string) ([]PriceEvent, error)
	FetchUsageEvents(ctx context.Context, start, end time.Time, ingredientID string, usageType UsageType) ([]UsageEvent, error)
	FetchIngredients(ctx context.Context) (map[string]Ingredient, error)
}

// Store is a Fetcher that can also accept new records.
type Store interface {
	Fetcher

	// PutIngredients inserts or replaces ingredients by id.
	PutIngredients(ctx context.Context, ingredients []Ingredient) error

	// AppendPriceEvents stores price events. Events without a
	// ChangePercentage get one derived from the ingredient's previous price.
	AppendPriceEvents(ctx context.Context, events []PriceEvent) error

	// AppendUsageEvents stores usage events.
	AppendUsageEvents(ctx context.Context, events []UsageEvent) error

	Close() error
}

// PruneResult counts the events removed by a retention pass.
type PruneResult struct {
	PriceEvents int64 `json:"priceEvents"`
	UsageEvents int64 `json:"usageEvents"`
}

// Pruner is implemented by stores that support retention.
type Pruner interface {
	// Prune deletes every event that occurred strictly before cutoff.
	Prune(ctx context.Context, cutoff time.Time) (PruneResult, error)
}

// Batch is an import document holding any mix of record kinds.
type Batch struct {
	Ingredients []Ingredient `json:"ingredients"`
	PriceEvents []PriceEvent `json:"priceHistory"`
	UsageEvents []UsageEvent `json:"usage"`
}

// Import validates a batch and writes it in dependency order: ingredients
// first so that events resolve on the next read. Nothing is written when
// validation fails.
func Import(ctx context.Context, s Store, b Batch) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if len(b.Ingredients) > 0 {
		if err := s.PutIngredients(ctx, b.Ingredients); err != nil {
			return err
		}
	}
	if len(b.PriceEvents) > 0 {
		if err := s.AppendPriceEvents(ctx, b.PriceEvents); err != nil {
			return err
		}
	}
	if len(b.UsageEvents) > 0 {
		if err := s.AppendUsageEvents(ctx, b.UsageEvents); err != nil {
			return err
		}
	}
	return nil
}

// ChangePercentage returns the relative change from prev to next in percent.
// ok is false when there is no meaningful base (prev <= 0).
func ChangePercentage(prev, next float64) (pct float64, ok bool) {
	if prev <= 0 {
		return 0, false
	}
	return (next - prev) / prev * 100, true
}

// InWindow reports whether t lies in [start, end] inclusive.
func InWindow(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}
