package records

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a thread-safe in-memory implementation of Store. It keeps
// both event logs sorted by OccurredAt so window reads are a binary search
// plus a copy.
type MemoryStore struct {
	mu          sync.RWMutex
	ingredients map[string]Ingredient
	prices      []PriceEvent
	usage       []UsageEvent
	loc         *time.Location
}

// NewMemoryStore creates a new empty MemoryStore ready for use.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ingredients: make(map[string]Ingredient),
	}
}

// SetLocation makes every read return timestamps converted to loc.
// A nil loc returns timestamps as they were written.
func (ms *MemoryStore) SetLocation(loc *time.Location) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.loc = loc
}

func (ms *MemoryStore) PutIngredients(_ context.Context, ingredients []Ingredient) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for _, ing := range ingredients {
		ms.ingredients[ing.ID] = ing
	}
	return nil
}

func (ms *MemoryStore) AppendPriceEvents(_ context.Context, events []PriceEvent) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ordered := make([]PriceEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].OccurredAt.Before(ordered[j].OccurredAt)
	})

	for _, e := range ordered {
		if e.ChangePercentage == nil {
			if prev, ok := ms.previousPrice(e.IngredientID, e.OccurredAt); ok {
				if pct, ok := ChangePercentage(prev, e.Price); ok {
					e.ChangePercentage = &pct
				}
			}
		}
		idx := sort.Search(len(ms.prices), func(i int) bool {
			return ms.prices[i].OccurredAt.After(e.OccurredAt)
		})
		ms.prices = append(ms.prices, PriceEvent{})
		copy(ms.prices[idx+1:], ms.prices[idx:])
		ms.prices[idx] = e
	}
	return nil
}

// previousPrice returns the latest recorded price for the ingredient at or
// before at. Caller must hold ms.mu.
func (ms *MemoryStore) previousPrice(ingredientID string, at time.Time) (float64, bool) {
	for i := len(ms.prices) - 1; i >= 0; i-- {
		p := ms.prices[i]
		if p.IngredientID == ingredientID && !p.OccurredAt.After(at) {
			return p.Price, true
		}
	}
	return 0, false
}

func (ms *MemoryStore) AppendUsageEvents(_ context.Context, events []UsageEvent) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for _, e := range events {
		idx := sort.Search(len(ms.usage), func(i int) bool {
			return ms.usage[i].OccurredAt.After(e.OccurredAt)
		})
		ms.usage = append(ms.usage, UsageEvent{})
		copy(ms.usage[idx+1:], ms.usage[idx:])
		ms.usage[idx] = e
	}
	return nil
}

func (ms *MemoryStore) FetchPriceEvents(ctx context.Context, start, end time.Time, ingredientID string) ([]PriceEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	lo := sort.Search(len(ms.prices), func(i int) bool {
		return !ms.prices[i].OccurredAt.Before(start)
	})
	var out []PriceEvent
	for i := lo; i < len(ms.prices) && !ms.prices[i].OccurredAt.After(end); i++ {
		e := ms.prices[i]
		if ingredientID != "" && e.IngredientID != ingredientID {
			continue
		}
		if ms.loc != nil {
			e.OccurredAt = e.OccurredAt.In(ms.loc)
		}
		out = append(out, e)
	}
	return out, nil
}

func (ms *MemoryStore) FetchUsageEvents(ctx context.Context, start, end time.Time, ingredientID string, usageType UsageType) ([]UsageEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	lo := sort.Search(len(ms.usage), func(i int) bool {
		return !ms.usage[i].OccurredAt.Before(start)
	})
	var out []UsageEvent
	for i := lo; i < len(ms.usage) && !ms.usage[i].OccurredAt.After(end); i++ {
		e := ms.usage[i]
		if ingredientID != "" && e.IngredientID != ingredientID {
			continue
		}
		if usageType != "" && e.UsageType != usageType {
			continue
		}
		if ms.loc != nil {
			e.OccurredAt = e.OccurredAt.In(ms.loc)
		}
		out = append(out, e)
	}
	return out, nil
}

// FetchIngredients returns a copy of the ingredient table, including
// inactive entries. Use Lookup to resolve ids.
func (ms *MemoryStore) FetchIngredients(ctx context.Context) (map[string]Ingredient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make(map[string]Ingredient, len(ms.ingredients))
	for id, ing := range ms.ingredients {
		out[id] = ing
	}
	return out, nil
}

func (ms *MemoryStore) Prune(ctx context.Context, cutoff time.Time) (PruneResult, error) {
	if err := ctx.Err(); err != nil {
		return PruneResult{}, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	// Both logs are sorted, so expired events form a prefix.
	p := sort.Search(len(ms.prices), func(i int) bool {
		return !ms.prices[i].OccurredAt.Before(cutoff)
	})
	u := sort.Search(len(ms.usage), func(i int) bool {
		return !ms.usage[i].OccurredAt.Before(cutoff)
	})
	ms.prices = append([]PriceEvent(nil), ms.prices[p:]...)
	ms.usage = append([]UsageEvent(nil), ms.usage[u:]...)
	return PruneResult{PriceEvents: int64(p), UsageEvents: int64(u)}, nil
}

// Close is a no-op; it exists so MemoryStore satisfies Store.
func (ms *MemoryStore) Close() error {
	return nil
}
