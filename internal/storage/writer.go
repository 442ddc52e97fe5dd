package storage

import (
	"context"
	"database/sql"
	"math"
	"sort"

	"github.com/lucsky/cuid"

	"github.com/nixlim/pantrycost/internal/records"
)

// sanitizeFloat replaces NaN and Inf with 0.0.
func sanitizeFloat(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0.0
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteStore) PutIngredients(ctx context.Context, ingredients []records.Ingredient) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.inBatches(ctx, len(ingredients), func(tx *sql.Tx, lo, hi int) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO ingredients (id, name, category, unit, current_price, is_active)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				category = excluded.category,
				unit = excluded.unit,
				current_price = excluded.current_price,
				is_active = excluded.is_active
		`)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		for _, ing := range ingredients[lo:hi] {
			if _, err := stmt.ExecContext(ctx,
				ing.ID, ing.Name, string(ing.Category), string(ing.Unit),
				sanitizeFloat(ing.CurrentPrice), boolToInt(ing.Active),
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// AppendPriceEvents writes events in timestamp order so that each event's
// derived change percentage sees every earlier price, including those
// earlier in the same call.
func (s *SQLiteStore) AppendPriceEvents(ctx context.Context, events []records.PriceEvent) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	ordered := make([]records.PriceEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].OccurredAt.Before(ordered[j].OccurredAt)
	})

	return s.inBatches(ctx, len(ordered), func(tx *sql.Tx, lo, hi int) error {
		prev, err := tx.PrepareContext(ctx, `
			SELECT price FROM price_events
			WHERE ingredient_id = ? AND occurred_at <= ?
			ORDER BY occurred_at DESC, seq DESC
			LIMIT 1
		`)
		if err != nil {
			return err
		}
		defer func() { _ = prev.Close() }()

		ins, err := tx.PrepareContext(ctx, `
			INSERT INTO price_events (id, ingredient_id, price, occurred_at, supplier_id, change_percentage, notes)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer func() { _ = ins.Close() }()

		for _, e := range ordered[lo:hi] {
			at := e.OccurredAt.UnixNano()
			change := sql.NullFloat64{}
			if e.ChangePercentage != nil {
				change = sql.NullFloat64{Float64: sanitizeFloat(*e.ChangePercentage), Valid: true}
			} else {
				var last float64
				err := prev.QueryRowContext(ctx, e.IngredientID, at).Scan(&last)
				switch {
				case err == sql.ErrNoRows:
				case err != nil:
					return err
				default:
					if pct, ok := records.ChangePercentage(last, e.Price); ok {
						change = sql.NullFloat64{Float64: sanitizeFloat(pct), Valid: true}
					}
				}
			}

			id := e.ID
			if id == "" {
				id = cuid.New()
			}
			if _, err := ins.ExecContext(ctx,
				id, e.IngredientID, sanitizeFloat(e.Price), at, e.SupplierID, change, e.Notes,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) AppendUsageEvents(ctx context.Context, events []records.UsageEvent) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.inBatches(ctx, len(events), func(tx *sql.Tx, lo, hi int) error {
		ins, err := tx.PrepareContext(ctx, `
			INSERT INTO usage_events (id, ingredient_id, quantity, unit, occurred_at, usage_type, recipe_id, notes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer func() { _ = ins.Close() }()

		for _, e := range events[lo:hi] {
			id := e.ID
			if id == "" {
				id = cuid.New()
			}
			if _, err := ins.ExecContext(ctx,
				id, e.IngredientID, sanitizeFloat(e.Quantity), e.Unit,
				e.OccurredAt.UnixNano(), string(e.UsageType), e.RecipeID, e.Notes,
			); err != nil {
				return err
			}
		}
		return nil
	})
}
