package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nixlim/pantrycost/internal/records"
)

func (s *SQLiteStore) FetchPriceEvents(ctx context.Context, start, end time.Time, ingredientID string) ([]records.PriceEvent, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	query := `
		SELECT id, ingredient_id, price, occurred_at, supplier_id, change_percentage, notes
		FROM price_events
		WHERE occurred_at >= ? AND occurred_at <= ?`
	args := []any{start.UnixNano(), end.UnixNano()}
	if ingredientID != "" {
		query += " AND ingredient_id = ?"
		args = append(args, ingredientID)
	}
	query += " ORDER BY occurred_at, seq"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying price events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	loc := s.location()
	var out []records.PriceEvent
	for rows.Next() {
		var (
			e      records.PriceEvent
			at     int64
			change sql.NullFloat64
		)
		if err := rows.Scan(&e.ID, &e.IngredientID, &e.Price, &at, &e.SupplierID, &change, &e.Notes); err != nil {
			return nil, fmt.Errorf("scanning price event: %w", err)
		}
		e.OccurredAt = time.Unix(0, at).In(loc)
		if change.Valid {
			pct := change.Float64
			e.ChangePercentage = &pct
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating price events: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) FetchUsageEvents(ctx context.Context, start, end time.Time, ingredientID string, usageType records.UsageType) ([]records.UsageEvent, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var (
		where = []string{"occurred_at >= ?", "occurred_at <= ?"}
		args  = []any{start.UnixNano(), end.UnixNano()}
	)
	if ingredientID != "" {
		where = append(where, "ingredient_id = ?")
		args = append(args, ingredientID)
	}
	if usageType != "" {
		where = append(where, "usage_type = ?")
		args = append(args, string(usageType))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ingredient_id, quantity, unit, occurred_at, usage_type, recipe_id, notes
		FROM usage_events
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY occurred_at, seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying usage events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	loc := s.location()
	var out []records.UsageEvent
	for rows.Next() {
		var (
			e  records.UsageEvent
			at int64
			ut string
		)
		if err := rows.Scan(&e.ID, &e.IngredientID, &e.Quantity, &e.Unit, &at, &ut, &e.RecipeID, &e.Notes); err != nil {
			return nil, fmt.Errorf("scanning usage event: %w", err)
		}
		e.OccurredAt = time.Unix(0, at).In(loc)
		e.UsageType = records.UsageType(ut)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage events: %w", err)
	}
	return out, nil
}

// FetchIngredients returns every ingredient, inactive ones included.
func (s *SQLiteStore) FetchIngredients(ctx context.Context) (map[string]records.Ingredient, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, unit, current_price, is_active FROM ingredients
	`)
	if err != nil {
		return nil, fmt.Errorf("querying ingredients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]records.Ingredient)
	for rows.Next() {
		var (
			ing            records.Ingredient
			category, unit string
			active         int
		)
		if err := rows.Scan(&ing.ID, &ing.Name, &category, &unit, &ing.CurrentPrice, &active); err != nil {
			return nil, fmt.Errorf("scanning ingredient: %w", err)
		}
		ing.Category = records.Category(category)
		ing.Unit = records.Unit(unit)
		ing.Active = active != 0
		out[ing.ID] = ing
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ingredients: %w", err)
	}
	return out, nil
}
