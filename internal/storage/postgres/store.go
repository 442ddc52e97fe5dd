// Package postgres implements records.Store on PostgreSQL through a pgx
// connection pool, for deployments that share one record store between
// several reporting hosts.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lucsky/cuid"

	"github.com/nixlim/pantrycost/internal/records"
)

const schema = `
CREATE TABLE IF NOT EXISTS ingredients (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	category      TEXT NOT NULL,
	unit          TEXT NOT NULL,
	current_price DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_active     BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE TABLE IF NOT EXISTS price_events (
	seq               BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	id                TEXT NOT NULL UNIQUE,
	ingredient_id     TEXT NOT NULL,
	price             DOUBLE PRECISION NOT NULL,
	occurred_at       TIMESTAMPTZ NOT NULL,
	supplier_id       TEXT NOT NULL DEFAULT '',
	change_percentage DOUBLE PRECISION,
	notes             TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_price_ingredient_ts ON price_events (ingredient_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_price_ts ON price_events (occurred_at);
CREATE TABLE IF NOT EXISTS usage_events (
	seq           BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	id            TEXT NOT NULL UNIQUE,
	ingredient_id TEXT NOT NULL,
	quantity      DOUBLE PRECISION NOT NULL,
	unit          TEXT NOT NULL DEFAULT '',
	occurred_at   TIMESTAMPTZ NOT NULL,
	usage_type    TEXT NOT NULL,
	recipe_id     TEXT NOT NULL DEFAULT '',
	notes         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_usage_ingredient_ts ON usage_events (ingredient_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_usage_ts ON usage_events (occurred_at);
`

type Store struct {
	pool *pgxpool.Pool

	locMu sync.RWMutex
	loc   *time.Location
}

var (
	_ records.Store  = (*Store)(nil)
	_ records.Pruner = (*Store)(nil)
)

// Open connects to dsn and creates the tables if they do not exist.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{pool: pool, loc: time.UTC}, nil
}

// SetLocation sets the timezone that fetched timestamps are returned in.
func (s *Store) SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	s.locMu.Lock()
	s.loc = loc
	s.locMu.Unlock()
}

func (s *Store) location() *time.Location {
	s.locMu.RLock()
	defer s.locMu.RUnlock()
	return s.loc
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) PutIngredients(ctx context.Context, ingredients []records.Ingredient) error {
	batch := &pgx.Batch{}
	for _, ing := range ingredients {
		batch.Queue(`
			INSERT INTO ingredients (id, name, category, unit, current_price, is_active)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				category = EXCLUDED.category,
				unit = EXCLUDED.unit,
				current_price = EXCLUDED.current_price,
				is_active = EXCLUDED.is_active`,
			ing.ID, ing.Name, string(ing.Category), string(ing.Unit), ing.CurrentPrice, ing.Active,
		)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting ingredients: %w", err)
	}
	return nil
}

type pricePoint struct {
	price float64
	at    time.Time
	ok    bool
}

// AppendPriceEvents derives missing change percentages against the latest
// earlier price, whether stored or earlier in this call, then bulk-copies
// the events in one transaction.
func (s *Store) AppendPriceEvents(ctx context.Context, events []records.PriceEvent) error {
	ordered := make([]records.PriceEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].OccurredAt.Before(ordered[j].OccurredAt)
	})

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stored, err := storedPrevious(ctx, tx, ordered)
	if err != nil {
		return err
	}

	lastInBatch := make(map[string]pricePoint)
	for i := range ordered {
		e := &ordered[i]
		if e.ID == "" {
			e.ID = cuid.New()
		}
		if e.ChangePercentage == nil {
			prev := stored[i]
			if b, ok := lastInBatch[e.IngredientID]; ok && (!prev.ok || !b.at.Before(prev.at)) {
				prev = b
			}
			if prev.ok {
				if pct, ok := records.ChangePercentage(prev.price, e.Price); ok {
					e.ChangePercentage = &pct
				}
			}
		}
		lastInBatch[e.IngredientID] = pricePoint{price: e.Price, at: e.OccurredAt, ok: true}
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"price_events"},
		[]string{"id", "ingredient_id", "price", "occurred_at", "supplier_id", "change_percentage", "notes"},
		pgx.CopyFromSlice(len(ordered), func(i int) ([]any, error) {
			e := ordered[i]
			return []any{e.ID, e.IngredientID, e.Price, e.OccurredAt.UTC(), e.SupplierID, e.ChangePercentage, e.Notes}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copying price events: %w", err)
	}
	return tx.Commit(ctx)
}

// storedPrevious looks up, in one round trip, the latest stored price at or
// before each event that needs a derived change percentage.
func storedPrevious(ctx context.Context, tx pgx.Tx, events []records.PriceEvent) ([]pricePoint, error) {
	out := make([]pricePoint, len(events))
	batch := &pgx.Batch{}
	var idx []int
	for i, e := range events {
		if e.ChangePercentage != nil {
			continue
		}
		idx = append(idx, i)
		batch.Queue(`
			SELECT price, occurred_at FROM price_events
			WHERE ingredient_id = $1 AND occurred_at <= $2
			ORDER BY occurred_at DESC, seq DESC
			LIMIT 1`, e.IngredientID, e.OccurredAt.UTC())
	}
	if len(idx) == 0 {
		return out, nil
	}

	results := tx.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()
	for _, i := range idx {
		var p pricePoint
		err := results.QueryRow().Scan(&p.price, &p.at)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return nil, fmt.Errorf("looking up previous price: %w", err)
		default:
			p.ok = true
			out[i] = p
		}
	}
	return out, nil
}

func (s *Store) AppendUsageEvents(ctx context.Context, events []records.UsageEvent) error {
	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"usage_events"},
		[]string{"id", "ingredient_id", "quantity", "unit", "occurred_at", "usage_type", "recipe_id", "notes"},
		pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
			e := events[i]
			id := e.ID
			if id == "" {
				id = cuid.New()
			}
			return []any{id, e.IngredientID, e.Quantity, e.Unit, e.OccurredAt.UTC(), string(e.UsageType), e.RecipeID, e.Notes}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copying usage events: %w", err)
	}
	return nil
}

func (s *Store) FetchPriceEvents(ctx context.Context, start, end time.Time, ingredientID string) ([]records.PriceEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, ingredient_id, price, occurred_at, supplier_id, change_percentage, notes
		FROM price_events
		WHERE occurred_at BETWEEN $1 AND $2
		  AND ($3::text = '' OR ingredient_id = $3)
		ORDER BY occurred_at, seq`, start, end, ingredientID)
	if err != nil {
		return nil, fmt.Errorf("querying price events: %w", err)
	}

	loc := s.location()
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (records.PriceEvent, error) {
		var e records.PriceEvent
		err := row.Scan(&e.ID, &e.IngredientID, &e.Price, &e.OccurredAt, &e.SupplierID, &e.ChangePercentage, &e.Notes)
		e.OccurredAt = e.OccurredAt.In(loc)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning price events: %w", err)
	}
	return out, nil
}

func (s *Store) FetchUsageEvents(ctx context.Context, start, end time.Time, ingredientID string, usageType records.UsageType) ([]records.UsageEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, ingredient_id, quantity, unit, occurred_at, usage_type, recipe_id, notes
		FROM usage_events
		WHERE occurred_at BETWEEN $1 AND $2
		  AND ($3::text = '' OR ingredient_id = $3)
		  AND ($4::text = '' OR usage_type = $4)
		ORDER BY occurred_at, seq`, start, end, ingredientID, string(usageType))
	if err != nil {
		return nil, fmt.Errorf("querying usage events: %w", err)
	}

	loc := s.location()
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (records.UsageEvent, error) {
		var (
			e  records.UsageEvent
			ut string
		)
		err := row.Scan(&e.ID, &e.IngredientID, &e.Quantity, &e.Unit, &e.OccurredAt, &ut, &e.RecipeID, &e.Notes)
		e.OccurredAt = e.OccurredAt.In(loc)
		e.UsageType = records.UsageType(ut)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning usage events: %w", err)
	}
	return out, nil
}

func (s *Store) FetchIngredients(ctx context.Context) (map[string]records.Ingredient, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, category, unit, current_price, is_active FROM ingredients`)
	if err != nil {
		return nil, fmt.Errorf("querying ingredients: %w", err)
	}
	defer rows.Close()

	out := make(map[string]records.Ingredient)
	for rows.Next() {
		var (
			ing            records.Ingredient
			category, unit string
		)
		if err := rows.Scan(&ing.ID, &ing.Name, &category, &unit, &ing.CurrentPrice, &ing.Active); err != nil {
			return nil, fmt.Errorf("scanning ingredient: %w", err)
		}
		ing.Category = records.Category(category)
		ing.Unit = records.Unit(unit)
		out[ing.ID] = ing
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ingredients: %w", err)
	}
	return out, nil
}

func (s *Store) Prune(ctx context.Context, cutoff time.Time) (records.PruneResult, error) {
	var res records.PruneResult
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "DELETE FROM price_events WHERE occurred_at < $1", cutoff)
		if err != nil {
			return fmt.Errorf("pruning old price events: %w", err)
		}
		res.PriceEvents = tag.RowsAffected()

		tag, err = tx.Exec(ctx, "DELETE FROM usage_events WHERE occurred_at < $1", cutoff)
		if err != nil {
			return fmt.Errorf("pruning old usage events: %w", err)
		}
		res.UsageEvents = tag.RowsAffected()
		return nil
	})
	return res, err
}
