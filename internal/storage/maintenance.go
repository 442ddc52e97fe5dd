package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nixlim/pantrycost/internal/records"
)

const (
	maintenanceInterval = 1 * time.Hour
	vacuumInterval      = 7 * 24 * time.Hour
)

func (s *SQLiteStore) startMaintenance(ctx context.Context, retentionDays int) {
	go s.maintenanceLoop(ctx, retentionDays)
}

func (s *SQLiteStore) maintenanceLoop(ctx context.Context, retentionDays int) {
	defer close(s.maintenanceDone)

	lastVacuum := time.Now()
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.runMaintenanceCycle(ctx, time.Now(), retentionDays); err != nil {
				s.logger.Error("maintenance cycle failed", zap.Error(err))
			}

			if time.Since(lastVacuum) >= vacuumInterval {
				if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
					s.logger.Error("VACUUM failed", zap.Error(err))
				} else {
					lastVacuum = time.Now()
				}
			}
		}
	}
}

func (s *SQLiteStore) runMaintenanceCycle(ctx context.Context, now time.Time, retentionDays int) error {
	res, err := s.Prune(ctx, now.AddDate(0, 0, -retentionDays))
	if err != nil {
		return err
	}
	if res.PriceEvents > 0 || res.UsageEvents > 0 {
		s.logger.Info("pruned expired events",
			zap.Int64("price_events", res.PriceEvents),
			zap.Int64("usage_events", res.UsageEvents),
			zap.Int("retention_days", retentionDays),
		)
	}
	return nil
}

// Prune deletes every price and usage event that occurred strictly before
// cutoff. Ingredients are never pruned.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (records.PruneResult, error) {
	if err := s.checkOpen(); err != nil {
		return records.PruneResult{}, err
	}

	var res records.PruneResult
	err := s.flushBatch(ctx, func(tx *sql.Tx) error {
		r, err := tx.ExecContext(ctx, "DELETE FROM price_events WHERE occurred_at < ?", cutoff.UnixNano())
		if err != nil {
			return fmt.Errorf("pruning old price events: %w", err)
		}
		res.PriceEvents, _ = r.RowsAffected()

		r, err = tx.ExecContext(ctx, "DELETE FROM usage_events WHERE occurred_at < ?", cutoff.UnixNano())
		if err != nil {
			return fmt.Errorf("pruning old usage events: %w", err)
		}
		res.UsageEvents, _ = r.RowsAffected()
		return nil
	})
	return res, err
}
