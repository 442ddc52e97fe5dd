package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nixlim/pantrycost/internal/records"
)

// batchSize caps the number of rows written per transaction.
const batchSize = 500

var ErrClosed = errors.New("storage: store is closed")

// SQLiteStore is a records.Store backed by a single SQLite file. Writes are
// synchronous and batched per transaction; reads may run concurrently with
// them thanks to WAL mode.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger

	locMu sync.RWMutex
	loc   *time.Location

	closed          atomic.Bool
	cancelMaint     context.CancelFunc
	maintenanceDone chan struct{}
}

var _ records.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// starts hourly retention maintenance. A retentionDays of zero or less
// disables maintenance.
func NewSQLiteStore(dbPath string, retentionDays int, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	store := &SQLiteStore{
		db:              db,
		logger:          logger.Named("sqlite"),
		loc:             time.UTC,
		cancelMaint:     cancel,
		maintenanceDone: make(chan struct{}),
	}

	if retentionDays > 0 {
		store.startMaintenance(ctx, retentionDays)
	} else {
		close(store.maintenanceDone)
	}

	return store, nil
}

// SetLocation sets the timezone that fetched timestamps are returned in.
func (s *SQLiteStore) SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	s.locMu.Lock()
	s.loc = loc
	s.locMu.Unlock()
}

func (s *SQLiteStore) location() *time.Location {
	s.locMu.RLock()
	defer s.locMu.RUnlock()
	return s.loc
}

func (s *SQLiteStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.cancelMaint()
	select {
	case <-s.maintenanceDone:
	case <-time.After(30 * time.Second):
		s.logger.Warn("maintenance goroutine did not stop within 30s")
	}

	return s.db.Close()
}

func (s *SQLiteStore) checkOpen() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// inBatches runs fn over consecutive chunks of n items, one transaction
// per chunk. A failing chunk rolls back only itself; earlier chunks stay
// committed.
func (s *SQLiteStore) inBatches(ctx context.Context, n int, fn func(tx *sql.Tx, lo, hi int) error) error {
	for lo := 0; lo < n; lo += batchSize {
		hi := lo + batchSize
		if hi > n {
			hi = n
		}
		if err := s.flushBatch(ctx, func(tx *sql.Tx) error { return fn(tx, lo, hi) }); err != nil {
			return fmt.Errorf("writing rows %d-%d: %w", lo, hi-1, err)
		}
	}
	return nil
}

func (s *SQLiteStore) flushBatch(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
