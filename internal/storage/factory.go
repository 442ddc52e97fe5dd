package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nixlim/pantrycost/internal/config"
	"github.com/nixlim/pantrycost/internal/records"
	"github.com/nixlim/pantrycost/internal/storage/postgres"
)

// Backend is a records.Store that supports retention and timezone-aware
// reads. Every driver NewStore can return implements it.
type Backend interface {
	records.Store
	records.Pruner
	SetLocation(loc *time.Location)
}

// NewStore opens the store selected by cfg.Driver. When the SQLite file
// cannot be opened it falls back to an in-memory store and reports
// persistent=false. A Postgres failure is returned as an error since there
// is no sensible local substitute for a shared database.
func NewStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (store Backend, persistent bool, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, false, err
	}

	switch cfg.Driver {
	case config.DriverPostgres:
		pg, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, false, err
		}
		pg.SetLocation(loc)
		return pg, true, nil

	case config.DriverMemory:
		ms := records.NewMemoryStore()
		ms.SetLocation(loc)
		return ms, false, nil
	}

	if cfg.DBPath == "" {
		ms := records.NewMemoryStore()
		ms.SetLocation(loc)
		return ms, false, nil
	}

	dbPath := expandTilde(cfg.DBPath)
	sq, err := NewSQLiteStore(dbPath, cfg.RetentionDays, logger)
	if err != nil {
		logger.Warn("SQLite storage unavailable, falling back to in-memory store",
			zap.String("db_path", dbPath), zap.Error(err))
		ms := records.NewMemoryStore()
		ms.SetLocation(loc)
		return ms, false, nil
	}
	sq.SetLocation(loc)
	return sq, true, nil
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
