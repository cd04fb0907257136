package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mailsentry/mailsentry/internal/adapters/store"
	"github.com/mailsentry/mailsentry/internal/config"
	"github.com/mailsentry/mailsentry/internal/core"
)

// StoreFactory creates pattern and verdict stores based on configuration
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger

	// memory is shared so the in-memory pattern store, verdict store and
	// sender history all live in one place when configured that way
	memory *store.MemoryStore
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
		memory: store.NewMemoryStore(),
	}
}

// Memory returns the shared in-memory store
func (f *StoreFactory) Memory() *store.MemoryStore {
	return f.memory
}

// CreatePatternStore creates the lookalike pattern store
func (f *StoreFactory) CreatePatternStore() (core.PatternStore, error) {
	cfg := f.cfg.GetLookalike()

	switch cfg.StoreType {
	case "memory":
		return f.memory, nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return store.NewSQLitePatternStore(cfg.SQLitePath, f.logger)
	case "mysql":
		return store.NewMySQLPatternStore(cfg.MySQLDSN, f.logger)
	default:
		return nil, fmt.Errorf("unsupported pattern store type: %s", cfg.StoreType)
	}
}

// CreateVerdictStore creates the verdict store
func (f *StoreFactory) CreateVerdictStore() (core.VerdictStore, error) {
	cfg := f.cfg.GetVerdicts()

	switch cfg.StoreType {
	case "memory":
		return f.memory, nil
	case "postgres":
		return store.NewPostgresVerdictStore(cfg.PostgresDSN, f.logger)
	default:
		return nil, fmt.Errorf("unsupported verdict store type: %s", cfg.StoreType)
	}
}
