package storage

import (
	"context"
	"fmt"

	"ratelimiter/internal/models"
)

// Factory creates violation stores from configuration.
type Factory struct{}

// NewFactory creates a new storage factory
func NewFactory() *Factory {
	return &Factory{}
}

// Create instantiates the backend named by config.Type:
//   - memory: bounded in-process log (default)
//   - sqlite: SQLite file via modernc.org/sqlite
//   - postgres: PostgreSQL via pgx
func (f *Factory) Create(ctx context.Context, config models.StorageConfig) (ViolationStore, error) {
	if err := f.ValidateConfig(config); err != nil {
		return nil, err
	}

	switch config.Type {
	case models.StorageTypeMemory:
		return NewMemoryStore(DefaultMemoryCapacity), nil
	case models.StorageTypeSQLite:
		return NewSQLiteStore(ctx, config.Database)
	case models.StorageTypePostgres:
		return NewPostgresStore(ctx, config.Database)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
	}
}

// GetSupportedProviders returns a list of all supported storage provider types
func (f *Factory) GetSupportedProviders() []string {
	return []string{models.StorageTypeMemory, models.StorageTypeSQLite, models.StorageTypePostgres}
}

// ValidateConfig checks that config carries what its backend needs.
func (f *Factory) ValidateConfig(config models.StorageConfig) error {
	switch config.Type {
	case models.StorageTypeMemory:
	case models.StorageTypePostgres, models.StorageTypeSQLite:
		if config.Database.DSN == "" {
			return fmt.Errorf("database DSN is required for %s storage", config.Type)
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", config.Type)
	}
	return nil
}
