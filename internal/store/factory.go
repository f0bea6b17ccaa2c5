package store

import (
	"context"
	"fmt"

	"futurehub/internal/config"
	"futurehub/internal/database"
	"futurehub/internal/hub"
)

// NewStoreFromConfig creates a RemoteStore based on the store config type.
func NewStoreFromConfig(ctx context.Context, cfg config.StoreConfig, logger hub.Logger) (hub.RemoteStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(nil, nil), nil
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite store")
		}
		every, err := cfg.PollEvery()
		if err != nil {
			return nil, err
		}
		db, err := database.Open(database.PathIn(cfg.DataDir))
		if err != nil {
			return nil, fmt.Errorf("opening store database: %w", err)
		}
		return NewSQLiteStore(db, SQLiteOptions{Logger: logger, PollInterval: every}), nil
	case "firestore":
		if cfg.ProjectID == "" && cfg.CredentialsFile == "" {
			return nil, fmt.Errorf("project_id or credentials_file required for firestore store")
		}
		fs, err := NewFirestoreStore(ctx, cfg.ProjectID, cfg.CredentialsFile, logger)
		if err != nil {
			return nil, err
		}
		return fs, nil
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
