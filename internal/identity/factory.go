package identity

import (
	"fmt"

	"futurehub/internal/config"
	"futurehub/internal/database"
	"futurehub/internal/hub"
)

// NewFromConfig creates the identity source selected by the identity config.
func NewFromConfig(cfg config.IdentityConfig, logger hub.Logger) (*Local, error) {
	if cfg.Type != "local" {
		return nil, fmt.Errorf("unknown identity type: %s", cfg.Type)
	}

	ttl, err := cfg.TokenLifetime()
	if err != nil {
		return nil, err
	}
	tokens, err := NewTokenIssuer(cfg.TokenSecret, ttl, nil)
	if err != nil {
		return nil, err
	}

	var accounts AccountStore
	switch cfg.Accounts {
	case "memory":
		accounts = NewMemoryAccounts()
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite accounts")
		}
		db, err := database.Open(database.PathIn(cfg.DataDir))
		if err != nil {
			return nil, fmt.Errorf("opening accounts database: %w", err)
		}
		accounts = NewSQLiteAccounts(db)
	default:
		return nil, fmt.Errorf("unknown accounts type: %s", cfg.Accounts)
	}

	var session SessionStore = &MemorySession{}
	if cfg.SessionPath != "" {
		session = NewFileSession(cfg.SessionPath)
	}

	return NewLocal(accounts, tokens, Options{Session: session, Logger: logger}), nil
}
