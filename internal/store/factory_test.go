package store_test

import (
	"context"
	"testing"

	"futurehub/internal/config"
	"futurehub/internal/store"
)

func TestNewStoreFromConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("memory store", func(t *testing.T) {
		got, err := store.NewStoreFromConfig(ctx, config.StoreConfig{Type: "memory"}, nil)
		if err != nil {
			t.Fatalf("NewStoreFromConfig() unexpected error: %v", err)
		}
		defer got.Close()
		if _, ok := got.(*store.MemoryStore); !ok {
			t.Errorf("NewStoreFromConfig() = %T, want *store.MemoryStore", got)
		}
	})

	t.Run("sqlite store", func(t *testing.T) {
		cfg := config.StoreConfig{Type: "sqlite", DataDir: t.TempDir(), PollInterval: "50ms"}
		got, err := store.NewStoreFromConfig(ctx, cfg, nil)
		if err != nil {
			t.Fatalf("NewStoreFromConfig() unexpected error: %v", err)
		}
		defer got.Close()
		if _, ok := got.(*store.SQLiteStore); !ok {
			t.Errorf("NewStoreFromConfig() = %T, want *store.SQLiteStore", got)
		}
	})

	errCases := []struct {
		name string
		cfg  config.StoreConfig
	}{
		{"sqlite without data_dir", config.StoreConfig{Type: "sqlite"}},
		{"sqlite with bad interval", config.StoreConfig{Type: "sqlite", DataDir: "/tmp", PollInterval: "often"}},
		{"firestore without project", config.StoreConfig{Type: "firestore"}},
		{"unknown store type", config.StoreConfig{Type: "unknown"}},
	}
	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := store.NewStoreFromConfig(ctx, tc.cfg, nil)
			if err == nil {
				t.Error("NewStoreFromConfig() expected error, got nil")
			}
			if got != nil {
				t.Error("NewStoreFromConfig() should return nil on error")
				got.Close()
			}
		})
	}
}
