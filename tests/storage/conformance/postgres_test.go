//go:build conformance

package conformance

import (
	"context"
	"testing"

	_ "github.com/lib/pq"

	"github.com/axonops/axonops-schema-registry/internal/storage"
	"github.com/axonops/axonops-schema-registry/internal/storage/postgres"
)

func TestPostgresBackend(t *testing.T) {
	cfg := postgres.Config{
		Host:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
		Port:     getEnvOrDefaultInt("POSTGRES_PORT", 5432),
		Username: getEnvOrDefault("POSTGRES_USER", "synchub"),
		Password: getEnvOrDefault("POSTGRES_PASSWORD", "synchub"),
		Database: getEnvOrDefault("POSTGRES_DATABASE", "synchub"),
		SSLMode:  "disable",
	}

	store, err := postgres.NewStore(cfg)
	if err != nil {
		t.Fatalf("failed to create postgres store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Connect(ctx, true); err != nil {
		t.Fatalf("failed to connect/migrate postgres store: %v", err)
	}

	RunAll(t, func() storage.Storage {
		if err := store.Drop(ctx); err != nil {
			t.Fatalf("failed to reset postgres store: %v", err)
		}
		return &noCloseStore{store}
	})
}
