//go:build conformance

package conformance

import (
	"context"
	"testing"

	_ "github.com/go-sql-driver/mysql"

	"github.com/axonops/axonops-schema-registry/internal/storage"
	"github.com/axonops/axonops-schema-registry/internal/storage/mysql"
)

func TestMySQLBackend(t *testing.T) {
	cfg := mysql.Config{
		Host:     getEnvOrDefault("MYSQL_HOST", "localhost"),
		Port:     getEnvOrDefaultInt("MYSQL_PORT", 3306),
		Username: getEnvOrDefault("MYSQL_USER", "synchub"),
		Password: getEnvOrDefault("MYSQL_PASSWORD", "synchub"),
		Database: getEnvOrDefault("MYSQL_DATABASE", "synchub"),
	}

	store, err := mysql.NewStore(cfg)
	if err != nil {
		t.Fatalf("failed to create mysql store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Connect(ctx, true); err != nil {
		t.Fatalf("failed to connect/migrate mysql store: %v", err)
	}

	RunAll(t, func() storage.Storage {
		if err := store.Drop(ctx); err != nil {
			t.Fatalf("failed to reset mysql store: %v", err)
		}
		return &noCloseStore{store}
	})
}
