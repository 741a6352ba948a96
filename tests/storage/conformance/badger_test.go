//go:build conformance

package conformance

import (
	"context"
	"os"
	"testing"

	"github.com/axonops/axonops-schema-registry/internal/storage"
	"github.com/axonops/axonops-schema-registry/internal/storage/badger"
)

func TestBadgerBackend(t *testing.T) {
	dir, err := os.MkdirTemp("", "synchub-badger-conformance-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	store, err := badger.NewStore(badger.Config{Path: dir})
	if err != nil {
		t.Fatalf("failed to create badger store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	RunAllFlattened(t, func() storage.Storage {
		if err := store.Drop(ctx); err != nil {
			t.Fatalf("failed to reset badger store: %v", err)
		}
		return &noCloseStore{store}
	})
}
