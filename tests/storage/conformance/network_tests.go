package conformance

import (
	"context"
	"errors"
	"testing"

	"github.com/axonops/axonops-schema-registry/internal/storage"
)

// RunNetworkTests exercises the Network singleton CRUD contract (section 3).
func RunNetworkTests(t *testing.T, newStore StoreFactory) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetBeforeSave", func(t *testing.T) {
		s := newStore()
		defer s.Close()
		if _, err := s.GetNetwork(ctx); !errors.Is(err, storage.ErrNetworkNotFound) {
			t.Fatalf("expected ErrNetworkNotFound, got %v", err)
		}
	})

	t.Run("SaveAndGet", func(t *testing.T) {
		s := newStore()
		defer s.Close()

		network := &storage.Network{
			Name:            "test",
			Schema:          `{"type":"object"}`,
			FetchBeforeSend: true,
		}
		if err := s.SaveNetwork(ctx, network); err != nil {
			t.Fatalf("save network: %v", err)
		}
		if network.ID == "" {
			t.Fatal("expected an id to be assigned")
		}

		got, err := s.GetNetwork(ctx)
		if err != nil {
			t.Fatalf("get network: %v", err)
		}
		if got.Name != "test" || got.FetchBeforeSend != true {
			t.Fatalf("unexpected network: %+v", got)
		}
	})

	t.Run("UpdateIsIdempotentOnID", func(t *testing.T) {
		s := newStore()
		defer s.Close()

		network := &storage.Network{Name: "v1", Schema: `{}`}
		if err := s.SaveNetwork(ctx, network); err != nil {
			t.Fatalf("save network: %v", err)
		}
		network.Name = "v2"
		if err := s.SaveNetwork(ctx, network); err != nil {
			t.Fatalf("update network: %v", err)
		}

		got, err := s.GetNetwork(ctx)
		if err != nil {
			t.Fatalf("get network: %v", err)
		}
		if got.Name != "v2" {
			t.Fatalf("expected updated name v2, got %s", got.Name)
		}
	})
}
