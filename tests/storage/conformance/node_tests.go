package conformance

import (
	"context"
	"errors"
	"testing"

	"github.com/axonops/axonops-schema-registry/internal/storage"
)

// RunNodeTests exercises Node CRUD and permission bits (section 3).
func RunNodeTests(t *testing.T, newStore StoreFactory) {
	t.Helper()
	ctx := context.Background()

	t.Run("SaveAndGet", func(t *testing.T) {
		s := newStore()
		defer s.Close()

		node := &storage.Node{Name: "writer", Create: true, Read: true}
		if err := s.SaveNode(ctx, node); err != nil {
			t.Fatalf("save node: %v", err)
		}
		if node.ID == "" {
			t.Fatal("expected an id to be assigned")
		}

		got, err := s.GetNode(ctx, node.ID)
		if err != nil {
			t.Fatalf("get node: %v", err)
		}
		if !got.Create || !got.Read || got.Update || got.Delete {
			t.Fatalf("unexpected permissions: %+v", got)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore()
		defer s.Close()
		if _, err := s.GetNode(ctx, "does-not-exist"); !errors.Is(err, storage.ErrNodeNotFound) {
			t.Fatalf("expected ErrNodeNotFound, got %v", err)
		}
	})

	t.Run("GetNodes", func(t *testing.T) {
		s := newStore()
		defer s.Close()

		for _, name := range []string{"a", "b", "c"} {
			if err := s.SaveNode(ctx, &storage.Node{Name: name}); err != nil {
				t.Fatalf("save node %s: %v", name, err)
			}
		}

		nodes, err := s.GetNodes(ctx)
		if err != nil {
			t.Fatalf("get nodes: %v", err)
		}
		if len(nodes) != 3 {
			t.Fatalf("expected 3 nodes, got %d", len(nodes))
		}
	})

	t.Run("DisablePermissions", func(t *testing.T) {
		s := newStore()
		defer s.Close()

		node := &storage.Node{Name: "n", Create: true, Read: true, Update: true, Delete: true}
		if err := s.SaveNode(ctx, node); err != nil {
			t.Fatalf("save node: %v", err)
		}
		node.Create, node.Read, node.Update, node.Delete = false, false, false, false
		if err := s.SaveNode(ctx, node); err != nil {
			t.Fatalf("disable node: %v", err)
		}

		got, err := s.GetNode(ctx, node.ID)
		if err != nil {
			t.Fatalf("get node: %v", err)
		}
		if got.Create || got.Read || got.Update || got.Delete {
			t.Fatalf("expected all permissions cleared, got %+v", got)
		}
	})
}
