package conformance

import (
	"context"
	"errors"
	"testing"

	"github.com/axonops/axonops-schema-registry/internal/storage"
)

// RunTransactionTests exercises the Begin/Commit/Rollback stack discipline
// (section 4.A: an inner Begin pushes, a matching Commit/Rollback pops).
// nestedRollbackIsolated is false for backends that flatten nested
// transactions (design note 9) and so skip the isolation sub-test.
func RunTransactionTests(t *testing.T, newStore StoreFactory, nestedRollbackIsolated bool) {
	t.Helper()
	ctx := context.Background()

	t.Run("CommitPersists", func(t *testing.T) {
		s := newStore()
		defer s.Close()

		tx, err := s.Begin(ctx)
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		node := &storage.Node{Name: "n"}
		if err := s.SaveNode(tx, node); err != nil {
			t.Fatalf("save node: %v", err)
		}
		if err := s.Commit(tx); err != nil {
			t.Fatalf("commit: %v", err)
		}

		if _, err := s.GetNode(ctx, node.ID); err != nil {
			t.Fatalf("expected node to persist after commit: %v", err)
		}
	})

	t.Run("RollbackDiscards", func(t *testing.T) {
		s := newStore()
		defer s.Close()

		tx, err := s.Begin(ctx)
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		node := &storage.Node{Name: "n"}
		if err := s.SaveNode(tx, node); err != nil {
			t.Fatalf("save node: %v", err)
		}
		if err := s.Rollback(tx); err != nil {
			t.Fatalf("rollback: %v", err)
		}

		if _, err := s.GetNode(ctx, node.ID); !errors.Is(err, storage.ErrNodeNotFound) {
			t.Fatalf("expected node to be discarded after rollback, got %v", err)
		}
	})

	t.Run("NestedBeginCommitStack", func(t *testing.T) {
		s := newStore()
		defer s.Close()

		outer, err := s.Begin(ctx)
		if err != nil {
			t.Fatalf("begin outer: %v", err)
		}
		inner, err := s.Begin(outer)
		if err != nil {
			t.Fatalf("begin inner: %v", err)
		}

		node := &storage.Node{Name: "n"}
		if err := s.SaveNode(inner, node); err != nil {
			t.Fatalf("save node: %v", err)
		}
		if err := s.Commit(inner); err != nil {
			t.Fatalf("commit inner: %v", err)
		}
		if err := s.Commit(outer); err != nil {
			t.Fatalf("commit outer: %v", err)
		}

		if _, err := s.GetNode(ctx, node.ID); err != nil {
			t.Fatalf("expected node to persist after nested commit: %v", err)
		}
	})

	t.Run("InnerRollbackDiscardsOnlyInnerWork", func(t *testing.T) {
		if !nestedRollbackIsolated {
			t.Skip("backend flattens nested transactions (design note 9)")
		}
		s := newStore()
		defer s.Close()

		outer, err := s.Begin(ctx)
		if err != nil {
			t.Fatalf("begin outer: %v", err)
		}
		outerNode := &storage.Node{Name: "outer"}
		if err := s.SaveNode(outer, outerNode); err != nil {
			t.Fatalf("save outer node: %v", err)
		}

		inner, err := s.Begin(outer)
		if err != nil {
			t.Fatalf("begin inner: %v", err)
		}
		innerNode := &storage.Node{Name: "inner"}
		if err := s.SaveNode(inner, innerNode); err != nil {
			t.Fatalf("save inner node: %v", err)
		}
		if err := s.Rollback(inner); err != nil {
			t.Fatalf("rollback inner: %v", err)
		}
		if err := s.Commit(outer); err != nil {
			t.Fatalf("commit outer: %v", err)
		}

		if _, err := s.GetNode(ctx, outerNode.ID); err != nil {
			t.Fatalf("expected outer node to persist: %v", err)
		}
		if _, err := s.GetNode(ctx, innerNode.ID); !errors.Is(err, storage.ErrNodeNotFound) {
			t.Fatalf("expected inner node to be discarded by inner rollback, got %v", err)
		}
	})
}
