package conformance

import (
	"context"
	"errors"
	"testing"

	"github.com/axonops/axonops-schema-registry/internal/storage"
)

// RunRemoteTests exercises the identity-mapping lookups (section 3): a
// remote found by (node_id, remote_id) and by (node_id, record_id), the
// error when neither id is given, and a missing binding. Uniqueness of
// either pair is not tested here.
func RunRemoteTests(t *testing.T, newStore StoreFactory) {
	t.Helper()
	ctx := context.Background()

	t.Run("SaveAndGetByRemoteID", func(t *testing.T) {
		s := newStore()
		defer s.Close()

		node := &storage.Node{Name: "n"}
		if err := s.SaveNode(ctx, node); err != nil {
			t.Fatalf("save node: %v", err)
		}
		record := &storage.Record{Head: map[string]interface{}{}}
		if err := s.SaveRecord(ctx, record); err != nil {
			t.Fatalf("save record: %v", err)
		}

		remote := &storage.Remote{NodeID: node.ID, RecordID: record.ID, RemoteID: "abcd"}
		if err := s.SaveRemote(ctx, remote); err != nil {
			t.Fatalf("save remote: %v", err)
		}

		got, err := s.GetRemote(ctx, node.ID, "abcd", "")
		if err != nil {
			t.Fatalf("get remote by remote id: %v", err)
		}
		if got.RecordID != record.ID {
			t.Fatalf("expected record id %s, got %s", record.ID, got.RecordID)
		}
	})

	t.Run("GetByRecordID", func(t *testing.T) {
		s := newStore()
		defer s.Close()

		node := &storage.Node{Name: "n"}
		if err := s.SaveNode(ctx, node); err != nil {
			t.Fatalf("save node: %v", err)
		}
		record := &storage.Record{Head: map[string]interface{}{}}
		if err := s.SaveRecord(ctx, record); err != nil {
			t.Fatalf("save record: %v", err)
		}
		remote := &storage.Remote{NodeID: node.ID, RecordID: record.ID, RemoteID: "xyz"}
		if err := s.SaveRemote(ctx, remote); err != nil {
			t.Fatalf("save remote: %v", err)
		}

		got, err := s.GetRemote(ctx, node.ID, "", record.ID)
		if err != nil {
			t.Fatalf("get remote by record id: %v", err)
		}
		if got.RemoteID != "xyz" {
			t.Fatalf("expected remote id xyz, got %s", got.RemoteID)
		}
	})

	t.Run("NeitherIDIsInvalidOperation", func(t *testing.T) {
		s := newStore()
		defer s.Close()
		if _, err := s.GetRemote(ctx, "node", "", ""); !errors.Is(err, storage.ErrInvalidOperation) {
			t.Fatalf("expected ErrInvalidOperation, got %v", err)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore()
		defer s.Close()
		if _, err := s.GetRemote(ctx, "node", "nope", ""); !errors.Is(err, storage.ErrRemoteNotFound) {
			t.Fatalf("expected ErrRemoteNotFound, got %v", err)
		}
	})
}
