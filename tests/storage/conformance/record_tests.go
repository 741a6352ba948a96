package conformance

import (
	"context"
	"errors"
	"testing"

	"github.com/axonops/axonops-schema-registry/internal/storage"
)

// RunRecordTests exercises Record CRUD and the batched GetRecords iterator
// (section 4.A, §8's GetRecords batching invariant).
func RunRecordTests(t *testing.T, newStore StoreFactory) {
	t.Helper()
	ctx := context.Background()

	t.Run("SaveAndGet", func(t *testing.T) {
		s := newStore()
		defer s.Close()

		record := &storage.Record{Head: map[string]interface{}{"foo": "bar"}}
		if err := s.SaveRecord(ctx, record); err != nil {
			t.Fatalf("save record: %v", err)
		}
		if record.ID == "" {
			t.Fatal("expected an id to be assigned")
		}
		if record.LastUpdated.IsZero() {
			t.Fatal("expected last_updated to be stamped")
		}

		got, err := s.GetRecord(ctx, record.ID)
		if err != nil {
			t.Fatalf("get record: %v", err)
		}
		if got.Head["foo"] != "bar" {
			t.Fatalf("unexpected head: %+v", got.Head)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore()
		defer s.Close()
		if _, err := s.GetRecord(ctx, "does-not-exist"); !errors.Is(err, storage.ErrRecordNotFound) {
			t.Fatalf("expected ErrRecordNotFound, got %v", err)
		}
	})

	t.Run("DeletedHasNilHead", func(t *testing.T) {
		s := newStore()
		defer s.Close()

		record := &storage.Record{Head: map[string]interface{}{"foo": "bar"}}
		if err := s.SaveRecord(ctx, record); err != nil {
			t.Fatalf("save record: %v", err)
		}
		record.Deleted = true
		record.Head = nil
		if err := s.SaveRecord(ctx, record); err != nil {
			t.Fatalf("save deleted record: %v", err)
		}

		got, err := s.GetRecord(ctx, record.ID)
		if err != nil {
			t.Fatalf("get record: %v", err)
		}
		if !got.Deleted || got.Head != nil {
			t.Fatalf("expected deleted record with nil head, got %+v", got)
		}
	})

	t.Run("GetRecordsExcludesDeletedAndEagerLoadsRemotes", func(t *testing.T) {
		s := newStore()
		defer s.Close()

		live := &storage.Record{Head: map[string]interface{}{"n": 1}}
		if err := s.SaveRecord(ctx, live); err != nil {
			t.Fatalf("save live record: %v", err)
		}
		dead := &storage.Record{Head: map[string]interface{}{"n": 2}}
		if err := s.SaveRecord(ctx, dead); err != nil {
			t.Fatalf("save record to delete: %v", err)
		}
		dead.Deleted, dead.Head = true, nil
		if err := s.SaveRecord(ctx, dead); err != nil {
			t.Fatalf("delete record: %v", err)
		}

		node := &storage.Node{Name: "n"}
		if err := s.SaveNode(ctx, node); err != nil {
			t.Fatalf("save node: %v", err)
		}
		remote := &storage.Remote{NodeID: node.ID, RecordID: live.ID, RemoteID: "r-1"}
		if err := s.SaveRemote(ctx, remote); err != nil {
			t.Fatalf("save remote: %v", err)
		}

		var seen []*storage.Record
		err := s.GetRecords(ctx, func(batch storage.RecordBatch) error {
			seen = append(seen, batch.Records...)
			return nil
		})
		if err != nil {
			t.Fatalf("get records: %v", err)
		}
		if len(seen) != 1 {
			t.Fatalf("expected 1 non-deleted record, got %d", len(seen))
		}
		if seen[0].ID != live.ID {
			t.Fatalf("expected live record, got %s", seen[0].ID)
		}
		if seen[0].Remote(node.ID) == nil {
			t.Fatal("expected eagerly-loaded remote binding")
		}
	})
}
