package conformance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/axonops/axonops-schema-registry/internal/storage"
)

// RunMessageTests exercises message persistence, the per-destination FIFO
// queue-pop, message counts, bulk remote-id stamping, and the append-only
// change/error logs (sections 3, 4.D, 4.G).
func RunMessageTests(t *testing.T, newStore StoreFactory) {
	t.Helper()
	ctx := context.Background()

	t.Run("SaveAndGetByID", func(t *testing.T) {
		s := newStore()
		defer s.Close()

		msg := &storage.Message{
			OriginID: saveTestNode(t, s, "node-1"),
			Method:   storage.MethodCreate,
			Payload:  map[string]interface{}{"a": 1},
			State:    storage.StatePending,
		}
		if err := s.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("save message: %v", err)
		}
		if msg.ID == "" {
			t.Fatal("expected an id to be assigned")
		}

		got, err := s.GetMessage(ctx, storage.GetMessageFilter{MessageID: msg.ID})
		if err != nil {
			t.Fatalf("get message: %v", err)
		}
		if f, ok := got.Payload["a"].(float64); ok {
			if f != 1 {
				t.Fatalf("unexpected payload: %+v", got.Payload)
			}
		} else if got.Payload["a"] != 1 {
			t.Fatalf("unexpected payload: %+v", got.Payload)
		}
	})

	t.Run("GetMissingByID", func(t *testing.T) {
		s := newStore()
		defer s.Close()
		if _, err := s.GetMessage(ctx, storage.GetMessageFilter{MessageID: "nope"}); !errors.Is(err, storage.ErrMessageNotFound) {
			t.Fatalf("expected ErrMessageNotFound, got %v", err)
		}
	})

	t.Run("QueuePopIsFIFOByTimestamp", func(t *testing.T) {
		s := newStore()
		defer s.Close()

		dest := saveTestNode(t, s, "dest")
		base := time.Now().UTC().Truncate(time.Millisecond)
		first := &storage.Message{DestinationID: dest, State: storage.StatePending, Timestamp: base}
		second := &storage.Message{DestinationID: dest, State: storage.StatePending, Timestamp: base.Add(time.Millisecond)}
		if err := s.SaveMessage(ctx, second); err != nil {
			t.Fatalf("save second: %v", err)
		}
		if err := s.SaveMessage(ctx, first); err != nil {
			t.Fatalf("save first: %v", err)
		}

		got, err := s.GetMessage(ctx, storage.GetMessageFilter{DestinationID: dest, State: storage.StatePending})
		if err != nil {
			t.Fatalf("get message: %v", err)
		}
		if got == nil || got.ID != first.ID {
			t.Fatalf("expected the earlier message first, got %+v", got)
		}
	})

	t.Run("QueuePopEmptyReturnsNil", func(t *testing.T) {
		s := newStore()
		defer s.Close()
		got, err := s.GetMessage(ctx, storage.GetMessageFilter{DestinationID: "nobody", State: storage.StatePending})
		if err != nil {
			t.Fatalf("get message: %v", err)
		}
		if got != nil {
			t.Fatalf("expected nil, got %+v", got)
		}
	})

	t.Run("GetMessageCount", func(t *testing.T) {
		s := newStore()
		defer s.Close()

		dest := saveTestNode(t, s, "dest")
		for i := 0; i < 3; i++ {
			if err := s.SaveMessage(ctx, &storage.Message{DestinationID: dest, State: storage.StatePending}); err != nil {
				t.Fatalf("save message %d: %v", i, err)
			}
		}
		count, err := s.GetMessageCount(ctx, dest, storage.StatePending)
		if err != nil {
			t.Fatalf("get message count: %v", err)
		}
		if count != 3 {
			t.Fatalf("expected 3, got %d", count)
		}
	})

	t.Run("UpdateMessagesStampsRemoteID", func(t *testing.T) {
		s := newStore()
		defer s.Close()

		record := &storage.Record{Head: map[string]interface{}{}}
		if err := s.SaveRecord(ctx, record); err != nil {
			t.Fatalf("save record: %v", err)
		}
		dest := saveTestNode(t, s, "dest")
		msg := &storage.Message{DestinationID: dest, RecordID: record.ID, State: storage.StatePending}
		if err := s.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("save message: %v", err)
		}

		if err := s.UpdateMessages(ctx, dest, record.ID, "new-remote"); err != nil {
			t.Fatalf("update messages: %v", err)
		}

		got, err := s.GetMessage(ctx, storage.GetMessageFilter{MessageID: msg.ID})
		if err != nil {
			t.Fatalf("get message: %v", err)
		}
		if got.RemoteID != "new-remote" {
			t.Fatalf("expected remote id stamped, got %q", got.RemoteID)
		}
	})

	t.Run("ChangesAndErrorsAreAppendOnly", func(t *testing.T) {
		s := newStore()
		defer s.Close()

		msg := &storage.Message{OriginID: saveTestNode(t, s, "n"), Method: storage.MethodCreate, State: storage.StatePending}
		if err := s.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("save message: %v", err)
		}

		if err := s.SaveChange(ctx, &storage.Change{MessageID: msg.ID, State: storage.StateProcessing}); err != nil {
			t.Fatalf("save change: %v", err)
		}
		if err := s.SaveChange(ctx, &storage.Change{MessageID: msg.ID, State: storage.StateFailed, Note: "boom"}); err != nil {
			t.Fatalf("save change: %v", err)
		}
		if err := s.SaveError(ctx, &storage.Error{MessageID: msg.ID, Text: "boom"}); err != nil {
			t.Fatalf("save error: %v", err)
		}

		changes, err := s.GetChanges(ctx, msg.ID)
		if err != nil {
			t.Fatalf("get changes: %v", err)
		}
		if len(changes) != 2 {
			t.Fatalf("expected 2 changes, got %d", len(changes))
		}

		errs, err := s.GetErrors(ctx, msg.ID)
		if err != nil {
			t.Fatalf("get errors: %v", err)
		}
		if len(errs) != 1 || errs[0].Text != "boom" {
			t.Fatalf("unexpected errors: %+v", errs)
		}
	})
}

// saveTestNode persists a node and returns its id, so messages can refer to
// it on backends whose schema enforces node foreign keys.
func saveTestNode(t *testing.T, s storage.Storage, name string) string {
	t.Helper()
	node := &storage.Node{Name: name}
	if err := s.SaveNode(context.Background(), node); err != nil {
		t.Fatalf("save node %s: %v", name, err)
	}
	return node.ID
}
