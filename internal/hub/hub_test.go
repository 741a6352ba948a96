package hub

import (
	"context"
	"testing"

	"github.com/axonops/axonops-schema-registry/internal/storage"
	"github.com/axonops/axonops-schema-registry/internal/storage/memory"
)

const testSchema = `{"type":"object"}`

func newTestHub(t *testing.T, fetchBeforeSend bool) (*Hub, context.Context) {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()
	if err := store.Connect(ctx, true); err != nil {
		t.Fatalf("connect: %v", err)
	}
	h := New(store)
	if _, err := h.InitNetwork(ctx, "test-network", testSchema, fetchBeforeSend); err != nil {
		t.Fatalf("init network: %v", err)
	}
	return h, ctx
}

func mustCreateNode(t *testing.T, h *Hub, ctx context.Context, name string, create, read, update, del bool) *storage.Node {
	t.Helper()
	node, err := h.CreateNode(ctx, name, create, read, update, del)
	if err != nil {
		t.Fatalf("create node %s: %v", name, err)
	}
	return node
}

// TestSingleWriterFanOut exercises spec section 8, scenario 1: a writer
// fans a create out to every read-permitted peer and to nobody else.
func TestSingleWriterFanOut(t *testing.T) {
	h, ctx := newTestHub(t, false)

	w := mustCreateNode(t, h, ctx, "writer", true, false, false, false)
	r1 := mustCreateNode(t, h, ctx, "reader1", false, true, false, false)
	r2 := mustCreateNode(t, h, ctx, "reader2", false, true, false, false)

	msg, err := h.SendFromNode(ctx, w.ID, storage.MethodCreate, map[string]interface{}{"foo": "bar"}, "", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.State != storage.StateAcknowledged {
		t.Fatalf("expected acknowledged, got %s", msg.State)
	}

	if got, err := h.Fetch(ctx, w.ID); err != nil || got != nil {
		t.Fatalf("expected writer queue empty, got %+v err=%v", got, err)
	}

	for _, r := range []*storage.Node{r1, r2} {
		got, err := h.Fetch(ctx, r.ID)
		if err != nil {
			t.Fatalf("fetch for %s: %v", r.ID, err)
		}
		if got == nil {
			t.Fatalf("expected a pending message for %s", r.ID)
		}
		if got.Payload["foo"] != "bar" {
			t.Fatalf("unexpected payload: %+v", got.Payload)
		}
		if second, err := h.Fetch(ctx, r.ID); err != nil || second != nil {
			t.Fatalf("expected only one message for %s, got %+v err=%v", r.ID, second, err)
		}
	}
}

// TestMergePatchUpdate exercises scenario 2: merge-patch semantics applied
// through a real Update message, including null-deletes-key.
func TestMergePatchUpdate(t *testing.T) {
	h, ctx := newTestHub(t, false)

	w := mustCreateNode(t, h, ctx, "writer", true, false, true, false)
	r := mustCreateNode(t, h, ctx, "reader", false, true, false, false)

	created, err := h.SendFromNode(ctx, w.ID, storage.MethodCreate, map[string]interface{}{"foo": "bar"}, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.Fetch(ctx, r.ID); err != nil {
		t.Fatalf("fetch after create: %v", err)
	}

	updated, err := h.SendFromNode(ctx, w.ID, storage.MethodUpdate, map[string]interface{}{"foo": nil, "baz": float64(1)}, created.RecordID, "")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.State != storage.StateAcknowledged {
		t.Fatalf("expected acknowledged, got %s", updated.State)
	}

	record, err := h.storage.GetRecord(ctx, created.RecordID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if _, ok := record.Head["foo"]; ok {
		t.Fatalf("expected foo to be deleted by merge-patch, head=%+v", record.Head)
	}
	if record.Head["baz"] != float64(1) {
		t.Fatalf("expected baz=1, head=%+v", record.Head)
	}

	if got, err := h.Fetch(ctx, r.ID); err != nil || got == nil {
		t.Fatalf("expected reader to see the update, got %+v err=%v", got, err)
	}
}

// TestFetchBeforeSendGuard exercises scenario 3.
func TestFetchBeforeSendGuard(t *testing.T) {
	h, ctx := newTestHub(t, true)

	a := mustCreateNode(t, h, ctx, "a", true, true, false, false)
	b := mustCreateNode(t, h, ctx, "b", true, true, false, false)

	if _, err := h.SendFromNode(ctx, a.ID, storage.MethodCreate, map[string]interface{}{"x": 1}, "", ""); err != nil {
		t.Fatalf("a create: %v", err)
	}

	_, err := h.SendFromNode(ctx, b.ID, storage.MethodCreate, map[string]interface{}{"y": 1}, "", "")
	if err == nil {
		t.Fatal("expected b's send to be rejected while it has a pending message")
	}
	hubErr, ok := AsHubError(err)
	if !ok || hubErr.Kind != KindInvalidOperation {
		t.Fatalf("expected InvalidOperation, got %v", err)
	}

	if _, err := h.Fetch(ctx, b.ID); err != nil {
		t.Fatalf("b fetch: %v", err)
	}

	if _, err := h.SendFromNode(ctx, b.ID, storage.MethodCreate, map[string]interface{}{"y": 1}, "", ""); err != nil {
		t.Fatalf("expected b's send to succeed after fetching, got %v", err)
	}
}

// TestAckBindsRemote exercises scenario 4: acknowledging with a remote id
// binds it, and later fan-out messages to that node carry it.
func TestAckBindsRemote(t *testing.T) {
	h, ctx := newTestHub(t, false)

	w := mustCreateNode(t, h, ctx, "writer", true, false, true, false)
	r := mustCreateNode(t, h, ctx, "reader", false, true, true, false)

	created, err := h.SendFromNode(ctx, w.ID, storage.MethodCreate, map[string]interface{}{"foo": "bar"}, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	fetched, err := h.Fetch(ctx, r.ID)
	if err != nil || fetched == nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, err := h.Acknowledge(ctx, fetched.ID, "abcd"); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}

	if _, err := h.SendFromNode(ctx, w.ID, storage.MethodUpdate, map[string]interface{}{"baz": float64(2)}, created.RecordID, ""); err != nil {
		t.Fatalf("update: %v", err)
	}

	next, err := h.Fetch(ctx, r.ID)
	if err != nil || next == nil {
		t.Fatalf("expected a second message for reader, got %+v err=%v", next, err)
	}
	if next.RemoteID != "abcd" {
		t.Fatalf("expected remote id to be stamped, got %q", next.RemoteID)
	}

	if _, err := h.SendFromNode(ctx, r.ID, storage.MethodUpdate, map[string]interface{}{"more": true}, "", "abcd"); err != nil {
		t.Fatalf("expected reader to update via its own remote id, got %v", err)
	}
}

// TestDeleteForbidsResurrection exercises scenario 5.
func TestDeleteForbidsResurrection(t *testing.T) {
	h, ctx := newTestHub(t, false)

	w := mustCreateNode(t, h, ctx, "writer", true, false, true, true)

	created, err := h.SendFromNode(ctx, w.ID, storage.MethodCreate, map[string]interface{}{"foo": "bar"}, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := h.SendFromNode(ctx, w.ID, storage.MethodDelete, nil, created.RecordID, ""); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, err = h.SendFromNode(ctx, w.ID, storage.MethodUpdate, map[string]interface{}{"foo": "baz"}, created.RecordID, "")
	if err == nil {
		t.Fatal("expected update on a deleted record to be rejected")
	}
	hubErr, ok := AsHubError(err)
	if !ok || hubErr.Kind != KindInvalidOperation {
		t.Fatalf("expected InvalidOperation, got %v", err)
	}
}

// TestDeleteFansOutToReaders covers the same scenario as
// TestDeleteForbidsResurrection but with a read-permitted peer present: the
// peer must still get the delete as an outbound fan-out child that it can
// fetch, since the "no resurrection" rule it triggers on the origin's side
// must not be re-applied to the fan-out child.
func TestDeleteFansOutToReaders(t *testing.T) {
	h, ctx := newTestHub(t, false)

	w := mustCreateNode(t, h, ctx, "writer", true, false, true, true)
	r := mustCreateNode(t, h, ctx, "reader", false, true, false, false)

	created, err := h.SendFromNode(ctx, w.ID, storage.MethodCreate, map[string]interface{}{"foo": "bar"}, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.Fetch(ctx, r.ID); err != nil {
		t.Fatalf("fetch after create: %v", err)
	}

	deleted, err := h.SendFromNode(ctx, w.ID, storage.MethodDelete, nil, created.RecordID, "")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted.State != storage.StateAcknowledged {
		t.Fatalf("expected delete to be acknowledged, got %s", deleted.State)
	}

	got, err := h.Fetch(ctx, r.ID)
	if err != nil {
		t.Fatalf("fetch delete: %v", err)
	}
	if got == nil {
		t.Fatal("expected the reader to receive the delete as a fan-out child")
	}
	if got.Method != storage.MethodDelete {
		t.Fatalf("expected a delete message, got %s", got.Method)
	}
	if got.State != storage.StateProcessing {
		t.Fatalf("expected fetch to advance the fan-out child to processing, got %s", got.State)
	}
}

// TestSyncColdStart exercises scenario 6.
func TestSyncColdStart(t *testing.T) {
	h, ctx := newTestHub(t, false)

	w := mustCreateNode(t, h, ctx, "writer", true, false, false, false)
	for i := 0; i < 3; i++ {
		if _, err := h.SendFromNode(ctx, w.ID, storage.MethodCreate, map[string]interface{}{"n": float64(i)}, "", ""); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	r := mustCreateNode(t, h, ctx, "reader", false, true, false, false)
	if got, err := h.Fetch(ctx, r.ID); err != nil || got != nil {
		t.Fatalf("expected empty queue before sync, got %+v err=%v", got, err)
	}

	if err := h.Sync(ctx, r.ID); err != nil {
		t.Fatalf("sync: %v", err)
	}

	for i := 0; i < 3; i++ {
		got, err := h.Fetch(ctx, r.ID)
		if err != nil || got == nil {
			t.Fatalf("expected synced message %d, got %+v err=%v", i, got, err)
		}
		if got.Method != storage.MethodCreate {
			t.Fatalf("expected create method, got %s", got.Method)
		}
	}
	if got, err := h.Fetch(ctx, r.ID); err != nil || got != nil {
		t.Fatalf("expected queue drained after 3 fetches, got %+v err=%v", got, err)
	}
}

// TestTerminalStateRejectsFurtherTransitions covers the universal invariant
// in section 8: no transition succeeds once a message is Acknowledged.
func TestTerminalStateRejectsFurtherTransitions(t *testing.T) {
	h, ctx := newTestHub(t, false)

	w := mustCreateNode(t, h, ctx, "writer", true, false, false, false)
	msg, err := h.SendFromNode(ctx, w.ID, storage.MethodCreate, map[string]interface{}{"foo": "bar"}, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := h.transition(ctx, msg, storage.StateProcessing, ""); err == nil {
		t.Fatal("expected transition out of a terminal state to fail")
	}
}

// TestBindRemoteIdempotent covers the BindRemote idempotence invariant.
func TestBindRemoteIdempotent(t *testing.T) {
	h, ctx := newTestHub(t, false)

	w := mustCreateNode(t, h, ctx, "writer", true, false, false, false)
	created, err := h.SendFromNode(ctx, w.ID, storage.MethodCreate, map[string]interface{}{"foo": "bar"}, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := h.bindRemote(ctx, w.ID, created.RecordID, "xyz")
	if err != nil {
		t.Fatalf("bind remote: %v", err)
	}
	second, err := h.bindRemote(ctx, w.ID, created.RecordID, "xyz")
	if err != nil {
		t.Fatalf("expected idempotent bind to succeed, got %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same remote, got %s and %s", first.ID, second.ID)
	}

	other, err := h.SendFromNode(ctx, w.ID, storage.MethodCreate, map[string]interface{}{"other": true}, "", "")
	if err != nil {
		t.Fatalf("create other: %v", err)
	}
	if _, err := h.bindRemote(ctx, w.ID, other.RecordID, "xyz"); err == nil {
		t.Fatal("expected binding an in-use remote id to a different record to fail")
	}
}
