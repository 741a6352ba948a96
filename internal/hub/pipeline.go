package hub

import (
	"context"
	"errors"
	"fmt"

	"github.com/axonops/axonops-schema-registry/internal/storage"
)

// SendParams describes a message to admit into the network, mirroring the
// arguments to the original Message.send staticmethod.
type SendParams struct {
	OriginID      string
	DestinationID string
	ParentID      string
	Method        storage.Method
	Payload       map[string]interface{}
	RecordID      string
	RemoteID      string
}

// SendFromNode implements the node-facing entry point (section 4.A / 4.E):
// a node submits a message with no destination, so it is always addressed
// to the network itself. Read is never a valid method here, and a node may
// not supply a record id on Create (the record doesn't exist yet).
func (h *Hub) SendFromNode(ctx context.Context, originID string, method storage.Method, payload map[string]interface{}, recordID, remoteID string) (*storage.Message, error) {
	if method == storage.MethodRead {
		return nil, errInvalidOperation("nodes cannot send read messages")
	}
	if method == storage.MethodCreate && recordID != "" {
		return nil, errInvalidOperation("a record id cannot be supplied when creating a record")
	}
	return h.Send(ctx, SendParams{
		OriginID: originID,
		Method:   method,
		Payload:  payload,
		RecordID: recordID,
		RemoteID: remoteID,
	})
}

// Send implements section 4.E/4.F: admit a message, persist it, and, if it
// has no destination (i.e. it targets the network rather than a specific
// node), move it to Processing and then apply and fan it out in further
// transactions (see process).
func (h *Hub) Send(ctx context.Context, p SendParams) (*storage.Message, error) {
	txCtx, err := h.storage.Begin(ctx)
	if err != nil {
		return nil, err
	}

	message, network, err := h.prepareMessage(txCtx, p)
	if err != nil {
		_ = h.storage.Rollback(txCtx)
		return nil, err
	}
	if err := h.storage.Commit(txCtx); err != nil {
		return nil, err
	}

	if p.DestinationID != "" {
		return message, nil
	}
	return h.process(ctx, network, message)
}

// prepareMessage runs admission (section 4.E) and persists the message
// within ctx's already-active transaction. It does not advance state.
func (h *Hub) prepareMessage(ctx context.Context, p SendParams) (*storage.Message, *storage.Network, error) {
	network, err := h.storage.GetNetwork(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNetworkNotFound) {
			return nil, nil, errDatabaseNotFound()
		}
		return nil, nil, err
	}

	var parent *storage.Message
	if p.ParentID != "" {
		parent, err = h.storage.GetMessage(ctx, storage.GetMessageFilter{MessageID: p.ParentID})
		if err != nil {
			return nil, nil, err
		}
	}

	var origin, destination *storage.Node
	if p.OriginID != "" {
		origin, err = h.storage.GetNode(ctx, p.OriginID)
		if err != nil && !errors.Is(err, storage.ErrNodeNotFound) {
			return nil, nil, err
		}
	}
	if p.DestinationID != "" {
		destination, err = h.storage.GetNode(ctx, p.DestinationID)
		if err != nil && !errors.Is(err, storage.ErrNodeNotFound) {
			return nil, nil, err
		}
	}

	record, err := h.resolveRecord(ctx, p.OriginID, p.RemoteID, p.RecordID)
	if err != nil {
		return nil, nil, err
	}

	if err := h.validateSend(ctx, network, parent, origin, destination, record, p); err != nil {
		return nil, nil, err
	}

	recordID := p.RecordID
	if record != nil {
		recordID = record.ID
	}

	message := &storage.Message{
		ParentID:      p.ParentID,
		OriginID:      p.OriginID,
		DestinationID: p.DestinationID,
		Method:        p.Method,
		Payload:       p.Payload,
		RecordID:      recordID,
		RemoteID:      p.RemoteID,
		State:         storage.StatePending,
	}
	if err := h.storage.SaveMessage(ctx, message); err != nil {
		return nil, nil, err
	}
	if h.metrics != nil {
		h.metrics.RecordMessageSent(string(message.Method), string(message.State))
	}
	return message, network, nil
}

// validateSend implements the nine admission rules of section 4.E.
func (h *Hub) validateSend(ctx context.Context, network *storage.Network, parent *storage.Message, origin, destination *storage.Node, record *storage.Record, p SendParams) error {
	if p.ParentID != "" && parent == nil {
		return errNotFound("message", p.ParentID)
	}
	if p.OriginID != "" && origin == nil {
		return errNotFound("node", p.OriginID)
	}
	if p.DestinationID != "" && destination == nil {
		return errNotFound("node", p.DestinationID)
	}
	if (p.Method == storage.MethodCreate || p.Method == storage.MethodUpdate) && p.Payload == nil {
		return errInvalidOperation("create and update messages require a payload")
	}
	if p.Method != storage.MethodCreate && record == nil {
		return errInvalidOperation("record not found")
	}
	if p.OriginID != "" && p.Method == storage.MethodCreate && record != nil {
		return errInvalidOperation("record already exists")
	}
	if network.FetchBeforeSend && origin != nil {
		pending, err := h.storage.GetMessage(ctx, storage.GetMessageFilter{DestinationID: p.OriginID, State: storage.StatePending})
		if err != nil {
			return err
		}
		if pending != nil {
			return errInvalidOperation("node %q has pending messages and must fetch them before sending", p.OriginID)
		}
	}
	if origin != nil && !origin.Check(p.Method) {
		return errInvalidOperation("node %q does not have %s permission", p.OriginID, p.Method)
	}
	// Rule 9 (no resurrecting a deleted record) only applies to a
	// node-initiated send. Fan-out children (propagate, origin-less) carry a
	// method that was already admitted and applied to the record by execute()
	// before propagate() runs, including Delete itself, so record.Deleted is
	// expected to be true on the very fan-out this message represents; it
	// must not be re-rejected here.
	if p.OriginID != "" && record != nil && record.Deleted {
		return errInvalidOperation("record has been deleted")
	}
	return nil
}

// process drives a network-addressed message through Processing, apply and
// fan-out, and finally Acknowledged, matching the TX2/TX3 split in section
// 4.F. A failure during TX3 is caught and recorded as a Failed transition
// in its own transaction (TX4) before the original error is returned.
func (h *Hub) process(ctx context.Context, network *storage.Network, message *storage.Message) (*storage.Message, error) {
	procCtx, err := h.storage.Begin(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.transition(procCtx, message, storage.StateProcessing, ""); err != nil {
		_ = h.storage.Rollback(procCtx)
		return nil, err
	}
	if err := h.storage.Commit(procCtx); err != nil {
		return nil, err
	}

	execCtx, err := h.storage.Begin(ctx)
	if err != nil {
		return nil, err
	}

	if err := h.execute(execCtx, network, message); err != nil {
		_ = h.storage.Rollback(execCtx)
		return h.fail(ctx, message, err)
	}
	if err := h.propagate(execCtx, network, message); err != nil {
		_ = h.storage.Rollback(execCtx)
		return h.fail(ctx, message, err)
	}
	if err := h.transition(execCtx, message, storage.StateAcknowledged, ""); err != nil {
		_ = h.storage.Rollback(execCtx)
		return h.fail(ctx, message, err)
	}
	if err := h.storage.Commit(execCtx); err != nil {
		return nil, err
	}
	return message, nil
}

// execute implements section 4.B: apply the message's method and payload to
// its record (creating one on Create), bind any supplied remote id, and
// persist the record id back onto the message.
func (h *Hub) execute(ctx context.Context, network *storage.Network, message *storage.Message) error {
	var existing *storage.Record
	if message.RecordID != "" {
		var err error
		existing, err = h.getRecord(ctx, message.RecordID)
		if err != nil && !errors.Is(err, storage.ErrRecordNotFound) {
			return err
		}
	}

	record, err := h.applyRecordTx(ctx, network, existing, message.Method, message.Payload)
	if err != nil {
		return err
	}
	message.RecordID = record.ID

	if message.RemoteID != "" {
		if _, err := h.bindRemote(ctx, message.OriginID, record.ID, message.RemoteID); err != nil {
			return err
		}
	}

	return h.storage.SaveMessage(ctx, message)
}

// propagate implements section 4.F's fan-out: the message is forwarded,
// within the same transaction, to every node with read permission other
// than the message's origin. Each forward is itself admitted through
// prepareMessage so the same validation rules apply to the child message.
func (h *Hub) propagate(ctx context.Context, network *storage.Network, message *storage.Message) error {
	nodes, err := h.storage.GetNodes(ctx)
	if err != nil {
		return err
	}

	peers := 0
	for _, node := range nodes {
		if node.ID == message.OriginID || !node.Read {
			continue
		}

		remote, err := h.storage.GetRemote(ctx, node.ID, "", message.RecordID)
		if err != nil && !errors.Is(err, storage.ErrRemoteNotFound) {
			return err
		}
		var remoteID string
		if remote != nil {
			remoteID = remote.RemoteID
		}

		node := node
		err = h.propagator(ctx, func(ctx context.Context) error {
			_, _, err := h.prepareMessage(ctx, SendParams{
				ParentID:      message.ID,
				DestinationID: node.ID,
				Method:        message.Method,
				Payload:       message.Payload,
				RecordID:      message.RecordID,
				RemoteID:      remoteID,
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("propagating to node %s: %w", node.ID, err)
		}
		peers++
	}
	if h.metrics != nil {
		h.metrics.RecordFanout(peers)
	}
	return nil
}

// fail records a Failed transition and stores the triggering error's text
// as an Error row, in its own transaction, then returns the original error
// to the caller.
func (h *Hub) fail(ctx context.Context, message *storage.Message, cause error) (*storage.Message, error) {
	failCtx, err := h.storage.Begin(ctx)
	if err != nil {
		return nil, err
	}
	if terr := h.transition(failCtx, message, storage.StateFailed, ""); terr != nil {
		_ = h.storage.Rollback(failCtx)
		return nil, terr
	}
	if rerr := h.recordError(failCtx, message.ID, cause.Error()); rerr != nil {
		_ = h.storage.Rollback(failCtx)
		return nil, rerr
	}
	if err := h.storage.Commit(failCtx); err != nil {
		return nil, err
	}
	if h.metrics != nil {
		h.metrics.RecordMessageFailed(string(message.Method))
	}
	return nil, cause
}
