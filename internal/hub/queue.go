package hub

import (
	"context"

	"github.com/axonops/axonops-schema-registry/internal/storage"
)

// Fetch returns the next pending message addressed to destinationID,
// locking it and advancing it to Processing in the same transaction so two
// concurrent fetchers can never claim the same message. Returns (nil, nil)
// when the node's queue is empty.
func (h *Hub) Fetch(ctx context.Context, destinationID string) (*storage.Message, error) {
	if !ValidID(destinationID) {
		return nil, errInvalidID(destinationID)
	}

	txCtx, err := h.storage.Begin(ctx)
	if err != nil {
		return nil, err
	}

	message, err := h.storage.GetMessage(txCtx, storage.GetMessageFilter{
		DestinationID: destinationID,
		State:         storage.StatePending,
		WithLock:      true,
	})
	if err != nil {
		_ = h.storage.Rollback(txCtx)
		return nil, err
	}
	if message == nil {
		_ = h.storage.Rollback(txCtx)
		return nil, nil
	}

	if err := h.transition(txCtx, message, storage.StateProcessing, ""); err != nil {
		_ = h.storage.Rollback(txCtx)
		return nil, err
	}
	if err := h.storage.Commit(txCtx); err != nil {
		return nil, err
	}
	if h.metrics != nil {
		h.metrics.RecordMessageFetched(destinationID)
	}
	return message, nil
}

// HasPending reports whether destinationID has any message waiting to be
// fetched. It backs the messaging API's pending check; Send enforces the
// network's fetch-before-send rule in its own admission step.
func (h *Hub) HasPending(ctx context.Context, destinationID string) (bool, error) {
	message, err := h.storage.GetMessage(ctx, storage.GetMessageFilter{
		DestinationID: destinationID,
		State:         storage.StatePending,
	})
	if err != nil {
		return false, err
	}
	return message != nil, nil
}

// Acknowledge marks a Processing message as Acknowledged. If remoteID is
// supplied and differs from the message's own remote id, it is bound to
// the message's record for the destination node, letting a node attach
// its own identifier to a record it received from the network.
func (h *Hub) Acknowledge(ctx context.Context, messageID, remoteID string) (*storage.Message, error) {
	message, err := h.getProcessingMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	txCtx, err := h.storage.Begin(ctx)
	if err != nil {
		return nil, err
	}

	if err := h.transition(txCtx, message, storage.StateAcknowledged, ""); err != nil {
		_ = h.storage.Rollback(txCtx)
		return nil, err
	}

	if message.DestinationID != "" && remoteID != "" && message.RemoteID != remoteID {
		if message.RecordID == "" {
			_ = h.storage.Rollback(txCtx)
			return nil, errInvalidOperation("message %s has no associated record to bind a remote id to", message.ID)
		}
		if _, err := h.bindRemote(txCtx, message.DestinationID, message.RecordID, remoteID); err != nil {
			_ = h.storage.Rollback(txCtx)
			return nil, err
		}
	}

	if err := h.storage.Commit(txCtx); err != nil {
		return nil, err
	}
	return message, nil
}

// Fail marks a Processing message as Failed, optionally recording reason
// as an Error row.
func (h *Hub) Fail(ctx context.Context, messageID, reason string) (*storage.Message, error) {
	message, err := h.getProcessingMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	txCtx, err := h.storage.Begin(ctx)
	if err != nil {
		return nil, err
	}

	if err := h.transition(txCtx, message, storage.StateFailed, ""); err != nil {
		_ = h.storage.Rollback(txCtx)
		return nil, err
	}
	if err := h.recordError(txCtx, message.ID, reason); err != nil {
		_ = h.storage.Rollback(txCtx)
		return nil, err
	}
	if err := h.storage.Commit(txCtx); err != nil {
		return nil, err
	}
	return message, nil
}

func (h *Hub) getProcessingMessage(ctx context.Context, messageID string) (*storage.Message, error) {
	if !ValidID(messageID) {
		return nil, errInvalidID(messageID)
	}
	message, err := h.storage.GetMessage(ctx, storage.GetMessageFilter{MessageID: messageID})
	if err != nil {
		return nil, err
	}
	if message == nil {
		return nil, errNotFound("message", messageID)
	}
	if message.State != storage.StateProcessing {
		return nil, errInvalidOperation("message %s is not in the processing state", messageID)
	}
	return message, nil
}
