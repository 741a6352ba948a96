package hub

import (
	"context"

	"github.com/axonops/axonops-schema-registry/internal/storage"
)

// transition implements the message state machine of section 4.D. Terminal
// states (Acknowledged, Failed) reject any further transition; the only
// legal moves are Pending->Processing, Processing->Acknowledged and
// Processing->Failed. Every successful transition appends a Change row and
// persists the message.
//
// Transitioning a message that has never been saved is a programmer error,
// not a caller-triggerable one, so it panics rather than returning a Kind.
func (h *Hub) transition(ctx context.Context, message *storage.Message, newState storage.State, note string) error {
	if message.ID == "" {
		panic("hub: transition called on an unsaved message")
	}

	if !isLegalTransition(message.State, newState) {
		return errInvalidOperation("illegal message state transition: %s -> %s", message.State, newState)
	}

	message.State = newState
	if err := h.storage.SaveMessage(ctx, message); err != nil {
		return err
	}

	change := &storage.Change{MessageID: message.ID, State: newState, Note: note}
	if err := h.storage.SaveChange(ctx, change); err != nil {
		return err
	}
	if h.metrics != nil {
		h.metrics.RecordTransition(string(newState))
	}
	return nil
}

func isLegalTransition(from, to storage.State) bool {
	switch {
	case from == storage.StatePending && to == storage.StateProcessing:
		return true
	case from == storage.StateProcessing && to == storage.StateAcknowledged:
		return true
	case from == storage.StateProcessing && to == storage.StateFailed:
		return true
	default:
		return false
	}
}

// recordError attaches an Error row to a message, used alongside a Failed
// transition when the caller supplied a reason.
func (h *Hub) recordError(ctx context.Context, messageID, reason string) error {
	if reason == "" {
		return nil
	}
	return h.storage.SaveError(ctx, &storage.Error{MessageID: messageID, Text: reason})
}

// GetMessage fetches a message by id. Its audit trail is read separately
// through Changes and Errors.
func (h *Hub) GetMessage(ctx context.Context, id string) (*storage.Message, error) {
	if !ValidID(id) {
		return nil, errInvalidID(id)
	}
	message, err := h.storage.GetMessage(ctx, storage.GetMessageFilter{MessageID: id})
	if err != nil {
		return nil, err
	}
	if message == nil {
		return nil, errNotFound("message", id)
	}
	return message, nil
}

// Changes returns the audit trail of state transitions for a message.
func (h *Hub) Changes(ctx context.Context, messageID string) ([]*storage.Change, error) {
	return h.storage.GetChanges(ctx, messageID)
}

// Errors returns the Failed-transition error rows for a message.
func (h *Hub) Errors(ctx context.Context, messageID string) ([]*storage.Error, error) {
	return h.storage.GetErrors(ctx, messageID)
}
