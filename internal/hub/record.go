package hub

import (
	"context"

	"github.com/axonops/axonops-schema-registry/internal/storage"
)

// applyToRecord implements section 4.B: it mutates (or creates) a record
// in place according to method and payload, validates the result against
// the network schema, and returns the record ready to be persisted.
// existing may be nil, in which case a new record is created (only valid
// for Method.Create; callers are responsible for that admission check).
func (h *Hub) applyToRecord(schemaDoc string, existing *storage.Record, method storage.Method, payload map[string]interface{}) (*storage.Record, error) {
	record := existing
	if record == nil {
		record = &storage.Record{}
	}

	if method == storage.MethodDelete {
		record.Head = nil
		record.Deleted = true
	} else {
		head := record.Head
		merged := mergePatch(head, interfaceFromPayload(payload))
		mergedMap, _ := merged.(map[string]interface{})
		record.Head = mergedMap
		record.Deleted = false
	}

	if !record.Deleted {
		if err := h.schemas.validateRecordHead(schemaDoc, record.Head); err != nil {
			return nil, errInvalidJSON("record does not validate against network schema: %v", err)
		}
	}

	return record, nil
}

// interfaceFromPayload turns a nil payload map into an empty JSON object
// for mergePatch's purposes, so "no patch given" (payload==nil, e.g. on
// Delete) leaves the head unchanged (merge_patch law 1) rather than
// replacing it with null.
func interfaceFromPayload(payload map[string]interface{}) interface{} {
	if payload == nil {
		return map[string]interface{}{}
	}
	return payload
}

// applyRecordTx fetches (or prepares to create) the record for a message,
// applies it, and persists it within ctx's active transaction.
func (h *Hub) applyRecordTx(ctx context.Context, network *storage.Network, existing *storage.Record, method storage.Method, payload map[string]interface{}) (*storage.Record, error) {
	record, err := h.applyToRecord(network.Schema, existing, method, payload)
	if err != nil {
		return nil, err
	}
	if err := h.saveRecord(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}
