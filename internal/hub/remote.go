package hub

import (
	"context"
	"errors"

	"github.com/axonops/axonops-schema-registry/internal/storage"
)

// bindRemote implements section 4.C. If a Remote already exists for
// (nodeID, remoteID), it is returned unchanged when it already points at
// recordID (idempotent rebind) or rejected with KindInvalidOperation when
// it points elsewhere (RemoteInUse). Otherwise a new Remote is created and
// any already-queued Pending outbound messages to nodeID for recordID are
// retroactively stamped with remoteID.
func (h *Hub) bindRemote(ctx context.Context, nodeID, recordID, remoteID string) (*storage.Remote, error) {
	existing, err := h.storage.GetRemote(ctx, nodeID, remoteID, "")
	if err != nil && !errors.Is(err, storage.ErrRemoteNotFound) {
		return nil, err
	}
	if existing != nil {
		if existing.RecordID != recordID {
			return nil, errInvalidOperation("remote id %q is already bound to a different record for this node", remoteID)
		}
		return existing, nil
	}

	remote := &storage.Remote{NodeID: nodeID, RecordID: recordID, RemoteID: remoteID}
	if err := h.storage.SaveRemote(ctx, remote); err != nil {
		// A concurrent bind may have saved (nodeID, remoteID) first: re-read
		// and report that binding instead of the raw storage error.
		winner, rerr := h.storage.GetRemote(ctx, nodeID, remoteID, "")
		if rerr != nil || winner == nil {
			return nil, err
		}
		if winner.RecordID != recordID {
			return nil, errInvalidOperation("remote id %q is already bound to a different record for this node", remoteID)
		}
		return winner, nil
	}
	if err := h.storage.UpdateMessages(ctx, nodeID, recordID, remoteID); err != nil {
		return nil, err
	}
	return remote, nil
}

// resolveRecord implements section 4.C's ResolveRecord: recordID takes
// precedence when supplied; otherwise the record is looked up via the
// origin's remote binding for remoteID. Returns (nil, nil) when neither
// resolves to an existing record.
func (h *Hub) resolveRecord(ctx context.Context, originID, remoteID, recordID string) (*storage.Record, error) {
	if recordID != "" {
		record, err := h.getRecord(ctx, recordID)
		if errors.Is(err, storage.ErrRecordNotFound) {
			return nil, nil
		}
		return record, err
	}
	if remoteID == "" {
		return nil, nil
	}

	remote, err := h.storage.GetRemote(ctx, originID, remoteID, "")
	if errors.Is(err, storage.ErrRemoteNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	record, err := h.getRecord(ctx, remote.RecordID)
	if errors.Is(err, storage.ErrRecordNotFound) {
		return nil, nil
	}
	return record, err
}
