package hub

import (
	"context"
	"fmt"

	"github.com/axonops/axonops-schema-registry/internal/storage"
)

// Sync implements section 4.H's cold-start resend: every non-deleted record
// in the network is re-sent to nodeID as a Create message, carrying
// forward any remote id the node already has for that record. Records are
// walked in the storage layer's own batches so a large network never
// requires holding every record in memory at once.
func (h *Hub) Sync(ctx context.Context, nodeID string) error {
	node, err := h.GetNode(ctx, nodeID)
	if err != nil {
		return err
	}

	var sendErr error
	err = h.storage.GetRecords(ctx, func(batch storage.RecordBatch) error {
		for _, record := range batch.Records {
			if record.Deleted {
				continue
			}

			remote := record.Remote(node.ID)
			var remoteID string
			if remote != nil {
				remoteID = remote.RemoteID
			}

			_, err := h.Send(ctx, SendParams{
				DestinationID: node.ID,
				Method:        storage.MethodCreate,
				Payload:       record.Head,
				RecordID:      record.ID,
				RemoteID:      remoteID,
			})
			if err != nil {
				sendErr = fmt.Errorf("resyncing record %s to node %s: %w", record.ID, node.ID, err)
				return sendErr
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return sendErr
}
