package handlers

import (
	"context"
	"net/http"

	"github.com/axonops/axonops-schema-registry/internal/hub"
)

type nodeIDKey struct{}

// nodeIDFromContext retrieves the node id stashed by RequireNode.
func nodeIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(nodeIDKey{}).(string)
	return id, ok
}

// RequireNode builds middleware enforcing the messaging endpoints' header
// contract (section 6): X-Sync-Network-Id and X-Sync-Node-Id must both be
// present and resolve, or the request is rejected with 404 per section 9's
// resolution of the node-id open question.
func RequireNode(h *hub.Hub) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			networkID := r.Header.Get("X-Sync-Network-Id")
			nodeID := r.Header.Get("X-Sync-Node-Id")

			if networkID == "" || !hub.ValidID(networkID) {
				writeHubError(w, hub.NewInvalidIDError(networkID))
				return
			}
			if nodeID == "" || !hub.ValidID(nodeID) {
				writeHubError(w, hub.NewInvalidIDError(nodeID))
				return
			}

			network, err := h.GetNetwork(r.Context())
			if err != nil {
				writeHubError(w, err)
				return
			}
			if network.ID != networkID {
				writeHubError(w, hub.NewInvalidIDError(networkID))
				return
			}
			if _, err := h.GetNode(r.Context(), nodeID); err != nil {
				writeHubError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), nodeIDKey{}, nodeID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
