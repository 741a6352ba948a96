package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/axonops/axonops-schema-registry/internal/api/types"
	"github.com/axonops/axonops-schema-registry/internal/hub"
	"github.com/axonops/axonops-schema-registry/internal/storage"
)

// SendMessage handles POST /messages. The caller's node id comes from the
// X-Sync-Node-Id header via RequireNode (see context.go); a node
// may not issue Read messages or supply a record_id on Create (section
// 4.E).
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	nodeID, ok := nodeIDFromContext(r.Context())
	if !ok {
		writeHubError(w, hub.NewInvalidIDError(""))
		return
	}

	var req types.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeHubError(w, hub.NewInvalidJSONError("request body: %v", err))
		return
	}

	if req.Method == storage.MethodRead {
		writeHubError(w, hub.NewInvalidJSONError("nodes may not send Read messages"))
		return
	}
	if req.Method == storage.MethodCreate && req.RecordID != "" {
		writeHubError(w, hub.NewInvalidJSONError("Create messages may not supply record_id"))
		return
	}

	message, err := h.hub.SendFromNode(r.Context(), nodeID, req.Method, req.Payload, req.RecordID, req.RemoteID)
	if err != nil {
		writeHubError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.MessageFromStorage(message))
}

// Pending handles GET /messages/pending.
func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	nodeID, ok := nodeIDFromContext(r.Context())
	if !ok {
		writeHubError(w, hub.NewInvalidIDError(""))
		return
	}

	pending, err := h.hub.HasPending(r.Context(), nodeID)
	if err != nil {
		writeHubError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.PendingResponse{Pending: pending})
}

// Next handles POST /messages/next, fetching and claiming the oldest
// pending outbound message for the caller's node.
func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	nodeID, ok := nodeIDFromContext(r.Context())
	if !ok {
		writeHubError(w, hub.NewInvalidIDError(""))
		return
	}

	message, err := h.hub.Fetch(r.Context(), nodeID)
	if err != nil {
		writeHubError(w, err)
		return
	}
	if message == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, types.MessageFromStorage(message))
}

// AckMessage handles PATCH /messages/{message_id}, acknowledging or failing
// a message the caller's node previously fetched.
func (h *Handler) AckMessage(w http.ResponseWriter, r *http.Request) {
	nodeID, ok := nodeIDFromContext(r.Context())
	if !ok {
		writeHubError(w, hub.NewInvalidIDError(""))
		return
	}

	id := chi.URLParam(r, "message_id")
	if !hub.ValidID(id) {
		writeHubError(w, hub.NewInvalidIDError(id))
		return
	}

	var req types.AckMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeHubError(w, hub.NewInvalidJSONError("request body: %v", err))
		return
	}

	message, err := h.hub.GetMessage(r.Context(), id)
	if err != nil {
		writeHubError(w, err)
		return
	}
	if message.DestinationID != nodeID {
		writeHubError(w, hub.NewInvalidIDError(id))
		return
	}

	if req.Success {
		message, err = h.hub.Acknowledge(r.Context(), id, req.RemoteID)
	} else {
		message, err = h.hub.Fail(r.Context(), id, req.Reason)
	}
	if err != nil {
		writeHubError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.MessageFromStorage(message))
}
