package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/axonops/axonops-schema-registry/internal/api/types"
	"github.com/axonops/axonops-schema-registry/internal/hub"
)

// CreateNetwork handles POST /admin/networks.
func (h *Handler) CreateNetwork(w http.ResponseWriter, r *http.Request) {
	var req types.CreateNetworkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeHubError(w, hub.NewInvalidJSONError("request body: %v", err))
		return
	}

	network, err := h.hub.InitNetwork(r.Context(), req.Name, req.Schema, req.FetchBeforeSend)
	if err != nil {
		writeHubError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.NetworkFromStorage(network))
}

// GetNetwork handles GET /admin/networks/{network_id}.
//
// The hub serves a single network per storage handle, so network_id in the
// path is accepted for API-contract compatibility but not otherwise used
// to select among multiple networks.
func (h *Handler) GetNetwork(w http.ResponseWriter, r *http.Request) {
	network, err := h.hub.GetNetwork(r.Context())
	if err != nil {
		writeHubError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.NetworkFromStorage(network))
}

// PatchNetwork handles PATCH /admin/networks/{network_id}.
func (h *Handler) PatchNetwork(w http.ResponseWriter, r *http.Request) {
	var req types.PatchNetworkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeHubError(w, hub.NewInvalidJSONError("request body: %v", err))
		return
	}

	network, err := h.hub.UpdateNetworkConfig(r.Context(), req.Name, req.Schema, req.FetchBeforeSend)
	if err != nil {
		writeHubError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.NetworkFromStorage(network))
}

// ListNodes handles GET /admin/networks/{network_id}/nodes.
func (h *Handler) ListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.hub.GetNodes(r.Context())
	if err != nil {
		writeHubError(w, err)
		return
	}
	out := make([]types.NodeResponse, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, types.NodeFromStorage(n))
	}
	writeJSON(w, http.StatusOK, map[string][]types.NodeResponse{"nodes": out})
}

// CreateNode handles POST /admin/networks/{network_id}/nodes.
func (h *Handler) CreateNode(w http.ResponseWriter, r *http.Request) {
	var req types.CreateNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeHubError(w, hub.NewInvalidJSONError("request body: %v", err))
		return
	}

	node, err := h.hub.CreateNode(r.Context(), req.Name, req.Create, req.Read, req.Update, req.Delete)
	if err != nil {
		writeHubError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.NodeFromStorage(node))
}

// GetNode handles GET /admin/networks/{network_id}/nodes/{node_id}.
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "node_id")
	if !hub.ValidID(id) {
		writeHubError(w, hub.NewInvalidIDError(id))
		return
	}
	node, err := h.hub.GetNode(r.Context(), id)
	if err != nil {
		writeHubError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.NodeFromStorage(node))
}

// TriggerSync handles POST /admin/networks/{network_id}/nodes/{node_id}/sync.
// It kicks off the cold-start fan-out (section 4.H) in the background and
// returns immediately.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "node_id")
	if !hub.ValidID(id) {
		writeHubError(w, hub.NewInvalidIDError(id))
		return
	}
	if _, err := h.hub.GetNode(r.Context(), id); err != nil {
		writeHubError(w, err)
		return
	}

	go func() {
		_ = h.hub.Sync(context.WithoutCancel(r.Context()), id)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync started"})
}
