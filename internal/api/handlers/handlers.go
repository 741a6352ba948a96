// Package handlers provides HTTP request handlers for the sync hub's admin
// and messaging endpoints (section 6).
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/axonops/axonops-schema-registry/internal/hub"
)

// Handler serves the hub's HTTP surface.
type Handler struct {
	hub       *hub.Hub
	clusterID string
	version   string
}

// Config holds handler configuration that isn't derived from the hub
// itself.
type Config struct {
	ClusterID string
	Version   string
}

// New creates a Handler backed by h.
func New(h *hub.Hub, cfg Config) *Handler {
	if cfg.ClusterID == "" {
		cfg.ClusterID = "default-cluster"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return &Handler{hub: h, clusterID: cfg.ClusterID, version: cfg.Version}
}

// writeJSON writes v as a JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// HealthCheck reports basic liveness for the root endpoint.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// LivenessCheck reports whether the process is running.
func (h *Handler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ReadinessCheck reports whether the storage backend can serve requests.
func (h *Handler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !h.hub.IsHealthy(r.Context()) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// StartupCheck reports whether the process has completed startup.
func (h *Handler) StartupCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// GetClusterID returns the configured cluster identifier.
func (h *Handler) GetClusterID(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"id": h.clusterID})
}

// GetServerVersion returns the running hub's version string.
func (h *Handler) GetServerVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": h.version})
}
