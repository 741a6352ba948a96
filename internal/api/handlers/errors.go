package handlers

import (
	"errors"
	"net/http"

	"github.com/axonops/axonops-schema-registry/internal/api/types"
	"github.com/axonops/axonops-schema-registry/internal/hub"
	"github.com/axonops/axonops-schema-registry/internal/storage"
)

// statusForKind maps a hub error Kind to its HTTP status per section 7.
func statusForKind(k hub.Kind) int {
	switch k {
	case hub.KindDatabaseNotFound, hub.KindInvalidID, hub.KindNotFound:
		return http.StatusNotFound
	case hub.KindInvalidOperation, hub.KindInvalidJSON:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeHubError translates err into the response body and status code the
// API contract promises, whether it originated as a *hub.Error or a bare
// storage sentinel.
func writeHubError(w http.ResponseWriter, err error) {
	if he, ok := hub.AsHubError(err); ok {
		writeJSON(w, statusForKind(he.Kind), types.ErrorResponse{
			ErrorCode: statusForKind(he.Kind),
			Message:   he.Message,
		})
		return
	}

	switch {
	case errors.Is(err, storage.ErrNetworkNotFound),
		errors.Is(err, storage.ErrNodeNotFound),
		errors.Is(err, storage.ErrMessageNotFound),
		errors.Is(err, storage.ErrRecordNotFound),
		errors.Is(err, storage.ErrRemoteNotFound),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrDatabaseNotFound):
		writeJSON(w, http.StatusNotFound, types.ErrorResponse{ErrorCode: http.StatusNotFound, Message: err.Error()})
	case errors.Is(err, storage.ErrInvalidOperation):
		writeJSON(w, http.StatusBadRequest, types.ErrorResponse{ErrorCode: http.StatusBadRequest, Message: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, types.ErrorResponse{ErrorCode: http.StatusInternalServerError, Message: "internal error"})
	}
}
