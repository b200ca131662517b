package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/folio/internal/common"
	"github.com/ternarybob/folio/internal/interfaces"
)

// APIHandler serves system endpoints: health, version, unmatched routes
type APIHandler struct {
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

// NewAPIHandler creates the system endpoint handler
func NewAPIHandler(storage interfaces.StorageManager, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		storage: storage,
		logger:  logger,
	}
}

// HealthHandler reports liveness and pings the store
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.Ping(r.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("Health check store ping failed")
		WriteError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	WriteData(w, http.StatusOK, "ok", map[string]interface{}{
		"version": common.GetVersion(),
	})
}

// VersionHandler returns build information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	WriteData(w, http.StatusOK, "version", map[string]interface{}{
		"version": common.GetFullVersion(),
	})
}

// NotFoundHandler catches unmatched API routes
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, "unknown endpoint: "+r.URL.Path)
}
