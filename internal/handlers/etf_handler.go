package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/folio/internal/interfaces"
	"github.com/ternarybob/folio/internal/models"
	"github.com/ternarybob/folio/internal/queue"
)

// ETFHandler serves the ETF metadata and holdings surface
type ETFHandler struct {
	etfs         interfaces.ETFStorage
	snapshots    interfaces.HoldingsStorage
	scheduler    *queue.Scheduler
	freshnessTTL time.Duration
	logger       arbor.ILogger
}

// NewETFHandler creates the ETF endpoint handler
func NewETFHandler(etfs interfaces.ETFStorage, snapshots interfaces.HoldingsStorage, scheduler *queue.Scheduler, freshnessTTL time.Duration, logger arbor.ILogger) *ETFHandler {
	return &ETFHandler{
		etfs:         etfs,
		snapshots:    snapshots,
		scheduler:    scheduler,
		freshnessTTL: freshnessTTL,
		logger:       logger,
	}
}

// FetchOneHandler handles POST /etf/fetch-holdings/{symbol}: queues a
// single-symbol fetch job.
func (h *ETFHandler) FetchOneHandler(w http.ResponseWriter, r *http.Request, symbol string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		WriteError(w, http.StatusUnprocessableEntity, "symbol is required")
		return
	}
	if _, err := h.etfs.GetBySymbol(r.Context(), symbol); err != nil {
		WriteStorageError(w, err)
		return
	}

	jobID, err := h.scheduler.Submit(r.Context(), models.JobKindFetchHoldingsOne,
		map[string]any{"symbol": symbol},
		queue.SubmitOptions{
			CallbackURL: r.URL.Query().Get("callback_url"),
			UserID:      r.URL.Query().Get("user_id"),
		})
	if err != nil {
		WriteStorageError(w, err)
		return
	}

	WriteData(w, http.StatusAccepted, "holdings fetch queued", map[string]interface{}{
		"job_id":     jobID,
		"status":     models.JobStatusQueued,
		"symbol":     symbol,
		"status_url": "/jobs/" + jobID + "/status",
	})
}

// FetchAllHandler handles POST /etf/fetch-all-holdings?limit=: queues a
// fleet-wide fetch job.
func (h *ETFHandler) FetchAllHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	payload := map[string]any{}
	if limit := QueryInt(r, "limit", 0); limit > 0 {
		payload["limit"] = limit
	}

	jobID, err := h.scheduler.Submit(r.Context(), models.JobKindFetchHoldingsAll, payload,
		queue.SubmitOptions{
			CallbackURL: r.URL.Query().Get("callback_url"),
			UserID:      r.URL.Query().Get("user_id"),
		})
	if err != nil {
		WriteStorageError(w, err)
		return
	}

	WriteData(w, http.StatusAccepted, "fleet holdings fetch queued", map[string]interface{}{
		"job_id":     jobID,
		"status":     models.JobStatusQueued,
		"status_url": "/jobs/" + jobID + "/status",
	})
}

// HoldingsHandler handles GET /etf/holdings/{symbol}: the last stored snapshot
func (h *ETFHandler) HoldingsHandler(w http.ResponseWriter, r *http.Request, symbol string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	snapshot, err := h.snapshots.GetBySymbol(r.Context(), symbol)
	if err != nil {
		WriteStorageError(w, err)
		return
	}
	WriteData(w, http.StatusOK, "holdings snapshot", snapshot)
}

// StatsHandler handles GET /etf/stats: metadata counts plus cache statistics
func (h *ETFHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	etfCount, err := h.etfs.Count(r.Context())
	if err != nil {
		WriteStorageError(w, err)
		return
	}
	withISIN, err := h.etfs.ListWithISIN(r.Context(), 0)
	if err != nil {
		WriteStorageError(w, err)
		return
	}
	cacheStats, err := h.snapshots.Stats(r.Context(), h.freshnessTTL)
	if err != nil {
		WriteStorageError(w, err)
		return
	}

	WriteData(w, http.StatusOK, "etf statistics", map[string]interface{}{
		"total_etfs":     etfCount,
		"etfs_with_isin": len(withISIN),
		"cache":          cacheStats,
	})
}

// SearchHandler handles GET /etf/search?query=&limit=
func (h *ETFHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		WriteError(w, http.StatusUnprocessableEntity, "query parameter is required")
		return
	}

	matches, err := h.etfs.Search(r.Context(), query, QueryInt(r, "limit", 50))
	if err != nil {
		WriteStorageError(w, err)
		return
	}
	WriteData(w, http.StatusOK, "search results", map[string]interface{}{
		"count": len(matches),
		"etfs":  matches,
	})
}
