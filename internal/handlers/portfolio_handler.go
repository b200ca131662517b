package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/folio/internal/interfaces"
	"github.com/ternarybob/folio/internal/models"
	storage "github.com/ternarybob/folio/internal/storage/badger"
)

// PortfolioHandler serves the portfolio REST surface
type PortfolioHandler struct {
	portfolios interfaces.PortfolioStorage
	validate   *validator.Validate
	logger     arbor.ILogger
}

// NewPortfolioHandler creates the portfolio endpoint handler
func NewPortfolioHandler(portfolios interfaces.PortfolioStorage, logger arbor.ILogger) *PortfolioHandler {
	return &PortfolioHandler{
		portfolios: portfolios,
		validate:   validator.New(),
		logger:     logger,
	}
}

// CreateHandler handles POST /portfolios: upsert by natural key
func (h *PortfolioHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var portfolio models.Portfolio
	if err := json.NewDecoder(r.Body).Decode(&portfolio); err != nil {
		WriteError(w, http.StatusUnprocessableEntity, "invalid portfolio JSON: "+err.Error())
		return
	}
	if err := h.validate.Struct(&portfolio); err != nil {
		WriteError(w, http.StatusUnprocessableEntity, "portfolio failed validation: "+err.Error())
		return
	}

	existing, err := h.portfolios.GetByNaturalKey(r.Context(), portfolio.MutualFundName, portfolio.PortfolioDate)
	if err != nil && err != storage.ErrNotFound {
		WriteStorageError(w, err)
		return
	}

	id, err := h.portfolios.Upsert(r.Context(), &portfolio)
	if err != nil {
		WriteStorageError(w, err)
		return
	}

	statusCode := http.StatusCreated
	message := "portfolio created"
	if existing != nil {
		statusCode = http.StatusOK
		message = "portfolio updated"
	}

	h.logger.Info().Str("portfolio_id", id).Str("fund", portfolio.MutualFundName).Msg("Portfolio upserted")
	WriteData(w, statusCode, message, map[string]interface{}{"id": id})
}

// ListHandler handles GET /portfolios with fund_name and limit filters
func (h *PortfolioHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	fundName := r.URL.Query().Get("fund_name")
	limit := QueryInt(r, "limit", 100)

	portfolios, err := h.portfolios.List(r.Context(), fundName, limit)
	if err != nil {
		WriteStorageError(w, err)
		return
	}
	WriteData(w, http.StatusOK, "portfolios", map[string]interface{}{
		"count":      len(portfolios),
		"portfolios": portfolios,
	})
}

// GetHandler handles GET /portfolios/{id}
func (h *PortfolioHandler) GetHandler(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	portfolio, err := h.portfolios.GetByID(r.Context(), id)
	if err != nil {
		WriteStorageError(w, err)
		return
	}
	WriteData(w, http.StatusOK, "portfolio", portfolio)
}

// SearchHandler handles GET /portfolios/search?fund_name=
func (h *PortfolioHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("fund_name"))
	if query == "" {
		WriteError(w, http.StatusUnprocessableEntity, "fund_name query parameter is required")
		return
	}

	matches, err := h.portfolios.SearchByFundName(r.Context(), query, QueryInt(r, "limit", 50))
	if err != nil {
		WriteStorageError(w, err)
		return
	}
	WriteData(w, http.StatusOK, "search results", map[string]interface{}{
		"count":      len(matches),
		"portfolios": matches,
	})
}

// HoldingsByISINHandler handles GET /holdings/{isin}
func (h *PortfolioHandler) HoldingsByISINHandler(w http.ResponseWriter, r *http.Request, isin string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	matches, err := h.portfolios.HoldingsByISIN(r.Context(), isin)
	if err != nil {
		WriteStorageError(w, err)
		return
	}
	WriteData(w, http.StatusOK, "holdings", map[string]interface{}{
		"isin":     isin,
		"count":    len(matches),
		"holdings": matches,
	})
}

// StatisticsHandler handles GET /funds/{name}/statistics
func (h *PortfolioHandler) StatisticsHandler(w http.ResponseWriter, r *http.Request, fundName string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	stats, err := h.portfolios.FundStatistics(r.Context(), fundName)
	if err != nil {
		WriteStorageError(w, err)
		return
	}
	WriteData(w, http.StatusOK, "fund statistics", stats)
}
