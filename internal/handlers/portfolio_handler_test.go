package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/folio/internal/common"
	"github.com/ternarybob/folio/internal/interfaces"
	storage "github.com/ternarybob/folio/internal/storage/badger"
)

func newTestPortfolioHandler(t *testing.T) (*PortfolioHandler, interfaces.PortfolioStorage) {
	t.Helper()
	logger := arbor.NewLogger()
	db, err := storage.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := storage.NewPortfolioStorage(db, logger)
	return NewPortfolioHandler(store, logger), store
}

const portfolioJSON = `{
	"mutual_fund_name": "UTI Nifty 50 Index Fund",
	"portfolio_date": "March 2025",
	"portfolio_holdings": [
		{"name_of_instrument": "HDFC Bank Ltd", "isin_code": "INE040A01034", "percentage_to_nav": "12.3%"}
	]
}`

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCreatePortfolioReturns201ThenUpdates(t *testing.T) {
	handler, _ := newTestPortfolioHandler(t)

	rec := httptest.NewRecorder()
	handler.CreateHandler(rec, httptest.NewRequest(http.MethodPost, "/portfolios", strings.NewReader(portfolioJSON)))
	require.Equal(t, http.StatusCreated, rec.Code)
	first := decodeBody(t, rec)
	firstID := first["data"].(map[string]any)["id"].(string)

	// Identical natural key with different holdings updates the document
	updated := strings.Replace(portfolioJSON, "12.3%", "11.9%", 1)
	rec = httptest.NewRecorder()
	handler.CreateHandler(rec, httptest.NewRequest(http.MethodPost, "/portfolios", strings.NewReader(updated)))
	require.Equal(t, http.StatusOK, rec.Code)
	second := decodeBody(t, rec)
	assert.Equal(t, firstID, second["data"].(map[string]any)["id"])
}

func TestCreatePortfolioRejectsInvalidBody(t *testing.T) {
	handler, _ := newTestPortfolioHandler(t)

	rec := httptest.NewRecorder()
	handler.CreateHandler(rec, httptest.NewRequest(http.MethodPost, "/portfolios", strings.NewReader(`{"portfolio_date":"March 2025"}`)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	handler.CreateHandler(rec, httptest.NewRequest(http.MethodPost, "/portfolios", strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetPortfolioByID(t *testing.T) {
	handler, _ := newTestPortfolioHandler(t)

	rec := httptest.NewRecorder()
	handler.CreateHandler(rec, httptest.NewRequest(http.MethodPost, "/portfolios", strings.NewReader(portfolioJSON)))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody(t, rec)["data"].(map[string]any)["id"].(string)

	rec = httptest.NewRecorder()
	handler.GetHandler(rec, httptest.NewRequest(http.MethodGet, "/portfolios/"+id, nil), id)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.GetHandler(rec, httptest.NewRequest(http.MethodGet, "/portfolios/ghost", nil), "ghost")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAndSearchPortfolios(t *testing.T) {
	handler, _ := newTestPortfolioHandler(t)

	rec := httptest.NewRecorder()
	handler.CreateHandler(rec, httptest.NewRequest(http.MethodPost, "/portfolios", strings.NewReader(portfolioJSON)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	handler.ListHandler(rec, httptest.NewRequest(http.MethodGet, "/portfolios?limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, float64(1), data["count"])

	rec = httptest.NewRecorder()
	handler.SearchHandler(rec, httptest.NewRequest(http.MethodGet, "/portfolios/search?fund_name=nifty", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.SearchHandler(rec, httptest.NewRequest(http.MethodGet, "/portfolios/search", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHoldingsByISINEndpoint(t *testing.T) {
	handler, _ := newTestPortfolioHandler(t)

	rec := httptest.NewRecorder()
	handler.CreateHandler(rec, httptest.NewRequest(http.MethodPost, "/portfolios", strings.NewReader(portfolioJSON)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	handler.HoldingsByISINHandler(rec, httptest.NewRequest(http.MethodGet, "/holdings/INE040A01034", nil), "INE040A01034")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, float64(1), data["count"])
}

func TestFundStatisticsEndpoint(t *testing.T) {
	handler, _ := newTestPortfolioHandler(t)

	rec := httptest.NewRecorder()
	handler.CreateHandler(rec, httptest.NewRequest(http.MethodPost, "/portfolios", strings.NewReader(portfolioJSON)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	handler.StatisticsHandler(rec, httptest.NewRequest(http.MethodGet, "/funds/UTI%20Nifty%2050%20Index%20Fund/statistics", nil), "UTI Nifty 50 Index Fund")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.StatisticsHandler(rec, httptest.NewRequest(http.MethodGet, "/funds/ghost/statistics", nil), "ghost")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
