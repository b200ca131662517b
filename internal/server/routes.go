package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Portfolios
	mux.HandleFunc("/portfolios", s.handlePortfoliosRoute)
	mux.HandleFunc("/portfolios/", s.handlePortfolioRoutes)

	// Cross-portfolio holdings lookup
	mux.HandleFunc("/holdings/", s.handleHoldingsRoute)

	// Fund statistics
	mux.HandleFunc("/funds/", s.handleFundRoutes)

	// Workbook ingest
	mux.HandleFunc("/upload/excel", s.app.UploadHandler.SyncHandler)
	mux.HandleFunc("/jobs/upload-excel-async", s.app.UploadHandler.AsyncHandler)

	// Jobs
	mux.HandleFunc("/jobs", s.app.JobHandler.ListHandler)
	mux.HandleFunc("/jobs/", s.handleJobRoutes)

	// ETF metadata and holdings
	mux.HandleFunc("/etf/fetch-all-holdings", s.app.ETFHandler.FetchAllHandler)
	mux.HandleFunc("/etf/fetch-holdings/", s.handleETFFetchRoute)
	mux.HandleFunc("/etf/holdings/", s.handleETFHoldingsRoute)
	mux.HandleFunc("/etf/stats", s.app.ETFHandler.StatsHandler)
	mux.HandleFunc("/etf/search", s.app.ETFHandler.SearchHandler)

	// Operator overrides
	mux.HandleFunc("/admin/jobs/recover-all", s.app.JobHandler.RecoverAllHandler)
	mux.HandleFunc("/admin/jobs/", s.handleAdminJobRoutes)

	// System
	mux.HandleFunc("/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/version", s.app.APIHandler.VersionHandler)

	return mux
}

// handlePortfoliosRoute dispatches /portfolios by method
func (s *Server) handlePortfoliosRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.app.PortfolioHandler.CreateHandler(w, r)
	case http.MethodGet:
		s.app.PortfolioHandler.ListHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handlePortfolioRoutes dispatches /portfolios/search and /portfolios/{id}
func (s *Server) handlePortfolioRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/portfolios/")
	if rest == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if rest == "search" {
		s.app.PortfolioHandler.SearchHandler(w, r)
		return
	}
	s.app.PortfolioHandler.GetHandler(w, r, rest)
}

// handleHoldingsRoute dispatches /holdings/{isin}
func (s *Server) handleHoldingsRoute(w http.ResponseWriter, r *http.Request) {
	isin := strings.TrimPrefix(r.URL.Path, "/holdings/")
	if isin == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	s.app.PortfolioHandler.HoldingsByISINHandler(w, r, isin)
}

// handleFundRoutes dispatches /funds/{name}/statistics
func (s *Server) handleFundRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/funds/")
	if name, ok := strings.CutSuffix(rest, "/statistics"); ok && name != "" {
		s.app.PortfolioHandler.StatisticsHandler(w, r, name)
		return
	}
	http.Error(w, "Not found", http.StatusNotFound)
}

// handleJobRoutes dispatches /jobs/{id}/status, /jobs/{id}/result, and
// /jobs/{id}/cancel
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/jobs/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	jobID := parts[0]
	switch parts[1] {
	case "status":
		s.app.JobHandler.StatusHandler(w, r, jobID)
	case "result":
		s.app.JobHandler.ResultHandler(w, r, jobID)
	case "cancel":
		s.app.JobHandler.CancelHandler(w, r, jobID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleETFFetchRoute dispatches /etf/fetch-holdings/{symbol}
func (s *Server) handleETFFetchRoute(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimPrefix(r.URL.Path, "/etf/fetch-holdings/")
	if symbol == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	s.app.ETFHandler.FetchOneHandler(w, r, symbol)
}

// handleETFHoldingsRoute dispatches /etf/holdings/{symbol}
func (s *Server) handleETFHoldingsRoute(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimPrefix(r.URL.Path, "/etf/holdings/")
	if symbol == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	s.app.ETFHandler.HoldingsHandler(w, r, symbol)
}

// handleAdminJobRoutes dispatches /admin/jobs/{id}/recover
func (s *Server) handleAdminJobRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/admin/jobs/")
	if jobID, ok := strings.CutSuffix(rest, "/recover"); ok && jobID != "" {
		s.app.JobHandler.RecoverHandler(w, r, jobID)
		return
	}
	http.Error(w, "Not found", http.StatusNotFound)
}
