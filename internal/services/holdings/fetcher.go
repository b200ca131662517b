// -----------------------------------------------------------------------
// Holdings fetcher - rate-limited upstream fetches with freshness cache
// -----------------------------------------------------------------------

package holdings

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/folio/internal/interfaces"
	"github.com/ternarybob/folio/internal/models"
)

// SymbolResult is the per-symbol outcome of a fetch
type SymbolResult struct {
	Symbol        string `json:"symbol"`
	ISIN          string `json:"isin,omitempty"`
	CacheHit      bool   `json:"cache_hit"`
	APICalled     bool   `json:"api_called"`
	Success       bool   `json:"success"`
	HoldingsCount int    `json:"holdings_count"`
	Error         string `json:"error,omitempty"`
}

func (r *SymbolResult) toMap() map[string]any {
	m := map[string]any{
		"symbol":         r.Symbol,
		"cache_hit":      r.CacheHit,
		"api_called":     r.APICalled,
		"success":        r.Success,
		"holdings_count": r.HoldingsCount,
	}
	if r.ISIN != "" {
		m["isin"] = r.ISIN
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	return m
}

// Fetcher resolves ETF metadata, consults the freshness cache, and calls the
// rate-limited upstream only for stale or missing snapshots. Snapshots are
// stored in their own collection; ETF metadata is never written.
type Fetcher struct {
	etfs         interfaces.ETFStorage
	snapshots    interfaces.HoldingsStorage
	client       interfaces.HoldingsClient
	freshnessTTL time.Duration
	logger       arbor.ILogger
}

// NewFetcher wires the fetcher capabilities
func NewFetcher(etfs interfaces.ETFStorage, snapshots interfaces.HoldingsStorage, client interfaces.HoldingsClient, freshnessTTL time.Duration, logger arbor.ILogger) *Fetcher {
	if freshnessTTL <= 0 {
		freshnessTTL = 24 * time.Hour
	}
	return &Fetcher{
		etfs:         etfs,
		snapshots:    snapshots,
		client:       client,
		freshnessTTL: freshnessTTL,
		logger:       logger,
	}
}

// FetchSymbol fetches holdings for one ETF, honoring the freshness cache
func (f *Fetcher) FetchSymbol(ctx context.Context, etf *models.ETFMetadata) *SymbolResult {
	result := &SymbolResult{Symbol: etf.Symbol, ISIN: etf.ISIN}

	if etf.ISIN == "" {
		result.Error = "etf has no isin"
		return result
	}

	if existing, err := f.snapshots.GetBySymbol(ctx, etf.Symbol); err == nil {
		if existing.Fresh(time.Now(), f.freshnessTTL) {
			result.CacheHit = true
			result.Success = true
			result.HoldingsCount = existing.TotalHoldings
			f.logger.Debug().Str("symbol", etf.Symbol).Msg("Holdings cache hit")
			return result
		}
	}

	records, etag, err := f.client.FetchHoldings(ctx, etf.ISIN)
	result.APICalled = true
	if err != nil {
		result.Error = err.Error()
		f.logger.Warn().Err(err).Str("symbol", etf.Symbol).Str("isin", etf.ISIN).Msg("Upstream holdings fetch failed")
		return result
	}
	if len(records) == 0 {
		result.Error = "upstream returned no holdings"
		return result
	}

	snapshot := &models.HoldingsSnapshot{
		Symbol:     etf.Symbol,
		ISIN:       etf.ISIN,
		Name:       etf.Name,
		Holdings:   records,
		FetchedAt:  time.Now(),
		SourceETag: etag,
	}
	if err := f.snapshots.Upsert(ctx, snapshot); err != nil {
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.HoldingsCount = len(records)
	f.logger.Info().Str("symbol", etf.Symbol).Int("holdings", len(records)).Msg("Holdings snapshot stored")
	return result
}

// ResolveSymbol loads metadata for one symbol
func (f *Fetcher) ResolveSymbol(ctx context.Context, symbol string) (*models.ETFMetadata, error) {
	etf, err := f.etfs.GetBySymbol(ctx, symbol)
	if err != nil {
		return nil, models.NewJobError(models.ErrKindNotFound, fmt.Sprintf("etf %s not found", symbol))
	}
	return etf, nil
}

// Discover lists the fleet: every ETF carrying an ISIN, sorted by symbol,
// truncated to limit when positive.
func (f *Fetcher) Discover(ctx context.Context, limit int) ([]*models.ETFMetadata, error) {
	etfs, err := f.etfs.ListWithISIN(ctx, limit)
	if err != nil {
		return nil, models.NewJobError(models.ErrKindStoreUnavailable, err.Error())
	}
	return etfs, nil
}
