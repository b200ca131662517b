package holdings

import (
	"fmt"

	"github.com/ternarybob/folio/internal/models"
	"github.com/ternarybob/folio/internal/queue"
)

// OneHandler runs fetch_holdings_one jobs
type OneHandler struct {
	fetcher *Fetcher
}

// NewOneHandler wraps the fetcher for single-symbol jobs
func NewOneHandler(fetcher *Fetcher) *OneHandler {
	return &OneHandler{fetcher: fetcher}
}

func (h *OneHandler) Kind() models.JobKind {
	return models.JobKindFetchHoldingsOne
}

func (h *OneHandler) Run(jc *queue.JobContext) (map[string]any, *models.JobError) {
	symbol, ok := jc.Job().PayloadString("symbol")
	if !ok || symbol == "" {
		return nil, models.NewJobError(models.ErrKindValidation, "payload is missing symbol")
	}

	etf, err := h.fetcher.ResolveSymbol(jc.Context(), symbol)
	if err != nil {
		return nil, queue.Err(models.ErrKindNotFound, err)
	}

	jc.SetTotal(1)

	if jc.Cancelled() {
		return nil, models.NewJobError(models.ErrKindCancelled, "cancelled before upstream fetch")
	}

	result := h.fetcher.FetchSymbol(jc.Context(), etf)
	jc.Advance(result.Success, symbol)

	if !result.Success {
		return nil, models.NewJobError(models.ErrKindUpstreamTotalFailure,
			fmt.Sprintf("fetch failed for %s: %s", symbol, result.Error))
	}
	return result.toMap(), nil
}

// AllHandler runs fetch_holdings_all jobs: a deterministic sweep over every
// ETF with an ISIN, serialized through the upstream rate-limit gate.
type AllHandler struct {
	fetcher *Fetcher
}

// NewAllHandler wraps the fetcher for fleet-wide jobs
func NewAllHandler(fetcher *Fetcher) *AllHandler {
	return &AllHandler{fetcher: fetcher}
}

func (h *AllHandler) Kind() models.JobKind {
	return models.JobKindFetchHoldingsAll
}

func (h *AllHandler) Run(jc *queue.JobContext) (map[string]any, *models.JobError) {
	limit, _ := jc.Job().PayloadInt("limit")

	etfs, err := h.fetcher.Discover(jc.Context(), limit)
	if err != nil {
		return nil, queue.Err(models.ErrKindStoreUnavailable, err)
	}
	if len(etfs) == 0 {
		return nil, models.NewJobError(models.ErrKindNotFound, "no ETFs with an ISIN in the metadata collection")
	}

	jc.SetTotal(len(etfs))

	successes := 0
	cacheHits := 0
	apiCalls := 0
	var results []map[string]any

	for _, etf := range etfs {
		// Yield point: stop before the next symbol
		if jc.Cancelled() {
			return nil, models.NewJobError(models.ErrKindCancelled,
				fmt.Sprintf("cancelled after %d of %d symbols", len(results), len(etfs)))
		}

		result := h.fetcher.FetchSymbol(jc.Context(), etf)
		results = append(results, result.toMap())
		if result.Success {
			successes++
		}
		if result.CacheHit {
			cacheHits++
		}
		if result.APICalled {
			apiCalls++
		}
		jc.Advance(result.Success, etf.Symbol)
	}

	if successes == 0 {
		return nil, models.NewJobError(models.ErrKindUpstreamTotalFailure,
			fmt.Sprintf("no symbol succeeded (%d attempted)", len(etfs)))
	}

	return map[string]any{
		"total_symbols": len(etfs),
		"successes":     successes,
		"failures":      len(etfs) - successes,
		"cache_hits":    cacheHits,
		"api_calls":     apiCalls,
		"results":       results,
	}, nil
}

var _ queue.Handler = (*OneHandler)(nil)
var _ queue.Handler = (*AllHandler)(nil)
