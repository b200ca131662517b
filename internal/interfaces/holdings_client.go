package interfaces

import (
	"context"

	"github.com/ternarybob/folio/internal/models"
)

// HoldingsClient fetches ETF constituent lists from the upstream provider.
// Implementations serialize calls through the process-wide rate-limit gate;
// callers never see two upstream requests closer than the configured minimum
// interval regardless of their own concurrency.
type HoldingsClient interface {
	FetchHoldings(ctx context.Context, isin string) ([]models.ETFHoldingRecord, string, error)
}

// WebhookNotifier delivers best-effort terminal-state notifications
type WebhookNotifier interface {
	Notify(ctx context.Context, callbackURL string, payload map[string]any) error
}
