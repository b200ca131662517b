// -----------------------------------------------------------------------
// Webhook dispatcher - best-effort terminal-state notifications
// -----------------------------------------------------------------------

package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/folio/internal/common"
	"github.com/ternarybob/folio/internal/interfaces"
	"github.com/ternarybob/folio/internal/models"
)

// WebhookDispatcherConfig holds resolved delivery parameters
type WebhookDispatcherConfig struct {
	Attempts int
	Backoff  time.Duration
	Timeout  time.Duration
}

// WebhookDispatcherConfigFrom resolves durations from the raw webhook config
func WebhookDispatcherConfigFrom(cfg *common.WebhookConfig) WebhookDispatcherConfig {
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	return WebhookDispatcherConfig{
		Attempts: attempts,
		Backoff:  common.Duration(cfg.Backoff, 2*time.Second),
		Timeout:  common.Duration(cfg.Timeout, 10*time.Second),
	}
}

// WebhookDispatcher POSTs terminal-state notifications to callback URLs.
// Delivery is best-effort: a bounded retry schedule with exponential
// backoff; a final failure is recorded on the job without altering its
// terminal status.
type WebhookDispatcher struct {
	store  interfaces.JobStorage
	client *http.Client
	config WebhookDispatcherConfig
	logger arbor.ILogger
}

// NewWebhookDispatcher creates a dispatcher over the job store
func NewWebhookDispatcher(store interfaces.JobStorage, config WebhookDispatcherConfig, logger arbor.ILogger) *WebhookDispatcher {
	return &WebhookDispatcher{
		store:  store,
		client: &http.Client{Timeout: config.Timeout},
		config: config,
		logger: logger,
	}
}

// DispatchAsync fires delivery in the background if the job carries a
// callback URL
func (d *WebhookDispatcher) DispatchAsync(job *models.Job) {
	if job == nil || job.CallbackURL == "" {
		return
	}
	go d.Dispatch(context.Background(), job)
}

// Dispatch delivers the terminal notification with bounded retries
func (d *WebhookDispatcher) Dispatch(ctx context.Context, job *models.Job) {
	payload := map[string]any{
		"job_id": job.ID,
		"status": job.Status,
	}
	if job.Result != nil {
		payload["result"] = job.Result
	}
	if job.Error != nil {
		payload["error"] = job.Error
	}
	if job.CompletedAt != nil {
		payload["finished_at"] = job.CompletedAt.Format(time.RFC3339)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to encode webhook payload")
		return
	}

	var lastErr error
	for attempt := 1; attempt <= d.config.Attempts; attempt++ {
		lastErr = d.post(ctx, job.CallbackURL, body)
		if lastErr == nil {
			d.logger.Info().
				Str("job_id", job.ID).
				Str("url", job.CallbackURL).
				Int("attempt", attempt).
				Msg("Webhook delivered")
			return
		}

		d.logger.Warn().
			Err(lastErr).
			Str("job_id", job.ID).
			Int("attempt", attempt).
			Msg("Webhook delivery failed")

		if attempt < d.config.Attempts {
			backoff := d.config.Backoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
		}
	}

	if err := d.store.RecordWebhookError(ctx, job.ID, lastErr.Error()); err != nil {
		d.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to record webhook error")
	}
}

func (d *WebhookDispatcher) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
