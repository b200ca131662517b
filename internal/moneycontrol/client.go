// -----------------------------------------------------------------------
// Moneycontrol client - rate-limited ETF holdings fetches
// -----------------------------------------------------------------------

package moneycontrol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/folio/internal/interfaces"
	"github.com/ternarybob/folio/internal/models"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the base URL for the moneycontrol ETF service.
	DefaultBaseURL = "https://mf.moneycontrol.com/service/etf/v1"

	// DefaultTimeout is the default per-call HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMinInterval is the default minimum gap between upstream calls.
	DefaultMinInterval = time.Second
)

// APIError is a non-2xx response from the upstream. 4xx responses are
// non-retryable per-symbol failures.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("moneycontrol API error %d on %s: %s", e.StatusCode, e.Endpoint, e.Message)
}

// Retryable reports whether the error class permits a retry on a later run
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500
}

// Client fetches ETF holdings from moneycontrol. A single limiter serializes
// calls across all callers: with burst 1 and one token per minimum interval,
// no two upstream requests are ever closer together than the configured gap,
// regardless of worker concurrency.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMinInterval sets the minimum gap between upstream calls.
func WithMinInterval(minInterval time.Duration) ClientOption {
	return func(c *Client) {
		if minInterval > 0 {
			c.limiter = rate.NewLimiter(rate.Every(minInterval), 1)
		}
	}
}

// WithTimeout sets the per-call HTTP timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new moneycontrol client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Every(DefaultMinInterval), 1),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FetchHoldings retrieves the constituent list for one ISIN. The returned
// etag comes from the response headers when the upstream provides one.
func (c *Client) FetchHoldings(ctx context.Context, isin string) ([]models.ETFHoldingRecord, string, error) {
	if isin == "" {
		return nil, "", models.NewJobError(models.ErrKindValidation, "isin is required")
	}

	// Wait for the rate-limit gate
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, "", models.NewJobError(models.ErrKindCancelled, "cancelled while waiting for rate limit")
		}
		return nil, "", models.NewJobError(models.ErrKindUpstreamHTTP, err.Error())
	}

	params := url.Values{}
	params.Set("isin", isin)
	params.Set("key", "Stocks")
	reqURL := fmt.Sprintf("%s/getSchemeHoldingData?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	if c.logger != nil {
		c.logger.Debug().Str("isin", isin).Msg("Moneycontrol holdings request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return nil, "", models.NewJobError(models.ErrKindUpstreamTimeout, err.Error())
		}
		return nil, "", models.NewJobError(models.ErrKindUpstreamHTTP, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   "/getSchemeHoldingData",
		}
		return nil, "", models.NewJobError(models.ErrKindUpstreamHTTP, apiErr.Error())
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", models.NewJobError(models.ErrKindUpstreamHTTP, err.Error())
	}

	holdings, err := parseHoldingsPayload(body)
	if err != nil {
		return nil, "", models.NewJobError(models.ErrKindUpstreamParse, err.Error())
	}

	return holdings, resp.Header.Get("ETag"), nil
}

// parseHoldingsPayload tolerates the two payload shapes the upstream emits:
// a bare array, or an object with the array under "data". Field names vary
// between holdingPer/percentage and name/stock_name across endpoints.
func parseHoldingsPayload(body []byte) ([]models.ETFHoldingRecord, error) {
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}

	raw := json.RawMessage(body)
	if err := json.Unmarshal(body, &wrapper); err == nil && len(wrapper.Data) > 0 {
		raw = wrapper.Data
	}

	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("unexpected holdings payload shape: %w", err)
	}

	var holdings []models.ETFHoldingRecord
	for _, item := range items {
		record := models.ETFHoldingRecord{
			StockName:   firstString(item, "name", "stock_name"),
			ISINCode:    firstString(item, "isin_code", "isin"),
			Percentage:  safeFloat(firstValue(item, "holdingPer", "percentage")),
			MarketValue: safeFloat(firstValue(item, "investedAmount", "market_value")),
			Quantity:    safeInt(firstValue(item, "quantity")),
		}
		if record.StockName == "" {
			record.StockName = "Unknown"
		}
		holdings = append(holdings, record)
	}
	return holdings, nil
}

func firstValue(item map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := item[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(item map[string]any, keys ...string) string {
	v := firstValue(item, keys...)
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return fmt.Sprintf("%v", v)
}

func safeFloat(v any) *float64 {
	switch value := v.(type) {
	case nil:
		return nil
	case float64:
		return &value
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), "%"))
		if s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

func safeInt(v any) *int64 {
	switch value := v.(type) {
	case nil:
		return nil
	case float64:
		i := int64(value)
		return &i
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return nil
		}
		return &i
	default:
		return nil
	}
}

var _ interfaces.HoldingsClient = (*Client)(nil)
