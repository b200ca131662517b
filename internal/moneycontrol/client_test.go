package moneycontrol

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/folio/internal/models"
)

func TestFetchHoldingsParsesWrappedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "INF789F1AUS5", r.URL.Query().Get("isin"))
		assert.Equal(t, "Stocks", r.URL.Query().Get("key"))
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(`{"data":[
			{"name":"HDFC Bank Ltd","isin":"INE040A01034","holdingPer":"12.3","investedAmount":1000.5,"quantity":42},
			{"stock_name":"Reliance Industries","isin_code":"INE002A01018","percentage":"8.7%"}
		]}`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL), WithMinInterval(time.Millisecond))

	holdings, etag, err := client.FetchHoldings(context.Background(), "INF789F1AUS5")
	require.NoError(t, err)
	assert.Equal(t, `"v1"`, etag)
	require.Len(t, holdings, 2)

	first := holdings[0]
	assert.Equal(t, "HDFC Bank Ltd", first.StockName)
	assert.Equal(t, "INE040A01034", first.ISINCode)
	require.NotNil(t, first.Percentage)
	assert.Equal(t, 12.3, *first.Percentage)
	require.NotNil(t, first.MarketValue)
	assert.Equal(t, 1000.5, *first.MarketValue)
	require.NotNil(t, first.Quantity)
	assert.Equal(t, int64(42), *first.Quantity)

	// Synonym fields and "%"-suffixed percentages parse too
	second := holdings[1]
	assert.Equal(t, "Reliance Industries", second.StockName)
	require.NotNil(t, second.Percentage)
	assert.Equal(t, 8.7, *second.Percentage)
}

func TestFetchHoldingsParsesBareArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"name":"HDFC Bank Ltd","holdingPer":12.3}]`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL), WithMinInterval(time.Millisecond))

	holdings, _, err := client.FetchHoldings(context.Background(), "INF789F1AUS5")
	require.NoError(t, err)
	require.Len(t, holdings, 1)
}

func TestFetchHoldingsUpstreamErrors(t *testing.T) {
	var status int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte("nope"))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL), WithMinInterval(time.Millisecond))

	status = http.StatusNotFound
	_, _, err := client.FetchHoldings(context.Background(), "INF789F1AUS5")
	require.Error(t, err)
	jobErr, ok := err.(*models.JobError)
	require.True(t, ok)
	assert.Equal(t, models.ErrKindUpstreamHTTP, jobErr.Kind)

	status = http.StatusOK
	_, _, err = client.FetchHoldings(context.Background(), "")
	require.Error(t, err)
	jobErr, ok = err.(*models.JobError)
	require.True(t, ok)
	assert.Equal(t, models.ErrKindValidation, jobErr.Kind)
}

func TestFetchHoldingsRejectsMalformedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":"not a list"}`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL), WithMinInterval(time.Millisecond))

	_, _, err := client.FetchHoldings(context.Background(), "INF789F1AUS5")
	require.Error(t, err)
	jobErr, ok := err.(*models.JobError)
	require.True(t, ok)
	assert.Equal(t, models.ErrKindUpstreamParse, jobErr.Kind)
}

// The gate serializes upstream calls regardless of caller concurrency:
// N calls through one client are spaced by at least the minimum interval.
func TestRateGateSerializesConcurrentCallers(t *testing.T) {
	var mu sync.Mutex
	var callTimes []time.Time

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		callTimes = append(callTimes, time.Now())
		mu.Unlock()
		w.Write([]byte(`[{"name":"X","holdingPer":1}]`))
	}))
	defer server.Close()

	minInterval := 50 * time.Millisecond
	client := NewClient(WithBaseURL(server.URL), WithMinInterval(minInterval))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := client.FetchHoldings(context.Background(), "INF789F1AUS5")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, callTimes, 4)
	// Allow a small scheduling tolerance below the configured interval
	tolerance := 5 * time.Millisecond
	mu.Lock()
	defer mu.Unlock()
	times := append([]time.Time(nil), callTimes...)
	for i := 0; i < len(times); i++ {
		for j := i + 1; j < len(times); j++ {
			gap := times[j].Sub(times[i])
			if gap < 0 {
				gap = -gap
			}
			assert.GreaterOrEqual(t, gap+tolerance, minInterval,
				"upstream calls %d and %d were closer than the minimum interval", i, j)
		}
	}
}
