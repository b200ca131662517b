package holdings

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/folio/internal/models"
)

// memETFStore is an in-memory ETF metadata collection
type memETFStore struct {
	etfs map[string]*models.ETFMetadata
}

func newMemETFStore(etfs ...*models.ETFMetadata) *memETFStore {
	m := &memETFStore{etfs: make(map[string]*models.ETFMetadata)}
	for _, etf := range etfs {
		m.etfs[etf.Symbol] = etf
	}
	return m
}

func (m *memETFStore) GetBySymbol(ctx context.Context, symbol string) (*models.ETFMetadata, error) {
	if etf, ok := m.etfs[symbol]; ok {
		return etf, nil
	}
	return nil, models.NewJobError(models.ErrKindNotFound, "not found")
}

func (m *memETFStore) ListWithISIN(ctx context.Context, limit int) ([]*models.ETFMetadata, error) {
	var out []*models.ETFMetadata
	for _, etf := range m.etfs {
		if etf.ISIN != "" {
			out = append(out, etf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memETFStore) Search(ctx context.Context, query string, limit int) ([]*models.ETFMetadata, error) {
	var out []*models.ETFMetadata
	for _, etf := range m.etfs {
		if strings.Contains(strings.ToLower(etf.Symbol), strings.ToLower(query)) {
			out = append(out, etf)
		}
	}
	return out, nil
}

func (m *memETFStore) Count(ctx context.Context) (int, error) { return len(m.etfs), nil }
func (m *memETFStore) Seed(ctx context.Context, etfs []*models.ETFMetadata) (int, error) {
	return 0, nil
}

// memSnapshotStore is an in-memory holdings snapshot collection
type memSnapshotStore struct {
	mu        sync.Mutex
	snapshots map[string]*models.HoldingsSnapshot
}

func newMemSnapshotStore() *memSnapshotStore {
	return &memSnapshotStore{snapshots: make(map[string]*models.HoldingsSnapshot)}
}

func (m *memSnapshotStore) Upsert(ctx context.Context, s *models.HoldingsSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.TotalHoldings = len(s.Holdings)
	clone := *s
	m.snapshots[s.Symbol] = &clone
	return nil
}

func (m *memSnapshotStore) GetBySymbol(ctx context.Context, symbol string) (*models.HoldingsSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.snapshots[symbol]; ok {
		return s, nil
	}
	return nil, models.NewJobError(models.ErrKindNotFound, "not found")
}

func (m *memSnapshotStore) Stats(ctx context.Context, ttl time.Duration) (*models.HoldingsStats, error) {
	return &models.HoldingsStats{TotalSnapshots: len(m.snapshots)}, nil
}

// countingClient counts upstream calls and serves canned responses
type countingClient struct {
	mu    sync.Mutex
	calls int
	fail  map[string]error
}

func (c *countingClient) FetchHoldings(ctx context.Context, isin string) ([]models.ETFHoldingRecord, string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.fail != nil {
		if err, ok := c.fail[isin]; ok {
			return nil, "", err
		}
	}
	pct := 12.3
	return []models.ETFHoldingRecord{
		{StockName: "HDFC Bank Ltd", ISINCode: "INE040A01034", Percentage: &pct},
	}, `"etag-1"`, nil
}

func (c *countingClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func utiETF() *models.ETFMetadata {
	return &models.ETFMetadata{Symbol: "UTINIFTETF", ISIN: "INF789F1AUS5", Name: "UTI Nifty 50 ETF"}
}

func TestFetchSymbolStoresSnapshot(t *testing.T) {
	client := &countingClient{}
	snapshots := newMemSnapshotStore()
	fetcher := NewFetcher(newMemETFStore(utiETF()), snapshots, client, 24*time.Hour, arbor.NewLogger())

	result := fetcher.FetchSymbol(context.Background(), utiETF())
	assert.True(t, result.Success)
	assert.True(t, result.APICalled)
	assert.False(t, result.CacheHit)
	assert.Equal(t, 1, result.HoldingsCount)
	assert.Equal(t, 1, client.callCount())

	stored, err := snapshots.GetBySymbol(context.Background(), "UTINIFTETF")
	require.NoError(t, err)
	assert.Equal(t, "INF789F1AUS5", stored.ISIN)
	assert.Equal(t, `"etag-1"`, stored.SourceETag)
	assert.WithinDuration(t, time.Now(), stored.FetchedAt, 5*time.Second)
}

// Cache coherence: within the freshness TTL a repeat fetch is a cache hit
// with zero upstream calls.
func TestFetchSymbolHonorsFreshnessCache(t *testing.T) {
	client := &countingClient{}
	snapshots := newMemSnapshotStore()
	fetcher := NewFetcher(newMemETFStore(utiETF()), snapshots, client, 24*time.Hour, arbor.NewLogger())

	first := fetcher.FetchSymbol(context.Background(), utiETF())
	require.True(t, first.Success)
	require.Equal(t, 1, client.callCount())

	second := fetcher.FetchSymbol(context.Background(), utiETF())
	assert.True(t, second.Success)
	assert.True(t, second.CacheHit)
	assert.False(t, second.APICalled)
	assert.Equal(t, 1, client.callCount())
}

func TestFetchSymbolRefreshesStaleSnapshot(t *testing.T) {
	client := &countingClient{}
	snapshots := newMemSnapshotStore()
	require.NoError(t, snapshots.Upsert(context.Background(), &models.HoldingsSnapshot{
		Symbol:    "UTINIFTETF",
		ISIN:      "INF789F1AUS5",
		FetchedAt: time.Now().Add(-48 * time.Hour),
	}))

	fetcher := NewFetcher(newMemETFStore(utiETF()), snapshots, client, 24*time.Hour, arbor.NewLogger())

	result := fetcher.FetchSymbol(context.Background(), utiETF())
	assert.True(t, result.Success)
	assert.True(t, result.APICalled)
	assert.Equal(t, 1, client.callCount())
}

func TestFetchSymbolWithoutISIN(t *testing.T) {
	client := &countingClient{}
	fetcher := NewFetcher(newMemETFStore(), newMemSnapshotStore(), client, 24*time.Hour, arbor.NewLogger())

	result := fetcher.FetchSymbol(context.Background(), &models.ETFMetadata{Symbol: "NOISIN"})
	assert.False(t, result.Success)
	assert.False(t, result.APICalled)
	assert.Equal(t, 0, client.callCount())
}

func TestDiscoverTruncatesDeterministically(t *testing.T) {
	etfs := newMemETFStore(
		&models.ETFMetadata{Symbol: "CETF", ISIN: "INF000000003"},
		&models.ETFMetadata{Symbol: "AETF", ISIN: "INF000000001"},
		&models.ETFMetadata{Symbol: "BETF", ISIN: "INF000000002"},
		&models.ETFMetadata{Symbol: "NOISIN"},
	)
	fetcher := NewFetcher(etfs, newMemSnapshotStore(), &countingClient{}, 24*time.Hour, arbor.NewLogger())

	found, err := fetcher.Discover(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "AETF", found[0].Symbol)
	assert.Equal(t, "BETF", found[1].Symbol)
}
