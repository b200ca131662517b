package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/folio/internal/models"
)

func floatPtr(v float64) *float64 { return &v }

func TestHoldingsSnapshotUpsertNeverTouchesMetadata(t *testing.T) {
	db := newTestDB(t)
	logger := arbor.NewLogger()
	etfs := NewETFStorage(db, logger)
	snapshots := NewHoldingsStorage(db, logger)
	ctx := context.Background()

	seeded, err := etfs.Seed(ctx, []*models.ETFMetadata{
		{Symbol: "UTINIFTETF", ISIN: "INF789F1AUS5", Name: "UTI Nifty 50 ETF"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, seeded)

	before, err := etfs.GetBySymbol(ctx, "UTINIFTETF")
	require.NoError(t, err)

	snapshot := &models.HoldingsSnapshot{
		Symbol: "UTINIFTETF",
		ISIN:   "INF789F1AUS5",
		Holdings: []models.ETFHoldingRecord{
			{StockName: "HDFC Bank Ltd", ISINCode: "INE040A01034", Percentage: floatPtr(12.3)},
		},
	}
	require.NoError(t, snapshots.Upsert(ctx, snapshot))

	after, err := etfs.GetBySymbol(ctx, "UTINIFTETF")
	require.NoError(t, err)
	assert.Equal(t, *before, *after)

	stored, err := snapshots.GetBySymbol(ctx, "UTINIFTETF")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TotalHoldings)
	assert.False(t, stored.FetchedAt.IsZero())
}

func TestHoldingsStatsFreshnessBuckets(t *testing.T) {
	snapshots := NewHoldingsStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, snapshots.Upsert(ctx, &models.HoldingsSnapshot{
		Symbol:    "FRESH",
		ISIN:      "INF000000001",
		FetchedAt: time.Now(),
	}))
	require.NoError(t, snapshots.Upsert(ctx, &models.HoldingsSnapshot{
		Symbol:    "STALE",
		ISIN:      "INF000000002",
		FetchedAt: time.Now().Add(-48 * time.Hour),
	}))

	stats, err := snapshots.Stats(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalSnapshots)
	assert.Equal(t, 1, stats.FreshSnapshots)
	assert.Equal(t, 1, stats.StaleSnapshots)
}

func TestListWithISINIsDeterministic(t *testing.T) {
	etfs := NewETFStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	_, err := etfs.Seed(ctx, []*models.ETFMetadata{
		{Symbol: "ZETF", ISIN: "INF000000003"},
		{Symbol: "AETF", ISIN: "INF000000001"},
		{Symbol: "NOISIN"},
		{Symbol: "METF", ISIN: "INF000000002"},
	})
	require.NoError(t, err)

	listed, err := etfs.ListWithISIN(ctx, 0)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, "AETF", listed[0].Symbol)
	assert.Equal(t, "METF", listed[1].Symbol)
	assert.Equal(t, "ZETF", listed[2].Symbol)

	truncated, err := etfs.ListWithISIN(ctx, 2)
	require.NoError(t, err)
	require.Len(t, truncated, 2)
	assert.Equal(t, "AETF", truncated[0].Symbol)
}
