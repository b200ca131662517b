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

func samplePortfolio(id string) *models.Portfolio {
	return &models.Portfolio{
		ID:             id,
		MutualFundName: "Motilal Oswal Nifty Smallcap 250 Index Fund",
		PortfolioDate:  "March 2025",
		PortfolioHoldings: []models.Holding{
			{NameOfInstrument: "Multi Commodity Exchange of India Limited", ISINCode: "INE745G01035", PercentageToNAV: "0.0159%"},
			{NameOfInstrument: "Central Depository Services (India) Limited", ISINCode: "INE736A01011", PercentageToNAV: "1.02%"},
		},
	}
}

func TestUpsertIsIdempotentByNaturalKey(t *testing.T) {
	storage := NewPortfolioStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	id, err := storage.Upsert(ctx, samplePortfolio("sheet_abc"))
	require.NoError(t, err)
	assert.Equal(t, "sheet_abc", id)

	first, err := storage.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, first.TotalHoldings)

	time.Sleep(5 * time.Millisecond)

	// Same natural key with different holdings updates the same document
	updated := samplePortfolio("sheet_abc")
	updated.PortfolioHoldings = updated.PortfolioHoldings[:1]
	secondID, err := storage.Upsert(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, id, secondID)

	second, err := storage.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, second.TotalHoldings)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))

	// Still exactly one document for the natural key
	all, err := storage.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpsertKeepsExistingIDOnNaturalKeyMatch(t *testing.T) {
	storage := NewPortfolioStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	id, err := storage.Upsert(ctx, samplePortfolio("sheet_one"))
	require.NoError(t, err)

	conflicting := samplePortfolio("sheet_two")
	storedID, err := storage.Upsert(ctx, conflicting)
	require.NoError(t, err)
	assert.Equal(t, id, storedID)

	_, err = storage.GetByID(ctx, "sheet_two")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTotalHoldingsMatchesList(t *testing.T) {
	storage := NewPortfolioStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	portfolio := samplePortfolio("sheet_abc")
	portfolio.TotalHoldings = 99 // Normalize overrides a wrong incoming count
	id, err := storage.Upsert(ctx, portfolio)
	require.NoError(t, err)

	got, err := storage.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, len(got.PortfolioHoldings), got.TotalHoldings)
}

func TestGetByNaturalKey(t *testing.T) {
	storage := NewPortfolioStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	_, err := storage.Upsert(ctx, samplePortfolio("sheet_abc"))
	require.NoError(t, err)

	got, err := storage.GetByNaturalKey(ctx, "Motilal Oswal Nifty Smallcap 250 Index Fund", "March 2025")
	require.NoError(t, err)
	assert.Equal(t, "sheet_abc", got.ID)

	_, err = storage.GetByNaturalKey(ctx, "Motilal Oswal Nifty Smallcap 250 Index Fund", "April 2025")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchByFundName(t *testing.T) {
	storage := NewPortfolioStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	_, err := storage.Upsert(ctx, samplePortfolio("sheet_abc"))
	require.NoError(t, err)

	other := samplePortfolio("sheet_def")
	other.MutualFundName = "UTI Nifty 50 Index Fund"
	other.PortfolioDate = "March 2025"
	_, err = storage.Upsert(ctx, other)
	require.NoError(t, err)

	matches, err := storage.SearchByFundName(ctx, "nifty", 0)
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	matches, err = storage.SearchByFundName(ctx, "smallcap", 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "sheet_abc", matches[0].ID)
}

func TestHoldingsByISINAcrossPortfolios(t *testing.T) {
	storage := NewPortfolioStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	_, err := storage.Upsert(ctx, samplePortfolio("sheet_abc"))
	require.NoError(t, err)

	other := samplePortfolio("sheet_def")
	other.MutualFundName = "UTI Nifty 50 Index Fund"
	_, err = storage.Upsert(ctx, other)
	require.NoError(t, err)

	matches, err := storage.HoldingsByISIN(ctx, "INE745G01035")
	require.NoError(t, err)
	assert.Len(t, matches, 2)
	for _, match := range matches {
		assert.Equal(t, "INE745G01035", match.Holding.ISINCode)
	}
}

func TestFundStatistics(t *testing.T) {
	storage := NewPortfolioStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	_, err := storage.Upsert(ctx, samplePortfolio("sheet_abc"))
	require.NoError(t, err)

	april := samplePortfolio("sheet_apr")
	april.PortfolioDate = "April 2025"
	_, err = storage.Upsert(ctx, april)
	require.NoError(t, err)

	stats, err := storage.FundStatistics(ctx, "Motilal Oswal Nifty Smallcap 250 Index Fund")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.PortfolioCount)
	assert.Equal(t, 4, stats.TotalHoldings)
	assert.InDelta(t, 2.0718, stats.TotalPercentage, 0.0001)
	require.NotEmpty(t, stats.TopHoldings)
	// Top holdings sort by percentage-to-NAV descending
	assert.Equal(t, "Central Depository Services (India) Limited", stats.TopHoldings[0].NameOfInstrument)

	_, err = storage.FundStatistics(ctx, "No Such Fund")
	assert.ErrorIs(t, err, ErrNotFound)
}
