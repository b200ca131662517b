package badger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/folio/internal/interfaces"
	"github.com/ternarybob/folio/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// PortfolioStorage implements the PortfolioStorage interface for Badger.
// The mutex guards the natural-key lookup plus write so the unique
// (fund name, portfolio date) invariant holds under concurrent upserts.
type PortfolioStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewPortfolioStorage creates a new PortfolioStorage instance
func NewPortfolioStorage(db *BadgerDB, logger arbor.ILogger) interfaces.PortfolioStorage {
	return &PortfolioStorage{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts or replaces a portfolio by natural key. An existing
// document keeps its ID and CreatedAt; UpdatedAt always advances. Returns
// the ID under which the document is stored.
func (s *PortfolioStorage) Upsert(ctx context.Context, portfolio *models.Portfolio) (string, error) {
	if portfolio.MutualFundName == "" || portfolio.PortfolioDate == "" {
		return "", fmt.Errorf("portfolio natural key (fund name, date) is required")
	}
	portfolio.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	existing, err := s.getByNaturalKey(portfolio.MutualFundName, portfolio.PortfolioDate)
	if err != nil && err != ErrNotFound {
		return "", err
	}

	if existing != nil {
		portfolio.ID = existing.ID
		portfolio.CreatedAt = existing.CreatedAt
		portfolio.UpdatedAt = now
		if err := s.db.Store().Update(portfolio.ID, portfolio); err != nil {
			return "", fmt.Errorf("failed to update portfolio %s: %w", portfolio.ID, err)
		}
		return portfolio.ID, nil
	}

	if portfolio.ID == "" {
		portfolio.ID = "pf_" + strings.ReplaceAll(fmt.Sprintf("%s|%s", portfolio.MutualFundName, portfolio.PortfolioDate), " ", "_")
	}
	portfolio.CreatedAt = now
	portfolio.UpdatedAt = now

	if err := s.db.Store().Insert(portfolio.ID, portfolio); err != nil {
		return "", fmt.Errorf("failed to insert portfolio %s: %w", portfolio.ID, err)
	}
	return portfolio.ID, nil
}

func (s *PortfolioStorage) GetByID(ctx context.Context, id string) (*models.Portfolio, error) {
	var portfolio models.Portfolio
	if err := s.db.Store().Get(id, &portfolio); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	return &portfolio, nil
}

func (s *PortfolioStorage) GetByNaturalKey(ctx context.Context, fundName, portfolioDate string) (*models.Portfolio, error) {
	return s.getByNaturalKey(fundName, portfolioDate)
}

func (s *PortfolioStorage) getByNaturalKey(fundName, portfolioDate string) (*models.Portfolio, error) {
	var results []models.Portfolio
	query := badgerhold.Where("MutualFundName").Eq(fundName).And("PortfolioDate").Eq(portfolioDate).Limit(1)
	if err := s.db.Store().Find(&results, query); err != nil {
		return nil, fmt.Errorf("failed to query portfolio by natural key: %w", err)
	}
	if len(results) == 0 {
		return nil, ErrNotFound
	}
	return &results[0], nil
}

func (s *PortfolioStorage) List(ctx context.Context, fundName string, limit int) ([]*models.Portfolio, error) {
	query := badgerhold.Where("ID").Ne("")
	if fundName != "" {
		query = query.And("MutualFundName").Eq(fundName)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	query = query.SortBy("UpdatedAt").Reverse()

	var portfolios []models.Portfolio
	if err := s.db.Store().Find(&portfolios, query); err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}

	result := make([]*models.Portfolio, len(portfolios))
	for i := range portfolios {
		result[i] = &portfolios[i]
	}
	return result, nil
}

// SearchByFundName matches case-insensitive substrings of the fund name
func (s *PortfolioStorage) SearchByFundName(ctx context.Context, query string, limit int) ([]*models.Portfolio, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, nil
	}

	var all []models.Portfolio
	if err := s.db.Store().Find(&all, badgerhold.Where("ID").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to search portfolios: %w", err)
	}

	var matches []*models.Portfolio
	for i := range all {
		if strings.Contains(strings.ToLower(all[i].MutualFundName), needle) {
			matches = append(matches, &all[i])
			if limit > 0 && len(matches) >= limit {
				break
			}
		}
	}
	return matches, nil
}

// HoldingsByISIN scans all portfolios for holdings carrying the ISIN
func (s *PortfolioStorage) HoldingsByISIN(ctx context.Context, isin string) ([]models.ISINMatch, error) {
	if isin == "" {
		return nil, nil
	}

	var all []models.Portfolio
	if err := s.db.Store().Find(&all, badgerhold.Where("ID").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to scan portfolios: %w", err)
	}

	var matches []models.ISINMatch
	for i := range all {
		for _, holding := range all[i].PortfolioHoldings {
			if strings.EqualFold(holding.ISINCode, isin) {
				matches = append(matches, models.ISINMatch{
					PortfolioID:    all[i].ID,
					MutualFundName: all[i].MutualFundName,
					PortfolioDate:  all[i].PortfolioDate,
					Holding:        holding,
				})
			}
		}
	}
	return matches, nil
}

// FundStatistics aggregates all portfolios of one fund. Top holdings come
// from the most recently updated portfolio, sorted by percentage-to-NAV.
func (s *PortfolioStorage) FundStatistics(ctx context.Context, fundName string) (*models.FundStatistics, error) {
	portfolios, err := s.List(ctx, fundName, 0)
	if err != nil {
		return nil, err
	}
	if len(portfolios) == 0 {
		return nil, ErrNotFound
	}

	stats := &models.FundStatistics{
		FundName:       fundName,
		PortfolioCount: len(portfolios),
	}

	for _, p := range portfolios {
		stats.PortfolioDates = append(stats.PortfolioDates, p.PortfolioDate)
		stats.TotalHoldings += p.TotalHoldings
		for _, h := range p.PortfolioHoldings {
			if pct, ok := h.NAVPercent(); ok {
				stats.TotalPercentage += pct
			}
		}
		if p.UpdatedAt.After(stats.LatestUpdatedAt) {
			stats.LatestUpdatedAt = p.UpdatedAt
		}
	}

	// List is sorted by UpdatedAt descending, so the first entry is latest
	latest := portfolios[0]
	top := make([]models.Holding, len(latest.PortfolioHoldings))
	copy(top, latest.PortfolioHoldings)
	sort.SliceStable(top, func(i, j int) bool {
		pi, _ := top[i].NAVPercent()
		pj, _ := top[j].NAVPercent()
		return pi > pj
	})
	if len(top) > 10 {
		top = top[:10]
	}
	stats.TopHoldings = top

	return stats, nil
}
