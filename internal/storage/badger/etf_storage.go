package badger

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/folio/internal/interfaces"
	"github.com/ternarybob/folio/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ETFStorage implements read access to the ETF metadata collection. Writes
// happen only through Seed at startup; the job subsystem never mutates
// metadata documents.
type ETFStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewETFStorage creates a new ETFStorage instance
func NewETFStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ETFStorage {
	return &ETFStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ETFStorage) GetBySymbol(ctx context.Context, symbol string) (*models.ETFMetadata, error) {
	var etf models.ETFMetadata
	if err := s.db.Store().Get(symbol, &etf); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get ETF metadata: %w", err)
	}
	return &etf, nil
}

// ListWithISIN returns metadata records carrying an ISIN, sorted by symbol
// so fleet-wide fetches iterate deterministically across re-runs.
func (s *ETFStorage) ListWithISIN(ctx context.Context, limit int) ([]*models.ETFMetadata, error) {
	var etfs []models.ETFMetadata
	if err := s.db.Store().Find(&etfs, badgerhold.Where("ISIN").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to list ETF metadata: %w", err)
	}

	sort.Slice(etfs, func(i, j int) bool { return etfs[i].Symbol < etfs[j].Symbol })

	if limit > 0 && len(etfs) > limit {
		etfs = etfs[:limit]
	}

	result := make([]*models.ETFMetadata, len(etfs))
	for i := range etfs {
		result[i] = &etfs[i]
	}
	return result, nil
}

// Search matches case-insensitive substrings of symbol or name
func (s *ETFStorage) Search(ctx context.Context, query string, limit int) ([]*models.ETFMetadata, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, nil
	}

	var all []models.ETFMetadata
	if err := s.db.Store().Find(&all, badgerhold.Where("Symbol").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to search ETF metadata: %w", err)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Symbol < all[j].Symbol })

	var matches []*models.ETFMetadata
	for i := range all {
		if strings.Contains(strings.ToLower(all[i].Symbol), needle) ||
			strings.Contains(strings.ToLower(all[i].Name), needle) {
			matches = append(matches, &all[i])
			if limit > 0 && len(matches) >= limit {
				break
			}
		}
	}
	return matches, nil
}

func (s *ETFStorage) Count(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.ETFMetadata{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count ETF metadata: %w", err)
	}
	return int(count), nil
}

// Seed upserts metadata records loaded at startup. Returns the number stored.
func (s *ETFStorage) Seed(ctx context.Context, etfs []*models.ETFMetadata) (int, error) {
	count := 0
	for _, etf := range etfs {
		if etf.Symbol == "" {
			continue
		}
		if err := s.db.Store().Upsert(etf.Symbol, etf); err != nil {
			s.logger.Warn().Err(err).Str("symbol", etf.Symbol).Msg("Failed to seed ETF metadata")
			continue
		}
		count++
	}
	return count, nil
}
