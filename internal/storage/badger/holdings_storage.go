package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/folio/internal/interfaces"
	"github.com/ternarybob/folio/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// HoldingsStorage implements the HoldingsStorage interface for Badger.
// Snapshots live in their own collection keyed by symbol; storing one never
// touches the ETF metadata collection.
type HoldingsStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewHoldingsStorage creates a new HoldingsStorage instance
func NewHoldingsStorage(db *BadgerDB, logger arbor.ILogger) interfaces.HoldingsStorage {
	return &HoldingsStorage{
		db:     db,
		logger: logger,
	}
}

func (s *HoldingsStorage) Upsert(ctx context.Context, snapshot *models.HoldingsSnapshot) error {
	if snapshot.Symbol == "" {
		return fmt.Errorf("snapshot symbol is required")
	}
	snapshot.TotalHoldings = len(snapshot.Holdings)
	if snapshot.FetchedAt.IsZero() {
		snapshot.FetchedAt = time.Now()
	}

	if err := s.db.Store().Upsert(snapshot.Symbol, snapshot); err != nil {
		return fmt.Errorf("failed to upsert holdings snapshot for %s: %w", snapshot.Symbol, err)
	}
	return nil
}

func (s *HoldingsStorage) GetBySymbol(ctx context.Context, symbol string) (*models.HoldingsSnapshot, error) {
	var snapshot models.HoldingsSnapshot
	if err := s.db.Store().Get(symbol, &snapshot); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get holdings snapshot: %w", err)
	}
	return &snapshot, nil
}

func (s *HoldingsStorage) Stats(ctx context.Context, freshnessTTL time.Duration) (*models.HoldingsStats, error) {
	var all []models.HoldingsSnapshot
	if err := s.db.Store().Find(&all, badgerhold.Where("Symbol").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to scan holdings snapshots: %w", err)
	}

	stats := &models.HoldingsStats{TotalSnapshots: len(all)}
	now := time.Now()
	for i := range all {
		if all[i].Fresh(now, freshnessTTL) {
			stats.FreshSnapshots++
		} else {
			stats.StaleSnapshots++
		}
	}
	return stats, nil
}
