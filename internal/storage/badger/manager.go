package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/folio/internal/common"
	"github.com/ternarybob/folio/internal/interfaces"
	"github.com/ternarybob/folio/internal/models"
)

// Manager aggregates the typed stores over one Badger database
type Manager struct {
	db         *BadgerDB
	jobs       interfaces.JobStorage
	portfolios interfaces.PortfolioStorage
	holdings   interfaces.HoldingsStorage
	etfs       interfaces.ETFStorage
	logger     arbor.ILogger
}

// NewManager opens the database and wires the typed stores
func NewManager(config *common.BadgerConfig, logger arbor.ILogger) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	return &Manager{
		db:         db,
		jobs:       NewJobStorage(db, logger),
		portfolios: NewPortfolioStorage(db, logger),
		holdings:   NewHoldingsStorage(db, logger),
		etfs:       NewETFStorage(db, logger),
		logger:     logger,
	}, nil
}

func (m *Manager) JobStorage() interfaces.JobStorage             { return m.jobs }
func (m *Manager) PortfolioStorage() interfaces.PortfolioStorage { return m.portfolios }
func (m *Manager) HoldingsStorage() interfaces.HoldingsStorage   { return m.holdings }
func (m *Manager) ETFStorage() interfaces.ETFStorage             { return m.etfs }

// Ping verifies the store is reachable with a cheap count
func (m *Manager) Ping(ctx context.Context) error {
	_, err := m.db.Store().Count(&models.ETFMetadata{}, nil)
	if err != nil {
		return fmt.Errorf("store ping failed: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (m *Manager) Close() error {
	return m.db.Close()
}
