package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/folio/internal/models"
)

// JobListOptions filters job listings
type JobListOptions struct {
	Status models.JobStatus
	Kind   models.JobKind
	Limit  int
}

// JobStorage is the single source of truth for job state. All multi-field
// transitions are atomic at the store level so invariants survive crashes;
// conditional primitives take the caller's worker ID and reject writers that
// no longer hold the lease.
type JobStorage interface {
	// Insert stores a new queued job
	Insert(ctx context.Context, job *models.Job) error

	// Get returns a job by ID
	Get(ctx context.Context, jobID string) (*models.Job, error)

	// List returns jobs matching the options, newest first
	List(ctx context.Context, opts *JobListOptions) ([]*models.Job, error)

	// ClaimOne atomically claims the next runnable job: status queued, or
	// running with an expired lease. Returns nil when nothing is claimable.
	ClaimOne(ctx context.Context, kinds []models.JobKind, workerID string, leaseTTL time.Duration) (*models.Job, error)

	// Heartbeat extends the lease; fails with ErrLeaseLost if the caller no
	// longer owns the job.
	Heartbeat(ctx context.Context, jobID, workerID string, leaseTTL time.Duration) error

	// UpdateProgress writes progress under the caller's lease
	UpdateProgress(ctx context.Context, jobID, workerID string, progress models.JobProgress) error

	// Finalize performs the write-once terminal transition
	Finalize(ctx context.Context, jobID, workerID string, status models.JobStatus, result map[string]any, jobErr *models.JobError) error

	// RecordWebhookError notes a delivery failure on a terminal job
	RecordWebhookError(ctx context.Context, jobID, message string) error

	// RequestCancel flips the cancel flag on a non-terminal job
	RequestCancel(ctx context.Context, jobID string) error

	// MarkCancelledIfQueued transitions a still-queued job straight to
	// cancelled. Returns false if the job had already been claimed.
	MarkCancelledIfQueued(ctx context.Context, jobID string) (bool, error)

	// RequeueExpired returns every running job whose lease has expired to
	// queued so workers can reclaim it. Returns the number of jobs moved.
	RequeueExpired(ctx context.Context) (int, error)

	// ListStuck returns running jobs whose lease expired before the cutoff
	ListStuck(ctx context.Context, olderThan time.Time) ([]*models.Job, error)

	// ForceRequeue and ForceFail are operator overrides for stuck jobs
	ForceRequeue(ctx context.Context, jobID string) error
	ForceFail(ctx context.Context, jobID, reason string) error

	// CountByStatus returns job counts keyed by status
	CountByStatus(ctx context.Context) (map[models.JobStatus]int, error)
}

// PortfolioStorage persists extracted fund statements
type PortfolioStorage interface {
	// Upsert inserts or replaces by natural key, preserving CreatedAt and
	// bumping UpdatedAt on replacement
	Upsert(ctx context.Context, portfolio *models.Portfolio) (string, error)
	GetByID(ctx context.Context, id string) (*models.Portfolio, error)
	GetByNaturalKey(ctx context.Context, fundName, portfolioDate string) (*models.Portfolio, error)
	List(ctx context.Context, fundName string, limit int) ([]*models.Portfolio, error)
	SearchByFundName(ctx context.Context, query string, limit int) ([]*models.Portfolio, error)
	HoldingsByISIN(ctx context.Context, isin string) ([]models.ISINMatch, error)
	FundStatistics(ctx context.Context, fundName string) (*models.FundStatistics, error)
}

// HoldingsStorage persists ETF holdings snapshots in their own collection
type HoldingsStorage interface {
	Upsert(ctx context.Context, snapshot *models.HoldingsSnapshot) error
	GetBySymbol(ctx context.Context, symbol string) (*models.HoldingsSnapshot, error)
	Stats(ctx context.Context, freshnessTTL time.Duration) (*models.HoldingsStats, error)
}

// ETFStorage reads the ETF metadata collection. The core never writes it
// outside the startup seed loader.
type ETFStorage interface {
	GetBySymbol(ctx context.Context, symbol string) (*models.ETFMetadata, error)
	// ListWithISIN returns metadata records with a non-empty ISIN, sorted by
	// symbol for deterministic fleet iteration
	ListWithISIN(ctx context.Context, limit int) ([]*models.ETFMetadata, error)
	Search(ctx context.Context, query string, limit int) ([]*models.ETFMetadata, error)
	Count(ctx context.Context) (int, error)
	Seed(ctx context.Context, etfs []*models.ETFMetadata) (int, error)
}

// StorageManager aggregates the typed stores over one database
type StorageManager interface {
	JobStorage() JobStorage
	PortfolioStorage() PortfolioStorage
	HoldingsStorage() HoldingsStorage
	ETFStorage() ETFStorage
	Ping(ctx context.Context) error
	Close() error
}
