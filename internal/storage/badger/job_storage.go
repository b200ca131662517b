package badger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/folio/internal/interfaces"
	"github.com/ternarybob/folio/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JobStorage implements the JobStorage interface for Badger.
//
// Badger is embedded and single-process, so the store's own mutex is the
// server-side atomicity point: every multi-field transition (claim,
// heartbeat, finalize, recovery) runs as one read-modify-write under the
// lock, which gives claim_one its compare-and-set semantics across workers.
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) Insert(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if job.Kind == "" {
		return fmt.Errorf("job kind is required")
	}
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Store().Insert(job.ID, job); err != nil {
		if err == badgerhold.ErrKeyExists {
			return fmt.Errorf("job %s already exists", job.ID)
		}
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (s *JobStorage) Get(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *JobStorage) List(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, error) {
	query := badgerhold.Where("ID").Ne("")

	if opts != nil {
		if opts.Status != "" {
			query = query.And("Status").Eq(opts.Status)
		}
		if opts.Kind != "" {
			query = query.And("Kind").Eq(opts.Kind)
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
	}
	query = query.SortBy("CreatedAt").Reverse()

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// ClaimOne moves the next runnable job to running under the caller's lease.
// Runnable means queued, or running with an expired lease (crash recovery
// race: a sweep may not have run yet). Queued jobs are claimed oldest-first.
func (s *JobStorage) ClaimOne(ctx context.Context, kinds []models.JobKind, workerID string, leaseTTL time.Duration) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	kindValues := make([]interface{}, len(kinds))
	for i, k := range kinds {
		kindValues[i] = k
	}

	var candidates []models.Job
	query := badgerhold.Where("Status").Eq(models.JobStatusQueued)
	if len(kindValues) > 0 {
		query = query.And("Kind").In(kindValues...)
	}
	if err := s.db.Store().Find(&candidates, query.SortBy("CreatedAt").Limit(1)); err != nil {
		return nil, fmt.Errorf("failed to query queued jobs: %w", err)
	}

	if len(candidates) == 0 {
		// Fall back to running jobs whose lease has expired
		var expired []models.Job
		query := badgerhold.Where("Status").Eq(models.JobStatusRunning)
		if len(kindValues) > 0 {
			query = query.And("Kind").In(kindValues...)
		}
		if err := s.db.Store().Find(&expired, query.SortBy("CreatedAt")); err != nil {
			return nil, fmt.Errorf("failed to query running jobs: %w", err)
		}
		for i := range expired {
			if expired[i].LeaseExpiresAt != nil && expired[i].LeaseExpiresAt.Before(now) {
				candidates = append(candidates, expired[i])
				break
			}
		}
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	job := candidates[0]
	lease := now.Add(leaseTTL)

	job.Status = models.JobStatusRunning
	job.WorkerID = workerID
	job.Attempts++
	job.LeaseExpiresAt = &lease
	if job.StartedAt == nil {
		started := now
		job.StartedAt = &started
	}

	if err := s.db.Store().Update(job.ID, &job); err != nil {
		return nil, fmt.Errorf("failed to claim job %s: %w", job.ID, err)
	}

	return &job, nil
}

func (s *JobStorage) Heartbeat(ctx context.Context, jobID, workerID string, leaseTTL time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusRunning || job.WorkerID != workerID {
		return ErrLeaseLost
	}

	lease := time.Now().Add(leaseTTL)
	job.LeaseExpiresAt = &lease

	if err := s.db.Store().Update(jobID, job); err != nil {
		return fmt.Errorf("failed to extend lease for job %s: %w", jobID, err)
	}
	return nil
}

func (s *JobStorage) UpdateProgress(ctx context.Context, jobID, workerID string, progress models.JobProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusRunning || job.WorkerID != workerID {
		return ErrLeaseLost
	}

	progress.Recalculate()
	// Percentage is monotonic within a running episode
	if progress.Percentage < job.Progress.Percentage {
		progress.Percentage = job.Progress.Percentage
	}
	job.Progress = progress

	if err := s.db.Store().Update(jobID, job); err != nil {
		return fmt.Errorf("failed to update progress for job %s: %w", jobID, err)
	}
	return nil
}

// Finalize performs the write-once terminal transition. The worker must
// still own the lease; a job already terminal is never rewritten.
func (s *JobStorage) Finalize(ctx context.Context, jobID, workerID string, status models.JobStatus, result map[string]any, jobErr *models.JobError) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return ErrTerminalState
	}
	if job.WorkerID != workerID {
		return ErrLeaseLost
	}

	now := time.Now()
	job.Status = status
	job.CompletedAt = &now
	job.Result = result
	job.Error = jobErr
	job.WorkerID = ""
	job.LeaseExpiresAt = nil

	if err := s.db.Store().Update(jobID, job); err != nil {
		return fmt.Errorf("failed to finalize job %s: %w", jobID, err)
	}
	return nil
}

func (s *JobStorage) RecordWebhookError(ctx context.Context, jobID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	job.WebhookError = message

	if err := s.db.Store().Update(jobID, job); err != nil {
		return fmt.Errorf("failed to record webhook error for job %s: %w", jobID, err)
	}
	return nil
}

func (s *JobStorage) RequestCancel(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return ErrTerminalState
	}
	job.CancelRequested = true

	if err := s.db.Store().Update(jobID, job); err != nil {
		return fmt.Errorf("failed to request cancel for job %s: %w", jobID, err)
	}
	return nil
}

func (s *JobStorage) MarkCancelledIfQueued(ctx context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job.Status != models.JobStatusQueued {
		return false, nil
	}

	now := time.Now()
	job.Status = models.JobStatusCancelled
	job.CompletedAt = &now
	job.Error = models.NewJobError(models.ErrKindCancelled, "cancelled before execution")

	if err := s.db.Store().Update(jobID, job); err != nil {
		return false, fmt.Errorf("failed to cancel queued job %s: %w", jobID, err)
	}
	return true, nil
}

// RequeueExpired returns orphaned running jobs to queued so workers can
// reclaim them. History (attempts, progress, started_at) is preserved.
func (s *JobStorage) RequeueExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var running []models.Job
	if err := s.db.Store().Find(&running, badgerhold.Where("Status").Eq(models.JobStatusRunning)); err != nil {
		return 0, fmt.Errorf("failed to query running jobs: %w", err)
	}

	count := 0
	for i := range running {
		job := running[i]
		if job.LeaseExpiresAt == nil || !job.LeaseExpiresAt.Before(now) {
			continue
		}
		job.Status = models.JobStatusQueued
		job.WorkerID = ""
		job.LeaseExpiresAt = nil
		if err := s.db.Store().Update(job.ID, &job); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to requeue expired job")
			continue
		}
		count++
	}
	return count, nil
}

func (s *JobStorage) ListStuck(ctx context.Context, olderThan time.Time) ([]*models.Job, error) {
	var running []models.Job
	if err := s.db.Store().Find(&running, badgerhold.Where("Status").Eq(models.JobStatusRunning)); err != nil {
		return nil, fmt.Errorf("failed to query running jobs: %w", err)
	}

	var stuck []*models.Job
	for i := range running {
		if running[i].LeaseExpiresAt != nil && running[i].LeaseExpiresAt.Before(olderThan) {
			stuck = append(stuck, &running[i])
		}
	}
	return stuck, nil
}

func (s *JobStorage) ForceRequeue(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return ErrTerminalState
	}

	job.Status = models.JobStatusQueued
	job.WorkerID = ""
	job.LeaseExpiresAt = nil

	if err := s.db.Store().Update(jobID, job); err != nil {
		return fmt.Errorf("failed to force-requeue job %s: %w", jobID, err)
	}
	return nil
}

func (s *JobStorage) ForceFail(ctx context.Context, jobID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return ErrTerminalState
	}

	now := time.Now()
	job.Status = models.JobStatusFailed
	job.CompletedAt = &now
	job.Error = models.NewJobError(models.ErrKindManualOverride, reason)
	job.WorkerID = ""
	job.LeaseExpiresAt = nil

	if err := s.db.Store().Update(jobID, job); err != nil {
		return fmt.Errorf("failed to force-fail job %s: %w", jobID, err)
	}
	return nil
}

func (s *JobStorage) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	counts := make(map[models.JobStatus]int)
	for _, status := range []models.JobStatus{
		models.JobStatusQueued,
		models.JobStatusRunning,
		models.JobStatusCompleted,
		models.JobStatusFailed,
		models.JobStatusCancelled,
	} {
		n, err := s.db.Store().Count(&models.Job{}, badgerhold.Where("Status").Eq(status))
		if err != nil {
			return nil, fmt.Errorf("failed to count jobs by status: %w", err)
		}
		counts[status] = int(n)
	}
	return counts, nil
}
