// -----------------------------------------------------------------------
// Scheduler - claims due jobs, enforces concurrency, drives heartbeats
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/folio/internal/common"
	"github.com/ternarybob/folio/internal/interfaces"
	"github.com/ternarybob/folio/internal/models"
)

// ErrLeaseLostSentinel marks an episode cancelled because its lease expired
var ErrLeaseLostSentinel = models.NewJobError(models.ErrKindLeaseLost, "lease expired during execution")

// SchedulerConfig holds the resolved scheduling parameters
type SchedulerConfig struct {
	Concurrency       int
	PollInterval      time.Duration
	LeaseTTL          time.Duration
	HeartbeatInterval time.Duration
}

// SchedulerConfigFromQueue resolves durations from the raw queue config
func SchedulerConfigFromQueue(cfg *common.QueueConfig) SchedulerConfig {
	concurrency := cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	return SchedulerConfig{
		Concurrency:       concurrency,
		PollInterval:      common.Duration(cfg.PollInterval, time.Second),
		LeaseTTL:          common.Duration(cfg.LeaseTTL, 90*time.Second),
		HeartbeatInterval: common.Duration(cfg.HeartbeatInterval, 30*time.Second),
	}
}

// SubmitOptions carries optional submission parameters
type SubmitOptions struct {
	CallbackURL string
	UserID      string
}

// Scheduler runs the worker pool. Workers compete for runnable jobs through
// the store's atomic claim; each claimed job gets a heartbeat loop extending
// its lease until the handler returns.
type Scheduler struct {
	store    interfaces.JobStorage
	registry *Registry
	webhooks *WebhookDispatcher
	config   SchedulerConfig
	logger   arbor.ILogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler over the given store and registry
func NewScheduler(store interfaces.JobStorage, registry *Registry, webhooks *WebhookDispatcher, config SchedulerConfig, logger arbor.ILogger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:    store,
		registry: registry,
		webhooks: webhooks,
		config:   config,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Submit validates and persists a new queued job, returning its ID. A
// submission that fails validation never half-creates a job record.
func (s *Scheduler) Submit(ctx context.Context, kind models.JobKind, payload map[string]any, opts SubmitOptions) (string, error) {
	if _, ok := s.registry.Resolve(kind); !ok {
		return "", models.NewJobError(models.ErrKindValidation, fmt.Sprintf("unknown job kind: %s", kind))
	}

	job := models.NewJob(common.NewJobID(), kind, payload)
	job.UserID = opts.UserID

	// Callback URLs without a scheme are dropped rather than rejected; the
	// job itself is still valid work.
	if cb := strings.TrimSpace(opts.CallbackURL); cb != "" {
		if strings.HasPrefix(cb, "http://") || strings.HasPrefix(cb, "https://") {
			job.CallbackURL = cb
		} else {
			s.logger.Warn().Str("callback_url", cb).Msg("Ignoring callback URL without http/https scheme")
		}
	}

	if err := s.store.Insert(ctx, job); err != nil {
		return "", models.NewJobError(models.ErrKindStoreUnavailable, err.Error())
	}

	s.logger.Info().Str("job_id", job.ID).Str("kind", string(kind)).Msg("Job submitted")
	return job.ID, nil
}

// Get returns a job by ID
func (s *Scheduler) Get(ctx context.Context, jobID string) (*models.Job, error) {
	return s.store.Get(ctx, jobID)
}

// List returns jobs matching the filter
func (s *Scheduler) List(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, error) {
	return s.store.List(ctx, opts)
}

// Cancel requests cancellation. Queued jobs transition to cancelled
// immediately; running handlers observe the flag at their next yield point.
// Returns the job's status after the request.
func (s *Scheduler) Cancel(ctx context.Context, jobID string) (models.JobStatus, error) {
	cancelled, err := s.store.MarkCancelledIfQueued(ctx, jobID)
	if err != nil {
		return "", err
	}
	if cancelled {
		job, err := s.store.Get(ctx, jobID)
		if err == nil {
			s.webhooks.DispatchAsync(job)
		}
		return models.JobStatusCancelled, nil
	}

	if err := s.store.RequestCancel(ctx, jobID); err != nil {
		return "", err
	}
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	return job.Status, nil
}

// Start launches the worker pool
func (s *Scheduler) Start() {
	s.logger.Info().
		Int("concurrency", s.config.Concurrency).
		Str("poll_interval", s.config.PollInterval.String()).
		Str("lease_ttl", s.config.LeaseTTL.String()).
		Msg("Starting worker pool")

	for i := 0; i < s.config.Concurrency; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

// Stop cancels the worker context, which interrupts running episodes (a job
// interrupted without a cancel request is left for lease recovery), and waits
// for the workers to exit
func (s *Scheduler) Stop() {
	s.logger.Info().Msg("Stopping worker pool")
	s.cancel()
	s.wg.Wait()
}

// worker is the main claim loop
func (s *Scheduler) worker(workerNum int) {
	defer s.wg.Done()

	workerID := fmt.Sprintf("worker-%d-%s", workerNum, uuid.New().String()[:8])

	// Stagger worker starts to spread claims across the poll interval
	stagger := (s.config.PollInterval / time.Duration(s.config.Concurrency)) * time.Duration(workerNum)
	select {
	case <-time.After(stagger):
	case <-s.ctx.Done():
		return
	}

	s.logger.Debug().Str("worker_id", workerID).Msg("Worker started")

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debug().Str("worker_id", workerID).Msg("Worker stopped")
			return

		case <-ticker.C:
			// Drain claimable jobs before going back to sleep
			for {
				job, err := s.store.ClaimOne(s.ctx, s.registry.Kinds(), workerID, s.config.LeaseTTL)
				if err != nil {
					s.logger.Warn().Err(err).Str("worker_id", workerID).Msg("Claim failed")
					break
				}
				if job == nil {
					break
				}
				s.execute(workerID, job)
				if s.ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// execute runs one claim episode: heartbeat loop, handler, terminal
// transition, webhook dispatch.
func (s *Scheduler) execute(workerID string, job *models.Job) {
	logger := s.logger.WithCorrelationId(job.ID)
	logger.Info().
		Str("kind", string(job.Kind)).
		Str("worker_id", workerID).
		Int("attempt", job.Attempts).
		Msg("Job claimed")

	handler, ok := s.registry.Resolve(job.Kind)
	if !ok {
		// Registered kinds are the claim filter, so this is unreachable in
		// practice; finalize defensively rather than orphan the claim.
		s.finalize(workerID, job, models.JobStatusFailed, nil,
			models.NewJobError(models.ErrKindValidation, fmt.Sprintf("no handler for kind %s", job.Kind)))
		return
	}

	episodeCtx, cancelEpisode := context.WithCancelCause(s.ctx)
	defer cancelEpisode(nil)

	// Heartbeat loop: extend the lease until the handler returns. Losing
	// the lease cancels the episode so the handler exits without finalizing.
	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		ticker := time.NewTicker(s.config.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-episodeCtx.Done():
				return
			case <-ticker.C:
				if err := s.store.Heartbeat(episodeCtx, job.ID, workerID, s.config.LeaseTTL); err != nil {
					logger.Warn().Err(err).Msg("Heartbeat failed, abandoning episode")
					cancelEpisode(ErrLeaseLostSentinel)
					return
				}
			}
		}
	}()

	jc := NewJobContext(episodeCtx, job, s.store, workerID, s.logger)

	start := time.Now()
	result, jobErr := runHandler(handler, jc)
	duration := time.Since(start)

	cancelEpisode(nil)
	<-heartbeatDone

	if context.Cause(episodeCtx) == ErrLeaseLostSentinel {
		// Another worker may already own the job; exit without finalizing.
		logger.Warn().Str("duration", duration.String()).Msg("Lease lost during execution, not finalizing")
		return
	}

	switch {
	case jobErr != nil && jobErr.Kind == models.ErrKindCancelled:
		// A handler also reports cancelled on process shutdown; only a real
		// cancel request finalizes. Otherwise the lease expires and recovery
		// requeues the job.
		current, err := s.store.Get(context.Background(), job.ID)
		if err != nil || !current.CancelRequested {
			logger.Info().Msg("Shutdown interrupted job, leaving for lease recovery")
			return
		}
		logger.Info().Str("duration", duration.String()).Msg("Job cancelled")
		s.finalize(workerID, job, models.JobStatusCancelled, nil, jobErr)
	case jobErr != nil:
		logger.Error().
			Str("error_kind", string(jobErr.Kind)).
			Str("error", jobErr.Message).
			Str("duration", duration.String()).
			Msg("Job failed")
		s.finalize(workerID, job, models.JobStatusFailed, nil, jobErr)
	default:
		logger.Info().Str("duration", duration.String()).Msg("Job completed")
		s.finalize(workerID, job, models.JobStatusCompleted, result, nil)
	}
}

// runHandler guards the scheduler against handler panics
func runHandler(handler Handler, jc *JobContext) (result map[string]any, jobErr *models.JobError) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			jobErr = models.NewJobError(models.ErrKindValidation, fmt.Sprintf("handler panic: %v", r))
		}
	}()
	return handler.Run(jc)
}

func (s *Scheduler) finalize(workerID string, job *models.Job, status models.JobStatus, result map[string]any, jobErr *models.JobError) {
	if err := s.store.Finalize(context.Background(), job.ID, workerID, status, result, jobErr); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Terminal transition failed")
		return
	}

	finalized, err := s.store.Get(context.Background(), job.ID)
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to reload job for webhook dispatch")
		return
	}
	s.webhooks.DispatchAsync(finalized)
}
