// -----------------------------------------------------------------------
// Recovery - returns orphaned running jobs to the queue
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/folio/internal/interfaces"
)

// Recovery sweeps for running jobs whose lease has expired and returns them
// to queued so workers can reclaim them. It runs once at startup and then on
// a fixed schedule. Sweeps are idempotent: with no new failures, a repeat
// sweep moves nothing.
type Recovery struct {
	store    interfaces.JobStorage
	interval time.Duration
	logger   arbor.ILogger
	cron     *cron.Cron
}

// NewRecovery creates a recovery sweeper
func NewRecovery(store interfaces.JobStorage, interval time.Duration, logger arbor.ILogger) *Recovery {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Recovery{
		store:    store,
		interval: interval,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start performs the startup sweep and schedules the periodic one
func (r *Recovery) Start() {
	r.Sweep(context.Background())

	r.cron.Schedule(cron.Every(r.interval), cron.FuncJob(func() {
		r.Sweep(context.Background())
	}))
	r.cron.Start()

	r.logger.Info().Str("interval", r.interval.String()).Msg("Recovery sweeper started")
}

// Stop halts the periodic sweep
func (r *Recovery) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// Sweep requeues every running job with an expired lease
func (r *Recovery) Sweep(ctx context.Context) {
	count, err := r.store.RequeueExpired(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("Recovery sweep failed")
		return
	}
	if count > 0 {
		r.logger.Info().Int("requeued", count).Msg("Recovery sweep requeued expired jobs")
	}
}

// ForceRequeue is the operator override moving one stuck job back to queued
func (r *Recovery) ForceRequeue(ctx context.Context, jobID string) error {
	if err := r.store.ForceRequeue(ctx, jobID); err != nil {
		return err
	}
	r.logger.Info().Str("job_id", jobID).Msg("Job force-requeued by operator")
	return nil
}

// ForceFail is the operator override failing one stuck job
func (r *Recovery) ForceFail(ctx context.Context, jobID, reason string) error {
	if err := r.store.ForceFail(ctx, jobID, reason); err != nil {
		return err
	}
	r.logger.Info().Str("job_id", jobID).Str("reason", reason).Msg("Job force-failed by operator")
	return nil
}

// RecoverAll requeues every stuck job (operator override)
func (r *Recovery) RecoverAll(ctx context.Context) (int, error) {
	stuck, err := r.store.ListStuck(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	count := 0
	for _, job := range stuck {
		if err := r.store.ForceRequeue(ctx, job.ID); err != nil {
			r.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to force-requeue stuck job")
			continue
		}
		count++
	}

	if count > 0 {
		r.logger.Info().Int("requeued", count).Msg("Operator recover-all requeued stuck jobs")
	}
	return count, nil
}
