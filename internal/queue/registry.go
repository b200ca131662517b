// -----------------------------------------------------------------------
// Handler registry - maps job kinds to handler capabilities
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/folio/internal/interfaces"
	"github.com/ternarybob/folio/internal/models"
)

// Handler executes the work for one job kind. Handlers return a result map
// or a typed job error; they never panic across the scheduler boundary.
// They must also be re-entrant-safe across processes: re-invocation after a
// lease timeout either resumes from persisted state or restarts cleanly,
// which natural-key upserts make safe for the domain repositories.
type Handler interface {
	Kind() models.JobKind
	Run(jc *JobContext) (map[string]any, *models.JobError)
}

// Registry maps job kinds to handlers
type Registry struct {
	handlers map[models.JobKind]Handler
	logger   arbor.ILogger
}

// NewRegistry creates an empty handler registry
func NewRegistry(logger arbor.ILogger) *Registry {
	return &Registry{
		handlers: make(map[models.JobKind]Handler),
		logger:   logger,
	}
}

// Register adds a handler for its kind
func (r *Registry) Register(handler Handler) {
	r.handlers[handler.Kind()] = handler
	r.logger.Debug().Str("kind", string(handler.Kind())).Msg("Job handler registered")
}

// Resolve returns the handler for a kind
func (r *Registry) Resolve(kind models.JobKind) (Handler, bool) {
	handler, ok := r.handlers[kind]
	return handler, ok
}

// Kinds returns all registered kinds
func (r *Registry) Kinds() []models.JobKind {
	kinds := make([]models.JobKind, 0, len(r.handlers))
	for kind := range r.handlers {
		kinds = append(kinds, kind)
	}
	return kinds
}

// progressFlushInterval throttles progress writes to the store
const progressFlushInterval = time.Second

// JobContext carries everything a handler needs during one execution
// episode: the cancellation signal, a coalescing progress sink, and a logger
// with the job id pre-bound. Handlers check Cancelled() at every yield
// point: before each sheet/symbol iteration and around network calls.
type JobContext struct {
	ctx      context.Context
	job      *models.Job
	store    interfaces.JobStorage
	logger   arbor.ILogger
	workerID string

	progress  models.JobProgress
	lastFlush time.Time
}

// NewJobContext builds the execution context for one claim episode
func NewJobContext(ctx context.Context, job *models.Job, store interfaces.JobStorage, workerID string, logger arbor.ILogger) *JobContext {
	return &JobContext{
		ctx:      ctx,
		job:      job,
		store:    store,
		logger:   logger.WithCorrelationId(job.ID),
		workerID: workerID,
		progress: job.Progress,
	}
}

// Context returns the cancellation context for this episode
func (jc *JobContext) Context() context.Context {
	return jc.ctx
}

// Job returns the claimed job record as of claim time
func (jc *JobContext) Job() *models.Job {
	return jc.job
}

// Logger returns the job-scoped logger
func (jc *JobContext) Logger() arbor.ILogger {
	return jc.logger
}

// Cancelled reports whether the handler should stop: the episode context is
// done (shutdown or lease lost) or a cancel was requested on the job record.
func (jc *JobContext) Cancelled() bool {
	if jc.ctx.Err() != nil {
		return true
	}
	job, err := jc.store.Get(jc.ctx, jc.job.ID)
	if err != nil {
		return false
	}
	return job.CancelRequested
}

// SetTotal initializes the progress totals for this episode
func (jc *JobContext) SetTotal(total int) {
	jc.progress.Total = total
	jc.flush(true)
}

// Advance records one processed item and pushes progress to the store,
// coalesced to at most one write per flush interval. The final item always
// flushes so terminal progress is exact.
func (jc *JobContext) Advance(succeeded bool, currentItem string) {
	if succeeded {
		jc.progress.Completed++
	} else {
		jc.progress.Failed++
	}
	jc.progress.CurrentItem = currentItem
	done := jc.progress.Completed+jc.progress.Failed >= jc.progress.Total
	jc.flush(done)
}

// Progress returns the progress accumulated in this episode
func (jc *JobContext) Progress() models.JobProgress {
	return jc.progress
}

func (jc *JobContext) flush(force bool) {
	now := time.Now()
	if !force && now.Sub(jc.lastFlush) < progressFlushInterval {
		return
	}
	jc.lastFlush = now

	if err := jc.store.UpdateProgress(jc.ctx, jc.job.ID, jc.workerID, jc.progress); err != nil {
		jc.logger.Warn().Err(err).Msg("Failed to flush job progress")
	}
}

// Err converts an arbitrary error into a typed job error, preserving an
// existing JobError kind
func Err(kind models.ErrorKind, err error) *models.JobError {
	if jobErr, ok := err.(*models.JobError); ok {
		return jobErr
	}
	return models.NewJobError(kind, fmt.Sprintf("%v", err))
}
