package ingest

import (
	"context"
	"os"

	"github.com/ternarybob/folio/internal/models"
	"github.com/ternarybob/folio/internal/queue"
)

// Handler adapts the ingest service to the job queue. The payload references
// the stored workbook by path so the job record stays small and re-claims
// after a lease timeout re-read the same bytes.
type Handler struct {
	service *Service
}

// NewHandler wraps the ingest service as a queue handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Kind() models.JobKind {
	return models.JobKindWorkbookIngest
}

func (h *Handler) Run(jc *queue.JobContext) (map[string]any, *models.JobError) {
	job := jc.Job()

	path, ok := job.PayloadString("workbook_path")
	if !ok || path == "" {
		return nil, models.NewJobError(models.ErrKindValidation, "payload is missing workbook_path")
	}

	requested, _ := job.PayloadString("parse_method")
	method, pinned, err := h.service.ResolveMethod(requested)
	if err != nil {
		return nil, models.NewJobError(models.ErrKindValidation, err.Error())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, models.NewJobError(models.ErrKindNotFound, "stored workbook not readable: "+err.Error())
	}

	summary, jobErr := h.service.Ingest(jc.Context(), data, method, pinned, jc)
	if jobErr != nil {
		return nil, jobErr
	}

	// The workbook spool file is only needed while the job can still run
	if err := os.Remove(path); err != nil {
		jc.Logger().Warn().Err(err).Str("path", path).Msg("Failed to remove spooled workbook")
	}

	return summary.ToResult(), nil
}

// SyncObserver is the progress sink for the synchronous upload path: it
// discards progress updates and reports only request-context cancellation.
type SyncObserver struct {
	ctx context.Context
}

// NewSyncObserver builds an observer over the request context
func NewSyncObserver(ctx context.Context) *SyncObserver {
	return &SyncObserver{ctx: ctx}
}

func (o *SyncObserver) SetTotal(total int)                      {}
func (o *SyncObserver) Advance(succeeded bool, currentItem string) {}
func (o *SyncObserver) Cancelled() bool {
	return o.ctx.Err() != nil
}

var _ queue.Handler = (*Handler)(nil)
var _ Observer = (*SyncObserver)(nil)
