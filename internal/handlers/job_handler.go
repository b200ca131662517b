package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/folio/internal/interfaces"
	"github.com/ternarybob/folio/internal/models"
	"github.com/ternarybob/folio/internal/queue"
)

// JobHandler serves the job observation and control surface
type JobHandler struct {
	scheduler *queue.Scheduler
	recovery  *queue.Recovery
	logger    arbor.ILogger
}

// NewJobHandler creates the job endpoint handler
func NewJobHandler(scheduler *queue.Scheduler, recovery *queue.Recovery, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		scheduler: scheduler,
		recovery:  recovery,
		logger:    logger,
	}
}

// ListHandler handles GET /jobs with status, kind, and limit filters
func (h *JobHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	opts := &interfaces.JobListOptions{
		Status: models.JobStatus(r.URL.Query().Get("status")),
		Kind:   models.JobKind(r.URL.Query().Get("kind")),
		Limit:  QueryInt(r, "limit", 100),
	}

	jobs, err := h.scheduler.List(r.Context(), opts)
	if err != nil {
		WriteStorageError(w, err)
		return
	}
	WriteData(w, http.StatusOK, "jobs", map[string]interface{}{
		"count": len(jobs),
		"jobs":  jobs,
	})
}

// StatusHandler handles GET /jobs/{id}/status
func (h *JobHandler) StatusHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	job, err := h.scheduler.Get(r.Context(), jobID)
	if err != nil {
		WriteStorageError(w, err)
		return
	}

	WriteData(w, http.StatusOK, "job status", map[string]interface{}{
		"job_id":       job.ID,
		"kind":         job.Kind,
		"status":       job.Status,
		"progress":     job.Progress,
		"attempts":     job.Attempts,
		"created_at":   job.CreatedAt,
		"started_at":   job.StartedAt,
		"completed_at": job.CompletedAt,
	})
}

// ResultHandler handles GET /jobs/{id}/result: the terminal result or error
func (h *JobHandler) ResultHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	job, err := h.scheduler.Get(r.Context(), jobID)
	if err != nil {
		WriteStorageError(w, err)
		return
	}

	body := map[string]interface{}{
		"job_id": job.ID,
		"status": job.Status,
	}
	if job.Result != nil {
		body["result"] = job.Result
	}
	if job.Error != nil {
		body["error"] = job.Error
	}
	if job.WebhookError != "" {
		body["webhook_error"] = job.WebhookError
	}
	if !job.IsTerminal() {
		WriteData(w, http.StatusOK, "job not finished", body)
		return
	}
	WriteData(w, http.StatusOK, "job result", body)
}

// CancelHandler handles POST /jobs/{id}/cancel
func (h *JobHandler) CancelHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	status, err := h.scheduler.Cancel(r.Context(), jobID)
	if err != nil {
		WriteStorageError(w, err)
		return
	}

	message := "cancellation requested"
	if status == models.JobStatusCancelled {
		message = "job cancelled"
	}
	WriteData(w, http.StatusOK, message, map[string]interface{}{
		"job_id": jobID,
		"status": status,
	})
}

// RecoverHandler handles POST /admin/jobs/{id}/recover with an optional
// action query parameter: "requeue" (default) or "fail".
func (h *JobHandler) RecoverHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	action := r.URL.Query().Get("action")
	switch action {
	case "", "requeue":
		if err := h.recovery.ForceRequeue(r.Context(), jobID); err != nil {
			WriteStorageError(w, err)
			return
		}
		WriteData(w, http.StatusOK, "job requeued", map[string]interface{}{"job_id": jobID})
	case "fail":
		if err := h.recovery.ForceFail(r.Context(), jobID, "operator override"); err != nil {
			WriteStorageError(w, err)
			return
		}
		WriteData(w, http.StatusOK, "job failed by operator", map[string]interface{}{"job_id": jobID})
	default:
		WriteError(w, http.StatusUnprocessableEntity, "unknown recover action: "+action)
	}
}

// RecoverAllHandler handles POST /admin/jobs/recover-all
func (h *JobHandler) RecoverAllHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	count, err := h.recovery.RecoverAll(r.Context())
	if err != nil {
		WriteStorageError(w, err)
		return
	}
	WriteData(w, http.StatusOK, "stuck jobs requeued", map[string]interface{}{"requeued": count})
}
