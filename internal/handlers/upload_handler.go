package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/folio/internal/models"
	"github.com/ternarybob/folio/internal/queue"
	"github.com/ternarybob/folio/internal/services/ingest"
)

// maxUploadBytes bounds multipart workbook uploads (32 MB)
const maxUploadBytes = 32 << 20

// UploadHandler serves the workbook ingest surface: the synchronous path for
// small inputs and the async submission that spools the workbook and queues
// a job.
type UploadHandler struct {
	service   *ingest.Service
	scheduler *queue.Scheduler
	spoolDir  string
	logger    arbor.ILogger
}

// NewUploadHandler creates the upload endpoint handler
func NewUploadHandler(service *ingest.Service, scheduler *queue.Scheduler, spoolDir string, logger arbor.ILogger) *UploadHandler {
	return &UploadHandler{
		service:   service,
		scheduler: scheduler,
		spoolDir:  spoolDir,
		logger:    logger,
	}
}

// readUpload extracts the workbook bytes and form fields from the request
func (h *UploadHandler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		WriteError(w, http.StatusUnprocessableEntity, "invalid multipart form: "+err.Error())
		return nil, "", false
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, "file field is required")
		return nil, "", false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, "failed to read upload: "+err.Error())
		return nil, "", false
	}
	if len(data) == 0 {
		WriteError(w, http.StatusUnprocessableEntity, "uploaded workbook is empty")
		return nil, "", false
	}

	return data, r.FormValue("parse_method"), true
}

// SyncHandler handles POST /upload/excel: the blocking path retained for
// small workbooks.
func (h *UploadHandler) SyncHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	data, requested, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	method, pinned, err := h.service.ResolveMethod(requested)
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	summary, jobErr := h.service.Ingest(r.Context(), data, method, pinned, ingest.NewSyncObserver(r.Context()))
	if jobErr != nil {
		WriteTypedError(w, jobErr)
		return
	}

	WriteData(w, http.StatusOK, "workbook ingested", summary)
}

// AsyncHandler handles POST /jobs/upload-excel-async: spools the workbook
// and returns a queued job immediately.
func (h *UploadHandler) AsyncHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	data, requested, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	// Validate the method up front so a bad submission never creates a job
	if _, _, err := h.service.ResolveMethod(requested); err != nil {
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := os.MkdirAll(h.spoolDir, 0755); err != nil {
		WriteError(w, http.StatusServiceUnavailable, "failed to prepare spool directory: "+err.Error())
		return
	}

	path := filepath.Join(h.spoolDir, fmt.Sprintf("workbook-%s.xlsx", uuid.New().String()))
	if err := os.WriteFile(path, data, 0644); err != nil {
		WriteError(w, http.StatusServiceUnavailable, "failed to spool workbook: "+err.Error())
		return
	}

	payload := map[string]any{
		"workbook_path": path,
		"parse_method":  requested,
	}

	jobID, err := h.scheduler.Submit(r.Context(), models.JobKindWorkbookIngest, payload, queue.SubmitOptions{
		CallbackURL: r.FormValue("callback_url"),
		UserID:      r.FormValue("user_id"),
	})
	if err != nil {
		os.Remove(path)
		WriteStorageError(w, err)
		return
	}

	h.logger.Info().Str("job_id", jobID).Str("path", path).Msg("Workbook ingest job queued")
	WriteData(w, http.StatusAccepted, "workbook ingest queued", map[string]interface{}{
		"job_id":     jobID,
		"status":     models.JobStatusQueued,
		"status_url": "/jobs/" + jobID + "/status",
	})
}
