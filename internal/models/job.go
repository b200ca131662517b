// -----------------------------------------------------------------------
// Job - Durable record of asynchronous work
// -----------------------------------------------------------------------

package models

import (
	"time"
)

// JobStatus is the lifecycle state of a job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// JobKind identifies the handler that executes a job
type JobKind string

const (
	JobKindWorkbookIngest   JobKind = "workbook_ingest"
	JobKindFetchHoldingsOne JobKind = "fetch_holdings_one"
	JobKindFetchHoldingsAll JobKind = "fetch_holdings_all"
)

// ErrorKind classifies job and per-item failures
type ErrorKind string

const (
	ErrKindValidation           ErrorKind = "validation"
	ErrKindNotFound             ErrorKind = "not_found"
	ErrKindConflict             ErrorKind = "conflict"
	ErrKindStoreUnavailable     ErrorKind = "store_unavailable"
	ErrKindUpstreamTimeout      ErrorKind = "upstream_timeout"
	ErrKindUpstreamHTTP         ErrorKind = "upstream_http"
	ErrKindUpstreamParse        ErrorKind = "upstream_parse"
	ErrKindParseSheet           ErrorKind = "parse_sheet"
	ErrKindParseTotalFailure    ErrorKind = "parse_total_failure"
	ErrKindUpstreamTotalFailure ErrorKind = "upstream_total_failure"
	ErrKindCancelled            ErrorKind = "cancelled"
	ErrKindLeaseLost            ErrorKind = "lease_lost"
	ErrKindManualOverride       ErrorKind = "manual_override"
)

// JobError is the typed error carried on a failed job
type JobError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *JobError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// NewJobError builds a typed job error
func NewJobError(kind ErrorKind, message string) *JobError {
	return &JobError{Kind: kind, Message: message}
}

// JobProgress tracks job execution progress
type JobProgress struct {
	Total       int     `json:"total"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	CurrentItem string  `json:"current_item,omitempty"`
	Percentage  float64 `json:"percentage"`
}

// Recalculate updates the derived percentage from the item counters
func (p *JobProgress) Recalculate() {
	if p.Total > 0 {
		p.Percentage = float64(p.Completed+p.Failed) / float64(p.Total) * 100
	}
}

// Job is the durable record of one unit of scheduled work. It is mutated only
// through the job store's primitives: by the worker holding the current
// lease, by cancellation requests, by recovery once that lease has expired,
// and by operator overrides and webhook error recording.
type Job struct {
	ID      string         `json:"id" badgerhold:"key"`
	Kind    JobKind        `json:"kind" badgerholdIndex:"Kind"`
	Payload map[string]any `json:"payload"`

	Status   JobStatus   `json:"status" badgerholdIndex:"Status"`
	Progress JobProgress `json:"progress"`
	Result   map[string]any `json:"result,omitempty"`
	Error    *JobError      `json:"error,omitempty"`

	// Claim bookkeeping
	Attempts       int        `json:"attempts"`
	WorkerID       string     `json:"worker_id,omitempty"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`

	CreatedAt   time.Time  `json:"created_at" badgerholdIndex:"CreatedAt"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	CallbackURL     string `json:"callback_url,omitempty"`
	UserID          string `json:"user_id,omitempty"`
	CancelRequested bool   `json:"cancel_requested"`

	// Webhook delivery failures are recorded without altering terminal state
	WebhookError string `json:"webhook_error,omitempty"`
}

// NewJob creates a queued job ready for insertion
func NewJob(id string, kind JobKind, payload map[string]any) *Job {
	if payload == nil {
		payload = make(map[string]any)
	}
	return &Job{
		ID:        id,
		Kind:      kind,
		Payload:   payload,
		Status:    JobStatusQueued,
		CreatedAt: time.Now(),
	}
}

// IsTerminal returns true if the job is in a terminal state
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted ||
		j.Status == JobStatusFailed ||
		j.Status == JobStatusCancelled
}

// PayloadString retrieves a string value from the payload
func (j *Job) PayloadString(key string) (string, bool) {
	val, ok := j.Payload[key]
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// PayloadInt retrieves an int value from the payload.
// Handles both int and float64 (JSON unmarshaling converts numbers to float64).
func (j *Job) PayloadInt(key string) (int, bool) {
	val, ok := j.Payload[key]
	if !ok {
		return 0, false
	}
	switch v := val.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
