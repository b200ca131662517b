package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ternarybob/folio/internal/models"
	storage "github.com/ternarybob/folio/internal/storage/badger"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and body.
func WriteJSON(w http.ResponseWriter, statusCode int, body interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(body)
}

// WriteData writes the standard success envelope {status, message, data}.
func WriteData(w http.ResponseWriter, statusCode int, message string, data interface{}) error {
	body := map[string]interface{}{
		"status":  "success",
		"message": message,
	}
	if data != nil {
		body["data"] = data
	}
	return WriteJSON(w, statusCode, body)
}

// WriteError writes the standard error envelope {status, message, error}.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]interface{}{
		"status":  "error",
		"message": message,
		"error":   message,
	})
}

// WriteTypedError maps a job error kind onto its HTTP status and writes the
// error envelope with the kind attached.
func WriteTypedError(w http.ResponseWriter, jobErr *models.JobError) error {
	return WriteJSON(w, statusForKind(jobErr.Kind), map[string]interface{}{
		"status":  "error",
		"message": jobErr.Message,
		"error": map[string]interface{}{
			"kind":    jobErr.Kind,
			"message": jobErr.Message,
		},
	})
}

// WriteStorageError translates storage sentinel errors onto HTTP statuses.
func WriteStorageError(w http.ResponseWriter, err error) error {
	switch err {
	case storage.ErrNotFound:
		return WriteError(w, http.StatusNotFound, "not found")
	case storage.ErrTerminalState:
		return WriteError(w, http.StatusConflict, "job already in terminal state")
	default:
		if jobErr, ok := err.(*models.JobError); ok {
			return WriteTypedError(w, jobErr)
		}
		return WriteError(w, http.StatusServiceUnavailable, err.Error())
	}
}

func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.ErrKindValidation:
		return http.StatusUnprocessableEntity
	case models.ErrKindNotFound:
		return http.StatusNotFound
	case models.ErrKindConflict:
		return http.StatusConflict
	case models.ErrKindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// QueryInt reads an integer query parameter with a default
func QueryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
