package api

import (
	"errors"
	"net/http"

	"plotline/internal/jobs"
	"plotline/internal/library"
	"plotline/internal/workflow"
)

// Error codes carried in ErrorResponse.Code.
const (
	CodeNotFound       = "not_found"
	CodeProjectBusy    = "project_busy"
	CodeInvalidRequest = "invalid_request"
	CodeJobActive      = "job_active"
	CodeNotRunning     = "not_running"
	CodeInternal       = "internal"
)

// ErrDaemonUnavailable reports that no daemon answered at the configured address.
var ErrDaemonUnavailable = errors.New("plotline daemon is not reachable")

// Classify maps an error to its HTTP status and error code.
func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, jobs.ErrNotFound), errors.Is(err, library.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, workflow.ErrProjectBusy), errors.Is(err, jobs.ErrActiveJobExists):
		return http.StatusConflict, CodeProjectBusy
	case errors.Is(err, jobs.ErrJobActive):
		return http.StatusConflict, CodeJobActive
	case errors.Is(err, workflow.ErrInvalidRequest):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, workflow.ErrNotRunning):
		return http.StatusServiceUnavailable, CodeNotRunning
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// APIError is a non-2xx response decoded by Client.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.StatusCode)
	}
	return e.Message
}

// Unwrap lets callers test remote errors with the same sentinels the
// daemon uses.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case CodeNotFound:
		return jobs.ErrNotFound
	case CodeProjectBusy:
		return workflow.ErrProjectBusy
	case CodeInvalidRequest:
		return workflow.ErrInvalidRequest
	case CodeJobActive:
		return jobs.ErrJobActive
	case CodeNotRunning:
		return workflow.ErrNotRunning
	default:
		return nil
	}
}
