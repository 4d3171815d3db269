package workflow

import (
	"errors"
	"fmt"

	"plotline/internal/jobs"
	"plotline/internal/services"
)

var (
	// ErrProjectBusy rejects a start while the project has a queued or running job.
	ErrProjectBusy = errors.New("project already has an active job")
	// ErrInvalidRequest rejects a start whose inputs fail validation.
	ErrInvalidRequest = errors.New("invalid job request")
	// ErrNotRunning rejects work submitted before Start or after Stop.
	ErrNotRunning = errors.New("workflow manager is not running")
	// ErrJobCanceled is how a run reports an observed cancellation. It never
	// becomes a job's error message.
	ErrJobCanceled = errors.New("job canceled")

	errDaemonStopped = errors.New("daemon stopped")
)

// JobError is a precondition failure reported synchronously by StartJob. The
// job never enters running.
type JobError struct {
	Reason  error
	Message string
}

func (e *JobError) Error() string {
	if e.Message == "" {
		return e.Reason.Error()
	}
	return e.Message
}

func (e *JobError) Unwrap() error { return e.Reason }

func invalidRequest(format string, args ...any) error {
	return &JobError{Reason: ErrInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

func projectBusy(projectID string) error {
	return &JobError{Reason: ErrProjectBusy, Message: fmt.Sprintf("project %s already has an active job", projectID)}
}

// StageError reports a stage that could not be planned or whose failed items
// met the failure threshold.
type StageError struct {
	Stage   jobs.Stage
	Planned int
	Failed  int
	// Cause is the planning error or the last item failure.
	Cause error
}

func (e *StageError) Error() string {
	if e.Planned == 0 && e.Failed == 0 {
		return fmt.Sprintf("%s stage failed: %s", e.Stage, services.Details(e.Cause))
	}
	msg := fmt.Sprintf("%s stage failed: %d of %d items failed", e.Stage, e.Failed, e.Planned)
	if e.Cause != nil {
		msg += "; last error: " + services.Details(e.Cause)
	}
	return msg
}

func (e *StageError) Unwrap() error { return e.Cause }

// ItemError is one unit that failed after its retry budget was spent.
type ItemError struct {
	Stage    jobs.Stage
	RefID    string
	Attempts int
	Err      error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempt(s): %s", e.Stage, e.RefID, e.Attempts, services.Details(e.Err))
}

func (e *ItemError) Unwrap() error { return e.Err }
