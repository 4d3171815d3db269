package stage

import (
	"context"
	"errors"
	"log/slog"

	"plotline/internal/jobs"
	"plotline/internal/logging"
)

// ErrCanceled is returned from Execute when a checkpoint observed that the job
// was canceled. The unit's partial work is discarded.
var ErrCanceled = errors.New("job canceled")

// Stage describes what the orchestrator needs from each pipeline step.
type Stage interface {
	Name() jobs.Stage
	Plan(ctx context.Context, run Run) ([]Unit, error)
	Execute(ctx context.Context, run Run, unit Unit) (Result, error)
	HealthCheck(ctx context.Context) Health
}

// Run carries the job-level inputs shared by every unit of a stage.
type Run struct {
	JobID          string
	ProjectID      string
	Stage          jobs.Stage
	Language       string
	StylePreset    string
	ImagesPerScene int
	Logger         *slog.Logger

	// Canceled reports whether the job has been asked to stop. It may be nil.
	Canceled func() bool
}

// NewRun builds the run inputs for one stage of job.
func NewRun(job *jobs.Job, stage jobs.Stage, logger *slog.Logger, canceled func() bool) Run {
	return Run{
		JobID:          job.ID,
		ProjectID:      job.ProjectID,
		Stage:          stage,
		Language:       job.Options.Language,
		StylePreset:    job.Options.StylePreset,
		ImagesPerScene: job.Options.ImagesPerScene,
		Logger:         logger,
		Canceled:       canceled,
	}
}

// Log returns the run logger or a no-op logger.
func (r Run) Log() *slog.Logger {
	if r.Logger == nil {
		return logging.NewNop()
	}
	return r.Logger
}

// Checkpoint returns ErrCanceled once the job has been canceled. Stages call it
// between external calls inside one unit.
func (r Run) Checkpoint() error {
	if r.Canceled != nil && r.Canceled() {
		return ErrCanceled
	}
	return nil
}

// Unit is one planned piece of work.
type Unit struct {
	// RefID identifies the unit within the stage and becomes the item ref.
	RefID string
	// Target is the library record the unit reads (chapter or scene id).
	Target string
	// Variant distinguishes several units for the same target.
	Variant int
	Label   string
}

// Result reports what a unit produced.
type Result struct {
	Produced int
	Detail   string
}
