package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"plotline/internal/jobs"
	"plotline/internal/logging"
)

// progressTracker turns settled-item counts into the job's progress
// percentage. Every stage weighs 1/k of the total.
type progressTracker struct {
	m      *Manager
	logger *slog.Logger
	jobID  string
	stages int

	mu      sync.Mutex
	last    int
	sampler *logging.ProgressSampler
}

func newProgressTracker(m *Manager, logger *slog.Logger, jobID string, stages, current int) *progressTracker {
	return &progressTracker{
		m:       m,
		logger:  logger,
		jobID:   jobID,
		stages:  stages,
		last:    current,
		sampler: logging.NewProgressSampler(progressLogBucket),
	}
}

// progressLogBucket is the percentage step between job_progress log lines.
const progressLogBucket = 10

// Percent computes floor(100 * (completed + settled/planned) / stages). A
// stage with nothing planned counts as complete.
func Percent(stages, completed, settled, planned int) int {
	if stages <= 0 {
		return 0
	}
	var value int
	if planned <= 0 {
		value = 100 * completed / stages
	} else {
		if settled > planned {
			settled = planned
		}
		value = 100 * (completed*planned + settled) / (stages * planned)
	}
	return min(max(value, 0), 100)
}

// report writes the new percentage if it moved forward.
func (p *progressTracker) report(ctx context.Context, completed, settled, planned int) {
	value := Percent(p.stages, completed, settled, planned)

	p.mu.Lock()
	defer p.mu.Unlock()
	if value <= p.last {
		return
	}
	job, err := p.m.store.Mutate(context.WithoutCancel(ctx), p.jobID, func(j *jobs.Job) error {
		if j.Status != jobs.StatusRunning || value <= j.Progress {
			return jobs.ErrNoChange
		}
		j.Progress = value
		return nil
	})
	if err != nil {
		if !errors.Is(err, jobs.ErrNoChange) {
			p.logger.Debug("progress update failed",
				logging.Error(err),
			)
		}
		return
	}
	p.last = value
	if p.sampler.ShouldLog(value, string(job.CurrentStage)) {
		p.logger.Info("job progress",
			logging.String(logging.FieldEventType, "job_progress"),
			logging.Int(logging.FieldProgress, value),
		)
	}
	p.m.publish(job)
}
