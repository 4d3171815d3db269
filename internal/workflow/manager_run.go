package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"plotline/internal/jobs"
	"plotline/internal/logging"
	"plotline/internal/notifications"
	"plotline/internal/services"
	"plotline/internal/stage"
)

const finalizeTimeout = 30 * time.Second

// execute owns one job from queued to terminal.
func (m *Manager) execute(ctx context.Context, job *jobs.Job, flag *cancelFlag) {
	defer m.wg.Done()
	defer m.locks.release(job.ProjectID, job.ID)
	defer m.cancels.remove(job.ID)

	logger := m.jobLogger(job)
	ctx = services.WithProjectID(services.WithJobID(ctx, job.ID), job.ProjectID)

	select {
	case m.slots <- struct{}{}:
	case <-flag.Done():
		m.finish(ctx, logger, job.ID, ErrJobCanceled)
		return
	case <-ctx.Done():
		m.finish(ctx, logger, job.ID, errDaemonStopped)
		return
	}
	defer func() { <-m.slots }()

	m.finish(ctx, logger, job.ID, m.runJob(ctx, logger, job.ID, flag))
}

// runJob walks the stage sequence. It returns nil on success, ErrJobCanceled
// when a cancel was observed, errDaemonStopped on shutdown, or the StageError
// that aborted the job.
func (m *Manager) runJob(ctx context.Context, logger *slog.Logger, jobID string, flag *cancelFlag) error {
	if flag.requested() {
		return ErrJobCanceled
	}
	job, err := m.store.Mutate(ctx, jobID, func(j *jobs.Job) error {
		if j.Status != jobs.StatusQueued {
			return jobs.ErrNoChange
		}
		now := time.Now().UTC()
		j.Status = jobs.StatusRunning
		j.StartedAt = &now
		j.CurrentStage = j.StageSequence[0]
		return nil
	})
	if err != nil {
		if errors.Is(err, jobs.ErrNoChange) {
			return ErrJobCanceled
		}
		if ctx.Err() != nil {
			return errDaemonStopped
		}
		return err
	}
	m.publish(job)
	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.String("stages", stageList(job.StageSequence)),
	)

	tracker := newProgressTracker(m, logger, jobID, len(job.StageSequence), job.Progress)
	for index, name := range job.StageSequence {
		if flag.requested() {
			return ErrJobCanceled
		}
		if ctx.Err() != nil {
			return errDaemonStopped
		}
		handler, ok := m.stageFor(name)
		if !ok {
			return &StageError{Stage: name, Cause: services.Wrap(services.ErrConfiguration, string(name), "lookup", "stage is not configured", nil)}
		}
		if err := m.enterStage(ctx, jobID, name); err != nil {
			return err
		}

		stageLogger := logger.With(logging.String(logging.FieldStage, string(name)))
		run := stage.NewRun(job, name, stageLogger, flag.requested)
		outcome, err := m.runStage(services.WithStage(ctx, string(name)), stageLogger, handler, run, index, tracker, flag)
		if err != nil {
			return err
		}
		if flag.requested() {
			return ErrJobCanceled
		}
		if ctx.Err() != nil {
			return errDaemonStopped
		}
		if blocksJob(name) && outcome.exceeds(m.cfg.Pipeline.FailureThreshold) {
			stageErr := &StageError{Stage: name, Planned: outcome.Planned, Failed: outcome.Failed, Cause: outcome.LastErr}
			stageLogger.Error("stage failed",
				logging.String(logging.FieldEventType, "stage_failure"),
				logging.String(logging.FieldErrorHint, services.Hint(outcome.LastErr)),
				logging.Int("planned", outcome.Planned),
				logging.Int("failed", outcome.Failed),
				logging.Error(stageErr),
			)
			return stageErr
		}
		if outcome.Failed > 0 {
			m.markPartial(ctx, jobID)
		}
		tracker.report(ctx, index+1, 0, 0)
		stageLogger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Int("planned", outcome.Planned),
			logging.Int("succeeded", outcome.Succeeded),
			logging.Int("failed", outcome.Failed),
			logging.Duration("duration", outcome.Duration),
		)
	}
	return nil
}

func (m *Manager) enterStage(ctx context.Context, jobID string, name jobs.Stage) error {
	job, err := m.store.Mutate(ctx, jobID, func(j *jobs.Job) error {
		if j.Status != jobs.StatusRunning {
			return jobs.ErrNoChange
		}
		if j.CurrentStage == name {
			return jobs.ErrNoChange
		}
		j.CurrentStage = name
		return nil
	})
	if err != nil && !errors.Is(err, jobs.ErrNoChange) {
		if ctx.Err() != nil {
			return errDaemonStopped
		}
		return err
	}
	if err == nil {
		m.publish(job)
	}
	return nil
}

func (m *Manager) markPartial(ctx context.Context, jobID string) {
	job, err := m.store.Mutate(ctx, jobID, func(j *jobs.Job) error {
		if j.Status != jobs.StatusRunning || j.PartialSuccess {
			return jobs.ErrNoChange
		}
		j.PartialSuccess = true
		return nil
	})
	if err == nil {
		m.publish(job)
	}
}

// finish writes the terminal state that matches outcome. It never overwrites a
// job that is already terminal.
func (m *Manager) finish(ctx context.Context, logger *slog.Logger, jobID string, outcome error) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	status := jobs.StatusSucceeded
	message := ""
	switch {
	case outcome == nil:
	case errors.Is(outcome, ErrJobCanceled):
		status = jobs.StatusCanceled
	case errors.Is(outcome, errDaemonStopped):
		status = jobs.StatusFailed
		message = errDaemonStopped.Error()
	default:
		status = jobs.StatusFailed
		var stageErr *StageError
		if errors.As(outcome, &stageErr) {
			message = stageErr.Error()
		} else {
			message = services.Details(outcome)
		}
	}

	job, err := m.store.Mutate(writeCtx, jobID, func(j *jobs.Job) error {
		if j.Status.Terminal() {
			return jobs.ErrNoChange
		}
		now := time.Now().UTC()
		j.Status = status
		j.ErrorMessage = message
		j.FinishedAt = &now
		if status == jobs.StatusSucceeded {
			j.Progress = 100
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, jobs.ErrNoChange) {
			m.setLastError(err)
			logger.Error("job finalize failed",
				logging.String(logging.FieldEventType, "job_finalize_failed"),
				logging.String(logging.FieldErrorHint, "job may remain active until the daemon restarts"),
				logging.Error(err),
			)
		}
		return
	}
	// Release before publishing so a listener may start the next job.
	m.cancels.remove(jobID)
	m.locks.release(job.ProjectID, jobID)

	if status != jobs.StatusSucceeded {
		reason := message
		if reason == "" {
			reason = ErrJobCanceled.Error()
		}
		if _, err := m.store.FailOpenItems(writeCtx, jobID, reason); err != nil {
			logger.Warn("failed to close open items",
				logging.String(logging.FieldEventType, "item_cleanup_failed"),
				logging.Error(err),
			)
		}
	}

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "job_complete"),
		logging.String("status", string(job.Status)),
		logging.Int(logging.FieldProgress, job.Progress),
		logging.Bool("partial_success", job.PartialSuccess),
	}
	if job.StartedAt != nil && job.FinishedAt != nil {
		attrs = append(attrs, logging.Duration("duration", job.FinishedAt.Sub(*job.StartedAt)))
	}
	if status == jobs.StatusFailed {
		attrs = append(attrs,
			logging.String("error_message", message),
			logging.String(logging.FieldErrorHint, services.Hint(outcome)),
		)
		logger.Warn("job finished", logging.Args(attrs...)...)
	} else {
		logger.Info("job finished", logging.Args(attrs...)...)
	}
	m.publish(job)
	m.notifyFinished(writeCtx, logger, job)
}

// notifyFinished reports a terminal job. Delivery failures are logged only.
func (m *Manager) notifyFinished(ctx context.Context, logger *slog.Logger, job *jobs.Job) {
	if m.notifier == nil {
		return
	}
	outcome := notifications.JobOutcome{
		JobID:          job.ID,
		ProjectID:      job.ProjectID,
		Status:         string(job.Status),
		PartialSuccess: job.PartialSuccess,
		ErrorMessage:   job.ErrorMessage,
	}
	if job.StartedAt != nil && job.FinishedAt != nil {
		outcome.Duration = job.FinishedAt.Sub(*job.StartedAt)
	}
	if counts, err := m.store.CountItems(ctx, job.ID); err == nil {
		outcome.Images = counts[jobs.StageImages].Succeeded
	}
	if err := m.notifier.NotifyJobFinished(ctx, outcome); err != nil {
		logger.Warn("job notification failed",
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.Error(err),
		)
	}
}
