package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"plotline/internal/jobs"
	"plotline/internal/logging"
)

// InterruptedMessage is written on jobs a previous process left active.
const InterruptedMessage = "interrupted: daemon restarted"

// recoverInterrupted fails every queued or running job left behind by a
// previous process. Jobs are not resumed; callers retry them as new jobs.
func (m *Manager) recoverInterrupted(ctx context.Context) (int, error) {
	orphans, err := m.store.ListByStatus(ctx, jobs.StatusQueued, jobs.StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("list interrupted jobs: %w", err)
	}
	recovered := 0
	for _, orphan := range orphans {
		if _, held := m.cancels.lookup(orphan.ID); held {
			continue
		}
		job, err := m.store.Mutate(ctx, orphan.ID, func(j *jobs.Job) error {
			if !j.Status.Active() {
				return jobs.ErrNoChange
			}
			now := time.Now().UTC()
			j.Status = jobs.StatusFailed
			j.ErrorMessage = InterruptedMessage
			j.FinishedAt = &now
			return nil
		})
		if err != nil {
			if errors.Is(err, jobs.ErrNoChange) {
				continue
			}
			return recovered, fmt.Errorf("recover job %s: %w", orphan.ID, err)
		}
		items, err := m.store.FailOpenItems(ctx, orphan.ID, InterruptedMessage)
		if err != nil {
			return recovered, fmt.Errorf("recover items of job %s: %w", orphan.ID, err)
		}
		recovered++
		m.jobLogger(job).Warn("interrupted job marked failed",
			logging.String(logging.FieldEventType, "job_recovered"),
			logging.String("previous_status", string(orphan.Status)),
			logging.String(logging.FieldStage, string(orphan.CurrentStage)),
			logging.Int64("open_items", items),
			logging.String(logging.FieldErrorHint, "retry the job to run it again"),
		)
		m.publish(job)
	}
	return recovered, nil
}
