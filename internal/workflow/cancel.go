package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"plotline/internal/jobs"
	"plotline/internal/logging"
)

// cancelFlag is the per-job cancellation request. It is raised at most once.
type cancelFlag struct {
	once sync.Once
	done chan struct{}
}

func (f *cancelFlag) set() {
	f.once.Do(func() { close(f.done) })
}

func (f *cancelFlag) requested() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Done is closed once cancellation was requested.
func (f *cancelFlag) Done() <-chan struct{} {
	return f.done
}

type cancelRegistry struct {
	mu    sync.Mutex
	flags map[string]*cancelFlag
}

func newCancelRegistry() *cancelRegistry {
	return &cancelRegistry{flags: make(map[string]*cancelFlag)}
}

func (r *cancelRegistry) register(jobID string) *cancelFlag {
	r.mu.Lock()
	defer r.mu.Unlock()
	flag := &cancelFlag{done: make(chan struct{})}
	r.flags[jobID] = flag
	return flag
}

func (r *cancelRegistry) lookup(jobID string) (*cancelFlag, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	flag, ok := r.flags[jobID]
	return flag, ok
}

func (r *cancelRegistry) remove(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flags, jobID)
}

// Cancel requests that a job stop. Terminal jobs are left untouched. A job
// held by this manager stops dispatching and settles its in-flight units
// before it is written as canceled; an active job no goroutine owns is
// canceled directly.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	job, err := m.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}
	logger := m.jobLogger(job)

	if flag, ok := m.cancels.lookup(jobID); ok {
		flag.set()
		updated, err := m.store.Mutate(ctx, jobID, func(j *jobs.Job) error {
			if !j.Status.Active() || j.CancelRequested {
				return jobs.ErrNoChange
			}
			j.CancelRequested = true
			return nil
		})
		if err != nil && !errors.Is(err, jobs.ErrNoChange) {
			return err
		}
		logger.Info("job cancel requested",
			logging.String(logging.FieldEventType, "job_cancel_requested"),
			logging.String("status", string(job.Status)),
			logging.String(logging.FieldStage, string(job.CurrentStage)),
		)
		if err == nil {
			m.publish(updated)
		}
		return nil
	}

	updated, err := m.store.Mutate(ctx, jobID, func(j *jobs.Job) error {
		if !j.Status.Active() {
			return jobs.ErrNoChange
		}
		now := time.Now().UTC()
		j.Status = jobs.StatusCanceled
		j.CancelRequested = true
		j.ErrorMessage = ""
		j.FinishedAt = &now
		return nil
	})
	if err != nil {
		if errors.Is(err, jobs.ErrNoChange) {
			return nil
		}
		return err
	}
	if _, err := m.store.FailOpenItems(ctx, jobID, ErrJobCanceled.Error()); err != nil {
		logger.Warn("failed to close open items",
			logging.String(logging.FieldEventType, "item_cleanup_failed"),
			logging.Error(err),
		)
	}
	logger.Info("orphaned job canceled",
		logging.String(logging.FieldEventType, "job_cancel_requested"),
	)
	m.publish(updated)
	return nil
}
