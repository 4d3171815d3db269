package workflow

import (
	"context"
	"fmt"

	"plotline/internal/jobs"
	"plotline/internal/stage"
)

// StatusSummary exposes the manager's runtime state.
type StatusSummary struct {
	Running     bool
	LastError   string
	ActiveJobs  int
	QueuedJobs  int
	StageHealth map[string]stage.Health
}

// Status returns a snapshot of the manager, its jobs and its stage health.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	handlers := make([]stage.Stage, 0, len(m.stages))
	for _, handler := range m.stages {
		handlers = append(handlers, handler)
	}
	m.mu.RUnlock()

	summary := StatusSummary{
		Running:     running,
		StageHealth: make(map[string]stage.Health, len(handlers)),
	}
	if err := m.lastError(); err != nil {
		summary.LastError = err.Error()
	}
	if active, err := m.store.ListByStatus(ctx, jobs.StatusQueued, jobs.StatusRunning); err == nil {
		for _, job := range active {
			if job.Status == jobs.StatusQueued {
				summary.QueuedJobs++
			} else {
				summary.ActiveJobs++
			}
		}
	} else {
		summary.LastError = fmt.Sprintf("list active jobs: %v", err)
	}
	for _, handler := range handlers {
		summary.StageHealth[string(handler.Name())] = handler.HealthCheck(ctx)
	}
	return summary
}

// Get returns the current snapshot of a job.
func (m *Manager) Get(ctx context.Context, jobID string) (*jobs.Job, error) {
	return m.store.Get(ctx, jobID)
}

// ListByProject returns a project's job history, newest first.
func (m *Manager) ListByProject(ctx context.Context, projectID string) ([]*jobs.Job, error) {
	return m.store.ListByProject(ctx, projectID)
}

// Items returns the item history of a job, optionally limited to one stage.
func (m *Manager) Items(ctx context.Context, jobID string, name jobs.Stage) ([]*jobs.Item, error) {
	if _, err := m.store.Get(ctx, jobID); err != nil {
		return nil, err
	}
	return m.store.ListItems(ctx, jobID, name)
}

// Delete removes a terminal job and its items. Project outputs stay.
func (m *Manager) Delete(ctx context.Context, jobID string) error {
	return m.store.Delete(ctx, jobID)
}
