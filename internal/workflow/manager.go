package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"plotline/internal/config"
	"plotline/internal/jobs"
	"plotline/internal/library"
	"plotline/internal/logging"
	"plotline/internal/notifications"
	"plotline/internal/stage"
)

// StageSet lists the handlers for each pipeline stage. Nil entries leave the
// stage unavailable; jobs whose sequence needs it are rejected at start.
type StageSet struct {
	Characters stage.Stage
	Chapters   stage.Stage
	Scenes     stage.Stage
	Linking    stage.Stage
	Prompts    stage.Stage
	Images     stage.Stage
}

func (s StageSet) byName() map[jobs.Stage]stage.Stage {
	handlers := make(map[jobs.Stage]stage.Stage, 6)
	for name, handler := range map[jobs.Stage]stage.Stage{
		jobs.StageCharacters: s.Characters,
		jobs.StageChapters:   s.Chapters,
		jobs.StageScenes:     s.Scenes,
		jobs.StageLinking:    s.Linking,
		jobs.StagePrompts:    s.Prompts,
		jobs.StageImages:     s.Images,
	} {
		if handler != nil {
			handlers[name] = handler
		}
	}
	return handlers
}

// Manager coordinates job execution over the configured stages.
type Manager struct {
	cfg      *config.Config
	store    *jobs.Store
	library  *library.Store
	logger   *slog.Logger
	notifier notifications.Service

	mu      sync.RWMutex
	stages  map[jobs.Stage]stage.Stage
	running bool
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error

	slots   chan struct{}
	locks   *projectLocks
	cancels *cancelRegistry
	events  *eventHub
}

// NewManager constructs a new workflow manager that notifies through the
// configured ntfy topic.
func NewManager(cfg *config.Config, store *jobs.Store, lib *library.Store, logger *slog.Logger) *Manager {
	return NewManagerWithNotifier(cfg, store, lib, logger, notifications.NewService(cfg))
}

// NewManagerWithNotifier constructs a workflow manager with a custom notifier.
func NewManagerWithNotifier(cfg *config.Config, store *jobs.Store, lib *library.Store, logger *slog.Logger, notifier notifications.Service) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	slots := cfg.Pipeline.MaxConcurrentJobs
	if slots < 1 {
		slots = 1
	}
	return &Manager{
		cfg:      cfg,
		store:    store,
		library:  lib,
		logger:   logging.NewComponentLogger(logger, "workflow"),
		notifier: notifier,
		stages:   map[jobs.Stage]stage.Stage{},
		slots:    make(chan struct{}, slots),
		locks:    newProjectLocks(),
		cancels:  newCancelRegistry(),
		events:   newEventHub(),
	}
}

// ConfigureStages registers the stage handlers.
func (m *Manager) ConfigureStages(set StageSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = set.byName()
}

// Start recovers jobs interrupted by a previous process and begins accepting
// new jobs.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	m.mu.Unlock()

	if _, err := m.recoverInterrupted(ctx); err != nil {
		m.setLastError(err)
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.runCtx = runCtx
	m.cancel = cancel
	m.running = true
	m.logger.Info("workflow manager started",
		logging.Int("worker_concurrency", m.cfg.Pipeline.WorkerConcurrency),
		logging.Int("max_concurrent_jobs", cap(m.slots)),
	)
	return nil
}

// Stop aborts running jobs and waits for their goroutines to finalize them.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow manager stopped")
}

func (m *Manager) stageFor(name jobs.Stage) (stage.Stage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	handler, ok := m.stages[name]
	return handler, ok
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) lastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// jobLogger returns a logger stamped with the job's identifiers.
func (m *Manager) jobLogger(job *jobs.Job) *slog.Logger {
	return m.logger.With(
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldProjectID, job.ProjectID),
	)
}

// publish pushes a snapshot of job to subscribers.
func (m *Manager) publish(job *jobs.Job) {
	if job == nil {
		return
	}
	m.events.publish(job.Clone())
}
