package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"plotline/internal/api"
	"plotline/internal/blob"
	"plotline/internal/config"
	"plotline/internal/logging"
	"plotline/internal/preflight"
	"plotline/internal/workflow"
)

// ErrAlreadyRunning reports that another daemon holds the data directory lock.
var ErrAlreadyRunning = errors.New("another plotline daemon instance is already running")

// Daemon coordinates the workflow manager and the HTTP API and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	workflow *workflow.Manager
	jobs     *api.JobService
	closer   io.Closer

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	DatabasePath string
	LockFilePath string
	APIAddress   string
}

// New constructs a daemon. closer (typically the database) is closed by Close.
func New(cfg *config.Config, wf *workflow.Manager, lib api.Library, closer io.Closer, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || wf == nil || lib == nil {
		return nil, errors.New("daemon requires config, workflow manager, and library")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		workflow: wf,
		jobs:     api.NewJobService(wf, lib),
		closer:   closer,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	d.api = newAPIServer(cfg, d, blob.LocalFS{Root: cfg.ImageDir()}, logger)
	return d, nil
}

// Start acquires the daemon lock, runs preflight checks, launches the
// workflow manager and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	if err := d.preflight(ctx); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.workflow.Stop()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("plotline daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
	)
	return nil
}

func (d *Daemon) preflight(ctx context.Context) error {
	results := preflight.RunAll(ctx, d.cfg)
	for _, r := range results {
		if !r.Passed && r.Advisory {
			logging.WarnWithContext(d.logger, "preflight check failed", "preflight_advisory",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
				logging.String(logging.FieldErrorHint, "jobs that need this provider will fail their stage"),
			)
		}
	}
	blocking := preflight.Blocking(results)
	if len(blocking) == 0 {
		return nil
	}
	parts := make([]string, 0, len(blocking))
	for _, r := range blocking {
		parts = append(parts, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	return fmt.Errorf("preflight failed: %s", strings.Join(parts, "; "))
}

// Stop stops serving, finalizes running jobs and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.workflow.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.String(logging.FieldEventType, "daemon_lock_release_failed"),
			logging.Error(err),
		)
	}
	d.running.Store(false)
	d.logger.Info("plotline daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}

// APIAddress returns the address the API listens on, once started.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Status(ctx),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
		APIAddress:   d.api.address(),
	}
}
