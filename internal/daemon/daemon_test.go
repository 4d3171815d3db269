package daemon_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"plotline/internal/api"
	"plotline/internal/config"
	"plotline/internal/daemon"
	"plotline/internal/jobs"
	"plotline/internal/logging"
	"plotline/internal/services/textanalysis"
	"plotline/internal/testsupport"
	"plotline/internal/workflow"
)

func newDaemon(t *testing.T, cfg *config.Config, analyzer *testsupport.StubAnalyzer) (*daemon.Daemon, *jobs.Store) {
	t.Helper()
	store, lib := testsupport.MustOpenStores(t, cfg)
	mgr := workflow.NewManager(cfg, store, lib, logging.NewNop())
	mgr.ConfigureStages(testsupport.NewStageSet(cfg, lib, analyzer, &testsupport.StubImages{}))
	d, err := daemon.New(cfg, mgr, lib, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})
	return d, store
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newDaemon(t, cfg, testsupport.NewStubAnalyzer(1, 1, 1))
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running || status.PID != os.Getpid() || status.LockFilePath != cfg.LockPath() || status.APIAddress == "" {
		t.Fatalf("unexpected status %+v", status)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, _ := newDaemon(t, cfg, testsupport.NewStubAnalyzer(1, 1, 1))
	second, _ := newDaemon(t, cfg, testsupport.NewStubAnalyzer(1, 1, 1))
	ctx := context.Background()

	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	if err := second.Start(ctx); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("second Start after release failed: %v", err)
	}
}

func TestDaemonServesAPI(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIToken = "secret"
	d, _ := newDaemon(t, cfg, testsupport.NewStubAnalyzer(1, 2, 1))
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	client := api.NewClient("http://"+d.APIAddress(), api.WithToken("secret"))
	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !status.Running || status.DatabasePath != cfg.DatabasePath() || len(status.Workflow.StageHealth) != 6 {
		t.Fatalf("unexpected status %+v", status)
	}

	job, err := client.StartJob(ctx, "book", api.StartJobRequest{ManuscriptText: "Mira sails.", StylePreset: "ink"})
	if err != nil {
		t.Fatalf("StartJob failed: %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	final, err := client.Watch(waitCtx, job.ID, nil)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if final.Status != "succeeded" {
		t.Fatalf("expected succeeded, got %s %q", final.Status, final.ErrorMessage)
	}
}

func TestDaemonStopFailsRunningJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	analyzer := testsupport.NewStubAnalyzer(1, 1, 1)
	entered := make(chan struct{})
	analyzer.CharactersFn = func(ctx context.Context, _ string) ([]textanalysis.Character, error) {
		close(entered)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	d, store := newDaemon(t, cfg, analyzer)
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	client := api.NewClient("http://" + d.APIAddress())
	job, err := client.StartJob(ctx, "book", api.StartJobRequest{ManuscriptText: "text", StylePreset: "ink"})
	if err != nil {
		t.Fatalf("StartJob failed: %v", err)
	}
	select {
	case <-entered:
	case <-time.After(10 * time.Second):
		t.Fatal("characters unit never started")
	}

	d.Stop()
	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != jobs.StatusFailed || got.ErrorMessage != "daemon stopped" {
		t.Fatalf("expected daemon stopped failure, got %s %q", got.Status, got.ErrorMessage)
	}
}

func TestDaemonStartFailsOnUnusableImageDirectory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newDaemon(t, cfg, testsupport.NewStubAnalyzer(1, 1, 1))
	// A file where the image directory should be cannot be created as a directory.
	if err := os.RemoveAll(cfg.ImageDir()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.ImageDir(), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := d.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "images") {
		t.Fatalf("expected image directory failure, got %v", err)
	}
	if d.Status(context.Background()).Running {
		t.Fatal("daemon should not be running")
	}
}
