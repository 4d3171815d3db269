package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"plotline/internal/blob"
	"plotline/internal/config"
	"plotline/internal/daemon"
	"plotline/internal/database"
	"plotline/internal/jobs"
	"plotline/internal/library"
	"plotline/internal/logging"
	"plotline/internal/services/imagegen"
	"plotline/internal/services/llm"
	"plotline/internal/services/textanalysis"
	"plotline/internal/stages"
	"plotline/internal/workflow"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the plotline daemon in the foreground",
		Long: `Run the plotline daemon in the foreground.

The daemon owns the job store, executes pipeline stages and serves the
Status API on paths.api_bind. SIGINT or SIGTERM stops it; running jobs are
recorded as failed with "daemon stopped".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), ctx)
		},
	}
}

func runDaemon(cmdCtx context.Context, ctx *commandContext) error {
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	db, err := database.Open(cfg)
	if err != nil {
		logger.Error("open database", logging.Error(err))
		return err
	}
	store := jobs.NewStore(db)
	lib := library.NewStore(db)

	mgr := workflow.NewManager(cfg, store, lib, logger)
	mgr.ConfigureStages(buildStages(cfg, lib))

	d, err := daemon.New(cfg, mgr, lib, db, logger)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-signalCtx.Done()
	logger.Info("plotline daemon shutting down",
		logging.String(logging.FieldEventType, "daemon_shutdown"),
	)
	return nil
}

// buildStages wires the production collaborators into the six pipeline stages.
// The worker pool owns retries, so the clients make a single call per attempt.
func buildStages(cfg *config.Config, lib *library.Store) workflow.StageSet {
	completer := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	}, llm.WithRetryMaxAttempts(1))
	analyzer := textanalysis.New(completer)

	images := imagegen.NewClient(imagegen.Config{
		APIKey:  cfg.Images.APIKey,
		BaseURL: cfg.Images.BaseURL,
		Model:   cfg.Images.Model,
		Size:    cfg.Images.Size,
		Quality: cfg.Images.Quality,
		Timeout: time.Duration(cfg.Images.TimeoutSeconds) * time.Second,
	})

	return workflow.StageSet{
		Characters: stages.NewCharacterExtraction(lib, lib, analyzer),
		Chapters:   stages.NewChapterSplit(lib, lib, analyzer),
		Scenes:     stages.NewSceneSplit(lib, analyzer),
		Linking:    stages.NewCharacterLinking(lib),
		Prompts:    stages.NewPromptGeneration(lib, analyzer),
		Images:     stages.NewImageGeneration(lib, images, blob.LocalFS{Root: cfg.ImageDir()}),
	}
}
