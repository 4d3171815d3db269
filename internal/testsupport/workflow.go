package testsupport

import (
	"context"
	"testing"

	"plotline/internal/blob"
	"plotline/internal/config"
	"plotline/internal/jobs"
	"plotline/internal/library"
	"plotline/internal/logging"
	"plotline/internal/stages"
	"plotline/internal/workflow"
)

// NewStageSet wires the real stages over the stub collaborators.
func NewStageSet(cfg *config.Config, lib *library.Store, analyzer *StubAnalyzer, images *StubImages) workflow.StageSet {
	return workflow.StageSet{
		Characters: stages.NewCharacterExtraction(lib, lib, analyzer),
		Chapters:   stages.NewChapterSplit(lib, lib, analyzer),
		Scenes:     stages.NewSceneSplit(lib, analyzer),
		Linking:    stages.NewCharacterLinking(lib),
		Prompts:    stages.NewPromptGeneration(lib, analyzer),
		Images:     stages.NewImageGeneration(lib, images, blob.LocalFS{Root: cfg.ImageDir()}),
	}
}

// StartManager builds and starts a workflow manager and stops it on cleanup.
func StartManager(t testing.TB, cfg *config.Config, store *jobs.Store, lib *library.Store, set workflow.StageSet) *workflow.Manager {
	t.Helper()
	mgr := workflow.NewManager(cfg, store, lib, logging.NewNop())
	mgr.ConfigureStages(set)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("manager start: %v", err)
	}
	t.Cleanup(mgr.Stop)
	return mgr
}
