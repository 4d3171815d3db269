package stages

import (
	"context"

	"plotline/internal/jobs"
	"plotline/internal/library"
	"plotline/internal/services/textanalysis"
	"plotline/internal/stage"
)

// PromptGeneration writes an illustration prompt for each scene.
type PromptGeneration struct {
	library  *library.Store
	analyzer TextAnalyzer
}

// NewPromptGeneration constructs the prompts stage.
func NewPromptGeneration(lib *library.Store, analyzer TextAnalyzer) *PromptGeneration {
	return &PromptGeneration{library: lib, analyzer: analyzer}
}

func (s *PromptGeneration) Name() jobs.Stage { return jobs.StagePrompts }

func (s *PromptGeneration) Plan(ctx context.Context, run stage.Run) ([]stage.Unit, error) {
	return planScenes(ctx, s.library, s.Name(), run, 0)
}

func (s *PromptGeneration) Execute(ctx context.Context, run stage.Run, unit stage.Unit) (stage.Result, error) {
	scene, err := s.library.Scene(ctx, unit.Target)
	if err != nil {
		return stage.Result{}, libraryError(s.Name(), "load scene", err)
	}
	characters, err := s.library.Characters(ctx, run.ProjectID)
	if err != nil {
		return stage.Result{}, libraryError(s.Name(), "load characters", err)
	}
	linked := make(map[string]struct{}, len(scene.CharacterIDs))
	for _, id := range scene.CharacterIDs {
		linked[id] = struct{}{}
	}
	req := textanalysis.PromptRequest{
		SceneTitle:   scene.Title,
		SceneSummary: scene.Summary,
		SceneText:    scene.Text,
		StylePreset:  run.StylePreset,
		Language:     run.Language,
	}
	for _, ch := range characters {
		if _, ok := linked[ch.ID]; ok {
			req.Characters = append(req.Characters, textanalysis.Character{Name: ch.Name, Description: ch.Description})
		}
	}

	prompt, err := s.analyzer.ScenePrompt(ctx, req)
	if err != nil {
		return stage.Result{}, err
	}
	if err := run.Checkpoint(); err != nil {
		return stage.Result{}, err
	}
	if err := s.library.UpdateScenePrompt(ctx, scene.ID, run.JobID, prompt); err != nil {
		return stage.Result{}, libraryError(s.Name(), "save prompt", err)
	}
	return stage.Result{Produced: 1}, nil
}

func (s *PromptGeneration) HealthCheck(context.Context) stage.Health {
	return analyzerHealth(s.Name(), s.analyzer)
}
