package stages

import (
	"context"
	"errors"
	"strings"

	"plotline/internal/jobs"
	"plotline/internal/library"
	"plotline/internal/services"
	"plotline/internal/stage"
)

// CharacterExtraction extracts the cast of the manuscript in one unit.
type CharacterExtraction struct {
	library    *library.Store
	manuscript ManuscriptSource
	analyzer   TextAnalyzer
}

// NewCharacterExtraction constructs the characters stage.
func NewCharacterExtraction(lib *library.Store, source ManuscriptSource, analyzer TextAnalyzer) *CharacterExtraction {
	return &CharacterExtraction{library: lib, manuscript: source, analyzer: analyzer}
}

func (s *CharacterExtraction) Name() jobs.Stage { return jobs.StageCharacters }

func (s *CharacterExtraction) Plan(ctx context.Context, run stage.Run) ([]stage.Unit, error) {
	return planManuscriptUnit(ctx, s.manuscript, s.Name(), run)
}

func (s *CharacterExtraction) Execute(ctx context.Context, run stage.Run, unit stage.Unit) (stage.Result, error) {
	text, lang, err := loadManuscript(ctx, s.manuscript, s.Name(), run)
	if err != nil {
		return stage.Result{}, err
	}
	found, err := s.analyzer.ExtractCharacters(ctx, text, lang)
	if err != nil {
		return stage.Result{}, err
	}
	if err := run.Checkpoint(); err != nil {
		return stage.Result{}, err
	}
	drafts := make([]library.CharacterDraft, 0, len(found))
	for _, ch := range found {
		drafts = append(drafts, library.CharacterDraft{Name: ch.Name, Description: ch.Description, Aliases: ch.Aliases})
	}
	saved, err := s.library.ReplaceCharacters(ctx, run.ProjectID, run.JobID, drafts)
	if err != nil {
		return stage.Result{}, stage.Fail(services.ErrTransient, s.Name(), "save characters", "", err)
	}
	return stage.Result{Produced: len(saved)}, nil
}

func (s *CharacterExtraction) HealthCheck(context.Context) stage.Health {
	return analyzerHealth(s.Name(), s.analyzer)
}

func planManuscriptUnit(ctx context.Context, source ManuscriptSource, name jobs.Stage, run stage.Run) ([]stage.Unit, error) {
	if _, _, err := loadManuscript(ctx, source, name, run); err != nil {
		return nil, err
	}
	return []stage.Unit{{RefID: stage.ProjectRef, Target: run.ProjectID, Label: "manuscript"}}, nil
}

func loadManuscript(ctx context.Context, source ManuscriptSource, name jobs.Stage, run stage.Run) (string, string, error) {
	m, err := source.Manuscript(ctx, run.ProjectID)
	if err != nil {
		if errors.Is(err, library.ErrNotFound) {
			return "", "", stage.Fail(services.ErrValidation, name, "load manuscript", "project has no manuscript", err)
		}
		return "", "", stage.Fail(services.ErrTransient, name, "load manuscript", "", err)
	}
	if strings.TrimSpace(m.Text) == "" {
		return "", "", stage.Fail(services.ErrValidation, name, "load manuscript", "manuscript is empty", nil)
	}
	lang := run.Language
	if lang == "" {
		lang = m.Language
	}
	return m.Text, lang, nil
}

func analyzerHealth(name jobs.Stage, analyzer TextAnalyzer) stage.Health {
	if analyzer == nil || !analyzer.Configured() {
		return stage.Unhealthy(string(name), "text analysis model not configured")
	}
	return stage.Healthy(string(name))
}
