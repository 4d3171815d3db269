package stages

import (
	"context"
	"errors"

	"plotline/internal/jobs"
	"plotline/internal/library"
	"plotline/internal/services"
	"plotline/internal/stage"
)

// SceneSplit fans out one unit per chapter.
type SceneSplit struct {
	library  *library.Store
	analyzer TextAnalyzer
}

// NewSceneSplit constructs the scenes stage.
func NewSceneSplit(lib *library.Store, analyzer TextAnalyzer) *SceneSplit {
	return &SceneSplit{library: lib, analyzer: analyzer}
}

func (s *SceneSplit) Name() jobs.Stage { return jobs.StageScenes }

func (s *SceneSplit) Plan(ctx context.Context, run stage.Run) ([]stage.Unit, error) {
	chapters, err := s.library.Chapters(ctx, run.ProjectID)
	if err != nil {
		return nil, stage.Fail(services.ErrTransient, s.Name(), "plan", "list chapters", err)
	}
	units := make([]stage.Unit, 0, len(chapters))
	for _, ch := range chapters {
		units = append(units, stage.Unit{RefID: ch.ID, Target: ch.ID, Label: ch.Title})
	}
	return units, nil
}

func (s *SceneSplit) Execute(ctx context.Context, run stage.Run, unit stage.Unit) (stage.Result, error) {
	chapter, err := s.library.Chapter(ctx, unit.Target)
	if err != nil {
		return stage.Result{}, libraryError(s.Name(), "load chapter", err)
	}
	sections, err := s.analyzer.SplitScenes(ctx, chapter.Text, run.Language)
	if err != nil {
		return stage.Result{}, err
	}
	if len(sections) == 0 {
		return stage.Result{}, stage.Fail(services.ErrExternalService, s.Name(), "split scenes", "no scenes returned", nil)
	}
	if err := run.Checkpoint(); err != nil {
		return stage.Result{}, err
	}
	drafts := make([]library.SceneDraft, 0, len(sections))
	for _, sec := range sections {
		drafts = append(drafts, library.SceneDraft{Title: sec.Title, Summary: sec.Summary, Text: sec.Text})
	}
	saved, err := s.library.ReplaceScenes(ctx, chapter.ID, run.JobID, drafts)
	if err != nil {
		return stage.Result{}, libraryError(s.Name(), "save scenes", err)
	}
	return stage.Result{Produced: len(saved)}, nil
}

func (s *SceneSplit) HealthCheck(context.Context) stage.Health {
	return analyzerHealth(s.Name(), s.analyzer)
}

func libraryError(name jobs.Stage, operation string, err error) error {
	if errors.Is(err, library.ErrNotFound) {
		return stage.Fail(services.ErrNotFound, name, operation, "", err)
	}
	return stage.Fail(services.ErrTransient, name, operation, "", err)
}
