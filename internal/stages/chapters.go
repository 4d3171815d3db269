package stages

import (
	"context"

	"plotline/internal/jobs"
	"plotline/internal/library"
	"plotline/internal/services"
	"plotline/internal/stage"
)

// ChapterSplit divides the manuscript into ordered chapters in one unit.
type ChapterSplit struct {
	library    *library.Store
	manuscript ManuscriptSource
	analyzer   TextAnalyzer
}

// NewChapterSplit constructs the chapters stage.
func NewChapterSplit(lib *library.Store, source ManuscriptSource, analyzer TextAnalyzer) *ChapterSplit {
	return &ChapterSplit{library: lib, manuscript: source, analyzer: analyzer}
}

func (s *ChapterSplit) Name() jobs.Stage { return jobs.StageChapters }

func (s *ChapterSplit) Plan(ctx context.Context, run stage.Run) ([]stage.Unit, error) {
	return planManuscriptUnit(ctx, s.manuscript, s.Name(), run)
}

func (s *ChapterSplit) Execute(ctx context.Context, run stage.Run, unit stage.Unit) (stage.Result, error) {
	text, lang, err := loadManuscript(ctx, s.manuscript, s.Name(), run)
	if err != nil {
		return stage.Result{}, err
	}
	sections, err := s.analyzer.SplitChapters(ctx, text, lang)
	if err != nil {
		return stage.Result{}, err
	}
	if len(sections) == 0 {
		return stage.Result{}, stage.Fail(services.ErrExternalService, s.Name(), "split chapters", "no chapters returned", nil)
	}
	if err := run.Checkpoint(); err != nil {
		return stage.Result{}, err
	}
	drafts := make([]library.ChapterDraft, 0, len(sections))
	for _, sec := range sections {
		drafts = append(drafts, library.ChapterDraft{Title: sec.Title, Text: sec.Text})
	}
	saved, err := s.library.ReplaceChapters(ctx, run.ProjectID, run.JobID, drafts)
	if err != nil {
		return stage.Result{}, stage.Fail(services.ErrTransient, s.Name(), "save chapters", "", err)
	}
	return stage.Result{Produced: len(saved)}, nil
}

func (s *ChapterSplit) HealthCheck(context.Context) stage.Health {
	return analyzerHealth(s.Name(), s.analyzer)
}
