package stages_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"plotline/internal/blob"
	"plotline/internal/jobs"
	"plotline/internal/library"
	"plotline/internal/services"
	"plotline/internal/stage"
	"plotline/internal/stages"
	"plotline/internal/testsupport"
)

type fixture struct {
	lib      *library.Store
	analyzer *testsupport.StubAnalyzer
	images   *testsupport.StubImages
	blobs    blob.LocalFS
	all      []stage.Stage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	_, lib := testsupport.MustOpenStores(t, cfg)
	f := &fixture{
		lib:      lib,
		analyzer: testsupport.NewStubAnalyzer(2, 3, 3),
		images:   &testsupport.StubImages{},
		blobs:    blob.LocalFS{Root: cfg.ImageDir()},
	}
	f.all = []stage.Stage{
		stages.NewCharacterExtraction(lib, lib, f.analyzer),
		stages.NewChapterSplit(lib, lib, f.analyzer),
		stages.NewSceneSplit(lib, f.analyzer),
		stages.NewCharacterLinking(lib),
		stages.NewPromptGeneration(lib, f.analyzer),
		stages.NewImageGeneration(lib, f.images, f.blobs),
	}
	return f
}

func newRun(name jobs.Stage, imagesPerScene int) stage.Run {
	job := &jobs.Job{ID: "job-1", ProjectID: "p1", Options: jobs.Options{ImagesPerScene: imagesPerScene, StylePreset: "ink", Language: "en"}}
	return stage.NewRun(job, name, nil, nil)
}

func runStage(t *testing.T, st stage.Stage, run stage.Run) []stage.Unit {
	t.Helper()
	ctx := context.Background()
	units, err := st.Plan(ctx, run)
	if err != nil {
		t.Fatalf("%s Plan failed: %v", st.Name(), err)
	}
	for _, unit := range units {
		if _, err := st.Execute(ctx, run, unit); err != nil {
			t.Fatalf("%s Execute(%s) failed: %v", st.Name(), unit.RefID, err)
		}
	}
	return units
}

func TestFullSequenceProducesLibrary(t *testing.T) {
	f := newFixture(t)
	testsupport.SaveManuscript(t, f.lib, "p1", "Once upon a time.")
	ctx := context.Background()

	planned := make(map[jobs.Stage]int)
	for _, st := range f.all {
		planned[st.Name()] = len(runStage(t, st, newRun(st.Name(), 2)))
	}
	want := map[jobs.Stage]int{
		jobs.StageCharacters: 1,
		jobs.StageChapters:   1,
		jobs.StageScenes:     3,
		jobs.StageLinking:    9,
		jobs.StagePrompts:    9,
		jobs.StageImages:     18,
	}
	for name, n := range want {
		if planned[name] != n {
			t.Errorf("stage %s planned %d units, want %d", name, planned[name], n)
		}
	}

	chars, err := f.lib.Characters(ctx, "p1")
	if err != nil || len(chars) != 2 {
		t.Fatalf("characters = %d, %v", len(chars), err)
	}
	scenes, err := f.lib.Scenes(ctx, "p1")
	if err != nil || len(scenes) != 9 {
		t.Fatalf("scenes = %d, %v", len(scenes), err)
	}
	for _, sc := range scenes {
		if len(sc.CharacterIDs) != 1 || sc.CharacterIDs[0] != library.CharacterID("p1", "mira") {
			t.Fatalf("scene %s links %v", sc.Title, sc.CharacterIDs)
		}
		if sc.Prompt == "" {
			t.Fatalf("scene %s has no prompt", sc.Title)
		}
	}
	images, err := f.lib.Images(ctx, "p1")
	if err != nil || len(images) != 18 {
		t.Fatalf("images = %d, %v", len(images), err)
	}
	path, err := f.blobs.Path(images[0].BlobKey)
	if err != nil {
		t.Fatalf("blob path: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("blob missing: %v", err)
	}
	if filepath.Ext(path) != ".png" || images[0].MimeType != "image/png" {
		t.Fatalf("unexpected blob %s (%s)", path, images[0].MimeType)
	}

	// Re-running a unit leaves the same rows.
	runStage(t, f.all[2], newRun(jobs.StageScenes, 1))
	again, err := f.lib.Scenes(ctx, "p1")
	if err != nil || len(again) != 9 || again[0].ID != scenes[0].ID {
		t.Fatalf("rerun changed scenes: %d, %v", len(again), err)
	}
}

func TestPlanRequiresManuscript(t *testing.T) {
	f := newFixture(t)
	_, err := f.all[0].Plan(context.Background(), newRun(jobs.StageCharacters, 1))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	testsupport.SaveManuscript(t, f.lib, "p1", "   ")
	_, err = f.all[1].Plan(context.Background(), newRun(jobs.StageChapters, 1))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for blank manuscript, got %v", err)
	}
}

func TestExecuteHonoursCheckpoint(t *testing.T) {
	f := newFixture(t)
	testsupport.SaveManuscript(t, f.lib, "p1", "text")
	run := newRun(jobs.StageCharacters, 1)
	run.Canceled = func() bool { return true }

	units, err := f.all[0].Plan(context.Background(), run)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if _, err := f.all[0].Execute(context.Background(), run, units[0]); !errors.Is(err, stage.ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
	chars, _ := f.lib.Characters(context.Background(), "p1")
	if len(chars) != 0 {
		t.Fatalf("canceled unit should not persist output, got %d characters", len(chars))
	}
}

func TestEmptySplitIsAnError(t *testing.T) {
	f := newFixture(t)
	testsupport.SaveManuscript(t, f.lib, "p1", "text")
	f.analyzer.ChapterCount = 0
	run := newRun(jobs.StageChapters, 1)
	units, err := f.all[1].Plan(context.Background(), run)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	_, err = f.all[1].Execute(context.Background(), run, units[0])
	if !errors.Is(err, services.ErrExternalService) || !services.Retryable(err) {
		t.Fatalf("expected retryable external error, got %v", err)
	}
}

func TestImageFallsBackToSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chapters, err := f.lib.ReplaceChapters(ctx, "p1", "job", []library.ChapterDraft{{Title: "One", Text: "a"}})
	if err != nil {
		t.Fatalf("ReplaceChapters failed: %v", err)
	}
	if _, err := f.lib.ReplaceScenes(ctx, chapters[0].ID, "job", []library.SceneDraft{
		{Title: "Harbour", Summary: "A quiet harbour"}, {Text: "no title or summary"},
	}); err != nil {
		t.Fatalf("ReplaceScenes failed: %v", err)
	}
	var prompts []string
	images := &testsupport.StubImages{}
	st := stages.NewImageGeneration(f.lib, images, f.blobs)
	run := newRun(jobs.StageImages, 1)
	units, err := st.Plan(ctx, run)
	if err != nil || len(units) != 2 {
		t.Fatalf("Plan = %d, %v", len(units), err)
	}
	if _, err := st.Execute(ctx, run, units[0]); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	got, _ := f.lib.Images(ctx, "p1")
	for _, img := range got {
		prompts = append(prompts, img.Prompt)
	}
	if len(prompts) != 1 || prompts[0] != "A quiet harbour. Style: ink." {
		t.Fatalf("unexpected prompts %v", prompts)
	}
	if _, err := st.Execute(ctx, run, units[1]); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHealthChecks(t *testing.T) {
	f := newFixture(t)
	for _, st := range f.all {
		if h := st.HealthCheck(context.Background()); !h.Ready {
			t.Fatalf("%s unexpectedly unhealthy: %s", st.Name(), h.Detail)
		}
	}
	f.analyzer.Unconfigured = true
	f.images.Unconfigured = true
	for _, st := range f.all {
		h := st.HealthCheck(context.Background())
		if st.Name() == jobs.StageLinking {
			if !h.Ready {
				t.Fatal("linking needs no collaborator")
			}
			continue
		}
		if h.Ready {
			t.Fatalf("%s should report unconfigured collaborator", st.Name())
		}
	}
}

func TestMatchCharacters(t *testing.T) {
	chars := []library.Character{
		{ID: "ada", Name: "Ada Lovelace", Aliases: []string{"the Countess"}},
		{ID: "bo", Name: "Bo"},
		{ID: "cy", Name: "Cyrus Vance"},
	}
	tests := []struct {
		text string
		want []string
	}{
		{"Ada smiled.", []string{"ada"}},
		{"THE COUNTESS arrived with Bo.", []string{"ada", "bo"}},
		{"A bold move by Cyrus.", []string{"cy"}},
		{"Adamant and bony.", nil},
		{"", nil},
	}
	matcher := stages.NewCharacterMatcher(chars)
	for _, tt := range tests {
		if got := stages.MatchCharacters(tt.text, chars); !slices.Equal(got, tt.want) {
			t.Errorf("MatchCharacters(%q) = %v, want %v", tt.text, got, tt.want)
		}
		if got := matcher.Match(tt.text); !slices.Equal(got, tt.want) {
			t.Errorf("Match(%q) with shared matcher = %v, want %v", tt.text, got, tt.want)
		}
	}
	if got := stages.NewCharacterMatcher([]library.Character{{ID: "blank", Name: "  "}}).Match("Anyone"); got != nil {
		t.Fatalf("expected characters without terms to never match, got %v", got)
	}
}
