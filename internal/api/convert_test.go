package api_test

import (
	"testing"
	"time"

	"plotline/internal/api"
	"plotline/internal/jobs"
	"plotline/internal/library"
	"plotline/internal/stage"
	"plotline/internal/workflow"
)

func TestFromJob(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	finished := created.Add(time.Minute)
	job := &jobs.Job{
		ID:             "job-1",
		ProjectID:      "book",
		Type:           jobs.TypeCustom,
		StageSequence:  []jobs.Stage{jobs.StagePrompts, jobs.StageImages},
		Status:         jobs.StatusSucceeded,
		CurrentStage:   jobs.StageImages,
		Progress:       100,
		PartialSuccess: true,
		Options:        jobs.Options{ImagesPerScene: 2, StylePreset: "ink", Language: "en"},
		CreatedAt:      created,
		UpdatedAt:      finished,
		FinishedAt:     &finished,
		Version:        7,
	}

	got := api.FromJob(job)
	if got.Type != "custom" || got.Status != "succeeded" || got.CurrentStage != "images" {
		t.Fatalf("unexpected enums: %+v", got)
	}
	if len(got.Stages) != 2 || got.Stages[0] != "prompts" {
		t.Fatalf("unexpected stages: %v", got.Stages)
	}
	if got.CreatedAt != "2026-03-01T09:00:00.000Z" {
		t.Fatalf("expected UTC timestamp, got %q", got.CreatedAt)
	}
	if got.StartedAt != "" || got.FinishedAt == "" {
		t.Fatalf("unexpected optional timestamps: started=%q finished=%q", got.StartedAt, got.FinishedAt)
	}
	if !got.PartialSuccess || got.Options.ImagesPerScene != 2 || got.Version != 7 {
		t.Fatalf("unexpected fields: %+v", got)
	}
	if !got.Terminal() {
		t.Fatal("succeeded job should be terminal")
	}
	if (api.Job{Status: "running"}).Terminal() {
		t.Fatal("running job should not be terminal")
	}
}

func TestFromJobNil(t *testing.T) {
	if got := api.FromJob(nil); got.ID != "" {
		t.Fatalf("expected zero job, got %+v", got)
	}
}

func TestStageHealthSliceOrdersByPipeline(t *testing.T) {
	health := map[string]stage.Health{
		"images":     {Ready: false, Detail: "no api key"},
		"characters": {Ready: true},
		"zeta":       {Ready: true},
		"alpha":      {Ready: true},
		"scenes":     {Ready: true},
	}
	got := api.StageHealthSlice(health)
	want := []string{"characters", "scenes", "images", "alpha", "zeta"}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Fatalf("position %d: expected %s, got %s", i, name, got[i].Name)
		}
	}
	if got[2].Ready || got[2].Detail != "no api key" {
		t.Fatalf("unexpected images health: %+v", got[2])
	}
	if api.StageHealthSlice(nil) != nil {
		t.Fatal("expected nil for empty health")
	}
}

func TestFromStatusSummary(t *testing.T) {
	got := api.FromStatusSummary(workflow.StatusSummary{
		Running:     true,
		ActiveJobs:  1,
		QueuedJobs:  2,
		LastError:   "boom",
		StageHealth: map[string]stage.Health{"chapters": {Ready: true}},
	})
	if !got.Running || got.ActiveJobs != 1 || got.QueuedJobs != 2 || got.LastError != "boom" || len(got.StageHealth) != 1 {
		t.Fatalf("unexpected status: %+v", got)
	}
}

func TestFromLibraryOutputs(t *testing.T) {
	chapters := api.FromChapters([]library.Chapter{{ID: "c1", Index: 1, Title: "One", Text: "a b  c\nd"}})
	if chapters[0].Words != 4 {
		t.Fatalf("expected 4 words, got %d", chapters[0].Words)
	}
	scenes := api.FromScenes([]library.Scene{{ID: "s1", ChapterID: "c1"}})
	if scenes[0].CharacterIDs == nil {
		t.Fatal("expected empty character id list, not nil")
	}
	images := api.FromImages([]library.ImageAsset{{ID: "i1", SceneID: "s1", Variant: 2, BlobKey: "book/s1-2.png"}})
	if images[0].Variant != 2 || images[0].CreatedAt != "" {
		t.Fatalf("unexpected image: %+v", images[0])
	}
}
