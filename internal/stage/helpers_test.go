package stage

import (
	"errors"
	"testing"

	"plotline/internal/jobs"
	"plotline/internal/services"
)

func TestVariantRefRoundTrip(t *testing.T) {
	ref := VariantRef("scene-1", 2)
	target, variant, err := ParseVariantRef(ref)
	if err != nil {
		t.Fatalf("ParseVariantRef failed: %v", err)
	}
	if target != "scene-1" || variant != 2 {
		t.Fatalf("unexpected parse result %q %d", target, variant)
	}
	for _, bad := range []string{"scene", "#1", "scene#x", "scene#-1"} {
		if _, _, err := ParseVariantRef(bad); err == nil {
			t.Errorf("ParseVariantRef(%q) expected error", bad)
		}
	}
}

func TestFailKeepsMarker(t *testing.T) {
	err := Fail(services.ErrValidation, jobs.StageChapters, "split", "manuscript is empty", nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation marker, got %v", err)
	}
	if got := services.Details(err); got != "chapters: split: manuscript is empty" {
		t.Fatalf("unexpected details %q", got)
	}
}

func TestRunCheckpoint(t *testing.T) {
	canceled := false
	run := NewRun(&jobs.Job{ID: "j", ProjectID: "p", Options: jobs.Options{ImagesPerScene: 2}}, jobs.StageImages, nil, func() bool { return canceled })
	if err := run.Checkpoint(); err != nil {
		t.Fatalf("unexpected checkpoint error: %v", err)
	}
	canceled = true
	if err := run.Checkpoint(); !errors.Is(err, ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
	if run.Log() == nil || run.ImagesPerScene != 2 {
		t.Fatal("run fields not populated")
	}
	if err := (Run{}).Checkpoint(); err != nil {
		t.Fatalf("nil cancel func should never cancel: %v", err)
	}
}
