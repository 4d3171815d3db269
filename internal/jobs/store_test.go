package jobs_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"plotline/internal/database"
	"plotline/internal/jobs"
)

func newTestStore(t *testing.T) *jobs.Store {
	t.Helper()
	db, err := database.OpenPath(filepath.Join(t.TempDir(), "plotline.db"))
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return jobs.NewStore(db)
}

func newJob(projectID string) *jobs.Job {
	return &jobs.Job{
		ProjectID:     projectID,
		Type:          jobs.TypeFullBook,
		StageSequence: jobs.DefaultSequence(),
		Options:       jobs.Options{ImagesPerScene: 1, StylePreset: "ink", Language: "en"},
	}
}

func TestCreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := newJob("p1")
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if job.ID == "" || job.Version != 1 || job.Status != jobs.StatusQueued {
		t.Fatalf("unexpected created job: %+v", job)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ProjectID != "p1" || len(got.StageSequence) != 6 || got.StageSequence[5] != jobs.StageImages {
		t.Fatalf("unexpected job: %+v", got)
	}
	if got.Options.StylePreset != "ink" || got.Options.ImagesPerScene != 1 {
		t.Fatalf("options not persisted: %+v", got.Options)
	}
	if got.CurrentStage != "" || got.StartedAt != nil {
		t.Fatalf("fresh job should have no stage or start time: %+v", got)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateRejectsSecondActiveJob(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := newJob("p1")
	if err := store.Create(ctx, first); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Create(ctx, newJob("p1")); !errors.Is(err, jobs.ErrActiveJobExists) {
		t.Fatalf("expected ErrActiveJobExists, got %v", err)
	}
	if err := store.Create(ctx, newJob("p2")); err != nil {
		t.Fatalf("other project should be free: %v", err)
	}

	first.Status = jobs.StatusCanceled
	if err := store.Update(ctx, first); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := store.Create(ctx, newJob("p1")); err != nil {
		t.Fatalf("project should be free after terminal job: %v", err)
	}
}

func TestCreateValidatesSequence(t *testing.T) {
	store := newTestStore(t)
	job := newJob("p1")
	job.StageSequence = []jobs.Stage{jobs.StageScenes, jobs.StageChapters}
	if err := store.Create(context.Background(), job); err == nil {
		t.Fatal("expected out-of-order sequence to be rejected")
	}
}

func TestUpdateRejectsStaleVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := newJob("p1")
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	stale := job.Clone()

	job.Status = jobs.StatusRunning
	job.CurrentStage = jobs.StageCharacters
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if job.Version != 2 {
		t.Fatalf("expected version 2, got %d", job.Version)
	}

	stale.Progress = 50
	if err := store.Update(ctx, stale); !errors.Is(err, jobs.ErrStaleVersion) {
		t.Fatalf("expected ErrStaleVersion, got %v", err)
	}

	missing := newJob("p9")
	missing.ID = "nope"
	missing.Version = 1
	if err := store.Update(ctx, missing); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMutateAppliesAndSkips(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := newJob("p1")
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	updated, err := store.Mutate(ctx, job.ID, func(j *jobs.Job) error {
		j.Status = jobs.StatusRunning
		j.Progress = 10
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	if updated.Version != 2 || updated.Progress != 10 {
		t.Fatalf("unexpected mutated job: %+v", updated)
	}

	current, err := store.Mutate(ctx, job.ID, func(j *jobs.Job) error {
		return jobs.ErrNoChange
	})
	if !errors.Is(err, jobs.ErrNoChange) {
		t.Fatalf("expected ErrNoChange, got %v", err)
	}
	if current == nil || current.Version != 2 {
		t.Fatalf("expected current job at version 2, got %+v", current)
	}
}

func TestMutateRereadsAfterConcurrentWrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := newJob("p1")
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	calls := 0
	updated, err := store.Mutate(ctx, job.ID, func(j *jobs.Job) error {
		calls++
		if calls == 1 {
			// Another writer cancels the job between read and write.
			other, err := store.Get(ctx, job.ID)
			if err != nil {
				return err
			}
			other.CancelRequested = true
			if err := store.Update(ctx, other); err != nil {
				return err
			}
		}
		j.Progress = 40
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 callback invocations, got %d", calls)
	}
	if !updated.CancelRequested || updated.Progress != 40 || updated.Version != 3 {
		t.Fatalf("expected merged write, got %+v", updated)
	}
}

func TestListByProjectNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		job := newJob("p1")
		if err := store.Create(ctx, job); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		job.Status = jobs.StatusFailed
		if err := store.Update(ctx, job); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		ids = append(ids, job.ID)
		time.Sleep(2 * time.Millisecond)
	}
	if err := store.Create(ctx, newJob("p2")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	list, err := store.ListByProject(ctx, "p1")
	if err != nil {
		t.Fatalf("ListByProject failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(list))
	}
	for i, job := range list {
		if job.ID != ids[len(ids)-1-i] {
			t.Fatalf("position %d: expected %s, got %s", i, ids[len(ids)-1-i], job.ID)
		}
	}

	active, err := store.ListByStatus(ctx, jobs.StatusQueued, jobs.StatusRunning)
	if err != nil {
		t.Fatalf("ListByStatus failed: %v", err)
	}
	if len(active) != 1 || active[0].ProjectID != "p2" {
		t.Fatalf("unexpected active jobs: %+v", active)
	}
}

func TestDeleteOnlyTerminalJobs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := newJob("p1")
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := store.StartItem(ctx, job.ID, jobs.StageCharacters, "manuscript"); err != nil {
		t.Fatalf("StartItem failed: %v", err)
	}
	if err := store.Delete(ctx, job.ID); !errors.Is(err, jobs.ErrJobActive) {
		t.Fatalf("expected ErrJobActive, got %v", err)
	}

	job.Status = jobs.StatusSucceeded
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := store.Delete(ctx, job.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, job.ID); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected deleted job to be gone, got %v", err)
	}
	items, err := store.ListItems(ctx, job.ID, "")
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected items to cascade, got %d", len(items))
	}
}

func TestItemsAreAppendOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := newJob("p1")
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	item, err := store.StartItem(ctx, job.ID, jobs.StageScenes, "chapter-1")
	if err != nil {
		t.Fatalf("StartItem failed: %v", err)
	}
	if item.ID != jobs.ItemID(job.ID, jobs.StageScenes, "chapter-1") {
		t.Fatalf("item id is not deterministic: %s", item.ID)
	}
	if _, err := store.StartItem(ctx, job.ID, jobs.StageScenes, "chapter-1"); !errors.Is(err, jobs.ErrItemExists) {
		t.Fatalf("expected ErrItemExists, got %v", err)
	}

	if err := store.RecordAttempt(ctx, item.ID, 2); err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}
	if err := store.FinishItem(ctx, item.ID, jobs.ItemFailed, 3, "boom"); err != nil {
		t.Fatalf("FinishItem failed: %v", err)
	}
	if err := store.FinishItem(ctx, item.ID, jobs.ItemSucceeded, 4, ""); !errors.Is(err, jobs.ErrItemFinalized) {
		t.Fatalf("expected ErrItemFinalized, got %v", err)
	}
	if err := store.FinishItem(ctx, item.ID, jobs.ItemRunning, 4, ""); err == nil {
		t.Fatal("expected non-terminal finish to be rejected")
	}

	got, err := store.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if got.Status != jobs.ItemFailed || got.Attempts != 3 || got.ErrorMessage != "boom" || got.FinishedAt == nil {
		t.Fatalf("unexpected item: %+v", got)
	}
}

func TestCountItemsAndFailOpen(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := newJob("p1")
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	refs := []string{"s1", "s2", "s3", "s4"}
	for i, ref := range refs {
		item, err := store.StartItem(ctx, job.ID, jobs.StageImages, ref)
		if err != nil {
			t.Fatalf("StartItem failed: %v", err)
		}
		switch i {
		case 0, 1:
			err = store.FinishItem(ctx, item.ID, jobs.ItemSucceeded, 1, "")
		case 2:
			err = store.FinishItem(ctx, item.ID, jobs.ItemFailed, 3, "quota")
		}
		if err != nil {
			t.Fatalf("FinishItem failed: %v", err)
		}
	}

	counts, err := store.CountItems(ctx, job.ID)
	if err != nil {
		t.Fatalf("CountItems failed: %v", err)
	}
	images := counts[jobs.StageImages]
	if images.Total != 4 || images.Succeeded != 2 || images.Failed != 1 || images.Running != 1 {
		t.Fatalf("unexpected counts: %+v", images)
	}
	if images.Settled() != 3 {
		t.Fatalf("expected 3 settled, got %d", images.Settled())
	}

	n, err := store.FailOpenItems(ctx, job.ID, "interrupted")
	if err != nil {
		t.Fatalf("FailOpenItems failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 open item, got %d", n)
	}
	items, err := store.ListItems(ctx, job.ID, jobs.StageImages)
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if len(items) != 4 || items[3].Status != jobs.ItemFailed || items[3].ErrorMessage != "interrupted" {
		t.Fatalf("unexpected items after fail-open: %+v", items[3])
	}
}
