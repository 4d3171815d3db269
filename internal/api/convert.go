package api

import (
	"slices"
	"strings"
	"time"

	"plotline/internal/jobs"
	"plotline/internal/library"
	"plotline/internal/stage"
	"plotline/internal/workflow"
)

// FromJob converts a job record to its API representation.
func FromJob(job *jobs.Job) Job {
	if job == nil {
		return Job{}
	}
	stages := make([]string, len(job.StageSequence))
	for i, name := range job.StageSequence {
		stages[i] = string(name)
	}
	return Job{
		ID:              job.ID,
		ProjectID:       job.ProjectID,
		Type:            string(job.Type),
		Stages:          stages,
		Status:          string(job.Status),
		CurrentStage:    string(job.CurrentStage),
		Progress:        job.Progress,
		PartialSuccess:  job.PartialSuccess,
		ErrorMessage:    job.ErrorMessage,
		CancelRequested: job.CancelRequested,
		Options: JobOptions{
			ImagesPerScene: job.Options.ImagesPerScene,
			StylePreset:    job.Options.StylePreset,
			Language:       job.Options.Language,
		},
		CreatedAt:  FormatTime(job.CreatedAt),
		UpdatedAt:  FormatTime(job.UpdatedAt),
		StartedAt:  formatTimePtr(job.StartedAt),
		FinishedAt: formatTimePtr(job.FinishedAt),
		Version:    job.Version,
	}
}

// FromJobs converts a slice of job records.
func FromJobs(list []*jobs.Job) []Job {
	out := make([]Job, 0, len(list))
	for _, job := range list {
		out = append(out, FromJob(job))
	}
	return out
}

// FromItem converts an item record.
func FromItem(item *jobs.Item) Item {
	if item == nil {
		return Item{}
	}
	return Item{
		ID:           item.ID,
		JobID:        item.JobID,
		Stage:        string(item.Stage),
		RefID:        item.RefID,
		Status:       string(item.Status),
		Attempts:     item.Attempts,
		ErrorMessage: item.ErrorMessage,
		CreatedAt:    FormatTime(item.CreatedAt),
		UpdatedAt:    FormatTime(item.UpdatedAt),
		FinishedAt:   formatTimePtr(item.FinishedAt),
	}
}

// FromItems converts a slice of item records.
func FromItems(list []*jobs.Item) []Item {
	out := make([]Item, 0, len(list))
	for _, item := range list {
		out = append(out, FromItem(item))
	}
	return out
}

// FromStatusSummary converts a workflow status summary to API payload.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	return WorkflowStatus{
		Running:     summary.Running,
		ActiveJobs:  summary.ActiveJobs,
		QueuedJobs:  summary.QueuedJobs,
		LastError:   summary.LastError,
		StageHealth: StageHealthSlice(summary.StageHealth),
	}
}

// StageHealthSlice converts a stage health map into a slice in pipeline order.
// Names outside the pipeline sort last, alphabetically.
func StageHealthSlice(health map[string]stage.Health) []StageHealth {
	if len(health) == 0 {
		return nil
	}
	names := make([]string, 0, len(health))
	for name := range health {
		names = append(names, name)
	}
	order := jobs.DefaultSequence()
	rank := func(name string) int {
		if idx := slices.Index(order, jobs.Stage(name)); idx >= 0 {
			return idx
		}
		return len(order)
	}
	slices.SortFunc(names, func(a, b string) int {
		if ra, rb := rank(a), rank(b); ra != rb {
			return ra - rb
		}
		return strings.Compare(a, b)
	})

	out := make([]StageHealth, 0, len(names))
	for _, name := range names {
		h := health[name]
		out = append(out, StageHealth{Name: name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FromCharacters converts library characters.
func FromCharacters(list []library.Character) []Character {
	out := make([]Character, 0, len(list))
	for _, ch := range list {
		out = append(out, Character{ID: ch.ID, Name: ch.Name, Description: ch.Description, Aliases: ch.Aliases})
	}
	return out
}

// FromChapters converts library chapters.
func FromChapters(list []library.Chapter) []Chapter {
	out := make([]Chapter, 0, len(list))
	for _, ch := range list {
		out = append(out, Chapter{ID: ch.ID, Index: ch.Index, Title: ch.Title, Words: len(strings.Fields(ch.Text))})
	}
	return out
}

// FromScenes converts library scenes.
func FromScenes(list []library.Scene) []Scene {
	out := make([]Scene, 0, len(list))
	for _, sc := range list {
		ids := sc.CharacterIDs
		if ids == nil {
			ids = []string{}
		}
		out = append(out, Scene{
			ID:           sc.ID,
			ChapterID:    sc.ChapterID,
			ChapterIndex: sc.ChapterIndex,
			Index:        sc.Index,
			Title:        sc.Title,
			Summary:      sc.Summary,
			Prompt:       sc.Prompt,
			CharacterIDs: ids,
		})
	}
	return out
}

// FromImages converts library image assets.
func FromImages(list []library.ImageAsset) []Image {
	out := make([]Image, 0, len(list))
	for _, img := range list {
		out = append(out, Image{
			ID:            img.ID,
			SceneID:       img.SceneID,
			Variant:       img.Variant,
			Prompt:        img.Prompt,
			StylePreset:   img.StylePreset,
			BlobKey:       img.BlobKey,
			MimeType:      img.MimeType,
			SizeBytes:     img.SizeBytes,
			Model:         img.Model,
			RevisedPrompt: img.RevisedPrompt,
			CreatedAt:     FormatTime(img.CreatedAt),
		})
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatTime(*t)
}
