package api

import (
	"context"
	"fmt"
	"strings"

	"plotline/internal/jobs"
	"plotline/internal/library"
	"plotline/internal/workflow"
)

// Workflow abstracts the manager operations the Status API needs.
type Workflow interface {
	StartJob(ctx context.Context, req workflow.StartRequest) (*jobs.Job, error)
	Get(ctx context.Context, jobID string) (*jobs.Job, error)
	Cancel(ctx context.Context, jobID string) error
	ListByProject(ctx context.Context, projectID string) ([]*jobs.Job, error)
	Items(ctx context.Context, jobID string, name jobs.Stage) ([]*jobs.Item, error)
	Retry(ctx context.Context, jobID string) (*jobs.Job, error)
	Delete(ctx context.Context, jobID string) error
	Subscribe(ctx context.Context, jobID string) (*workflow.Subscription, error)
	Status(ctx context.Context) workflow.StatusSummary
}

// Library abstracts the read side of project outputs.
type Library interface {
	Characters(ctx context.Context, projectID string) ([]library.Character, error)
	Chapters(ctx context.Context, projectID string) ([]library.Chapter, error)
	Scenes(ctx context.Context, projectID string) ([]library.Scene, error)
	Images(ctx context.Context, projectID string) ([]library.ImageAsset, error)
}

// JobService exposes the Status API operations returning API DTOs.
type JobService struct {
	workflow Workflow
	library  Library
}

// NewJobService constructs a JobService.
func NewJobService(wf Workflow, lib Library) *JobService {
	return &JobService{workflow: wf, library: lib}
}

// Start validates the request and starts a job for projectID.
func (s *JobService) Start(ctx context.Context, projectID string, req StartJobRequest) (Job, error) {
	stages, err := parseStages(req.Stages)
	if err != nil {
		return Job{}, err
	}
	job, err := s.workflow.StartJob(ctx, workflow.StartRequest{
		ProjectID:      projectID,
		ManuscriptText: req.ManuscriptText,
		StylePreset:    req.StylePreset,
		Language:       req.Language,
		Type:           jobs.Type(strings.ToLower(strings.TrimSpace(req.Type))),
		Stages:         stages,
		ImagesPerScene: req.Options.ImagesPerScene,
	})
	if err != nil {
		return Job{}, err
	}
	return FromJob(job), nil
}

// Get returns one job snapshot.
func (s *JobService) Get(ctx context.Context, jobID string) (Job, error) {
	job, err := s.workflow.Get(ctx, jobID)
	if err != nil {
		return Job{}, err
	}
	return FromJob(job), nil
}

// Cancel requests cancellation. Terminal jobs are acknowledged unchanged.
func (s *JobService) Cancel(ctx context.Context, jobID string) error {
	return s.workflow.Cancel(ctx, jobID)
}

// ListByProject returns a project's job history, newest first.
func (s *JobService) ListByProject(ctx context.Context, projectID string) ([]Job, error) {
	list, err := s.workflow.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return FromJobs(list), nil
}

// Items returns a job's item history, optionally for one stage.
func (s *JobService) Items(ctx context.Context, jobID, stageName string) ([]Item, error) {
	var name jobs.Stage
	if strings.TrimSpace(stageName) != "" {
		parsed, err := jobs.ParseStage(stageName)
		if err != nil {
			return nil, &workflow.JobError{Reason: workflow.ErrInvalidRequest, Message: err.Error()}
		}
		name = parsed
	}
	items, err := s.workflow.Items(ctx, jobID, name)
	if err != nil {
		return nil, err
	}
	return FromItems(items), nil
}

// Retry starts a new job with the same inputs as a finished one.
func (s *JobService) Retry(ctx context.Context, jobID string) (Job, error) {
	job, err := s.workflow.Retry(ctx, jobID)
	if err != nil {
		return Job{}, err
	}
	return FromJob(job), nil
}

// Delete removes a terminal job and its items.
func (s *JobService) Delete(ctx context.Context, jobID string) error {
	return s.workflow.Delete(ctx, jobID)
}

// Subscribe opens a snapshot stream for a job.
func (s *JobService) Subscribe(ctx context.Context, jobID string) (*workflow.Subscription, error) {
	return s.workflow.Subscribe(ctx, jobID)
}

// Status returns the workflow summary.
func (s *JobService) Status(ctx context.Context) WorkflowStatus {
	return FromStatusSummary(s.workflow.Status(ctx))
}

// Characters lists a project's characters.
func (s *JobService) Characters(ctx context.Context, projectID string) ([]Character, error) {
	list, err := s.library.Characters(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return FromCharacters(list), nil
}

// Chapters lists a project's chapters in order.
func (s *JobService) Chapters(ctx context.Context, projectID string) ([]Chapter, error) {
	list, err := s.library.Chapters(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return FromChapters(list), nil
}

// Scenes lists a project's scenes in reading order.
func (s *JobService) Scenes(ctx context.Context, projectID string) ([]Scene, error) {
	list, err := s.library.Scenes(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return FromScenes(list), nil
}

// Images lists a project's generated images.
func (s *JobService) Images(ctx context.Context, projectID string) ([]Image, error) {
	list, err := s.library.Images(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return FromImages(list), nil
}

func parseStages(values []string) ([]jobs.Stage, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]jobs.Stage, 0, len(values))
	for _, value := range values {
		name, err := jobs.ParseStage(value)
		if err != nil {
			return nil, &workflow.JobError{Reason: workflow.ErrInvalidRequest, Message: fmt.Sprintf("stages: %v", err)}
		}
		out = append(out, name)
	}
	return out, nil
}
