package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"plotline/internal/jobs"
	"plotline/internal/language"
	"plotline/internal/library"
	"plotline/internal/logging"
)

// StartRequest carries the inputs of a start call.
type StartRequest struct {
	ProjectID      string
	ManuscriptText string
	StylePreset    string
	Language       string
	// Type defaults to full_book, or custom when Stages is set.
	Type   jobs.Type
	Stages []jobs.Stage
	// ImagesPerScene of zero selects the configured default.
	ImagesPerScene int
}

// StartJob validates req, persists a queued job and schedules it. A second
// start for a project that still has an active job fails with ErrProjectBusy.
func (m *Manager) StartJob(ctx context.Context, req StartRequest) (*jobs.Job, error) {
	return m.startJob(ctx, req, false)
}

// startJob runs a start. reuseManuscript lets a blank request fall back to the
// project's stored manuscript; only Retry sets it.
func (m *Manager) startJob(ctx context.Context, req StartRequest, reuseManuscript bool) (*jobs.Job, error) {
	m.mu.RLock()
	running := m.running
	m.mu.RUnlock()
	if !running {
		return nil, &JobError{Reason: ErrNotRunning}
	}

	job, err := m.buildJob(req)
	if err != nil {
		return nil, err
	}
	if !m.locks.tryAcquire(job.ProjectID, job.ID) {
		return nil, projectBusy(job.ProjectID)
	}
	handedOff := false
	defer func() {
		if !handedOff {
			m.locks.release(job.ProjectID, job.ID)
		}
	}()

	if err := m.prepareManuscript(ctx, job, req.ManuscriptText, reuseManuscript); err != nil {
		return nil, err
	}

	flag := m.cancels.register(job.ID)
	if err := m.store.Create(ctx, job); err != nil {
		m.cancels.remove(job.ID)
		if errors.Is(err, jobs.ErrActiveJobExists) {
			return nil, projectBusy(job.ProjectID)
		}
		return nil, fmt.Errorf("create job: %w", err)
	}

	m.jobLogger(job).Info("job queued",
		logging.String(logging.FieldEventType, "job_queued"),
		logging.String("type", string(job.Type)),
		logging.String("stages", stageList(job.StageSequence)),
	)
	m.publish(job)

	if !m.dispatch(job.Clone(), flag) {
		m.cancels.remove(job.ID)
		m.finish(ctx, m.jobLogger(job), job.ID, errDaemonStopped)
		return nil, &JobError{Reason: ErrNotRunning}
	}
	handedOff = true
	return job.Clone(), nil
}

// dispatch hands job to a background goroutine unless the manager stopped
// in the meantime.
func (m *Manager) dispatch(job *jobs.Job, flag *cancelFlag) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.running {
		return false
	}
	m.wg.Add(1)
	go m.execute(m.runCtx, job, flag)
	return true
}

// Retry starts a new job for the same project, sequence and options as a
// finished job. The new job restarts from the first stage using the stored
// manuscript.
func (m *Manager) Retry(ctx context.Context, jobID string) (*jobs.Job, error) {
	prev, err := m.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !prev.Status.Terminal() {
		return nil, invalidRequest("job %s is still %s", prev.ID, prev.Status)
	}
	req := StartRequest{
		ProjectID:      prev.ProjectID,
		StylePreset:    prev.Options.StylePreset,
		Language:       prev.Options.Language,
		Type:           prev.Type,
		ImagesPerScene: prev.Options.ImagesPerScene,
	}
	if prev.Type == jobs.TypeCustom {
		req.Stages = prev.StageSequence
	}
	return m.startJob(ctx, req, true)
}

func (m *Manager) buildJob(req StartRequest) (*jobs.Job, error) {
	projectID := strings.TrimSpace(req.ProjectID)
	if projectID == "" {
		return nil, invalidRequest("project id is required")
	}

	jobType := req.Type
	var sequence []jobs.Stage
	switch jobType {
	case "":
		if len(req.Stages) > 0 {
			jobType = jobs.TypeCustom
		} else {
			jobType = jobs.TypeFullBook
		}
	case jobs.TypeFullBook, jobs.TypeCustom:
	default:
		return nil, invalidRequest("unknown job type %q", req.Type)
	}
	switch jobType {
	case jobs.TypeFullBook:
		if len(req.Stages) > 0 {
			return nil, invalidRequest("full_book jobs run the fixed stage sequence; use type custom to select stages")
		}
		sequence = jobs.DefaultSequence()
	case jobs.TypeCustom:
		if err := jobs.ValidateSequence(req.Stages); err != nil {
			return nil, invalidRequest("stages: %v", err)
		}
		sequence = append([]jobs.Stage(nil), req.Stages...)
	}
	for _, name := range sequence {
		if _, ok := m.stageFor(name); !ok {
			return nil, invalidRequest("stage %s is not configured", name)
		}
	}

	images := req.ImagesPerScene
	if images == 0 {
		images = m.cfg.Pipeline.ImagesPerScene
	}
	if images < 1 || images > m.cfg.Pipeline.MaxImagesPerScene {
		return nil, invalidRequest("imagesPerScene must be between 1 and %d", m.cfg.Pipeline.MaxImagesPerScene)
	}

	lang, err := language.Normalize(req.Language, m.cfg.Pipeline.DefaultLanguage)
	if err != nil {
		return nil, invalidRequest("language: %v", err)
	}

	style := strings.TrimSpace(req.StylePreset)
	if style == "" {
		style = m.cfg.Images.DefaultStylePreset
	}

	return &jobs.Job{
		ID:            uuid.NewString(),
		ProjectID:     projectID,
		Type:          jobType,
		StageSequence: sequence,
		Status:        jobs.StatusQueued,
		Options: jobs.Options{
			ImagesPerScene: images,
			StylePreset:    style,
			Language:       lang,
		},
	}, nil
}

// prepareManuscript stores supplied text. Blank text is rejected when the
// sequence reads the manuscript, unless reuse allows the stored copy.
func (m *Manager) prepareManuscript(ctx context.Context, job *jobs.Job, text string, reuse bool) error {
	if strings.TrimSpace(text) != "" {
		if err := m.library.SaveManuscript(ctx, job.ProjectID, text, job.Options.Language); err != nil {
			return fmt.Errorf("save manuscript: %w", err)
		}
		return nil
	}
	if !readsManuscript(job.StageSequence) {
		return nil
	}
	if !reuse {
		return invalidRequest("manuscript text is required")
	}
	if _, err := m.library.Manuscript(ctx, job.ProjectID); err != nil {
		if errors.Is(err, library.ErrNotFound) {
			return invalidRequest("manuscript text is required")
		}
		return fmt.Errorf("load manuscript: %w", err)
	}
	return nil
}

func readsManuscript(sequence []jobs.Stage) bool {
	for _, name := range sequence {
		if name == jobs.StageCharacters || name == jobs.StageChapters {
			return true
		}
	}
	return false
}

func stageList(sequence []jobs.Stage) string {
	parts := make([]string, len(sequence))
	for i, name := range sequence {
		parts[i] = string(name)
	}
	return strings.Join(parts, ",")
}
