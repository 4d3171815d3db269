package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"plotline/internal/database"
)

const maxMutateAttempts = 8

const jobColumns = "id, project_id, type, stage_sequence, status, current_stage, progress, partial_success, error_message, style_preset, language, images_per_scene, cancel_requested, created_at, updated_at, started_at, finished_at, version"

// Store persists jobs and their items.
type Store struct {
	db  *database.DB
	now func() time.Time
}

// NewStore wraps an open database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a new queued job. ID and timestamps are assigned when blank.
func (s *Store) Create(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if job.ProjectID == "" {
		return errors.New("job project id is required")
	}
	if err := ValidateSequence(job.StageSequence); err != nil {
		return err
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Type == "" {
		job.Type = TypeFullBook
	}
	if job.Status == "" {
		job.Status = StatusQueued
	}
	now := s.now()
	job.CreatedAt = now
	job.UpdatedAt = now
	job.Version = 1

	_, err := s.db.Exec(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.ProjectID,
		job.Type,
		joinStages(job.StageSequence),
		job.Status,
		database.NullableString(string(job.CurrentStage)),
		job.Progress,
		database.BoolToInt(job.PartialSuccess),
		database.NullableString(job.ErrorMessage),
		job.Options.StylePreset,
		job.Options.Language,
		job.Options.ImagesPerScene,
		database.BoolToInt(job.CancelRequested),
		database.FormatTime(job.CreatedAt),
		database.FormatTime(job.UpdatedAt),
		database.NullableTime(job.StartedAt),
		database.NullableTime(job.FinishedAt),
		job.Version,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("create job for project %s: %w", job.ProjectID, ErrActiveJobExists)
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// Get returns the job with id or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListByProject returns every job for a project, newest first.
func (s *Store) ListByProject(ctx context.Context, projectID string) ([]*Job, error) {
	return s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE project_id = ? ORDER BY created_at DESC, rowid DESC`,
		projectID)
}

// ListByStatus returns jobs in any of the supplied statuses, oldest first.
func (s *Store) ListByStatus(ctx context.Context, statuses ...Status) ([]*Job, error) {
	if len(statuses) == 0 {
		return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at, rowid`)
	}
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	return s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status IN (`+database.Placeholders(len(statuses))+`) ORDER BY created_at, rowid`,
		args...)
}

// Update writes job if its Version still matches the stored row. On success the
// job's Version and UpdatedAt reflect the new row.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	updatedAt := s.now()
	res, err := s.db.Exec(ctx,
		`UPDATE jobs
         SET status = ?, current_stage = ?, progress = ?, partial_success = ?, error_message = ?,
             cancel_requested = ?, updated_at = ?, started_at = ?, finished_at = ?, version = version + 1
         WHERE id = ? AND version = ?`,
		job.Status,
		database.NullableString(string(job.CurrentStage)),
		job.Progress,
		database.BoolToInt(job.PartialSuccess),
		database.NullableString(job.ErrorMessage),
		database.BoolToInt(job.CancelRequested),
		database.FormatTime(updatedAt),
		database.NullableTime(job.StartedAt),
		database.NullableTime(job.FinishedAt),
		job.ID,
		job.Version,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.Get(ctx, job.ID); errors.Is(getErr, ErrNotFound) {
			return getErr
		}
		return fmt.Errorf("update job %s at version %d: %w", job.ID, job.Version, ErrStaleVersion)
	}
	job.Version++
	job.UpdatedAt = updatedAt
	return nil
}

// Mutate re-reads the job, applies fn to the fresh copy and writes it back,
// retrying when another writer bumped the version in between. When fn returns
// ErrNoChange the current job is returned together with ErrNoChange and nothing
// is written.
func (s *Store) Mutate(ctx context.Context, id string, fn func(*Job) error) (*Job, error) {
	var lastErr error
	for attempt := 0; attempt < maxMutateAttempts; attempt++ {
		job, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(job); err != nil {
			return job, err
		}
		err = s.Update(ctx, job)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, ErrStaleVersion) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("mutate job %s: gave up after %d attempts: %w", id, maxMutateAttempts, lastErr)
}

// Delete removes a terminal job and its items. Project library rows are not
// touched.
func (s *Store) Delete(ctx context.Context, id string) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !job.Status.Terminal() {
		return fmt.Errorf("delete job %s (%s): %w", id, job.Status, ErrJobActive)
	}
	res, err := s.db.Exec(ctx, `DELETE FROM jobs WHERE id = ? AND version = ?`, id, job.Version)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("delete job %s: %w", id, ErrStaleVersion)
	}
	return nil
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*Job, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job             Job
		sequence        string
		currentStage    sql.NullString
		partialSuccess  int
		errorMessage    sql.NullString
		cancelRequested int
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
		startedRaw      sql.NullString
		finishedRaw     sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&job.ProjectID,
		&job.Type,
		&sequence,
		&job.Status,
		&currentStage,
		&job.Progress,
		&partialSuccess,
		&errorMessage,
		&job.Options.StylePreset,
		&job.Options.Language,
		&job.Options.ImagesPerScene,
		&cancelRequested,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&finishedRaw,
		&job.Version,
	); err != nil {
		return nil, err
	}
	job.StageSequence = splitStages(sequence)
	job.CurrentStage = Stage(currentStage.String)
	job.PartialSuccess = partialSuccess != 0
	job.ErrorMessage = errorMessage.String
	job.CancelRequested = cancelRequested != 0
	job.CreatedAt = database.ParseTime(createdRaw)
	job.UpdatedAt = database.ParseTime(updatedRaw)
	job.StartedAt = database.ParseTimePtr(startedRaw)
	job.FinishedAt = database.ParseTimePtr(finishedRaw)
	return &job, nil
}
