package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"plotline/internal/database"
)

const itemColumns = "id, job_id, stage, ref_id, status, attempts, error_message, created_at, updated_at, finished_at"

var itemNamespace = uuid.MustParse("8c0f7f1e-5a5e-4d0b-9d3c-2b8a2f6c1e47")

// ItemID derives the deterministic identifier for a job/stage/ref triple.
func ItemID(jobID string, stage Stage, refID string) string {
	return uuid.NewSHA1(itemNamespace, []byte(jobID+"/"+string(stage)+"/"+refID)).String()
}

// StartItem records that a unit has been dispatched. Each (job, stage, ref)
// may be started once.
func (s *Store) StartItem(ctx context.Context, jobID string, stage Stage, refID string) (*Item, error) {
	now := s.now()
	item := &Item{
		ID:        ItemID(jobID, stage, refID),
		JobID:     jobID,
		Stage:     stage,
		RefID:     refID,
		Status:    ItemRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO job_items (`+itemColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.JobID,
		item.Stage,
		item.RefID,
		item.Status,
		item.Attempts,
		nil,
		database.FormatTime(now),
		database.FormatTime(now),
		nil,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("start item %s/%s: %w", stage, refID, ErrItemExists)
		}
		return nil, fmt.Errorf("start item: %w", err)
	}
	return item, nil
}

// RecordAttempt stores the attempt counter of an unfinished item.
func (s *Store) RecordAttempt(ctx context.Context, itemID string, attempts int) error {
	_, err := s.db.Exec(ctx,
		`UPDATE job_items SET attempts = ?, updated_at = ? WHERE id = ? AND status IN ('pending', 'running')`,
		attempts, database.FormatTime(s.now()), itemID)
	if err != nil {
		return fmt.Errorf("record item attempt: %w", err)
	}
	return nil
}

// FinishItem finalizes an item. A finalized item is never written again.
func (s *Store) FinishItem(ctx context.Context, itemID string, status ItemStatus, attempts int, errorMessage string) error {
	if !status.Terminal() {
		return fmt.Errorf("finish item: status %q is not terminal", status)
	}
	now := database.FormatTime(s.now())
	res, err := s.db.Exec(ctx,
		`UPDATE job_items
         SET status = ?, attempts = ?, error_message = ?, updated_at = ?, finished_at = ?
         WHERE id = ? AND status IN ('pending', 'running')`,
		status, attempts, database.NullableString(errorMessage), now, now, itemID)
	if err != nil {
		return fmt.Errorf("finish item: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("finish item %s: %w", itemID, ErrItemFinalized)
	}
	return nil
}

// GetItem returns one item or ErrNotFound.
func (s *Store) GetItem(ctx context.Context, itemID string) (*Item, error) {
	row := s.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM job_items WHERE id = ?`, itemID)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// ListItems returns a job's items in dispatch order, optionally limited to a stage.
func (s *Store) ListItems(ctx context.Context, jobID string, stage Stage) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM job_items WHERE job_id = ?`
	args := []any{jobID}
	if stage != "" {
		query += ` AND stage = ?`
		args = append(args, stage)
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CountItems aggregates item statuses per stage for a job.
func (s *Store) CountItems(ctx context.Context, jobID string) (map[Stage]StageCounts, error) {
	rows, err := s.db.Query(ctx,
		`SELECT stage, status, COUNT(1) FROM job_items WHERE job_id = ? GROUP BY stage, status`, jobID)
	if err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}
	defer rows.Close()

	counts := make(map[Stage]StageCounts)
	for rows.Next() {
		var (
			stage  Stage
			status ItemStatus
			n      int
		)
		if err := rows.Scan(&stage, &status, &n); err != nil {
			return nil, err
		}
		c := counts[stage]
		c.Stage = stage
		c.Total += n
		switch status {
		case ItemSucceeded:
			c.Succeeded += n
		case ItemFailed:
			c.Failed += n
		default:
			c.Running += n
		}
		counts[stage] = c
	}
	return counts, rows.Err()
}

// FailOpenItems finalizes every unfinished item of a job as failed.
func (s *Store) FailOpenItems(ctx context.Context, jobID, reason string) (int64, error) {
	now := database.FormatTime(s.now())
	res, err := s.db.Exec(ctx,
		`UPDATE job_items SET status = ?, error_message = ?, updated_at = ?, finished_at = ?
         WHERE job_id = ? AND status IN ('pending', 'running')`,
		ItemFailed, reason, now, now, jobID)
	if err != nil {
		return 0, fmt.Errorf("fail open items: %w", err)
	}
	return res.RowsAffected()
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		item         Item
		errorMessage sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		finishedRaw  sql.NullString
	)
	if err := scanner.Scan(
		&item.ID,
		&item.JobID,
		&item.Stage,
		&item.RefID,
		&item.Status,
		&item.Attempts,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}
	item.ErrorMessage = errorMessage.String
	item.CreatedAt = database.ParseTime(createdRaw)
	item.UpdatedAt = database.ParseTime(updatedRaw)
	item.FinishedAt = database.ParseTimePtr(finishedRaw)
	return &item, nil
}
