package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"plotline/internal/database"
)

// SaveImage upserts an image asset keyed by scene and variant. The asset's ID
// and timestamps are filled in.
func (s *Store) SaveImage(ctx context.Context, asset *ImageAsset) error {
	if asset == nil || asset.SceneID == "" {
		return errors.New("image asset requires a scene id")
	}
	scene, err := s.Scene(ctx, asset.SceneID)
	if err != nil {
		return err
	}
	now := s.now()
	asset.ID = ImageID(asset.SceneID, asset.Variant)
	asset.ProjectID = scene.ProjectID
	asset.UpdatedAt = now
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = now
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO image_assets (id, project_id, scene_id, variant, prompt, style_preset, blob_key, mime_type,
                                   size_bytes, model, revised_prompt, job_id, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(scene_id, variant) DO UPDATE SET
             prompt = excluded.prompt, style_preset = excluded.style_preset, blob_key = excluded.blob_key,
             mime_type = excluded.mime_type, size_bytes = excluded.size_bytes, model = excluded.model,
             revised_prompt = excluded.revised_prompt, job_id = excluded.job_id, updated_at = excluded.updated_at`,
		asset.ID, asset.ProjectID, asset.SceneID, asset.Variant, asset.Prompt, asset.StylePreset, asset.BlobKey,
		asset.MimeType, asset.SizeBytes, asset.Model, asset.RevisedPrompt, database.NullableString(asset.JobID),
		database.FormatTime(asset.CreatedAt), database.FormatTime(now),
	)
	if err != nil {
		return fmt.Errorf("save image: %w", err)
	}
	return nil
}

// Images lists a project's image assets ordered by chapter, scene and variant.
func (s *Store) Images(ctx context.Context, projectID string) ([]ImageAsset, error) {
	rows, err := s.db.Query(ctx,
		`SELECT i.id, i.project_id, i.scene_id, i.variant, i.prompt, i.style_preset, i.blob_key, i.mime_type,
                i.size_bytes, i.model, i.revised_prompt, i.job_id, i.created_at, i.updated_at
         FROM image_assets i
         JOIN scenes s ON s.id = i.scene_id
         JOIN chapters c ON c.id = s.chapter_id
         WHERE i.project_id = ?
         ORDER BY c.idx, s.idx, i.variant`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var out []ImageAsset
	for rows.Next() {
		var (
			a                ImageAsset
			jobID            sql.NullString
			created, updated sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.SceneID, &a.Variant, &a.Prompt, &a.StylePreset, &a.BlobKey,
			&a.MimeType, &a.SizeBytes, &a.Model, &a.RevisedPrompt, &jobID, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		a.JobID = jobID.String
		a.CreatedAt = database.ParseTime(created)
		a.UpdatedAt = database.ParseTime(updated)
		out = append(out, a)
	}
	return out, rows.Err()
}
