package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"plotline/internal/database"
)

// ReplaceChapters makes drafts the project's ordered chapter list. Chapters
// are keyed by position; chapters beyond len(drafts) are removed together
// with their scenes.
func (s *Store) ReplaceChapters(ctx context.Context, projectID, jobID string, drafts []ChapterDraft) ([]Chapter, error) {
	now := database.FormatTime(s.now())
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		for i, draft := range drafts {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO chapters (id, project_id, idx, title, text, job_id, created_at, updated_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
                 ON CONFLICT(project_id, idx) DO UPDATE SET
                     title = excluded.title, text = excluded.text, job_id = excluded.job_id, updated_at = excluded.updated_at`,
				ChapterID(projectID, i), projectID, i, draft.Title, draft.Text, database.NullableString(jobID), now, now,
			); err != nil {
				return fmt.Errorf("upsert chapter %d: %w", i, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM chapters WHERE project_id = ? AND idx >= ?`, projectID, len(drafts)); err != nil {
			return fmt.Errorf("prune chapters: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Chapters(ctx, projectID)
}

// Chapters lists a project's chapters in order.
func (s *Store) Chapters(ctx context.Context, projectID string) ([]Chapter, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, project_id, idx, title, text, job_id, created_at, updated_at
         FROM chapters WHERE project_id = ? ORDER BY idx`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()

	var out []Chapter
	for rows.Next() {
		c, err := scanChapter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Chapter returns one chapter by id.
func (s *Store) Chapter(ctx context.Context, id string) (Chapter, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, project_id, idx, title, text, job_id, created_at, updated_at FROM chapters WHERE id = ?`, id)
	c, err := scanChapter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Chapter{}, fmt.Errorf("chapter %s: %w", id, ErrNotFound)
	}
	return c, err
}

func scanChapter(scanner interface{ Scan(dest ...any) error }) (Chapter, error) {
	var (
		c                Chapter
		jobID            sql.NullString
		created, updated sql.NullString
	)
	if err := scanner.Scan(&c.ID, &c.ProjectID, &c.Index, &c.Title, &c.Text, &jobID, &created, &updated); err != nil {
		return Chapter{}, err
	}
	c.JobID = jobID.String
	c.CreatedAt = database.ParseTime(created)
	c.UpdatedAt = database.ParseTime(updated)
	return c, nil
}

// ReplaceScenes makes drafts the ordered scene list of one chapter. A scene
// whose text changed loses its prompt so the prompt stage regenerates it.
func (s *Store) ReplaceScenes(ctx context.Context, chapterID, jobID string, drafts []SceneDraft) ([]Scene, error) {
	chapter, err := s.Chapter(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	now := database.FormatTime(s.now())
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		for i, draft := range drafts {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO scenes (id, project_id, chapter_id, idx, title, summary, text, prompt, job_id, created_at, updated_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?, '', ?, ?, ?)
                 ON CONFLICT(chapter_id, idx) DO UPDATE SET
                     title = excluded.title, summary = excluded.summary,
                     prompt = CASE WHEN scenes.text = excluded.text THEN scenes.prompt ELSE '' END,
                     text = excluded.text, job_id = excluded.job_id, updated_at = excluded.updated_at`,
				SceneID(chapterID, i), chapter.ProjectID, chapterID, i, draft.Title, draft.Summary, draft.Text,
				database.NullableString(jobID), now, now,
			); err != nil {
				return fmt.Errorf("upsert scene %d: %w", i, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM scenes WHERE chapter_id = ? AND idx >= ?`, chapterID, len(drafts)); err != nil {
			return fmt.Errorf("prune scenes: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.querySceneList(ctx, `s.chapter_id = ?`, chapterID)
}

// Scenes lists a project's scenes ordered by chapter then position.
func (s *Store) Scenes(ctx context.Context, projectID string) ([]Scene, error) {
	return s.querySceneList(ctx, `s.project_id = ?`, projectID)
}

// Scene returns one scene with its linked character ids.
func (s *Store) Scene(ctx context.Context, id string) (Scene, error) {
	scenes, err := s.querySceneList(ctx, `s.id = ?`, id)
	if err != nil {
		return Scene{}, err
	}
	if len(scenes) == 0 {
		return Scene{}, fmt.Errorf("scene %s: %w", id, ErrNotFound)
	}
	return scenes[0], nil
}

// ReplaceSceneCharacters sets the characters linked to a scene. Unknown
// character ids are ignored.
func (s *Store) ReplaceSceneCharacters(ctx context.Context, sceneID string, characterIDs []string) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM scene_characters WHERE scene_id = ?`, sceneID); err != nil {
			return fmt.Errorf("clear scene characters: %w", err)
		}
		for _, characterID := range characterIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO scene_characters (scene_id, character_id)
                 SELECT ?, id FROM characters WHERE id = ?`, sceneID, characterID); err != nil {
				return fmt.Errorf("link character %s: %w", characterID, err)
			}
		}
		return nil
	})
}

// UpdateScenePrompt overwrites the scene's draft prompt.
func (s *Store) UpdateScenePrompt(ctx context.Context, sceneID, jobID, prompt string) error {
	res, err := s.db.Exec(ctx,
		`UPDATE scenes SET prompt = ?, job_id = ?, updated_at = ? WHERE id = ?`,
		prompt, database.NullableString(jobID), database.FormatTime(s.now()), sceneID)
	if err != nil {
		return fmt.Errorf("update scene prompt: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("scene %s: %w", sceneID, ErrNotFound)
	}
	return nil
}

func (s *Store) querySceneList(ctx context.Context, where string, arg any) ([]Scene, error) {
	rows, err := s.db.Query(ctx,
		`SELECT s.id, s.project_id, s.chapter_id, c.idx, s.idx, s.title, s.summary, s.text, s.prompt,
                s.job_id, s.created_at, s.updated_at
         FROM scenes s JOIN chapters c ON c.id = s.chapter_id
         WHERE `+where+`
         ORDER BY c.idx, s.idx`, arg)
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}
	var (
		out   []Scene
		index = make(map[string]int)
	)
	for rows.Next() {
		var (
			sc               Scene
			jobID            sql.NullString
			created, updated sql.NullString
		)
		if err := rows.Scan(&sc.ID, &sc.ProjectID, &sc.ChapterID, &sc.ChapterIndex, &sc.Index, &sc.Title,
			&sc.Summary, &sc.Text, &sc.Prompt, &jobID, &created, &updated); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan scene: %w", err)
		}
		sc.JobID = jobID.String
		sc.CreatedAt = database.ParseTime(created)
		sc.UpdatedAt = database.ParseTime(updated)
		index[sc.ID] = len(out)
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]any, 0, len(out))
	for _, sc := range out {
		ids = append(ids, sc.ID)
	}
	links, err := s.db.Query(ctx,
		`SELECT scene_id, character_id FROM scene_characters WHERE scene_id IN (`+database.Placeholders(len(ids))+`)
         ORDER BY scene_id, character_id`, ids...)
	if err != nil {
		return nil, fmt.Errorf("list scene characters: %w", err)
	}
	defer links.Close()
	for links.Next() {
		var sceneID, characterID string
		if err := links.Scan(&sceneID, &characterID); err != nil {
			return nil, err
		}
		if i, ok := index[sceneID]; ok {
			out[i].CharacterIDs = append(out[i].CharacterIDs, characterID)
		}
	}
	return out, links.Err()
}
