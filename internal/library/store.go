package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"plotline/internal/database"
)

// Store reads and writes project library rows.
type Store struct {
	db  *database.DB
	now func() time.Time
}

// NewStore wraps an open database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// SaveManuscript stores the manuscript text for a project, replacing any
// earlier upload.
func (s *Store) SaveManuscript(ctx context.Context, projectID, text, lang string) error {
	if strings.TrimSpace(projectID) == "" {
		return errors.New("project id is required")
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO manuscripts (project_id, text, language, updated_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(project_id) DO UPDATE SET text = excluded.text, language = excluded.language, updated_at = excluded.updated_at`,
		projectID, text, lang, database.FormatTime(s.now()))
	if err != nil {
		return fmt.Errorf("save manuscript: %w", err)
	}
	return nil
}

// Manuscript returns the stored manuscript for a project.
func (s *Store) Manuscript(ctx context.Context, projectID string) (Manuscript, error) {
	var (
		m       Manuscript
		updated sql.NullString
	)
	err := s.db.QueryRow(ctx,
		`SELECT project_id, text, language, updated_at FROM manuscripts WHERE project_id = ?`, projectID).
		Scan(&m.ProjectID, &m.Text, &m.Language, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Manuscript{}, fmt.Errorf("manuscript for project %s: %w", projectID, ErrNotFound)
	}
	if err != nil {
		return Manuscript{}, fmt.Errorf("load manuscript: %w", err)
	}
	m.UpdatedAt = database.ParseTime(updated)
	return m, nil
}

// ReplaceCharacters makes drafts the project's character list. Characters are
// keyed by the slug of their name; drafts sharing a slug are merged and
// characters absent from drafts are removed along with their scene links.
func (s *Store) ReplaceCharacters(ctx context.Context, projectID, jobID string, drafts []CharacterDraft) ([]Character, error) {
	now := database.FormatTime(s.now())
	merged := mergeCharacterDrafts(drafts)

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		keep := make([]any, 0, len(merged)+1)
		keep = append(keep, projectID)
		for _, draft := range merged {
			aliases, err := json.Marshal(nonNil(draft.Aliases))
			if err != nil {
				return err
			}
			slug := Slugify(draft.Name)
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO characters (id, project_id, slug, name, description, aliases, job_id, created_at, updated_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
                 ON CONFLICT(project_id, slug) DO UPDATE SET
                     name = excluded.name, description = excluded.description, aliases = excluded.aliases,
                     job_id = excluded.job_id, updated_at = excluded.updated_at`,
				CharacterID(projectID, slug), projectID, slug, draft.Name, draft.Description, string(aliases),
				database.NullableString(jobID), now, now,
			); err != nil {
				return fmt.Errorf("upsert character %q: %w", draft.Name, err)
			}
			keep = append(keep, slug)
		}
		query := `DELETE FROM characters WHERE project_id = ?`
		if len(keep) > 1 {
			query += ` AND slug NOT IN (` + database.Placeholders(len(keep)-1) + `)`
		}
		if _, err := tx.ExecContext(ctx, query, keep...); err != nil {
			return fmt.Errorf("prune characters: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Characters(ctx, projectID)
}

// Characters lists a project's characters by name.
func (s *Store) Characters(ctx context.Context, projectID string) ([]Character, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, project_id, slug, name, description, aliases, job_id, created_at, updated_at
         FROM characters WHERE project_id = ? ORDER BY name COLLATE NOCASE, slug`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	defer rows.Close()

	var out []Character
	for rows.Next() {
		var (
			c                Character
			aliases          string
			jobID            sql.NullString
			created, updated sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Slug, &c.Name, &c.Description, &aliases, &jobID, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan character: %w", err)
		}
		if aliases != "" {
			if err := json.Unmarshal([]byte(aliases), &c.Aliases); err != nil {
				return nil, fmt.Errorf("decode aliases for %s: %w", c.Slug, err)
			}
		}
		c.JobID = jobID.String
		c.CreatedAt = database.ParseTime(created)
		c.UpdatedAt = database.ParseTime(updated)
		out = append(out, c)
	}
	return out, rows.Err()
}

func mergeCharacterDrafts(drafts []CharacterDraft) []CharacterDraft {
	index := make(map[string]int, len(drafts))
	merged := make([]CharacterDraft, 0, len(drafts))
	for _, draft := range drafts {
		draft.Name = strings.TrimSpace(draft.Name)
		slug := Slugify(draft.Name)
		if slug == "" {
			continue
		}
		if i, ok := index[slug]; ok {
			existing := &merged[i]
			if existing.Description == "" {
				existing.Description = strings.TrimSpace(draft.Description)
			}
			existing.Aliases = appendUnique(existing.Aliases, draft.Aliases...)
			continue
		}
		index[slug] = len(merged)
		merged = append(merged, CharacterDraft{
			Name:        draft.Name,
			Description: strings.TrimSpace(draft.Description),
			Aliases:     appendUnique(nil, draft.Aliases...),
		})
	}
	return merged
}

func appendUnique(list []string, values ...string) []string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		dup := false
		for _, existing := range list {
			if strings.EqualFold(existing, v) {
				dup = true
				break
			}
		}
		if !dup {
			list = append(list, v)
		}
	}
	return list
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
