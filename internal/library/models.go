package library

import (
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// ErrNotFound indicates the requested library record does not exist.
var ErrNotFound = errors.New("library record not found")

var idNamespace = uuid.MustParse("3b6f2d0a-8f0c-4e47-a1d2-6c1f9e3a5b70")

// Manuscript is the raw text the pipeline works from.
type Manuscript struct {
	ProjectID string
	Text      string
	Language  string
	UpdatedAt time.Time
}

// Character is a named figure extracted from the manuscript.
type Character struct {
	ID          string
	ProjectID   string
	Slug        string
	Name        string
	Description string
	Aliases     []string
	JobID       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Chapter is one ordered section of the manuscript.
type Chapter struct {
	ID        string
	ProjectID string
	Index     int
	Title     string
	Text      string
	JobID     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Scene is an ordered slice of a chapter.
type Scene struct {
	ID           string
	ProjectID    string
	ChapterID    string
	ChapterIndex int
	Index        int
	Title        string
	Summary      string
	Text         string
	Prompt       string
	CharacterIDs []string
	JobID        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ImageAsset is a generated illustration for a scene.
type ImageAsset struct {
	ID            string
	ProjectID     string
	SceneID       string
	Variant       int
	Prompt        string
	StylePreset   string
	BlobKey       string
	MimeType      string
	SizeBytes     int64
	Model         string
	RevisedPrompt string
	JobID         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CharacterDraft is the input shape for ReplaceCharacters.
type CharacterDraft struct {
	Name        string
	Description string
	Aliases     []string
}

// ChapterDraft is the input shape for ReplaceChapters.
type ChapterDraft struct {
	Title string
	Text  string
}

// SceneDraft is the input shape for ReplaceScenes.
type SceneDraft struct {
	Title   string
	Summary string
	Text    string
}

// CharacterID derives the stable identifier for a character slug.
func CharacterID(projectID, slug string) string {
	return deriveID(projectID, "character", slug)
}

// ChapterID derives the stable identifier for a chapter position.
func ChapterID(projectID string, index int) string {
	return deriveID(projectID, "chapter", strconv.Itoa(index))
}

// SceneID derives the stable identifier for a scene position within a chapter.
func SceneID(chapterID string, index int) string {
	return deriveID(chapterID, "scene", strconv.Itoa(index))
}

// ImageID derives the stable identifier for a scene image variant.
func ImageID(sceneID string, variant int) string {
	return deriveID(sceneID, "image", strconv.Itoa(variant))
}

func deriveID(parts ...string) string {
	return uuid.NewSHA1(idNamespace, []byte(strings.Join(parts, "/"))).String()
}

// Slugify reduces a character name to a lower-case, dash-separated key.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteRune('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
