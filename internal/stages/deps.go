package stages

import (
	"context"
	"io"

	"plotline/internal/library"
	"plotline/internal/services/imagegen"
	"plotline/internal/services/textanalysis"
)

// TextAnalyzer is the text-analysis collaborator.
type TextAnalyzer interface {
	Configured() bool
	ExtractCharacters(ctx context.Context, text, lang string) ([]textanalysis.Character, error)
	SplitChapters(ctx context.Context, text, lang string) ([]textanalysis.Section, error)
	SplitScenes(ctx context.Context, chapterText, lang string) ([]textanalysis.Section, error)
	ScenePrompt(ctx context.Context, req textanalysis.PromptRequest) (string, error)
}

// ImageGenerator is the image-generation collaborator.
type ImageGenerator interface {
	Configured() bool
	Generate(ctx context.Context, prompt, stylePreset string) (*imagegen.Image, error)
}

// BlobStore persists image bytes.
type BlobStore interface {
	Put(key string, r io.Reader) (int64, error)
}

// ManuscriptSource supplies a project's raw text and language.
type ManuscriptSource interface {
	Manuscript(ctx context.Context, projectID string) (library.Manuscript, error)
}
