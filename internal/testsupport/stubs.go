package testsupport

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"plotline/internal/services/imagegen"
	"plotline/internal/services/textanalysis"
)

// PNG is a minimal payload that sniffs as image/png.
var PNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// StubAnalyzer is a deterministic text-analysis collaborator. By default it
// produces CharacterCount characters, ChapterCount chapters and
// ScenesPerChapter scenes in each chapter; every scene mentions the first
// character. The *Fn hooks replace individual operations.
type StubAnalyzer struct {
	CharacterCount   int
	ChapterCount     int
	ScenesPerChapter int
	Unconfigured     bool

	CharactersFn func(ctx context.Context, text string) ([]textanalysis.Character, error)
	ChaptersFn   func(ctx context.Context, text string) ([]textanalysis.Section, error)
	ScenesFn     func(ctx context.Context, chapterText string) ([]textanalysis.Section, error)
	PromptFn     func(ctx context.Context, req textanalysis.PromptRequest) (string, error)

	mu    sync.Mutex
	calls map[string]int
}

// NewStubAnalyzer builds a stub with the given output shape.
func NewStubAnalyzer(characters, chapters, scenesPerChapter int) *StubAnalyzer {
	return &StubAnalyzer{CharacterCount: characters, ChapterCount: chapters, ScenesPerChapter: scenesPerChapter}
}

func (s *StubAnalyzer) Configured() bool { return !s.Unconfigured }

// Calls reports how many times op was invoked.
func (s *StubAnalyzer) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *StubAnalyzer) record(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[op]++
}

func (s *StubAnalyzer) ExtractCharacters(ctx context.Context, text, _ string) ([]textanalysis.Character, error) {
	s.record("characters")
	if s.CharactersFn != nil {
		return s.CharactersFn(ctx, text)
	}
	out := make([]textanalysis.Character, 0, s.CharacterCount)
	for i := 0; i < s.CharacterCount; i++ {
		out = append(out, textanalysis.Character{
			Name:        CharacterName(i),
			Description: fmt.Sprintf("character number %d", i+1),
		})
	}
	return out, nil
}

func (s *StubAnalyzer) SplitChapters(ctx context.Context, text, _ string) ([]textanalysis.Section, error) {
	s.record("chapters")
	if s.ChaptersFn != nil {
		return s.ChaptersFn(ctx, text)
	}
	out := make([]textanalysis.Section, 0, s.ChapterCount)
	for i := 0; i < s.ChapterCount; i++ {
		out = append(out, textanalysis.Section{
			Title: fmt.Sprintf("Chapter %d", i+1),
			Text:  fmt.Sprintf("chapter-%d body", i),
		})
	}
	return out, nil
}

func (s *StubAnalyzer) SplitScenes(ctx context.Context, chapterText, _ string) ([]textanalysis.Section, error) {
	s.record("scenes")
	if s.ScenesFn != nil {
		return s.ScenesFn(ctx, chapterText)
	}
	chapter := ChapterNumber(chapterText)
	out := make([]textanalysis.Section, 0, s.ScenesPerChapter)
	for i := 0; i < s.ScenesPerChapter; i++ {
		out = append(out, textanalysis.Section{
			Title:   fmt.Sprintf("Scene %d.%d", chapter+1, i+1),
			Summary: fmt.Sprintf("%s looks out over scene %d", CharacterName(0), i+1),
			Text:    fmt.Sprintf("%s walks through chapter %d scene %d.", CharacterName(0), chapter+1, i+1),
		})
	}
	return out, nil
}

func (s *StubAnalyzer) ScenePrompt(ctx context.Context, req textanalysis.PromptRequest) (string, error) {
	s.record("prompts")
	if s.PromptFn != nil {
		return s.PromptFn(ctx, req)
	}
	return textanalysis.ComposePrompt("Illustration of "+req.SceneTitle, req.StylePreset), nil
}

// CharacterName is the name the stub gives its i-th character.
func CharacterName(i int) string {
	names := []string{"Mira", "Tobin", "Ansel", "Greta", "Jun"}
	if i < len(names) {
		return names[i]
	}
	return "Extra" + strconv.Itoa(i)
}

// ChapterNumber recovers the zero-based chapter index from stub chapter text.
func ChapterNumber(text string) int {
	rest, ok := strings.CutPrefix(text, "chapter-")
	if !ok {
		return 0
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return 0
	}
	n, _ := strconv.Atoi(fields[0])
	return n
}

// StubImages is a deterministic image-generation collaborator.
type StubImages struct {
	Unconfigured bool
	GenerateFn   func(ctx context.Context, prompt string, attempt int) (*imagegen.Image, error)

	mu       sync.Mutex
	attempts map[string]int
	total    int
}

func (s *StubImages) Configured() bool { return !s.Unconfigured }

func (s *StubImages) Generate(ctx context.Context, prompt, _ string) (*imagegen.Image, error) {
	s.mu.Lock()
	if s.attempts == nil {
		s.attempts = make(map[string]int)
	}
	s.attempts[prompt]++
	attempt := s.attempts[prompt]
	s.total++
	s.mu.Unlock()

	if s.GenerateFn != nil {
		return s.GenerateFn(ctx, prompt, attempt)
	}
	return &imagegen.Image{Data: PNG, MimeType: "image/png", Model: "stub"}, nil
}

// Calls reports the total number of Generate invocations.
func (s *StubImages) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}
