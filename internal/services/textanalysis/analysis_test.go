package textanalysis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"plotline/internal/services"
	"plotline/internal/services/llm"
)

type fakeCompleter struct {
	responses []string
	err       error
	prompts   []string
}

func (f *fakeCompleter) CompleteJSON(_ context.Context, _ string, user string) (string, error) {
	f.prompts = append(f.prompts, user)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "{}", nil
	}
	next := f.responses[0]
	f.responses = f.responses[1:]
	return next, nil
}

const manuscript = `Chapter One
Mira walked to the harbour at dawn. The boats were still.

Tobin was waiting by the lighthouse.

Chapter Two
The storm arrived before noon and the sea turned grey.`

func TestSplitChaptersCutsVerbatim(t *testing.T) {
	fake := &fakeCompleter{responses: []string{
		`{"chapters":[{"title":"chapter one","start":"Chapter One Mira walked to"},{"title":"Chapter Two","start":"chapter two the   storm arrived"},{"title":"Ghost","start":"words that are not there"}]}`,
	}}
	client := New(fake)

	sections, err := client.SplitChapters(context.Background(), manuscript, "en")
	if err != nil {
		t.Fatalf("SplitChapters failed: %v", err)
	}
	if len(sections) != 2 {
		t.Fatalf("expected 2 chapters, got %d: %+v", len(sections), sections)
	}
	if sections[0].Title != "Chapter One" || !strings.HasPrefix(sections[0].Text, "Chapter One") {
		t.Fatalf("unexpected first chapter: %+v", sections[0])
	}
	if !strings.HasSuffix(sections[0].Text, "by the lighthouse.") {
		t.Fatalf("first chapter should end before chapter two: %q", sections[0].Text)
	}
	if !strings.HasPrefix(sections[1].Text, "Chapter Two") {
		t.Fatalf("unexpected second chapter: %q", sections[1].Text)
	}
	if !strings.Contains(fake.prompts[0], "written in English") {
		t.Fatalf("language instruction missing: %q", fake.prompts[0])
	}
}

func TestCutSectionsFoldsPreambleAndFallsBack(t *testing.T) {
	text := "Preface words.\n\nPart A begins here. More.\n\nPart B begins here."
	sections := cutSections(text, []marker{
		{Title: "A", Start: "Part A begins"},
		{Title: "B", Start: "Part B begins"},
	})
	if len(sections) != 2 || !strings.HasPrefix(sections[0].Text, "Preface words.") {
		t.Fatalf("preamble not folded: %+v", sections)
	}

	single := cutSections(text, []marker{{Title: "Only", Start: "nothing matches"}})
	if len(single) != 1 || single[0].Text != text || single[0].Title != "Only" {
		t.Fatalf("unexpected fallback: %+v", single)
	}
	if got := cutSections("   ", nil); got != nil {
		t.Fatalf("expected nil for blank text, got %+v", got)
	}
}

func TestChunkText(t *testing.T) {
	text := strings.Repeat("a", 10) + "\n\n" + strings.Repeat("b", 10) + "\n\n" + strings.Repeat("c", 25)
	chunks := chunkText(text, 22)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %q", len(chunks), chunks)
	}
	if chunks[0] != strings.Repeat("a", 10)+"\n\n"+strings.Repeat("b", 10) {
		t.Fatalf("unexpected first chunk %q", chunks[0])
	}
	if len(chunks[1]) != 22 || len(chunks[2]) != 3 {
		t.Fatalf("oversized paragraph not split: %q", chunks[1:])
	}
	if got := chunkText("short", 100); len(got) != 1 {
		t.Fatalf("expected single chunk, got %q", got)
	}
}

func TestExtractCharactersMergesChunks(t *testing.T) {
	fake := &fakeCompleter{responses: []string{
		`{"characters":[{"name":"Mira","description":"a young sailor","aliases":["the girl"]}]}`,
		"```json\n{\"characters\":[{\"name\":\"mira\",\"aliases\":[\"Captain\"]},{\"name\":\"Tobin\"},{\"name\":\" \"}]}\n```",
	}}
	client := New(fake, WithChunkRunes(40))

	text := strings.Repeat("x", 30) + "\n\n" + strings.Repeat("y", 30)
	chars, err := client.ExtractCharacters(context.Background(), text, "en")
	if err != nil {
		t.Fatalf("ExtractCharacters failed: %v", err)
	}
	if len(fake.prompts) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(fake.prompts))
	}
	if len(chars) != 2 || chars[0].Name != "Mira" || len(chars[0].Aliases) != 2 || chars[1].Name != "Tobin" {
		t.Fatalf("unexpected characters: %+v", chars)
	}
}

func TestScenePromptComposesStyle(t *testing.T) {
	fake := &fakeCompleter{responses: []string{`{"prompt":"A girl on a foggy pier at dawn."}`}}
	client := New(fake)
	prompt, err := client.ScenePrompt(context.Background(), PromptRequest{
		SceneTitle:  "Dawn",
		SceneText:   "Mira walked to the harbour.",
		Characters:  []Character{{Name: "Mira", Description: "red coat"}},
		StylePreset: "storybook watercolor",
		Language:    "en",
	})
	if err != nil {
		t.Fatalf("ScenePrompt failed: %v", err)
	}
	if prompt != "A girl on a foggy pier at dawn. Style: storybook watercolor." {
		t.Fatalf("unexpected prompt %q", prompt)
	}
	if !strings.Contains(fake.prompts[0], "- Mira: red coat") {
		t.Fatalf("characters missing from request: %q", fake.prompts[0])
	}

	empty := New(&fakeCompleter{responses: []string{`{"prompt":"  "}`}})
	if _, err := empty.ScenePrompt(context.Background(), PromptRequest{SceneText: "x"}); !errors.Is(err, services.ErrExternalService) {
		t.Fatalf("expected external service error, got %v", err)
	}
}

func TestErrorClassification(t *testing.T) {
	client := New(&fakeCompleter{err: errors.New("boom")})
	if _, err := client.SplitScenes(context.Background(), "text", "en"); !errors.Is(err, services.ErrExternalService) || !services.Retryable(err) {
		t.Fatalf("expected retryable external error, got %v", err)
	}
	if _, err := client.SplitScenes(context.Background(), "  ", "en"); !errors.Is(err, services.ErrValidation) || services.Retryable(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	malformed := New(&fakeCompleter{responses: []string{"not json"}})
	if _, err := malformed.SplitChapters(context.Background(), "text", "en"); !errors.Is(err, services.ErrExternalService) {
		t.Fatalf("expected external error for malformed payload, got %v", err)
	}

	unconfigured := New(llm.NewClient(llm.Config{}))
	if unconfigured.Configured() {
		t.Fatal("client without api key should not be configured")
	}
	_, err := unconfigured.ExtractCharacters(context.Background(), "text", "en")
	if !errors.Is(err, services.ErrConfiguration) || services.Retryable(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestClientOverHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{
				"content": `{"scenes":[{"title":"arrival","summary":"They land.","start":"The boat"}]}`,
			}}},
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	client := New(llm.NewClient(llm.Config{APIKey: "k", BaseURL: server.URL, Model: "m"}))
	scenes, err := client.SplitScenes(context.Background(), "The boat touched the sand.", "en")
	if err != nil {
		t.Fatalf("SplitScenes failed: %v", err)
	}
	if len(scenes) != 1 || scenes[0].Title != "Arrival" || scenes[0].Summary != "They land." {
		t.Fatalf("unexpected scenes: %+v", scenes)
	}
}
