package textanalysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"plotline/internal/language"
	"plotline/internal/services"
	"plotline/internal/services/llm"
)

const (
	defaultChunkRunes = 24000
	component         = "textanalysis"
)

// Completer issues one JSON-only chat completion.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

type configuredChecker interface {
	Configured() bool
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Character is an extracted character.
type Character struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Aliases     []string `json:"aliases"`
}

// Section is a verbatim slice of the input with a title.
type Section struct {
	Title   string
	Summary string
	Text    string
}

// PromptRequest carries what the model needs to describe one scene.
type PromptRequest struct {
	SceneTitle   string
	SceneSummary string
	SceneText    string
	Characters   []Character
	StylePreset  string
	Language     string
}

// Client implements the text-analysis collaborator.
type Client struct {
	completer  Completer
	chunkRunes int
}

// Option customizes a Client.
type Option func(*Client)

// WithChunkRunes bounds how much manuscript text goes into one request.
func WithChunkRunes(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.chunkRunes = n
		}
	}
}

// New wraps a completer, typically an *llm.Client.
func New(completer Completer, opts ...Option) *Client {
	c := &Client{completer: completer, chunkRunes: defaultChunkRunes}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether requests can be issued.
func (c *Client) Configured() bool {
	if c == nil || c.completer == nil {
		return false
	}
	if checker, ok := c.completer.(configuredChecker); ok {
		return checker.Configured()
	}
	return true
}

// HealthCheck verifies the underlying model is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.Configured() {
		return services.Wrap(services.ErrConfiguration, component, "health", "text analysis model is not configured", nil)
	}
	if checker, ok := c.completer.(healthChecker); ok {
		return checker.HealthCheck(ctx)
	}
	return nil
}

func (c *Client) ask(ctx context.Context, operation, system, user string, target any) error {
	if !c.Configured() {
		return services.Wrap(services.ErrConfiguration, component, operation, "text analysis model is not configured (set llm.api_key)", nil)
	}
	content, err := c.completer.CompleteJSON(ctx, system, user)
	if err != nil {
		marker := services.ErrExternalService
		if errors.Is(err, context.DeadlineExceeded) {
			marker = services.ErrTimeout
		}
		return services.Wrap(marker, component, operation, "model request failed", err)
	}
	if err := llm.DecodeLLMJSON(content, target); err != nil {
		return services.Wrap(services.ErrExternalService, component, operation, "model returned malformed JSON", err)
	}
	return nil
}

func languageInstruction(lang string) string {
	name := language.DisplayName(lang)
	if name == "Unknown" {
		return ""
	}
	return fmt.Sprintf("The manuscript is written in %s. Keep names, titles and summaries in %s.", name, name)
}

func requireText(operation, text string) error {
	if strings.TrimSpace(text) == "" {
		return services.Wrap(services.ErrValidation, component, operation, "text is empty", nil)
	}
	return nil
}
