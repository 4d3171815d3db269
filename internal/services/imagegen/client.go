// Package imagegen renders scene prompts into images with the OpenAI Images API.
package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"plotline/internal/services"
)

const (
	component           = "imagegen"
	defaultModel        = "gpt-image-1"
	defaultSize         = "1024x1024"
	defaultTimeout      = 180 * time.Second
	maxDownloadBytes    = 32 << 20
	contentPolicyMarker = "content_policy"
)

// Config holds the image model settings.
type Config struct {
	APIKey     string
	BaseURL    string // optional, used by tests and compatible gateways
	Model      string
	Size       string
	Quality    string
	Timeout    time.Duration
	// MaxRetries is the SDK retry count. Zero disables SDK retries.
	MaxRetries int
	HTTPClient *http.Client
}

// Image is one rendered illustration.
type Image struct {
	Data          []byte
	MimeType      string
	Model         string
	RevisedPrompt string
}

// Client implements the image-generation collaborator.
type Client struct {
	cfg        Config
	client     openai.Client
	httpClient *http.Client
}

// NewClient builds a client. A blank API key yields a client whose calls fail
// with a configuration error.
func NewClient(cfg Config) *Client {
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultModel
	}
	if strings.TrimSpace(cfg.Size) == "" {
		cfg.Size = defaultSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{cfg: cfg, client: openai.NewClient(opts...), httpClient: httpClient}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c != nil && strings.TrimSpace(c.cfg.APIKey) != ""
}

// Model returns the configured image model.
func (c *Client) Model() string {
	return c.cfg.Model
}

// HealthCheck verifies the API key by listing models.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.Configured() {
		return services.Wrap(services.ErrConfiguration, component, "health", "image model is not configured (set images.api_key)", nil)
	}
	if _, err := c.client.Models.List(ctx); err != nil {
		return mapOpenAIError("health", err)
	}
	return nil
}

// Generate renders prompt in the given style.
func (c *Client) Generate(ctx context.Context, prompt, stylePreset string) (*Image, error) {
	if !c.Configured() {
		return nil, services.Wrap(services.ErrConfiguration, component, "generate", "image model is not configured (set images.api_key)", nil)
	}
	prompt = applyStyle(prompt, stylePreset)
	if prompt == "" {
		return nil, services.Wrap(services.ErrValidation, component, "generate", "prompt is empty", nil)
	}

	params := openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModel(c.cfg.Model),
		N:      openai.Int(1),
		Size:   openai.ImageGenerateParamsSize(c.cfg.Size),
	}
	if q := strings.TrimSpace(c.cfg.Quality); q != "" {
		params.Quality = openai.ImageGenerateParamsQuality(q)
	}
	if strings.HasPrefix(c.cfg.Model, "dall-e") {
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormatB64JSON
	}

	resp, err := c.client.Images.Generate(ctx, params)
	if err != nil {
		return nil, mapOpenAIError("generate", err)
	}
	if resp == nil || len(resp.Data) == 0 {
		return nil, services.Wrap(services.ErrExternalService, component, "generate", "response contained no images", nil)
	}
	first := resp.Data[0]

	var data []byte
	switch {
	case first.B64JSON != "":
		data, err = base64.StdEncoding.DecodeString(first.B64JSON)
		if err != nil {
			return nil, services.Wrap(services.ErrExternalService, component, "generate", "decode image payload", err)
		}
	case first.URL != "":
		data, err = c.download(ctx, first.URL)
		if err != nil {
			return nil, err
		}
	default:
		return nil, services.Wrap(services.ErrExternalService, component, "generate", "image had neither data nor url", nil)
	}
	if len(data) == 0 {
		return nil, services.Wrap(services.ErrExternalService, component, "generate", "image payload is empty", nil)
	}
	return &Image{
		Data:          data,
		MimeType:      http.DetectContentType(data),
		Model:         c.cfg.Model,
		RevisedPrompt: strings.TrimSpace(first.RevisedPrompt),
	}, nil
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, component, "download", "build request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, component, "download", "fetch image", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, services.Wrap(services.ErrExternalService, component, "download", fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, component, "download", "read image", err)
	}
	return data, nil
}

func applyStyle(prompt, stylePreset string) string {
	prompt = strings.TrimSpace(prompt)
	stylePreset = strings.TrimSpace(stylePreset)
	if prompt == "" || stylePreset == "" {
		return prompt
	}
	if strings.Contains(strings.ToLower(prompt), strings.ToLower(stylePreset)) {
		return prompt
	}
	return strings.TrimRight(prompt, ". ") + ". Style: " + stylePreset + "."
}

func mapOpenAIError(operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, component, operation, "request timed out", err)
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		message := fmt.Sprintf("status %d", apiErr.StatusCode)
		if apiErr.Message != "" {
			message = fmt.Sprintf("status %d: %s", apiErr.StatusCode, apiErr.Message)
		}
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, component, operation, message, nil)
		case apiErr.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Code), contentPolicyMarker):
			return services.Wrap(services.ErrValidation, component, operation, "prompt rejected by content policy: "+message, nil)
		case apiErr.StatusCode == http.StatusBadRequest:
			return services.Wrap(services.ErrValidation, component, operation, message, nil)
		default:
			return services.Wrap(services.ErrExternalService, component, operation, message, nil)
		}
	}
	return services.Wrap(services.ErrExternalService, component, operation, "request failed", err)
}
