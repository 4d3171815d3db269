package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLLM()
	c.normalizeImages()
	c.normalizePipeline()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	if value, ok := lookupEnv("PLOTLINE_API_TOKEN"); ok {
		c.Paths.APIToken = value
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

// Environment variables take precedence over keys stored in the file.
func (c *Config) normalizeLLM() {
	if value, ok := lookupEnv("PLOTLINE_LLM_API_KEY"); ok {
		c.LLM.APIKey = value
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeImages() {
	if value, ok := lookupEnv("PLOTLINE_IMAGES_API_KEY"); ok {
		c.Images.APIKey = value
	} else if value, ok := lookupEnv("OPENAI_API_KEY"); ok && strings.TrimSpace(c.Images.APIKey) == "" {
		c.Images.APIKey = value
	}
	c.Images.APIKey = strings.TrimSpace(c.Images.APIKey)
	c.Images.BaseURL = strings.TrimSpace(c.Images.BaseURL)
	c.Images.Model = strings.TrimSpace(c.Images.Model)
	if c.Images.Model == "" {
		c.Images.Model = defaultImageModel
	}
	c.Images.Size = strings.ToLower(strings.TrimSpace(c.Images.Size))
	if c.Images.Size == "" {
		c.Images.Size = defaultImageSize
	}
	c.Images.Quality = strings.ToLower(strings.TrimSpace(c.Images.Quality))
	if c.Images.TimeoutSeconds <= 0 {
		c.Images.TimeoutSeconds = defaultImageTimeout
	}
	c.Images.DefaultStylePreset = strings.TrimSpace(c.Images.DefaultStylePreset)
	if c.Images.DefaultStylePreset == "" {
		c.Images.DefaultStylePreset = defaultStylePreset
	}
}

func (c *Config) normalizePipeline() {
	c.Pipeline.DefaultLanguage = strings.TrimSpace(c.Pipeline.DefaultLanguage)
	if c.Pipeline.DefaultLanguage == "" {
		c.Pipeline.DefaultLanguage = defaultLanguage
	}
	if c.Pipeline.RetryMaxBackoffMS > 0 && c.Pipeline.RetryMaxBackoffMS < c.Pipeline.RetryBackoffMS {
		c.Pipeline.RetryMaxBackoffMS = c.Pipeline.RetryBackoffMS
	}
}

func (c *Config) normalizeNotifications() {
	if value, ok := lookupEnv("PLOTLINE_NTFY_TOPIC"); ok {
		c.Notifications.NtfyTopic = value
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNtfyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return strings.TrimSpace(value), true
}
