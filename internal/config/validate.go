package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateImages(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateLLM() error {
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateImages() error {
	if !strings.Contains(c.Images.Size, "x") && c.Images.Size != "auto" {
		return fmt.Errorf("images.size must look like 1024x1024 or auto, got %q", c.Images.Size)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	p := c.Pipeline
	switch {
	case p.WorkerConcurrency < 1:
		return errors.New("pipeline.worker_concurrency must be >= 1")
	case p.UnitTimeoutSeconds < 1:
		return errors.New("pipeline.unit_timeout_seconds must be >= 1")
	case p.RetryAttempts < 0:
		return errors.New("pipeline.retry_attempts must be >= 0")
	case p.RetryBackoffMS < 0 || p.RetryMaxBackoffMS < 0:
		return errors.New("pipeline retry backoff values must be >= 0")
	case p.FailureThreshold <= 0 || p.FailureThreshold > 1:
		return errors.New("pipeline.failure_threshold must be in (0, 1]")
	case p.MaxImagesPerScene < 1:
		return errors.New("pipeline.max_images_per_scene must be >= 1")
	case p.ImagesPerScene < 1 || p.ImagesPerScene > p.MaxImagesPerScene:
		return fmt.Errorf("pipeline.images_per_scene must be between 1 and %d", p.MaxImagesPerScene)
	case p.MaxConcurrentJobs < 1:
		return errors.New("pipeline.max_concurrent_jobs must be >= 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
