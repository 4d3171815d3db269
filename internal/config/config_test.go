package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"plotline/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("PLOTLINE_LLM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "plotline")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7610" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Pipeline.FailureThreshold != 1.0 {
		t.Fatalf("expected default failure threshold 1.0, got %v", cfg.Pipeline.FailureThreshold)
	}
	if cfg.Pipeline.RetryAttempts != 2 {
		t.Fatalf("expected default retry attempts 2, got %d", cfg.Pipeline.RetryAttempts)
	}
	if cfg.Pipeline.ImagesPerScene != 1 {
		t.Fatalf("expected default images per scene 1, got %d", cfg.Pipeline.ImagesPerScene)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "plotline.db") {
		t.Fatalf("unexpected database path %q", cfg.DatabasePath())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.ImageDir()} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "plotline.toml")

	type payload struct {
		Paths struct {
			DataDir string `toml:"data_dir"`
		} `toml:"paths"`
		Pipeline struct {
			WorkerConcurrency int     `toml:"worker_concurrency"`
			FailureThreshold  float64 `toml:"failure_threshold"`
		} `toml:"pipeline"`
	}
	custom := payload{}
	custom.Paths.DataDir = filepath.Join(tempDir, "data")
	custom.Pipeline.WorkerConcurrency = 8
	custom.Pipeline.FailureThreshold = 0.5
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Paths.DataDir != filepath.Join(tempDir, "data") {
		t.Fatalf("unexpected data dir %q", cfg.Paths.DataDir)
	}
	if cfg.Pipeline.WorkerConcurrency != 8 {
		t.Fatalf("expected worker concurrency 8, got %d", cfg.Pipeline.WorkerConcurrency)
	}
	if cfg.Pipeline.FailureThreshold != 0.5 {
		t.Fatalf("expected threshold 0.5, got %v", cfg.Pipeline.FailureThreshold)
	}
	if cfg.Pipeline.RetryAttempts != config.Default().Pipeline.RetryAttempts {
		t.Fatalf("expected unspecified values to keep defaults, got %d", cfg.Pipeline.RetryAttempts)
	}
}

func TestEnvVarOverridesConfigFileForAPIKeys(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "plotline.toml")
	content := "[llm]\napi_key = \"file-llm\"\n\n[images]\napi_key = \"file-images\"\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("PLOTLINE_LLM_API_KEY", "env-llm")
	t.Setenv("PLOTLINE_IMAGES_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "env-openai")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.APIKey != "env-llm" {
		t.Fatalf("expected env llm key, got %q", cfg.LLM.APIKey)
	}
	if cfg.Images.APIKey != "file-images" {
		t.Fatalf("expected OPENAI_API_KEY to only fill a blank key, got %q", cfg.Images.APIKey)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "plotline.toml")
	if err := os.WriteFile(configPath, []byte("[pipeline]\nworkers = 3\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestValidateRanges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"zero concurrency", func(c *config.Config) { c.Pipeline.WorkerConcurrency = 0 }, "worker_concurrency"},
		{"threshold zero", func(c *config.Config) { c.Pipeline.FailureThreshold = 0 }, "failure_threshold"},
		{"threshold above one", func(c *config.Config) { c.Pipeline.FailureThreshold = 1.5 }, "failure_threshold"},
		{"negative retries", func(c *config.Config) { c.Pipeline.RetryAttempts = -1 }, "retry_attempts"},
		{"images above max", func(c *config.Config) { c.Pipeline.ImagesPerScene = 9 }, "images_per_scene"},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in %q", tt.want, err.Error())
			}
		})
	}
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample failed: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Pipeline.WorkerConcurrency != 4 {
		t.Fatalf("unexpected sample concurrency %d", cfg.Pipeline.WorkerConcurrency)
	}
}

func TestAPIBaseURL(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.APIBind = ":9000"
	if got := cfg.APIBaseURL(); got != "http://127.0.0.1:9000" {
		t.Fatalf("unexpected base url %q", got)
	}
}

func TestNotificationsSection(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "plotline.toml")
	content := "[notifications]\nntfy_topic = \" https://ntfy.example/plotline \"\non_success = false\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PLOTLINE_NTFY_TOPIC", "")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.example/plotline" {
		t.Fatalf("expected trimmed topic, got %q", cfg.Notifications.NtfyTopic)
	}
	if cfg.Notifications.OnSuccess {
		t.Fatal("expected on_success=false to be kept")
	}
	if cfg.Notifications.RequestTimeoutSeconds != 10 {
		t.Fatalf("expected default timeout 10, got %d", cfg.Notifications.RequestTimeoutSeconds)
	}

	t.Setenv("PLOTLINE_NTFY_TOPIC", "https://ntfy.example/env")
	cfg, _, _, err = config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.example/env" {
		t.Fatalf("expected env topic, got %q", cfg.Notifications.NtfyTopic)
	}
}
