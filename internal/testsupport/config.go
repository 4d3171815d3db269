package testsupport

import (
	"path/filepath"
	"testing"

	"plotline/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Pipeline timings are shortened so retries do not slow tests down.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.LLM.APIKey = "test"
	cfgVal.Images.APIKey = "test"
	cfgVal.Pipeline.RetryBackoffMS = 1
	cfgVal.Pipeline.RetryMaxBackoffMS = 5
	cfgVal.Pipeline.UnitTimeoutSeconds = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithPipeline mutates the pipeline section.
func WithPipeline(fn func(*config.Pipeline)) ConfigOption {
	return func(b *configBuilder) {
		fn(&b.cfg.Pipeline)
	}
}

// WithoutAPIKeys clears both collaborator credentials.
func WithoutAPIKeys() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.APIKey = ""
		b.cfg.Images.APIKey = ""
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
