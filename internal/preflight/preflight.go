package preflight

import (
	"context"

	"plotline/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Detail   string `json:"detail"`
	Advisory bool   `json:"advisory"` // failures do not block startup
}

// RunAll executes the offline checks for the given config.
func RunAll(_ context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	return []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Image directory", cfg.ImageDir()),
		CheckCredential("Text analysis API key", cfg.LLM.APIKey, "llm.api_key or PLOTLINE_LLM_API_KEY"),
		CheckCredential("Image generation API key", cfg.Images.APIKey, "images.api_key, PLOTLINE_IMAGES_API_KEY or OPENAI_API_KEY"),
	}
}

// Blocking returns the failed results that must stop the daemon from starting.
func Blocking(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed && !r.Advisory {
			out = append(out, r)
		}
	}
	return out
}
