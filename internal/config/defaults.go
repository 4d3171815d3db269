package config

const (
	defaultConfigPath        = "~/.config/plotline/config.toml"
	defaultDataDir           = "~/.local/share/plotline"
	defaultLogDir            = "~/.local/share/plotline/logs"
	defaultAPIBind           = "127.0.0.1:7610"
	defaultLLMBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel          = "google/gemini-3-flash-preview"
	defaultLLMReferer        = "https://github.com/plotline/plotline"
	defaultLLMTitle          = "Plotline Manuscript Analysis"
	defaultLLMTimeoutSeconds = 90
	defaultImageModel        = "gpt-image-1"
	defaultImageSize         = "1024x1024"
	defaultImageQuality      = "medium"
	defaultImageTimeout      = 180
	defaultStylePreset       = "storybook watercolor"
	defaultWorkerConcurrency = 4
	defaultUnitTimeout       = 120
	defaultRetryAttempts     = 2
	defaultRetryBackoffMS    = 500
	defaultRetryMaxBackoffMS = 10000
	defaultFailureThreshold  = 1.0
	defaultImagesPerScene    = 1
	defaultMaxImagesPerScene = 4
	defaultMaxConcurrentJobs = 2
	defaultLanguage          = "en"
	defaultNtfyTimeout       = 10
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Images: Images{
			Model:              defaultImageModel,
			Size:               defaultImageSize,
			Quality:            defaultImageQuality,
			TimeoutSeconds:     defaultImageTimeout,
			DefaultStylePreset: defaultStylePreset,
		},
		Pipeline: Pipeline{
			WorkerConcurrency:  defaultWorkerConcurrency,
			UnitTimeoutSeconds: defaultUnitTimeout,
			RetryAttempts:      defaultRetryAttempts,
			RetryBackoffMS:     defaultRetryBackoffMS,
			RetryMaxBackoffMS:  defaultRetryMaxBackoffMS,
			FailureThreshold:   defaultFailureThreshold,
			ImagesPerScene:     defaultImagesPerScene,
			MaxImagesPerScene:  defaultMaxImagesPerScene,
			MaxConcurrentJobs:  defaultMaxConcurrentJobs,
			DefaultLanguage:    defaultLanguage,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeout,
			OnSuccess:             true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
