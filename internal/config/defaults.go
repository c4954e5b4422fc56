package config

const (
	defaultDataDir              = "~/.local/share/quill"
	defaultLogDir               = "~/.local/share/quill/logs"
	defaultAPIBind              = "127.0.0.1:7590"
	defaultLLMBackend           = "chat"
	defaultLLMBaseURL           = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel             = "google/gemini-3-flash-preview"
	defaultLLMTimeoutSeconds    = 60
	defaultHarvestMaxItems      = 10
	defaultHarvestRate          = 1.0
	defaultHarvestUserAgent     = "Quill/dev"
	defaultHarvestStartLocator  = "https://en.wikisource.org/wiki/The_Gates_of_Morning/Book_1/Chapter_1"
	defaultStageTimeoutSeconds  = 120
	defaultTransformCandidates  = 1
	defaultRegistryTTLSeconds   = 3600
	defaultRegistrySweepSeconds = 300
	defaultExplorationRate      = 0.1
	defaultLearningRate         = 0.1
	defaultDiscountFactor       = 0.9
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
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
			Backend:        defaultLLMBackend,
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Harvester: Harvester{
			MaxItems:          defaultHarvestMaxItems,
			RequestsPerSecond: defaultHarvestRate,
			UserAgent:         defaultHarvestUserAgent,
			StartLocator:      defaultHarvestStartLocator,
		},
		Pipeline: Pipeline{
			StageTimeoutSeconds:  defaultStageTimeoutSeconds,
			TransformCandidates:  defaultTransformCandidates,
			RegistryTTLSeconds:   defaultRegistryTTLSeconds,
			RegistrySweepSeconds: defaultRegistrySweepSeconds,
		},
		Ranking: Ranking{
			ExplorationRate: defaultExplorationRate,
			LearningRate:    defaultLearningRate,
			DiscountFactor:  defaultDiscountFactor,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
