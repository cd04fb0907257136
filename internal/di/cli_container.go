package di

import (
	"flag"

	"go.uber.org/dig"
	"go.uber.org/zap"

	llmadapter "github.com/mailsentry/mailsentry/internal/adapters/llm"
	"github.com/mailsentry/mailsentry/internal/adapters/store"
	"github.com/mailsentry/mailsentry/internal/analyzers/bec"
	"github.com/mailsentry/mailsentry/internal/analyzers/behavioral"
	"github.com/mailsentry/mailsentry/internal/analyzers/rules"
	"github.com/mailsentry/mailsentry/internal/analyzers/sandbox"
	"github.com/mailsentry/mailsentry/internal/config"
	"github.com/mailsentry/mailsentry/internal/factory"
	"github.com/mailsentry/mailsentry/internal/logging"
	"github.com/mailsentry/mailsentry/internal/lookalike"
	"github.com/mailsentry/mailsentry/internal/pipeline"
	"github.com/mailsentry/mailsentry/internal/utils"
)

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	// LLM provider flags
	Provider    string
	MaxTokens   int
	Temperature float64
	TopP        float64
	MaxBodySize int

	// Bedrock flags
	BedrockRegion  string
	BedrockModelID string

	// Gemini flags
	GeminiAPIKey    string
	GeminiModelName string

	// OpenAI flags
	OpenAIAPIKey    string
	OpenAIModelName string

	// Input flags
	InputFile  string
	TenantID   string
	JSONOutput bool
	Verbose    bool
	JSONLog    bool
	ConfigFile string
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	flags := &CLIFlags{}

	// LLM provider flags
	flag.StringVar(&flags.Provider, "provider", "none", "LLM provider (none, openai, gemini, bedrock)")
	flag.IntVar(&flags.MaxTokens, "max-tokens", 1000, "Maximum tokens for LLM response")
	flag.Float64Var(&flags.Temperature, "temperature", 0.1, "Temperature for LLM generation")
	flag.Float64Var(&flags.TopP, "top-p", 0.9, "Top-p for LLM generation")
	flag.IntVar(&flags.MaxBodySize, "max-body-size", 4096, "Maximum email body size to send to LLM")

	// Bedrock flags
	flag.StringVar(&flags.BedrockRegion, "bedrock-region", "us-east-1", "AWS region for Bedrock")
	flag.StringVar(&flags.BedrockModelID, "bedrock-model", "anthropic.claude-v2", "Bedrock model ID")

	// Gemini flags
	flag.StringVar(&flags.GeminiAPIKey, "gemini-api-key", "", "API key for Google Gemini")
	flag.StringVar(&flags.GeminiModelName, "gemini-model", "gemini-pro", "Gemini model name")

	// OpenAI flags
	flag.StringVar(&flags.OpenAIAPIKey, "openai-api-key", "", "API key for OpenAI")
	flag.StringVar(&flags.OpenAIModelName, "openai-model", "gpt-4", "OpenAI model name")

	// Input flags
	flag.StringVar(&flags.InputFile, "file", "", "Input email file (use stdin if not specified)")
	flag.StringVar(&flags.TenantID, "tenant", "default", "Tenant to analyze on behalf of")
	flag.BoolVar(&flags.JSONOutput, "json", false, "Print the verdict as JSON")
	flag.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	flag.StringVar(&flags.ConfigFile, "config", "", "Path to config file (overrides command line flags)")

	flag.Parse()
	return flags
}

// BuildCLIContainer creates a dependency injection container for one-shot
// analysis: everything in memory, no policy engine, no transports.
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		if flags.ConfigFile != "" {
			cfg, err := config.New()
			if err != nil {
				return nil, err
			}
			logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
			return cfg, nil
		}
		return createConfigFromFlags(flags), nil
	}); err != nil {
		return nil, err
	}

	// Register text processor
	if err := container.Provide(func(logger *zap.Logger) *utils.TextProcessor {
		return utils.NewTextProcessor(logger)
	}); err != nil {
		return nil, err
	}

	// Register LLM client
	if err := container.Provide(factory.NewLLMFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.LLMFactory) (llmadapter.Client, error) {
		return f.CreateClient()
	}); err != nil {
		return nil, err
	}

	// Register the orchestrator over in-memory collaborators
	if err := container.Provide(func(cfg *config.Config, llmClient llmadapter.Client, logger *zap.Logger) *pipeline.Orchestrator {
		memory := store.NewMemoryStore()
		lookalikes := lookalike.NewService(memory, logger)

		analyzers := pipeline.Analyzers{
			Deterministic: rules.NewAnalyzer(
				cfg.GetServer().TenantID,
				cfg.GetStringSlice("organization.internal_domains"),
				lookalikes,
				logger,
			),
			Behavioral: behavioral.NewAnalyzer(memory, logger),
			BEC: bec.NewAnalyzer(
				cfg.GetStringSlice("organization.executives"),
				cfg.GetStringSlice("organization.vip_recipients"),
				logger,
			),
			Sandbox: sandbox.NewAnalyzer(nil, logger),
		}
		if llmClient != nil {
			analyzers.LLM = llmadapter.NewAnalyzer(llmClient, logger)
		}

		detection := cfg.GetDetection()
		return pipeline.NewOrchestrator(pipeline.Params{
			Analyzers: analyzers,
			Quota:     pipeline.NewLLMQuota(detection.LLMDailyQuota),
			Store:     memory,
			Defaults:  detection,
			Logger:    logger,
		})
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags(flags *CLIFlags) *config.Config {
	v := config.NewEmptyViper()

	v.Set("llm.provider", flags.Provider)

	switch flags.Provider {
	case "bedrock":
		v.Set("bedrock.region", flags.BedrockRegion)
		v.Set("bedrock.model_id", flags.BedrockModelID)
		v.Set("bedrock.max_tokens", flags.MaxTokens)
		v.Set("bedrock.temperature", flags.Temperature)
		v.Set("bedrock.top_p", flags.TopP)
		v.Set("bedrock.max_body_size", flags.MaxBodySize)
	case "gemini":
		v.Set("gemini.api_key", flags.GeminiAPIKey)
		v.Set("gemini.model_name", flags.GeminiModelName)
		v.Set("gemini.max_tokens", flags.MaxTokens)
		v.Set("gemini.temperature", flags.Temperature)
		v.Set("gemini.top_p", flags.TopP)
		v.Set("gemini.max_body_size", flags.MaxBodySize)
	case "openai":
		v.Set("openai.api_key", flags.OpenAIAPIKey)
		v.Set("openai.model_name", flags.OpenAIModelName)
		v.Set("openai.max_tokens", flags.MaxTokens)
		v.Set("openai.temperature", flags.Temperature)
		v.Set("openai.top_p", flags.TopP)
		v.Set("openai.max_body_size", flags.MaxBodySize)
	}

	return config.NewFromViper(v)
}
