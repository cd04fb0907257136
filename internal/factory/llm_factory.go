package factory

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	openaiapi "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mailsentry/mailsentry/internal/adapters/llm"
	"github.com/mailsentry/mailsentry/internal/config"
	"github.com/mailsentry/mailsentry/internal/utils"
)

// LLMFactory creates LLM clients
type LLMFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *LLMFactory {
	return &LLMFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateClient creates an LLM client based on the configured provider.
// Provider "none" returns nil, which makes the pipeline skip the LLM layer.
func (f *LLMFactory) CreateClient() (llm.Client, error) {
	switch provider := f.cfg.GetLLM().Provider; provider {
	case "", "none":
		return nil, nil
	case "openai":
		return f.createOpenAI()
	case "gemini":
		return f.createGemini()
	case "bedrock":
		return f.createBedrock()
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

func (f *LLMFactory) createOpenAI() (llm.Client, error) {
	cfg := f.cfg.GetOpenAI()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	client := openaiapi.NewClient(cfg.APIKey)
	return llm.NewOpenAIClient(
		client,
		cfg.ModelName,
		cfg.MaxTokens,
		cfg.Temperature,
		cfg.TopP,
		cfg.MaxBodySize,
		f.logger,
		f.textProcessor,
	), nil
}

func (f *LLMFactory) createGemini() (llm.Client, error) {
	cfg := f.cfg.GetGemini()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	return llm.NewGeminiClient(
		cfg.APIKey,
		cfg.ModelName,
		cfg.MaxTokens,
		cfg.Temperature,
		cfg.TopP,
		cfg.MaxBodySize,
		f.logger,
		f.textProcessor,
	)
}

func (f *LLMFactory) createBedrock() (llm.Client, error) {
	cfg := f.cfg.GetBedrock()

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return llm.NewBedrockClient(
		bedrockruntime.NewFromConfig(awsCfg),
		cfg.ModelID,
		cfg.MaxTokens,
		cfg.Temperature,
		cfg.TopP,
		cfg.MaxBodySize,
		f.logger,
		f.textProcessor,
	), nil
}
