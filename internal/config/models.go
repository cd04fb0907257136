package config

import (
	"time"

	"github.com/mailsentry/mailsentry/internal/core"
)

// ServerConfig covers the HTTP API surface
type ServerConfig struct {
	HTTPAddress string
	TenantID    string
}

// SMTPConfig covers the inline content filter
type SMTPConfig struct {
	Enabled       bool
	ListenAddress string
	RelayAddress  string
	RelayPort     int
	RelayEnabled  bool
	RejectBlocked bool
	ModifySubject bool
	SubjectPrefix string
	MaxConcurrent int
}

// LLMConfig represents the configuration for the LLM provider
type LLMConfig struct {
	Provider string
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// LookalikeConfig covers the adaptive pattern learning service
type LookalikeConfig struct {
	StoreType  string
	SQLitePath string
	MySQLDSN   string

	// ProtectedBrands maps brand name to its legitimate domain
	ProtectedBrands map[string]string
	MinConfidence   float64
}

// FeedConfig describes one threat intel feed endpoint
type FeedConfig struct {
	Name        string
	BaseURL     string
	APIKey      string
	Reliability float64
}

// IntelConfig covers the threat intel aggregator
type IntelConfig struct {
	CacheTTL time.Duration
	Feeds    []FeedConfig
}

// VerdictsConfig covers verdict persistence
type VerdictsConfig struct {
	StoreType   string
	PostgresDSN string
}

// ReputationConfig carries the static entity lists
type ReputationConfig struct {
	BlockedDomains    []string
	SuspiciousDomains []string
	NonprofitDomains  []string
	BlockedIPs        []string
	TrackingDomains   []string
}

// GetServer returns the HTTP server configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		HTTPAddress: c.GetString("server.http_address"),
		TenantID:    c.GetString("server.tenant_id"),
	}
}

// GetSMTP returns the SMTP filter configuration
func (c *Config) GetSMTP() SMTPConfig {
	return SMTPConfig{
		Enabled:       c.GetBool("smtp.enabled"),
		ListenAddress: c.GetString("smtp.listen_address"),
		RelayAddress:  c.GetString("smtp.relay_address"),
		RelayPort:     c.GetInt("smtp.relay_port"),
		RelayEnabled:  c.GetBool("smtp.relay_enabled"),
		RejectBlocked: c.GetBool("smtp.reject_blocked"),
		ModifySubject: c.GetBool("smtp.modify_subject"),
		SubjectPrefix: c.GetString("smtp.subject_prefix"),
		MaxConcurrent: c.GetInt("smtp.max_concurrent"),
	}
}

// GetDetection builds the pipeline tuning from configuration,
// starting from the built-in defaults
func (c *Config) GetDetection() core.DetectionConfig {
	cfg := core.DefaultDetectionConfig()
	cfg.SuspiciousThreshold = c.GetFloat64("detection.suspicious_threshold")
	cfg.QuarantineThreshold = c.GetFloat64("detection.quarantine_threshold")
	cfg.BlockThreshold = c.GetFloat64("detection.block_threshold")
	cfg.LLMDailyQuota = c.GetInt("detection.llm_daily_quota")
	cfg.SkipLLM = c.GetBool("detection.skip_llm")
	cfg.SkipSandbox = c.GetBool("detection.skip_sandbox")
	if d, err := c.GetDuration("detection.layer_timeout"); err == nil {
		cfg.LayerTimeout = d
	}
	if d, err := c.GetDuration("detection.llm_timeout"); err == nil {
		cfg.LLMTimeout = d
	}
	if d, err := c.GetDuration("detection.reputation_timeout"); err == nil {
		cfg.ReputationTimeout = d
	}
	return cfg
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider: c.GetString("llm.provider"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		MaxBodySize: c.GetInt("bedrock.max_body_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		MaxBodySize: c.GetInt("gemini.max_body_size"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		MaxBodySize: c.GetInt("openai.max_body_size"),
	}
}

// GetLookalike returns the lookalike learning configuration
func (c *Config) GetLookalike() LookalikeConfig {
	return LookalikeConfig{
		StoreType:       c.GetString("lookalike.store_type"),
		SQLitePath:      c.GetString("lookalike.sqlite_path"),
		MySQLDSN:        c.GetString("lookalike.mysql_dsn"),
		ProtectedBrands: c.v.GetStringMapString("lookalike.protected_brands"),
		MinConfidence:   c.GetFloat64("lookalike.min_confidence"),
	}
}

// GetIntel returns the threat intel configuration
func (c *Config) GetIntel() IntelConfig {
	ttl, err := c.GetDuration("intel.cache_ttl")
	if err != nil {
		ttl = 5 * time.Minute
	}
	var feeds []FeedConfig
	raw := c.v.Get("intel.feeds")
	if entries, ok := raw.([]interface{}); ok {
		for _, entry := range entries {
			m, ok := entry.(map[string]interface{})
			if !ok {
				continue
			}
			feed := FeedConfig{Reliability: 0.5}
			if s, ok := m["name"].(string); ok {
				feed.Name = s
			}
			if s, ok := m["base_url"].(string); ok {
				feed.BaseURL = s
			}
			if s, ok := m["api_key"].(string); ok {
				feed.APIKey = s
			}
			switch r := m["reliability"].(type) {
			case float64:
				feed.Reliability = r
			case int:
				feed.Reliability = float64(r)
			}
			if feed.Name != "" {
				feeds = append(feeds, feed)
			}
		}
	}
	return IntelConfig{CacheTTL: ttl, Feeds: feeds}
}

// GetVerdicts returns the verdict store configuration
func (c *Config) GetVerdicts() VerdictsConfig {
	return VerdictsConfig{
		StoreType:   c.GetString("verdicts.store_type"),
		PostgresDSN: c.GetString("verdicts.postgres_dsn"),
	}
}

// GetReputation returns the static reputation lists
func (c *Config) GetReputation() ReputationConfig {
	return ReputationConfig{
		BlockedDomains:    c.GetStringSlice("reputation.blocked_domains"),
		SuspiciousDomains: c.GetStringSlice("reputation.suspicious_domains"),
		NonprofitDomains:  c.GetStringSlice("reputation.nonprofit_domains"),
		BlockedIPs:        c.GetStringSlice("reputation.blocked_ips"),
		TrackingDomains:   c.GetStringSlice("reputation.tracking_domains"),
	}
}
