package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/mailsentry/")
	v.AddConfigPath("$HOME/.mailsentry")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("MAILSENTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// HTTP API defaults
	v.SetDefault("server.http_address", "0.0.0.0:8080")
	v.SetDefault("server.tenant_id", "default")

	// SMTP filter defaults
	v.SetDefault("smtp.enabled", false)
	v.SetDefault("smtp.listen_address", "0.0.0.0:10025")
	v.SetDefault("smtp.relay_address", "127.0.0.1")
	v.SetDefault("smtp.relay_port", 10026)
	v.SetDefault("smtp.relay_enabled", true)
	v.SetDefault("smtp.reject_blocked", false)
	v.SetDefault("smtp.modify_subject", true)
	v.SetDefault("smtp.subject_prefix", "[SUSPICIOUS] ")
	v.SetDefault("smtp.max_concurrent", 16)

	// Detection defaults
	v.SetDefault("detection.suspicious_threshold", 55.0)
	v.SetDefault("detection.quarantine_threshold", 73.0)
	v.SetDefault("detection.block_threshold", 85.0)
	v.SetDefault("detection.llm_daily_quota", 500)
	v.SetDefault("detection.skip_llm", false)
	v.SetDefault("detection.skip_sandbox", false)
	v.SetDefault("detection.layer_timeout", "10s")
	v.SetDefault("detection.llm_timeout", "30s")
	v.SetDefault("detection.reputation_timeout", "5s")

	// LLM provider defaults
	v.SetDefault("llm.provider", "openai")

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-v2")
	v.SetDefault("bedrock.max_tokens", 1000)
	v.SetDefault("bedrock.temperature", 0.1)
	v.SetDefault("bedrock.top_p", 0.9)
	v.SetDefault("bedrock.max_body_size", 4096)

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-pro")
	v.SetDefault("gemini.max_tokens", 1000)
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.top_p", 0.9)
	v.SetDefault("gemini.max_body_size", 4096)

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model_name", "gpt-4")
	v.SetDefault("openai.max_tokens", 1000)
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.top_p", 0.9)
	v.SetDefault("openai.max_body_size", 4096)

	// Lookalike learning defaults
	v.SetDefault("lookalike.store_type", "memory")
	v.SetDefault("lookalike.sqlite_path", "/data/mailsentry_patterns.db")
	v.SetDefault("lookalike.mysql_dsn", "user:password@tcp(localhost:3306)/mailsentry?parseTime=true")
	v.SetDefault("lookalike.protected_brands", map[string]string{})
	v.SetDefault("lookalike.min_confidence", 0.5)

	// Threat intel defaults
	v.SetDefault("intel.cache_ttl", "5m")
	v.SetDefault("intel.feeds", []map[string]interface{}{})

	// Verdict store defaults
	v.SetDefault("verdicts.store_type", "memory")
	v.SetDefault("verdicts.postgres_dsn", "postgres://localhost/mailsentry?sslmode=disable")

	// Tenant policy and classification defaults
	v.SetDefault("policies", []map[string]interface{}{})
	v.SetDefault("classifier.marketing_domains", []string{})
	v.SetDefault("classifier.transactional_domains", []string{})
	v.SetDefault("classifier.trusted_message_count", 25)

	// Organization context for the BEC and rules layers
	v.SetDefault("organization.internal_domains", []string{})
	v.SetDefault("organization.executives", []string{})
	v.SetDefault("organization.vip_recipients", []string{})

	// Notification defaults
	v.SetDefault("notify.webhook_url", "")

	// Reputation list defaults
	v.SetDefault("reputation.blocked_domains", []string{})
	v.SetDefault("reputation.suspicious_domains", []string{})
	v.SetDefault("reputation.nonprofit_domains", []string{})
	v.SetDefault("reputation.blocked_ips", []string{})
	v.SetDefault("reputation.tracking_domains", []string{})
	v.SetDefault("reputation.trusted_senders", []map[string]interface{}{})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
