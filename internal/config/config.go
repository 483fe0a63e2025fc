package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/ajitpratap0/agentalign/internal/alignment"
	"github.com/ajitpratap0/agentalign/internal/llm"
)

// Config holds all application configuration
type Config struct {
	App          AppConfig            `mapstructure:"app"`
	Thresholds   alignment.Thresholds `mapstructure:"thresholds"`
	Orchestrator OrchestratorConfig   `mapstructure:"orchestrator"`
	LLM          LLMConfig            `mapstructure:"llm"`
	MCP          MCPConfig            `mapstructure:"mcp"`
	NATS         NATSConfig           `mapstructure:"nats"`
	Redis        RedisConfig          `mapstructure:"redis"`
	Database     DatabaseConfig       `mapstructure:"database"`
	Notify       NotifyConfig         `mapstructure:"notify"`
	API          APIConfig            `mapstructure:"api"`
	Monitoring   MonitoringConfig     `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
}

// OrchestratorConfig contains evaluation pipeline settings
type OrchestratorConfig struct {
	MaxRetries  int           `mapstructure:"max_retries"`  // total attempts per agent
	Timeout     time.Duration `mapstructure:"timeout"`      // per-attempt deadline
	MaxParallel int           `mapstructure:"max_parallel"` // 0 = unbounded
	EnableHITL  bool          `mapstructure:"enable_hitl"`
	RosterPath  string        `mapstructure:"roster_path"` // YAML agent roster
}

// LLMConfig contains LLM gateway settings
type LLMConfig struct {
	Endpoint          string  `mapstructure:"endpoint"`            // "http://localhost:8080/v1/chat/completions"
	APIKey            string  `mapstructure:"api_key"`             // usually loaded from Vault
	Model             string  `mapstructure:"model"`               // "claude-sonnet-4-20250514"
	Temperature       float64 `mapstructure:"temperature"`         // 0.7
	MaxTokens         int     `mapstructure:"max_tokens"`          // 2000
	Timeout           int     `mapstructure:"timeout"`             // 30000 (ms)
	RequestsPerSecond float64 `mapstructure:"requests_per_second"` // provider rate limit
	Burst             int     `mapstructure:"burst"`
}

// MCPConfig lists the MCP tool servers available to roster agents.
type MCPConfig struct {
	Servers []MCPServerConfig `mapstructure:"servers"`
}

// MCPServerConfig describes one MCP server connection. Type selects the
// transport: stdio launches Command as a child process, http connects to URL.
type MCPServerConfig struct {
	Name    string   `mapstructure:"name"`
	Type    string   `mapstructure:"type"` // stdio or http
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
	Env     []string `mapstructure:"env"` // KEY=VALUE pairs appended to the child environment
	URL     string   `mapstructure:"url"`
}

// NATSConfig contains NATS messaging settings
type NATSConfig struct {
	URL string `mapstructure:"url"`
}

// RedisConfig contains Redis settings for the evaluation history store
type RedisConfig struct {
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	HistoryTTL time.Duration `mapstructure:"history_ttl"`
}

// DatabaseConfig contains PostgreSQL settings for the durable archive
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// NotifyConfig contains HITL escalation delivery settings
type NotifyConfig struct {
	WebhookURL string         `mapstructure:"webhook_url"`
	Telegram   TelegramConfig `mapstructure:"telegram"`
	FCM        FCMConfig      `mapstructure:"fcm"`
}

// TelegramConfig contains Telegram bot delivery settings
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"` // usually loaded from Vault
	ChatID   int64  `mapstructure:"chat_id"`
}

// FCMConfig contains Firebase Cloud Messaging delivery settings
type FCMConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	CredentialsFile string   `mapstructure:"credentials_file"`
	Tokens          []string `mapstructure:"tokens"` // reviewer device tokens
}

// APIConfig contains REST API settings
type APIConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable overrides
	v.AutomaticEnv()
	v.SetEnvPrefix("AGENTALIGN")

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	// Unmarshal into struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration using comprehensive validation
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "agentalign")
	v.SetDefault("app.version", Version)
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Alignment threshold defaults
	defaults := alignment.DefaultThresholds()
	v.SetDefault("thresholds.soft_disagreement_confidence_spread", defaults.SoftDisagreementConfidenceSpread)
	v.SetDefault("thresholds.hard_disagreement_confidence_spread", defaults.HardDisagreementConfidenceSpread)
	v.SetDefault("thresholds.insufficient_signal_avg_confidence", defaults.InsufficientSignalAvgConfidence)
	v.SetDefault("thresholds.min_confidence_for_consensus", defaults.MinConfidenceForConsensus)
	v.SetDefault("thresholds.scalar_decision_tolerance_ratio", defaults.ScalarDecisionToleranceRatio)
	v.SetDefault("thresholds.reasoning_overlap_threshold", defaults.ReasoningOverlapThreshold)
	v.SetDefault("thresholds.evidence_consistency_threshold", defaults.EvidenceConsistencyThreshold)

	// Orchestrator defaults
	v.SetDefault("orchestrator.max_retries", 3)
	v.SetDefault("orchestrator.timeout", "30s")
	v.SetDefault("orchestrator.max_parallel", 0)
	v.SetDefault("orchestrator.enable_hitl", true)
	v.SetDefault("orchestrator.roster_path", "./configs/agents.yaml")

	// LLM defaults
	v.SetDefault("llm.endpoint", "http://localhost:8080/v1/chat/completions")
	v.SetDefault("llm.model", "claude-sonnet-4-20250514")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 2000)
	v.SetDefault("llm.timeout", 30000)
	v.SetDefault("llm.requests_per_second", 5)
	v.SetDefault("llm.burst", 5)

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.history_ttl", "24h")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "agentalign")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	// Notification defaults: all channels off until configured
	v.SetDefault("notify.telegram.enabled", false)
	v.SetDefault("notify.fcm.enabled", false)

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", APIServerPort)
	v.SetDefault("api.allowed_origins", []string{"http://localhost:3000"})

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus_port", MetricsPort)
	v.SetDefault("monitoring.enable_metrics", true)
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
	if c.PoolSize > 0 {
		dsn += fmt.Sprintf(" pool_max_conns=%d", c.PoolSize)
	}
	return dsn
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAPIAddr returns the API server address
func (c *APIConfig) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetTimeout returns the LLM timeout as time.Duration
func (c *LLMConfig) GetTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// ClientConfig converts the section into the LLM client's configuration.
func (c *LLMConfig) ClientConfig() llm.ClientConfig {
	return llm.ClientConfig{
		Endpoint:          c.Endpoint,
		APIKey:            c.APIKey,
		Model:             c.Model,
		Temperature:       c.Temperature,
		MaxTokens:         c.MaxTokens,
		Timeout:           c.GetTimeout(),
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
	}
}
