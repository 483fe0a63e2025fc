package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/agentalign/internal/alignment"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "agentalign", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, alignment.DefaultThresholds(), cfg.Thresholds)

	assert.Equal(t, 3, cfg.Orchestrator.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Orchestrator.Timeout)
	assert.Equal(t, 0, cfg.Orchestrator.MaxParallel)
	assert.True(t, cfg.Orchestrator.EnableHITL)
	assert.Equal(t, "./configs/agents.yaml", cfg.Orchestrator.RosterPath)

	assert.Equal(t, "http://localhost:8080/v1/chat/completions", cfg.LLM.Endpoint)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.LLM.Model)
	assert.Equal(t, 30*time.Second, cfg.LLM.GetTimeout())

	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "localhost:6379", cfg.Redis.GetRedisAddr())
	assert.Equal(t, 24*time.Hour, cfg.Redis.HistoryTTL)
	assert.Equal(t, APIServerPort, cfg.API.Port)
	assert.Equal(t, MetricsPort, cfg.Monitoring.PrometheusPort)
	assert.True(t, cfg.Monitoring.EnableMetrics)
}

func TestLoadFromFile(t *testing.T) {
	content := `
app:
  environment: staging
  log_level: debug
thresholds:
  hard_disagreement_confidence_spread: 0.45
orchestrator:
  max_retries: 5
  timeout: 45s
llm:
  model: eval-large
  temperature: 0.2
database:
  password: Str0ng&Dur@ble#Pg9x
redis:
  history_ttl: 1h
api:
  port: 9090
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.App.Environment)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, 0.45, cfg.Thresholds.HardDisagreementConfidenceSpread)
	assert.Equal(t, 5, cfg.Orchestrator.MaxRetries)
	assert.Equal(t, 45*time.Second, cfg.Orchestrator.Timeout)
	assert.Equal(t, "eval-large", cfg.LLM.Model)
	assert.Equal(t, 0.2, cfg.LLM.Temperature)
	assert.Equal(t, time.Hour, cfg.Redis.HistoryTTL)
	assert.Equal(t, 9090, cfg.API.Port)

	// Values the file does not mention keep their defaults.
	assert.Equal(t, "agentalign", cfg.App.Name)
	assert.Equal(t, alignment.DefaultThresholds().SoftDisagreementConfidenceSpread,
		cfg.Thresholds.SoftDisagreementConfidenceSpread)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	content := `
orchestrator:
  max_retries: 0
llm:
  temperature: 3.5
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orchestrator.max_retries")
	assert.Contains(t, err.Error(), "llm.temperature")
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "missing roster path",
			mutate: func(c *Config) { c.Orchestrator.RosterPath = "" },
			field:  "orchestrator.roster_path",
		},
		{
			name:   "negative max parallel",
			mutate: func(c *Config) { c.Orchestrator.MaxParallel = -1 },
			field:  "orchestrator.max_parallel",
		},
		{
			name:   "nats url with wrong scheme",
			mutate: func(c *Config) { c.NATS.URL = "http://localhost:4222" },
			field:  "nats.url",
		},
		{
			name:   "zero history ttl",
			mutate: func(c *Config) { c.Redis.HistoryTTL = 0 },
			field:  "redis.history_ttl",
		},
		{
			name: "telegram enabled without token",
			mutate: func(c *Config) {
				c.Notify.Telegram.Enabled = true
				c.Notify.Telegram.ChatID = 42
			},
			field: "notify.telegram.bot_token",
		},
		{
			name: "fcm enabled without device tokens",
			mutate: func(c *Config) {
				c.Notify.FCM.Enabled = true
				c.Notify.FCM.CredentialsFile = "creds.json"
			},
			field: "notify.fcm.tokens",
		},
		{
			name:   "webhook url with wrong scheme",
			mutate: func(c *Config) { c.Notify.WebhookURL = "ftp://hooks.internal" },
			field:  "notify.webhook_url",
		},
		{
			name:   "missing database password outside development",
			mutate: func(c *Config) { c.App.Environment = "staging" },
			field:  "database.password",
		},
		{
			name:   "llm timeout below floor",
			mutate: func(c *Config) { c.LLM.Timeout = 500 },
			field:  "llm.timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestGetDSN(t *testing.T) {
	db := DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "evaluator",
		Password: "pw",
		Database: "agentalign",
		SSLMode:  "require",
	}
	assert.Equal(t,
		"host=db.internal port=5433 user=evaluator password=pw dbname=agentalign sslmode=require",
		db.GetDSN())

	db.PoolSize = 25
	assert.Equal(t,
		"host=db.internal port=5433 user=evaluator password=pw dbname=agentalign sslmode=require pool_max_conns=25",
		db.GetDSN())
}

func TestGetAPIAddr(t *testing.T) {
	api := APIConfig{Host: "0.0.0.0", Port: 8081}
	assert.Equal(t, "0.0.0.0:8081", api.GetAPIAddr())
}

func TestLLMClientConfig(t *testing.T) {
	section := LLMConfig{
		Endpoint:          "http://gateway:8080/v1/chat/completions",
		APIKey:            "k",
		Model:             "eval-large",
		Temperature:       0.4,
		MaxTokens:         1500,
		Timeout:           20000,
		RequestsPerSecond: 2,
		Burst:             4,
	}

	cc := section.ClientConfig()
	assert.Equal(t, section.Endpoint, cc.Endpoint)
	assert.Equal(t, "eval-large", cc.Model)
	assert.Equal(t, 20*time.Second, cc.Timeout)
	assert.Equal(t, 2.0, cc.RequestsPerSecond)
	assert.Equal(t, 4, cc.Burst)
}
