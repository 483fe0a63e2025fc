package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

// Validate performs comprehensive configuration validation
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateThresholds()...)
	errors = append(errors, c.validateOrchestrator()...)
	errors = append(errors, c.validateLLM()...)
	errors = append(errors, c.validateMCP()...)
	errors = append(errors, c.validateNATS()...)
	errors = append(errors, c.validateRedis()...)
	errors = append(errors, c.validateDatabase()...)
	errors = append(errors, c.validateNotify()...)
	errors = append(errors, c.validateAPI()...)

	if len(errors) > 0 {
		return errors
	}

	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	if c.App.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "app.name",
			Message: "Application name is required",
		})
	}

	if c.App.Environment == "" {
		errors = append(errors, ValidationError{
			Field:   "app.environment",
			Message: "Environment is required (development, staging, or production)",
		})
	} else {
		validEnvs := []string{"development", "staging", "production"}
		valid := false
		for _, env := range validEnvs {
			if c.App.Environment == env {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, ValidationError{
				Field:   "app.environment",
				Message: fmt.Sprintf("Invalid environment '%s'. Must be one of: %v", c.App.Environment, validEnvs),
			})
		}
	}

	if c.App.LogLevel == "" {
		errors = append(errors, ValidationError{
			Field:   "app.log_level",
			Message: "Log level is required (debug, info, warn, error)",
		})
	}

	return errors
}

func (c *Config) validateThresholds() ValidationErrors {
	if err := c.Thresholds.Validate(); err != nil {
		return ValidationErrors{{
			Field:   "thresholds",
			Message: err.Error(),
		}}
	}
	return nil
}

func (c *Config) validateOrchestrator() ValidationErrors {
	var errors ValidationErrors

	if c.Orchestrator.MaxRetries < 1 {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.max_retries",
			Message: "Max retries must be at least 1 (total attempts per agent)",
		})
	}

	if c.Orchestrator.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.timeout",
			Message: "Per-attempt timeout must be positive",
		})
	}

	if c.Orchestrator.MaxParallel < 0 {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.max_parallel",
			Message: "Max parallel cannot be negative (0 means unbounded)",
		})
	}

	if c.Orchestrator.RosterPath == "" {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.roster_path",
			Message: "Agent roster path is required",
		})
	}

	return errors
}

func (c *Config) validateLLM() ValidationErrors {
	var errors ValidationErrors

	if c.LLM.Endpoint == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.endpoint",
			Message: "LLM endpoint is required",
		})
	}

	if c.LLM.Model == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.model",
			Message: "LLM model is required",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: fmt.Sprintf("Temperature %v outside valid range [0, 2]", c.LLM.Temperature),
		})
	}

	if c.LLM.MaxTokens < 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "Max tokens must be at least 1",
		})
	}

	if c.LLM.Timeout < 1000 {
		errors = append(errors, ValidationError{
			Field:   "llm.timeout",
			Message: "LLM timeout must be at least 1000ms",
		})
	}

	if c.LLM.RequestsPerSecond <= 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.requests_per_second",
			Message: "Requests per second must be positive",
		})
	}

	return errors
}

func (c *Config) validateMCP() ValidationErrors {
	var errors ValidationErrors

	seen := make(map[string]bool, len(c.MCP.Servers))
	for i, server := range c.MCP.Servers {
		field := fmt.Sprintf("mcp.servers[%d]", i)

		if server.Name == "" {
			errors = append(errors, ValidationError{
				Field:   field + ".name",
				Message: "MCP server name is required",
			})
		} else if seen[server.Name] {
			errors = append(errors, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("Duplicate MCP server name '%s'", server.Name),
			})
		}
		seen[server.Name] = true

		switch server.Type {
		case "stdio":
			if server.Command == "" {
				errors = append(errors, ValidationError{
					Field:   field + ".command",
					Message: "Command is required for stdio MCP servers",
				})
			}
		case "http":
			if !strings.HasPrefix(server.URL, "http://") && !strings.HasPrefix(server.URL, "https://") {
				errors = append(errors, ValidationError{
					Field:   field + ".url",
					Message: fmt.Sprintf("Invalid MCP server URL '%s'. Must start with http:// or https://", server.URL),
				})
			}
		default:
			errors = append(errors, ValidationError{
				Field:   field + ".type",
				Message: fmt.Sprintf("Unknown MCP server type '%s'. Must be 'stdio' or 'http'", server.Type),
			})
		}
	}

	return errors
}

func (c *Config) validateNATS() ValidationErrors {
	var errors ValidationErrors

	if c.NATS.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "nats.url",
			Message: "NATS URL is required",
		})
	} else if !strings.HasPrefix(c.NATS.URL, "nats://") && !strings.HasPrefix(c.NATS.URL, "tls://") {
		errors = append(errors, ValidationError{
			Field:   "nats.url",
			Message: fmt.Sprintf("Invalid NATS URL '%s'. Must start with nats:// or tls://", c.NATS.URL),
		})
	}

	return errors
}

func (c *Config) validateRedis() ValidationErrors {
	var errors ValidationErrors

	if c.Redis.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "redis.host",
			Message: "Redis host is required",
		})
	}

	if c.Redis.Port == 0 {
		errors = append(errors, ValidationError{
			Field:   "redis.port",
			Message: "Redis port is required",
		})
	} else if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "redis.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Redis.Port),
		})
	}

	if c.Redis.HistoryTTL <= 0 {
		errors = append(errors, ValidationError{
			Field:   "redis.history_ttl",
			Message: "History TTL must be positive",
		})
	}

	return errors
}

func (c *Config) validateDatabase() ValidationErrors {
	var errors ValidationErrors

	if c.Database.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "database.host",
			Message: "Database host is required",
		})
	}

	if c.Database.Port == 0 {
		errors = append(errors, ValidationError{
			Field:   "database.port",
			Message: "Database port is required",
		})
	} else if c.Database.Port < 1 || c.Database.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "database.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Database.Port),
		})
	}

	if c.Database.User == "" {
		errors = append(errors, ValidationError{
			Field:   "database.user",
			Message: "Database user is required",
		})
	}

	if c.Database.Database == "" {
		errors = append(errors, ValidationError{
			Field:   "database.database",
			Message: "Database name is required",
		})
	}

	if c.Database.Password == "" && c.App.Environment != "development" {
		errors = append(errors, ValidationError{
			Field:   "database.password",
			Message: "Database password is required in non-development environments",
		})
	}

	if c.Database.PoolSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.pool_size",
			Message: "Database pool size must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateNotify() ValidationErrors {
	var errors ValidationErrors

	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.BotToken == "" {
			errors = append(errors, ValidationError{
				Field:   "notify.telegram.bot_token",
				Message: "Telegram bot token is required when Telegram delivery is enabled",
			})
		}
		if c.Notify.Telegram.ChatID == 0 {
			errors = append(errors, ValidationError{
				Field:   "notify.telegram.chat_id",
				Message: "Telegram chat ID is required when Telegram delivery is enabled",
			})
		}
	}

	if c.Notify.FCM.Enabled {
		if c.Notify.FCM.CredentialsFile == "" {
			errors = append(errors, ValidationError{
				Field:   "notify.fcm.credentials_file",
				Message: "FCM credentials file is required when FCM delivery is enabled",
			})
		}
		if len(c.Notify.FCM.Tokens) == 0 {
			errors = append(errors, ValidationError{
				Field:   "notify.fcm.tokens",
				Message: "At least one device token is required when FCM delivery is enabled",
			})
		}
	}

	if c.Notify.WebhookURL != "" &&
		!strings.HasPrefix(c.Notify.WebhookURL, "http://") &&
		!strings.HasPrefix(c.Notify.WebhookURL, "https://") {
		errors = append(errors, ValidationError{
			Field:   "notify.webhook_url",
			Message: fmt.Sprintf("Invalid webhook URL '%s'. Must start with http:// or https://", c.Notify.WebhookURL),
		})
	}

	return errors
}

func (c *Config) validateAPI() ValidationErrors {
	var errors ValidationErrors

	if c.API.Port == 0 {
		errors = append(errors, ValidationError{
			Field:   "api.port",
			Message: "API port is required",
		})
	} else if c.API.Port < 1 || c.API.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "api.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.API.Port),
		})
	}

	return errors
}
