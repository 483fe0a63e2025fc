// Command api serves the evaluation pipeline over REST and WebSocket:
// synchronous evaluation runs, result lookups, review request listings, and
// a live event stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/agentalign/internal/agents"
	"github.com/ajitpratap0/agentalign/internal/api"
	"github.com/ajitpratap0/agentalign/internal/bus"
	"github.com/ajitpratap0/agentalign/internal/config"
	"github.com/ajitpratap0/agentalign/internal/evaluation"
	"github.com/ajitpratap0/agentalign/internal/events"
	"github.com/ajitpratap0/agentalign/internal/history"
	"github.com/ajitpratap0/agentalign/internal/metrics"
	"github.com/ajitpratap0/agentalign/internal/notify"
	"github.com/ajitpratap0/agentalign/internal/orchestrator"
	"github.com/ajitpratap0/agentalign/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logFormat := "json"
	if cfg.App.Environment == "development" {
		logFormat = "console"
	}
	config.InitLogger(cfg.App.LogLevel, logFormat)
	log := config.NewLogger("api")

	log.Info().
		Str("version", config.Version).
		Str("environment", cfg.App.Environment).
		Msg("Starting agentalign API server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Vault-held secrets override file and environment values.
	if vaultCfg := config.GetVaultConfigFromEnv(); vaultCfg.Enabled {
		if err := config.LoadSecretsFromVault(ctx, cfg, vaultCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to load secrets from Vault")
		}
	}

	// MCP sessions first, then the roster entries that reference them.
	var sessions *agents.Sessions
	if len(cfg.MCP.Servers) > 0 {
		sessions, err = agents.ConnectSessions(ctx, mcpServers(cfg), config.NewLogger("mcp"))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect MCP servers")
		}
		defer sessions.Close()
	}

	panel, err := buildAgents(cfg, sessions)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build agent roster")
	}
	log.Info().Int("agents", len(panel)).Msg("Agent roster ready")

	// Event fan-out: structured log, Prometheus counters, and either the
	// bus or the WebSocket hub directly. When the bus is up, the hub is fed
	// from the events subject instead, so stream clients see events from
	// every replica exactly once.
	hub := api.NewHub(config.NewLogger("stream"))
	go hub.Run(ctx)

	sinks := events.MultiSink{
		events.NewLogSink(config.NewLogger("events")),
		metrics.NewSink(),
	}

	var evalBus *bus.Bus
	if cfg.NATS.URL != "" {
		evalBus, err = bus.Connect(bus.Config{URL: cfg.NATS.URL, Name: "agentalign-api"}, config.NewLogger("bus"))
		if err != nil {
			log.Warn().Err(err).Msg("NATS unavailable, continuing without bus")
			evalBus = nil
		} else {
			defer evalBus.Close()
			sinks = append(sinks, evalBus.NewSink())
			if _, err := evalBus.SubscribeEvents(func(envelope bus.Envelope) {
				hub.Emit(envelope.Event, envelope.Payload)
			}); err != nil {
				log.Warn().Err(err).Msg("Failed to subscribe hub to pipeline events")
			}
		}
	}
	if evalBus == nil {
		sinks = append(sinks, hub)
	}

	var hist *history.Store
	if cfg.Redis.Host != "" {
		hist, err = history.New(history.Config{
			Addr:     cfg.Redis.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.HistoryTTL,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, continuing without history")
			hist = nil
		} else {
			defer hist.Close()
		}
	}

	var archive *store.Store
	if cfg.Database.Host != "" {
		archive, err = store.Connect(ctx, cfg.Database.GetDSN())
		if err != nil {
			log.Warn().Err(err).Msg("PostgreSQL unavailable, continuing without archive")
			archive = nil
		} else {
			defer archive.Close()
		}
	}

	orchLog := config.NewLogger("orchestrator")
	orch, err := orchestrator.New(panel, orchestrator.Options{
		Thresholds:  &cfg.Thresholds,
		MaxRetries:  cfg.Orchestrator.MaxRetries,
		Timeout:     cfg.Orchestrator.Timeout,
		MaxParallel: cfg.Orchestrator.MaxParallel,
		EnableHITL:  cfg.Orchestrator.EnableHITL,
		Sink:        sinks,
		Logger:      &orchLog,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build orchestrator")
	}

	var metricsServer *metrics.Server
	if cfg.Monitoring.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.Monitoring.PrometheusPort, log)
		if err := metricsServer.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start metrics server")
		}
	}

	server := api.NewServer(api.Config{
		Host:           cfg.API.Host,
		Port:           cfg.API.Port,
		AllowedOrigins: cfg.API.AllowedOrigins,
		Orchestrator:   orch,
		History:        hist,
		Archive:        archive,
		Dispatcher:     buildDispatcher(ctx, cfg, log),
		Bus:            evalBus,
		Hub:            hub,
		Sink:           sinks,
		RateLimit:      api.DefaultRateLimitConfig(),
	}, log)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error().Err(err).Msg("Server error")
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	}

	log.Info().Msg("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to stop server gracefully")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to stop metrics server")
		}
	}

	log.Info().Msg("Server stopped")
}

// mcpServers converts the config section into the agents package's form.
func mcpServers(cfg *config.Config) []agents.MCPServerConfig {
	servers := make([]agents.MCPServerConfig, 0, len(cfg.MCP.Servers))
	for _, s := range cfg.MCP.Servers {
		servers = append(servers, agents.MCPServerConfig{
			Name:    s.Name,
			Type:    s.Type,
			Command: s.Command,
			Args:    s.Args,
			Env:     s.Env,
			URL:     s.URL,
		})
	}
	return servers
}

func buildAgents(cfg *config.Config, sessions *agents.Sessions) ([]evaluation.Agent, error) {
	roster, err := agents.LoadRoster(cfg.Orchestrator.RosterPath)
	if err != nil {
		return nil, err
	}

	deps := agents.BuildDeps{LLM: cfg.LLM.ClientConfig()}
	if sessions != nil {
		deps.Sessions = sessions.ToolCallers()
	}
	return roster.Build(deps)
}

// buildDispatcher assembles the escalation channels that are configured. The
// log channel is always present so escalations are never silent.
func buildDispatcher(ctx context.Context, cfg *config.Config, log zerolog.Logger) *notify.Dispatcher {
	notifiers := []notify.Notifier{notify.NewLogNotifier(config.NewLogger("notify"))}

	if cfg.Notify.WebhookURL != "" {
		webhook, err := notify.NewWebhookNotifier(notify.WebhookConfig{URL: cfg.Notify.WebhookURL})
		if err != nil {
			log.Warn().Err(err).Msg("Skipping webhook notifier")
		} else {
			notifiers = append(notifiers, webhook)
		}
	}

	if cfg.Notify.Telegram.Enabled {
		telegram, err := notify.NewTelegramNotifier(cfg.Notify.Telegram.BotToken, []int64{cfg.Notify.Telegram.ChatID})
		if err != nil {
			log.Warn().Err(err).Msg("Skipping Telegram notifier")
		} else {
			notifiers = append(notifiers, telegram)
		}
	}

	if cfg.Notify.FCM.Enabled {
		fcm, err := notify.NewFCMNotifier(ctx, cfg.Notify.FCM.CredentialsFile, cfg.Notify.FCM.Tokens)
		if err != nil {
			log.Warn().Err(err).Msg("Skipping FCM notifier")
		} else {
			notifiers = append(notifiers, fcm)
		}
	}

	return notify.NewDispatcher(config.NewLogger("dispatch"), notifiers...)
}
