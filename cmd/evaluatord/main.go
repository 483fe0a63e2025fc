// Command evaluatord consumes evaluation tasks from the message bus, runs
// each through the agent panel, and publishes results and escalations back.
// Task intake is queue-grouped: run more replicas to split the load.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/agentalign/internal/agents"
	"github.com/ajitpratap0/agentalign/internal/bus"
	"github.com/ajitpratap0/agentalign/internal/config"
	"github.com/ajitpratap0/agentalign/internal/evaluation"
	"github.com/ajitpratap0/agentalign/internal/events"
	"github.com/ajitpratap0/agentalign/internal/history"
	"github.com/ajitpratap0/agentalign/internal/metrics"
	"github.com/ajitpratap0/agentalign/internal/notify"
	"github.com/ajitpratap0/agentalign/internal/orchestrator"
	"github.com/ajitpratap0/agentalign/internal/record"
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
	log := config.NewLogger("evaluatord")

	log.Info().
		Str("version", config.Version).
		Str("environment", cfg.App.Environment).
		Msg("Starting agentalign evaluation service")

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

	// The bus is this service's reason to exist: no bus, no work.
	evalBus, err := bus.Connect(bus.Config{URL: cfg.NATS.URL, Name: "agentalign-evaluatord"}, config.NewLogger("bus"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	defer evalBus.Close()

	sinks := events.MultiSink{
		events.NewLogSink(config.NewLogger("events")),
		metrics.NewSink(),
		evalBus.NewSink(),
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

	svc := &service{
		orch: orch,
		recorder: &record.Recorder{
			History:    hist,
			Archive:    archive,
			Bus:        evalBus,
			Dispatcher: buildDispatcher(ctx, cfg, log),
			Sink:       sinks,
			Log:        log,
		},
		log: log,
	}

	sub, err := evalBus.SubscribeTasks(svc.handleTask(ctx))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to subscribe to evaluation tasks")
	}

	var metricsServer *metrics.Server
	if cfg.Monitoring.EnableMetrics {
		metricsServer = metrics.NewServer(config.EvaluatordHealthPort, log)
		if err := metricsServer.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start metrics server")
		}
	}

	log.Info().Str("subject", evalBus.RequestsSubject()).Msg("Evaluation service ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Stop intake first, then drain what is already running.
	if err := sub.Unsubscribe(); err != nil {
		log.Warn().Err(err).Msg("Failed to unsubscribe from tasks")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	svc.drain(shutdownCtx)
	cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to stop metrics server")
		}
	}

	log.Info().Msg("Evaluation service stopped")
}

// service processes evaluation tasks delivered over the bus.
type service struct {
	orch     *orchestrator.Orchestrator
	recorder *record.Recorder
	log      zerolog.Logger

	wg sync.WaitGroup
}

// handleTask runs each task in its own goroutine so slow evaluations never
// block bus delivery. The LLM client's rate limiter bounds the real work.
func (s *service) handleTask(ctx context.Context) func(evaluation.TaskSpec) {
	return func(spec evaluation.TaskSpec) {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.process(ctx, spec)
		}()
	}
}

func (s *service) process(ctx context.Context, spec evaluation.TaskSpec) {
	log := s.log.With().Str("task_id", spec.TaskID).Logger()

	task, err := spec.Build()
	if err != nil {
		log.Warn().Err(err).Msg("Dropping invalid task")
		return
	}

	result, err := s.orch.Evaluate(ctx, task)
	if err != nil {
		log.Error().Err(err).Msg("Evaluation failed")
		return
	}

	request := s.recorder.Record(ctx, task, result)

	event := log.Info().
		Str("request_id", result.RequestID).
		Str("alignment_state", string(result.State())).
		Bool("requires_human_review", result.RequiresHumanReview)
	if request != nil {
		event = event.Str("hitl_request_id", request.RequestID)
	}
	event.Msg("Evaluation completed")
}

// drain waits for in-flight evaluations to finish, up to the deadline.
func (s *service) drain(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info().Msg("In-flight evaluations drained")
	case <-ctx.Done():
		s.log.Warn().Msg("Shutdown deadline reached with evaluations still running")
	}
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
