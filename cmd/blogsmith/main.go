package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/blogsmith/blogsmith/internal/catalog"
	"github.com/blogsmith/blogsmith/internal/config"
	"github.com/blogsmith/blogsmith/internal/health"
	"github.com/blogsmith/blogsmith/internal/llm"
	"github.com/blogsmith/blogsmith/internal/metrics"
	"github.com/blogsmith/blogsmith/internal/mgmt"
	"github.com/blogsmith/blogsmith/internal/notify"
	"github.com/blogsmith/blogsmith/internal/seo"
	"github.com/blogsmith/blogsmith/internal/site"
	"github.com/blogsmith/blogsmith/internal/stages"
	"github.com/blogsmith/blogsmith/internal/store"
	"github.com/blogsmith/blogsmith/internal/workflow"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("mgmt_addr", cfg.MgmtListenAddr).
		Str("db_path", cfg.DBPath).
		Bool("anthropic_enabled", cfg.AnthropicEnabled()).
		Bool("openai_enabled", cfg.OpenAIEnabled()).
		Bool("slack_enabled", cfg.SlackEnabled()).
		Msg("starting blogsmith")

	// Context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Persistence
	ds, err := store.New(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer ds.Close()

	// Stage registry
	registry := workflow.DefaultRegistry()
	if cfg.RegistryPath != "" {
		registry, err = workflow.LoadRegistry(cfg.RegistryPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.RegistryPath).Msg("failed to load stage registry")
		}
		logger.Info().Str("path", cfg.RegistryPath).Int("stages", registry.Len()).Msg("stage registry loaded")
	}

	// LLM providers. The Anthropic model handles analysis, planning and
	// writing; OpenAI handles keyword research. Either can stand in for the
	// other when only one key is configured.
	var anthropic, openai llm.Provider
	if cfg.AnthropicEnabled() {
		anthropic = llm.NewAnthropicProvider(cfg.AnthropicAPIKey,
			llm.WithAnthropicModel(cfg.AnthropicModel),
			llm.WithAnthropicLogger(logger))
	}
	if cfg.OpenAIEnabled() {
		openai = llm.NewOpenAIProvider(cfg.OpenAIAPIKey,
			llm.WithOpenAIModel(cfg.OpenAIModel),
			llm.WithOpenAILogger(logger))
	}

	analyst, researcher := anthropic, openai
	if analyst == nil {
		analyst = openai
	}
	if researcher == nil {
		researcher = anthropic
	}
	if analyst == nil {
		logger.Fatal().Msg("no LLM provider configured: set ANTHROPIC_API_KEY or OPENAI_API_KEY")
	}

	seoService := seo.NewService(analyst, researcher, logger)

	// Site building and deployment
	builder := site.NewBuilder(cfg.SitesDir, logger)

	deployers := []site.Deployer{site.NewLocalDeployer(logger)}
	if cfg.VercelToken != "" {
		deployers = append(deployers, site.NewVercelDeployer(cfg.VercelToken, logger))
	}
	if cfg.NetlifyToken != "" {
		deployers = append(deployers, site.NewNetlifyDeployer(cfg.NetlifyToken, logger))
	}
	defaultDeployer := cfg.DefaultDeployer
	if (defaultDeployer == "vercel" && cfg.VercelToken == "") ||
		(defaultDeployer == "netlify" && cfg.NetlifyToken == "") {
		logger.Warn().Str("deployer", defaultDeployer).Msg("default deployer has no token, falling back to local")
		defaultDeployer = "local"
	}

	// Project catalog
	projects := catalog.NewStore(ds, logger)

	// Metrics
	collector := metrics.New()

	// Orchestrator
	orch := workflow.New(workflow.NewSQLiteStateStore(ds, logger), registry, logger)
	orch.SetMetrics(collector)
	orch.SetCatalog(projects)

	if cfg.SlackEnabled() {
		orch.SetNotifier(notify.NewSlackNotifier(cfg.SlackBotToken, cfg.SlackChannel, logger))
	}

	deployExec := stages.NewDeploymentExecutor(deployers, defaultDeployer, logger)
	deployExec.SetRecorder(projects)

	executors := []workflow.StageExecutor{
		stages.NewTopicAnalysisExecutor(seoService, logger),
		stages.NewNicheResearchExecutor(seoService, logger),
		stages.NewContentPlanningExecutor(seoService, logger),
		stages.NewContentCreationExecutor(analyst, logger),
		stages.NewSiteGenerationExecutor(builder, logger),
		deployExec,
	}
	for _, e := range executors {
		if err := orch.RegisterExecutor(e); err != nil {
			logger.Fatal().Err(err).Str("stage", e.Name()).Msg("failed to register stage executor")
		}
	}

	// Runner
	runner := workflow.NewRunner(workflow.RunnerConfig{
		Workers:   cfg.RunnerWorkers,
		QueueSize: cfg.RunnerQueueSize,
	}, orch, logger)
	runner.Start(ctx)

	// Health checker
	checker := health.NewChecker(logger)
	checker.Register("sqlite", func(ctx context.Context) health.Status {
		if err := ds.Ping(); err != nil {
			return health.StatusDown
		}
		return health.StatusOK
	})

	// Management API
	handlers := mgmt.NewHandlers(runner, orch, projects, checker, logger)
	server := mgmt.NewServer(mgmt.ServerConfig{
		ListenAddr: cfg.MgmtListenAddr,
		AuthConfig: mgmt.AuthConfig{
			Mode:      cfg.MgmtAuthMode,
			APIKey:    cfg.MgmtAPIKey,
			JWTSecret: cfg.MgmtJWTSecret,
		},
		CORSOrigins: cfg.MgmtCORSOrigins,
	}, handlers, collector, logger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("management API server error")
		}
	}

	// Graceful shutdown: stop accepting requests, then drain the runner.
	cancel()

	done := make(chan struct{})
	go func() {
		_ = server.Shutdown()
		runner.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("shutdown complete")
	case <-time.After(cfg.ShutdownTimeout):
		logger.Warn().Dur("timeout", cfg.ShutdownTimeout).Msg("shutdown timed out")
	}
}
