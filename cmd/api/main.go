package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-triage/internal/api/http"
	"github.com/spec-kit/ticket-triage/internal/api/http/handlers"
	"github.com/spec-kit/ticket-triage/internal/auth"
	"github.com/spec-kit/ticket-triage/internal/classifier"
	"github.com/spec-kit/ticket-triage/internal/config"
	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/limiter"
	"github.com/spec-kit/ticket-triage/internal/llm"
	"github.com/spec-kit/ticket-triage/internal/llm/providers"
	"github.com/spec-kit/ticket-triage/internal/observability"
	"github.com/spec-kit/ticket-triage/internal/persistence"
	"github.com/spec-kit/ticket-triage/internal/pipeline"
	"github.com/spec-kit/ticket-triage/internal/policy"
	"github.com/spec-kit/ticket-triage/internal/repository"
	"github.com/spec-kit/ticket-triage/internal/service"
	"github.com/spec-kit/ticket-triage/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	natsConn, err := events.ConnectNATS(cfg.NATS, cfg.App.Name, logger)
	if err != nil {
		logger.Fatal("failed to connect nats", zap.Error(err))
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	counter, err := llm.NewTokenCounter()
	if err != nil {
		logger.Warn("tokenizer unavailable; estimating token counts", zap.Error(err))
	}
	client, err := providers.New(cfg.LLM, counter, metrics)
	if err != nil {
		logger.Fatal("failed to build llm client", zap.Error(err))
	}
	triageClassifier, err := classifier.Build(cfg.Classifier.Mode, cfg.Classifier.RulesFile, client,
		cfg.LLM.MaxTokens, float32(cfg.LLM.Temperature), logger)
	if err != nil {
		logger.Fatal("failed to build classifier", zap.Error(err))
	}

	orchestrator, err := pipeline.NewOrchestrator(pipeline.Dependencies{
		Classifier:   triageClassifier,
		Prioritizer:  policy.PolicyPrioritizer{},
		Router:       policy.TableRouter{},
		StageTimeout: cfg.Pipeline.StageTimeout,
		Limits: llm.Limits{
			RequestLimit:     cfg.Pipeline.RequestLimit,
			TotalTokensLimit: cfg.Pipeline.TotalTokensLimit,
		},
		BatchConcurrency: cfg.Pipeline.BatchConcurrency,
		Logger:           logger,
		Metrics:          metrics,
	})
	if err != nil {
		logger.Fatal("failed to build pipeline", zap.Error(err))
	}

	dispatcher := events.NewInMemoryDispatcher()
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	var publisher *events.NATSPublisher
	if natsConn != nil {
		publisher = events.NewNATSPublisher(natsConn, cfg.NATS.SubjectPrefix, logger)
	}
	worker.StartNotificationWorker(notificationService, dispatcher, publisher, logger)

	deps := service.TriageDependencies{
		Pipeline:   orchestrator,
		Dispatcher: dispatcher,
		Recorder:   metrics,
		Logger:     logger,
	}
	if pg.Enabled() {
		deps.DecisionRepo = repository.NewTriageRepository(pg.PoolHandle())
	}
	if redis.Enabled() {
		budget := limiter.NewDailyBudget(redis.Client, cfg.App.Name+":budget",
			cfg.Budget.DailyRequestLimit, cfg.Budget.DailyTokenLimit)
		if budget.Enabled() {
			deps.Budget = budget
		}
	}
	triageService := service.NewTriageService(deps)
	authService := service.NewAuthService(*cfg)
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), authService.Enabled())

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, handlers.HealthDependencies{
		Provider: cfg.LLM.Provider,
		Postgres: pg,
		Redis:    redis,
		NATS:     natsConn,
	})

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         healthHandler,
		Auth:           handlers.NewAuthHandler(authService),
		Triage:         handlers.NewTriageHandler(triageService),
		AuthMiddleware: authMiddleware,
		Metrics:        metrics,
	})

	logger.Info("starting ticket triage",
		zap.String("addr", cfg.App.Addr()),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("classifier_mode", cfg.Classifier.Mode),
		zap.Bool("auth_enabled", cfg.Auth.Enabled))

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
