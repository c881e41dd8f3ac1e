package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/finboard/finboard/internal/accounts"
	"github.com/finboard/finboard/internal/app"
	"github.com/finboard/finboard/internal/finlife"
	"github.com/finboard/finboard/internal/forum"
	"github.com/finboard/finboard/internal/observability"
	"github.com/finboard/finboard/internal/platform/cache"
	"github.com/finboard/finboard/internal/platform/db"
	"github.com/finboard/finboard/internal/shared"
	"github.com/finboard/finboard/internal/view"
	"github.com/finboard/finboard/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if cfg.AppAutoMigrate {
		if err := db.Migrate(ctx, cfg.PGDSN); err != nil {
			logger.Error("migrate database", slog.Any("error", err))
			os.Exit(1)
		}
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "finboard_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret, "/finlife/")

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}
	pages := view.NewPages(templates, csrfManager, logger)

	metrics := observability.NewMetrics()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("asynq inspector close", slog.Any("error", err))
		}
	}()

	finlifeClient := finlife.NewClient(finlife.ClientConfig{
		BaseURL:  cfg.FinlifeBaseURL,
		APIKey:   cfg.FinlifeAPIKey,
		Timeout:  cfg.FinlifeTimeout,
		MaxPages: cfg.FinlifeMaxPages,
		Logger:   logger,
	})
	finlifeService := finlife.NewService(finlife.NewRepository(dbpool), finlifeClient, finlife.ServiceConfig{
		Groups:  cfg.FinlifeGroups,
		Cache:   finlife.NewCache(redisClient, cfg.FinlifeCacheTTL),
		Metrics: finlife.NewMetrics(metrics.Registerer()),
		Logger:  logger,
	})
	finlifeHandler := finlife.NewHandler(logger, finlifeService, jobClient)

	accountService := accounts.NewService(accounts.NewRepository(dbpool), cfg.SessionSecret)
	accountHandler := accounts.NewHandler(logger, accountService, pages, sessionManager, csrfManager)

	forumHandler := forum.NewHandler(logger, forum.NewService(forum.NewRepository(dbpool)), pages, accounts.LoginPath)

	redisPing := func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	}

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		SessionManager:  sessionManager,
		CSRFManager:     csrfManager,
		Metrics:         metrics,
		AccountsService: accountService,
		AccountsHandler: accountHandler,
		ForumHandler:    forumHandler,
		FinlifeHandler:  finlifeHandler,
		JobHandler:      jobs.NewHandler(inspector, logger),
		Readiness: map[string]app.ReadinessCheck{
			"postgres": dbpool.Ping,
			"redis":    redisPing,
		},
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
