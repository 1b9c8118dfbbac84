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

	"github.com/odyssey-erp/odyssey-core/internal/app"
	"github.com/odyssey-erp/odyssey-core/internal/observability"
	"github.com/odyssey-erp/odyssey-core/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-core/internal/platform/db"
	"github.com/odyssey-erp/odyssey-core/internal/provisioning"
	"github.com/odyssey-erp/odyssey-core/internal/rbac"
	"github.com/odyssey-erp/odyssey-core/internal/sequence"
	"github.com/odyssey-erp/odyssey-core/internal/shared"
	"github.com/odyssey-erp/odyssey-core/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	engine := rbac.DefaultEngine()
	chain := rbac.DefaultChain(logger, metrics, engine, rbac.NewRepository(dbpool), cfg.RBACAllowList)
	tokens := rbac.NewTokenParser([]byte(cfg.JWTSecret), cfg.JWTIssuer, engine)
	rbacMiddleware := rbac.Middleware{Chain: chain, Tokens: tokens, Logger: logger}

	catalog, err := app.LoadSequenceCatalog(cfg)
	if err != nil {
		logger.Error("load sequence catalog", slog.Any("error", err))
		os.Exit(1)
	}
	store, err := app.NewSequenceStore(cfg, dbpool, redisClient)
	if err != nil {
		logger.Error("init sequence store", slog.Any("error", err))
		os.Exit(1)
	}
	issuer := sequence.NewIssuer(catalog, store, app.SequenceRetry(cfg), logger, metrics)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("jobs inspector close", slog.Any("error", err))
		}
	}()

	provisioningService := provisioning.NewService(provisioning.Config{
		Repository: provisioning.NewPostgresRepository(dbpool),
		Engine:     engine,
		Chain:      chain,
		Enqueuer:   jobClient,
		Auditor:    shared.NewAuditLogger(dbpool),
		Logger:     logger,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		RBACMiddleware:      rbacMiddleware,
		RBACHandler:         rbac.NewHandler(logger, engine, rbacMiddleware),
		SequenceHandler:     sequence.NewHandler(logger, issuer, rbacMiddleware),
		ProvisioningHandler: provisioning.NewHandler(logger, provisioningService, chain),
		JobHandler:          jobs.NewHandler(inspector, logger),
		Metrics:             metrics,
		HealthChecks: map[string]app.HealthCheck{
			"postgres": dbpool.Ping,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("sequence_backend", cfg.SequenceBackend))
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
