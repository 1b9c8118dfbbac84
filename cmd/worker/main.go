package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-core/internal/app"
	jobmetrics "github.com/odyssey-erp/odyssey-core/internal/jobs"
	"github.com/odyssey-erp/odyssey-core/internal/observability"
	"github.com/odyssey-erp/odyssey-core/internal/platform/db"
	"github.com/odyssey-erp/odyssey-core/internal/provisioning"
	"github.com/odyssey-erp/odyssey-core/internal/rbac"
	"github.com/odyssey-erp/odyssey-core/internal/shared"
	"github.com/odyssey-erp/odyssey-core/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	client := jobs.NewClient(redisOpts)
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	engine := rbac.DefaultEngine()
	chain := rbac.DefaultChain(logger, metrics, engine, rbac.NewRepository(pool), cfg.RBACAllowList)
	service := provisioning.NewService(provisioning.Config{
		Repository: provisioning.NewPostgresRepository(pool),
		Engine:     engine,
		Chain:      chain,
		Enqueuer:   client,
		Auditor:    shared.NewAuditLogger(pool),
		Observer:   jobMetrics,
		Logger:     logger,
	})
	provisionJob := jobs.NewProvisionJob(service, logger, jobMetrics)
	sweepJob := &jobs.ProvisionSweepJob{
		Service:    service,
		StaleAfter: cfg.ProvisionStaleAfter,
		Logger:     logger,
		Metrics:    jobMetrics,
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskUserProvision, Handler: provisionJob.Handle},
			{Type: jobs.TaskProvisionSweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ProvisionSweepSpec, Task: jobs.NewProvisionSweepTask()},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
