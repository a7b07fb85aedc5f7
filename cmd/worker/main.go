package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/longstone-am/longstone/internal/app"
	"github.com/longstone-am/longstone/internal/auth"
	"github.com/longstone-am/longstone/internal/authz"
	jobmetrics "github.com/longstone-am/longstone/internal/jobs"
	"github.com/longstone-am/longstone/internal/platform/db"
	"github.com/longstone-am/longstone/internal/shared"
	"github.com/longstone-am/longstone/internal/users"
	"github.com/longstone-am/longstone/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	clock := shared.SystemClock{}
	auditLogger := shared.NewAuditLogger(pool)

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo, clock)

	authzStore := authz.NewPGStore(pool)
	authzService := authz.NewService(authz.Deps{
		Gate:      usersService,
		Defaults:  authzStore.RoleDefaults(),
		Overrides: authzStore.Overrides(),
		Snapshots: authzStore,
		Clock:     clock,
		Audit:     auditLogger,
		Logger:    logger,
	})

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo)

	metrics := jobmetrics.NewMetrics(nil)
	reviewJob := jobs.NewAccessReview(usersService, authzService, auditLogger, clock, logger, metrics)
	cleanupJob := jobs.NewSessionCleanup(authService, clock, logger, metrics)

	reviewTask, err := jobs.NewAccessReviewTask(jobs.AccessReviewPayload{RequestedBy: "scheduler"})
	if err != nil {
		logger.Error("build access review task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewSessionCleanupTask(jobs.SessionCleanupPayload{})
	if err != nil {
		logger.Error("build session cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAccessReview, Handler: reviewJob.Handle},
			{Type: jobs.TaskSessionCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 2 * * 1", Task: reviewTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 * * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
