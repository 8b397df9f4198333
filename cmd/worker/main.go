package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sisco70/tabacchi/internal/app"
	"github.com/sisco70/tabacchi/internal/catalog"
	"github.com/sisco70/tabacchi/internal/consumption"
	"github.com/sisco70/tabacchi/internal/observability"
	"github.com/sisco70/tabacchi/internal/platform/cache"
	"github.com/sisco70/tabacchi/internal/platform/db"
	"github.com/sisco70/tabacchi/internal/shared"
	"github.com/sisco70/tabacchi/jobs"
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
	loc, err := cfg.Location()
	if err != nil {
		logger.Error("time zone", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	redisOpts, err := jobs.RedisOpt(cfg.RedisAddr)
	if err != nil {
		logger.Error("redis options", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	consumptionService := consumption.NewService(consumption.NewRepository(pool), catalog.NewRepository(pool), logger)
	recalcJob := jobs.NewConsumptionRecalcJob(
		consumptionService,
		shared.NewTaskLock(redisClient, cfg.TaskLockTTL),
		logger,
		metrics.Jobs(),
	)

	var cron []jobs.CronRegistration
	if cfg.RecalculateCron != "" {
		task, err := jobs.NewConsumptionRecalculateTask("cron", time.Now())
		if err != nil {
			logger.Error("build recalculation task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{Spec: cfg.RecalculateCron, Task: task})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskConsumptionRecalculate, Handler: recalcJob.Handle},
		},
		Cron:     cron,
		Location: loc,
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
