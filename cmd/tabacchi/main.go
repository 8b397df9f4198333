package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sisco70/tabacchi/cmd/tabacchi/cli"
	"github.com/sisco70/tabacchi/internal/app"
	"github.com/sisco70/tabacchi/internal/catalog"
	"github.com/sisco70/tabacchi/internal/consumption"
	"github.com/sisco70/tabacchi/internal/observability"
	"github.com/sisco70/tabacchi/internal/orders"
	"github.com/sisco70/tabacchi/internal/platform/cache"
	"github.com/sisco70/tabacchi/internal/platform/db"
	"github.com/sisco70/tabacchi/internal/reconcile"
	"github.com/sisco70/tabacchi/internal/schedule"
	"github.com/sisco70/tabacchi/internal/shared"
	"github.com/sisco70/tabacchi/jobs"
)

const usage = `usage: tabacchi [command]

commands:
  serve                 run the HTTP server (default)
  migrate               apply the database schema
  recalc [--json]       recalculate consumption in process
  plan check --file F   validate a delivery plan file
  jobs trigger          enqueue a consumption recalculation
  jobs stats            print the job queue counters
`

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

	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	switch command {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "migrate":
		err = migrate(ctx, cfg)
	case "recalc":
		os.Exit(recalc(ctx, cfg, logger, args))
	case "plan":
		os.Exit(plan(cfg, args))
	case "jobs":
		os.Exit(cli.JobsCommand(ctx, cli.JobsOptions{RedisAddr: cfg.RedisAddr, Args: args}))
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error(command, slog.Any("error", err))
		os.Exit(1)
	}
}

func connect(ctx context.Context, cfg *app.Config) (*pgxpool.Pool, error) {
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

func migrate(ctx context.Context, cfg *app.Config) error {
	pool, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	return db.Migrate(ctx, pool)
}

func recalc(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("recalc", flag.ContinueOnError)
	jsonOutput := fs.Bool("json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	pool, err := connect(ctx, cfg)
	if err != nil {
		logger.Error("recalc", slog.Any("error", err))
		return 1
	}
	defer pool.Close()
	service := consumption.NewService(consumption.NewRepository(pool), catalog.NewRepository(pool), logger)
	return cli.RecalcCommand(ctx, service, cli.RecalcOptions{JSONOutput: *jsonOutput})
}

func plan(cfg *app.Config, args []string) int {
	if len(args) == 0 || args[0] != "check" {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	fs := flag.NewFlagSet("plan check", flag.ContinueOnError)
	path := fs.String("file", cfg.OrderScheduleFile, "delivery plan YAML file")
	jsonOutput := fs.Bool("json", false, "print the result as JSON")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	loc, _ := cfg.Location()
	return cli.PlanCheckCommand(cli.PlanCheckOptions{Path: *path, Location: loc, JSONOutput: *jsonOutput})
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	pool, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	var enqueuer consumption.Enqueuer
	var jobHandler *jobs.Handler
	if redisClient, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable, background recalculation disabled", slog.Any("error", err))
	} else {
		_ = redisClient.Close()
		redisOpts, err := jobs.RedisOpt(cfg.RedisAddr)
		if err != nil {
			return err
		}
		jobsClient := jobs.NewClient(redisOpts, "api")
		defer func() {
			if err := jobsClient.Close(); err != nil {
				logger.Warn("jobs client close", slog.Any("error", err))
			}
		}()
		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		enqueuer = jobsClient
		jobHandler = jobs.NewHandler(inspector, logger)
	}

	var entries []schedule.Entry
	if cfg.OrderScheduleFile != "" {
		entries, err = schedule.LoadFile(cfg.OrderScheduleFile, loc)
		if err != nil {
			return fmt.Errorf("delivery plan: %w", err)
		}
		logger.Info("delivery plan loaded", slog.Int("entries", len(entries)))
	}
	plan := schedule.NewList(entries)

	auditLogger := shared.NewAuditLogger(pool)
	catalogRepo := catalog.NewRepository(pool)

	sessions := reconcile.NewRegistry()
	ordersService := orders.NewService(
		orders.NewRepository(pool),
		catalogRepo,
		orders.NewDeadlinePolicy(cfg.Orders(), plan),
		auditLogger,
		logger,
	).InLocation(loc).WithEvicter(sessions)
	reconcileService := reconcile.NewService(reconcile.NewRepository(pool), catalogRepo, auditLogger, logger)
	consumptionService := consumption.NewService(consumption.NewRepository(pool), catalogRepo, logger)

	metrics := observability.NewMetrics()

	reconcileHandler := reconcile.NewHandler(logger, reconcileService, sessions,
		reconcile.NewWSSource(cfg.ScannerAllowedOrigin, logger).WithObserver(metrics))

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		CatalogHandler:     catalog.NewHandler(logger, catalogRepo),
		OrdersHandler:      orders.NewHandler(logger, ordersService),
		HistoryHandler:     orders.NewHistoryHandler(logger, auditLogger),
		ReconcileHandler:   reconcileHandler,
		ScheduleHandler:    schedule.NewHandler(logger, plan, ordersService, loc),
		ConsumptionHandler: consumption.NewHandler(logger, consumptionService, enqueuer),
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
