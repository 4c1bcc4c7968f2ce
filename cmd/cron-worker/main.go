package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mvalderrama/shopflow-backend/internal/carts"
	"github.com/mvalderrama/shopflow-backend/internal/cron"
	"github.com/mvalderrama/shopflow-backend/internal/orders"
	"github.com/mvalderrama/shopflow-backend/internal/payments"
	"github.com/mvalderrama/shopflow-backend/internal/receipts"
	"github.com/mvalderrama/shopflow-backend/internal/settings"
	"github.com/mvalderrama/shopflow-backend/internal/tasks"
	"github.com/mvalderrama/shopflow-backend/internal/users"
	"github.com/mvalderrama/shopflow-backend/pkg/config"
	"github.com/mvalderrama/shopflow-backend/pkg/db"
	"github.com/mvalderrama/shopflow-backend/pkg/logger"
	"github.com/mvalderrama/shopflow-backend/pkg/messaging"
	"github.com/mvalderrama/shopflow-backend/pkg/messaging/botapi"
	"github.com/mvalderrama/shopflow-backend/pkg/metrics"
	"github.com/mvalderrama/shopflow-backend/pkg/migrate"
	"github.com/mvalderrama/shopflow-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gateway, err := newGateway(cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create messaging gateway", err)
		os.Exit(1)
	}

	gormDB := dbClient.DB()
	usersRepo := users.NewRepository(gormDB)
	ordersRepo := orders.NewRepository(gormDB)
	receiptsRepo := receipts.NewRepository(gormDB)
	tasksRepo := tasks.NewRepository(gormDB)
	cartsRepo := carts.NewRepository(gormDB)

	settingsSvc, err := settings.NewService(settings.NewRepository(gormDB), cfg.Payments)
	if err != nil {
		logg.Error(context.Background(), "failed to create settings service", err)
		os.Exit(1)
	}

	paymentsSvc, err := payments.NewService(payments.Params{
		Tx:       dbClient,
		Orders:   ordersRepo,
		Users:    usersRepo,
		Tasks:    tasksRepo,
		Settings: settingsSvc,
		Gateway:  gateway,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	jobMetrics := metrics.NewWorkerJobMetrics(prometheus.DefaultRegisterer)

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker"), cfg.Worker.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create worker lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry()

	inviteExpiry, err := cron.NewInviteExpiryJob(cron.InviteExpiryJobParams{
		Logger:   logg,
		DB:       dbClient,
		Orders:   ordersRepo,
		Receipts: receiptsRepo,
		Users:    usersRepo,
		Cleaner:  paymentsSvc,
		Gateway:  gateway,
		Metrics:  jobMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create invite expiry job", err)
		os.Exit(1)
	}
	registry.Register(inviteExpiry)

	scheduledTasks, err := cron.NewScheduledTaskJob(cron.ScheduledTaskJobParams{
		Logger:      logg,
		Tasks:       tasksRepo,
		Gateway:     gateway,
		Metrics:     jobMetrics,
		BatchSize:   cfg.Worker.TaskBatchSize,
		MaxAttempts: cfg.Worker.TaskMaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create scheduled task job", err)
		os.Exit(1)
	}
	registry.Register(scheduledTasks)

	cartIdle, err := cron.NewCartIdleJob(cron.CartIdleJobParams{
		Logger:     logg,
		Carts:      cartsRepo,
		Metrics:    jobMetrics,
		IdleExpiry: cfg.Worker.CartIdleExpiry,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cart idle job", err)
		os.Exit(1)
	}
	registry.Register(cartIdle)

	inviteRetry, err := cron.NewInviteRetryJob(cron.InviteRetryJobParams{
		Logger:   logg,
		Orders:   ordersRepo,
		Payments: paymentsSvc,
		Metrics:  jobMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create invite retry job", err)
		os.Exit(1)
	}
	registry.Register(inviteRetry)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Worker.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// newGateway mirrors the api binary: real Bot API client when a token is
// configured, logging no-op otherwise.
func newGateway(cfg *config.Config, logg *logger.Logger) (messaging.Gateway, error) {
	if cfg.Messaging.BotToken == "" {
		logg.Warn(context.Background(), "no bot token configured, using noop messaging gateway")
		return messaging.NewNoop(logg), nil
	}

	opts := []botapi.Option{
		botapi.WithHTTPClient(&http.Client{Timeout: cfg.Messaging.Timeout}),
	}
	if cfg.Messaging.BaseURL != "" {
		opts = append(opts, botapi.WithBaseURL(cfg.Messaging.BaseURL))
	}
	return botapi.NewClient(cfg.Messaging.BotToken, opts...)
}
