package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/mvalderrama/shopflow-backend/api/routes"
	"github.com/mvalderrama/shopflow-backend/internal/carts"
	"github.com/mvalderrama/shopflow-backend/internal/discounts"
	"github.com/mvalderrama/shopflow-backend/internal/ledger"
	"github.com/mvalderrama/shopflow-backend/internal/orders"
	"github.com/mvalderrama/shopflow-backend/internal/payments"
	"github.com/mvalderrama/shopflow-backend/internal/products"
	"github.com/mvalderrama/shopflow-backend/internal/receipts"
	"github.com/mvalderrama/shopflow-backend/internal/settings"
	"github.com/mvalderrama/shopflow-backend/internal/tasks"
	"github.com/mvalderrama/shopflow-backend/internal/users"
	"github.com/mvalderrama/shopflow-backend/pkg/config"
	"github.com/mvalderrama/shopflow-backend/pkg/db"
	"github.com/mvalderrama/shopflow-backend/pkg/logger"
	"github.com/mvalderrama/shopflow-backend/pkg/messaging"
	"github.com/mvalderrama/shopflow-backend/pkg/messaging/botapi"
	"github.com/mvalderrama/shopflow-backend/pkg/migrate"
	"github.com/mvalderrama/shopflow-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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
	productsRepo := products.NewRepository(gormDB)
	ordersRepo := orders.NewRepository(gormDB)
	cartsRepo := carts.NewRepository(gormDB)
	discountsRepo := discounts.NewRepository(gormDB)
	receiptsRepo := receipts.NewRepository(gormDB)
	tasksRepo := tasks.NewRepository(gormDB)

	settingsSvc, err := settings.NewService(settings.NewRepository(gormDB), cfg.Payments)
	if err != nil {
		logg.Error(context.Background(), "failed to create settings service", err)
		os.Exit(1)
	}

	discountEngine, err := discounts.NewEngine(discountsRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create discount engine", err)
		os.Exit(1)
	}

	cartsSvc, err := carts.NewService(cartsRepo, productsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create carts service", err)
		os.Exit(1)
	}

	ordersSvc, err := orders.NewService(ordersRepo, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	ledgerSvc, err := ledger.NewService(ledger.Params{
		Tx:        dbClient,
		Carts:     cartsRepo,
		Products:  productsRepo,
		Orders:    ordersRepo,
		Discounts: discountsRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
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

	receiptsSvc, err := receipts.NewService(receipts.Params{
		Tx:       dbClient,
		Receipts: receiptsRepo,
		Orders:   ordersRepo,
		Users:    usersRepo,
		Cleaner:  paymentsSvc,
		Gateway:  gateway,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create receipts service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:    cfg,
			Logger:    logg,
			DB:        dbClient,
			Redis:     redisClient,
			Users:     usersRepo,
			Products:  productsRepo,
			Orders:    ordersRepo,
			Carts:     cartsSvc,
			Discounts: discountEngine,
			Ledger:    ledgerSvc,
			OrdersSvc: ordersSvc,
			Payments:  paymentsSvc,
			Receipts:  receiptsSvc,
			Settings:  settingsSvc,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

// newGateway returns the real Bot API client when a token is configured and a
// logging no-op otherwise, so local environments run without a bot.
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
