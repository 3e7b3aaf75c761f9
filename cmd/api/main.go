package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	webhookcontrollers "github.com/angelmondragon/marketcore-backend/api/controllers/webhooks"
	"github.com/angelmondragon/marketcore-backend/api/routes"
	"github.com/angelmondragon/marketcore-backend/internal/address"
	"github.com/angelmondragon/marketcore-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/marketcore-backend/internal/checkout"
	"github.com/angelmondragon/marketcore-backend/internal/inventory"
	"github.com/angelmondragon/marketcore-backend/internal/ledger"
	"github.com/angelmondragon/marketcore-backend/internal/notifications"
	"github.com/angelmondragon/marketcore-backend/internal/orders"
	"github.com/angelmondragon/marketcore-backend/internal/payments"
	"github.com/angelmondragon/marketcore-backend/internal/products"
	"github.com/angelmondragon/marketcore-backend/internal/shipping"
	"github.com/angelmondragon/marketcore-backend/internal/vendors"
	paymentwebhook "github.com/angelmondragon/marketcore-backend/internal/webhooks/payments"
	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/instance"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/metrics"
	"github.com/angelmondragon/marketcore-backend/pkg/migrate"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/marketcore-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/marketcore-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

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
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	deps, err := buildDependencies(ctx, cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(ctx, "failed to wire api dependencies", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
		logg.Info(shutdownCtx, "api server shut down gracefully")
	}
}

func buildDependencies(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (routes.Dependencies, error) {
	gdb := dbClient.DB()
	marketMetrics := metrics.NewMarketplaceMetrics(prometheus.DefaultRegisterer)

	publisher := outbox.NewService(outbox.NewRepository(gdb), logg)
	notificationRepo := notifications.NewRepository(gdb)
	emitter, err := notifications.NewEmitter(notificationRepo, publisher)
	if err != nil {
		return routes.Dependencies{}, err
	}
	notificationService, err := notifications.NewService(notificationRepo)
	if err != nil {
		return routes.Dependencies{}, err
	}

	catalog, err := products.NewCatalog(gdb)
	if err != nil {
		return routes.Dependencies{}, err
	}
	vendorRepo, err := vendors.NewRepository(gdb)
	if err != nil {
		return routes.Dependencies{}, err
	}
	addresses, err := address.NewResolver(gdb)
	if err != nil {
		return routes.Dependencies{}, err
	}
	methods, err := shipping.NewMethods(gdb)
	if err != nil {
		return routes.Dependencies{}, err
	}
	carts := cart.NewStore(gdb)
	snapshotter, err := cart.NewSnapshotter(carts, catalog)
	if err != nil {
		return routes.Dependencies{}, err
	}
	ledgerService, err := ledger.NewService(ledger.NewRepository(gdb))
	if err != nil {
		return routes.Dependencies{}, err
	}
	stock := inventory.NewLedger()
	orderRepo := orders.NewRepository(gdb)

	// Left as nil interfaces when stripe is not configured.
	var (
		gateway  checkoutsvc.PaymentGateway
		intents  orders.IntentCanceller
		verifier webhookcontrollers.EventVerifier
	)
	if cfg.Stripe.APIKey != "" {
		stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return routes.Dependencies{}, err
		}
		stripeGateway, err := payments.NewGateway(stripeClient, cfg.Checkout)
		if err != nil {
			return routes.Dependencies{}, err
		}
		gateway, intents, verifier = stripeGateway, stripeGateway, stripeGateway
	} else {
		logg.Warn(ctx, "stripe not configured; payment intents and webhooks are disabled")
	}

	checkoutService, err := checkoutsvc.NewService(checkoutsvc.ServiceParams{
		Tx:          dbClient,
		Config:      cfg.Checkout,
		Carts:       carts,
		Snapshotter: snapshotter,
		Catalog:     catalog,
		Inventory:   stock,
		Vendors:     vendorRepo,
		Addresses:   addresses,
		Shipping:    methods,
		Orders:      orderRepo,
		Notifier:    emitter,
		Outbox:      publisher,
		Gateway:     gateway,
		Metrics:     marketMetrics,
		Logger:      logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:      orderRepo,
		Tx:        dbClient,
		Outbox:    publisher,
		Notifier:  emitter,
		Inventory: stock,
		Intents:   intents,
		Metrics:   marketMetrics,
		Logger:    logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	reconciler, err := paymentwebhook.NewReconciler(paymentwebhook.ReconcilerParams{
		Orders:    orderRepo,
		Tx:        dbClient,
		Ledger:    ledgerService,
		Inventory: stock,
		Notifier:  emitter,
		Outbox:    publisher,
		Metrics:   marketMetrics,
		Logger:    logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	processed, err := idempotency.NewLedger(redisClient, cfg.Webhook.IdempotencyTTL)
	if err != nil {
		return routes.Dependencies{}, err
	}
	guard, err := processed.Consumer(paymentwebhook.ConsumerName)
	if err != nil {
		return routes.Dependencies{}, err
	}

	return routes.Dependencies{
		Config:            cfg,
		Logger:            logg,
		DB:                dbClient,
		Redis:             redisClient,
		Idempotency:       redisClient,
		RateLimiter:       redisClient,
		Vendors:           vendorRepo,
		Checkout:          checkoutService,
		Orders:            orderService,
		Notifications:     notificationService,
		WebhookVerifier:   verifier,
		WebhookReconciler: reconciler,
		WebhookGuard:      guard,
		Gatherer:          prometheus.DefaultGatherer,
	}, nil
}
