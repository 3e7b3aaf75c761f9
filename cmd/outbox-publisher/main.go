package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/instance"
	"github.com/angelmondragon/marketcore-backend/pkg/kafka"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/metrics"
	"github.com/angelmondragon/marketcore-backend/pkg/migrate"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/registry"
	"github.com/angelmondragon/marketcore-backend/pkg/pubsub"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "outbox-publisher"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "outbox-publisher"

	logg = logger.New(logger.Options{
		ServiceName: "outbox-publisher",
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

	dlq := outbox.NewDLQRepository(dbClient.DB())
	if len(os.Args) > 1 && os.Args[1] == "requeue" {
		if err := requeue(ctx, dlq, os.Args[2:], logg); err != nil {
			logg.Error(ctx, "requeue failed", err)
			os.Exit(1)
		}
		return
	}

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		logg.Error(ctx, "failed to build event registry", err)
		os.Exit(1)
	}

	tr, err := buildTransport(ctx, cfg, eventRegistry.Topics(), logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap outbox transport", err)
		os.Exit(1)
	}
	defer func() {
		if err := tr.Close(); err != nil {
			logg.Error(context.Background(), "error closing outbox transport", err)
		}
	}()
	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Transport:     tr,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      eventRegistry,
		DLQRepository: dlq,
		Metrics:       metrics.NewMarketplaceMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(ctx, "failed to create outbox publisher", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "outbox-publisher",
		"transport":   tr.Name(),
		"topics":      eventRegistry.Topics(),
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting outbox publisher")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "outbox publisher shutting down gracefully")
}

// requeue returns dead-lettered events to the outbox so the next publisher run retries them.
func requeue(ctx context.Context, dlq *outbox.DLQRepository, args []string, logg *logger.Logger) error {
	if len(args) == 0 {
		return errors.New("usage: outbox-publisher requeue <event-id>...")
	}
	for _, raw := range args {
		eventID, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("event id %q: %w", raw, err)
		}
		if err := dlq.Requeue(ctx, eventID); err != nil {
			return fmt.Errorf("requeue %s: %w", eventID, err)
		}
		logg.Info(logg.WithField(ctx, "event_id", eventID.String()), "outbox event requeued")
	}
	return nil
}

// buildTransport picks the broker named by the outbox config. Kafka topics reuse the Pub/Sub topic names.
func buildTransport(ctx context.Context, cfg *config.Config, topics []string, logg *logger.Logger) (transport, error) {
	switch cfg.Outbox.TransportKind() {
	case config.OutboxTransportKafka:
		producer, err := kafka.NewProducer(ctx, cfg.Kafka, logg)
		if err != nil {
			return nil, err
		}
		return &kafkaTransport{producer: producer}, nil
	case config.OutboxTransportPubSub:
		client, err := pubsub.NewClient(ctx, cfg.GCP, topics, cfg.PubSub.CreateTopics, logg)
		if err != nil {
			return nil, err
		}
		return newPubSubTransport(client), nil
	default:
		return nil, fmt.Errorf("unsupported outbox transport %q", cfg.Outbox.Transport)
	}
}
