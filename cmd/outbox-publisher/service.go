package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/metrics"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/registry"
)

const (
	publishTimeout = 15 * time.Second
	backoffCap     = 10 * time.Second
	jitterWindow   = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type ServiceParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            dbClient
	Transport     transport
	Repository    outboxRepository
	Registry      registryResolver
	DLQRepository dlqRepository
	Metrics       *metrics.MarketplaceMetrics
}

// Service relays committed outbox rows to the broker. Rows are claimed with
// SKIP LOCKED inside one transaction per batch, so several replicas can run.
type Service struct {
	logg      *logger.Logger
	db        dbClient
	repo      outboxRepository
	transport transport
	registry  registryResolver
	dlq       dlqRepository
	metrics   *metrics.MarketplaceMetrics

	batchSize   int
	maxAttempts int
	interval    time.Duration
}

func NewService(p ServiceParams) (*Service, error) {
	for _, dep := range []struct {
		name   string
		absent bool
	}{
		{"config", p.Config == nil},
		{"logger", p.Logger == nil},
		{"database client", p.DB == nil},
		{"transport", p.Transport == nil},
		{"repository", p.Repository == nil},
		{"event registry", p.Registry == nil},
		{"dlq repository", p.DLQRepository == nil},
	} {
		if dep.absent {
			return nil, fmt.Errorf("outbox publisher: %s is required", dep.name)
		}
	}

	oc := p.Config.Outbox
	return &Service{
		logg:        p.Logger,
		db:          p.DB,
		repo:        p.Repository,
		transport:   p.Transport,
		registry:    p.Registry,
		dlq:         p.DLQRepository,
		metrics:     p.Metrics,
		batchSize:   positiveOr(oc.BatchSize, 50),
		maxAttempts: positiveOr(oc.MaxAttempts, 10),
		interval:    time.Duration(positiveOr(oc.PollIntervalMS, 500)) * time.Millisecond,
	}, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run checks dependencies once, then polls until ctx ends. A full batch is
// followed immediately by the next one; an idle poll waits one interval and a
// failed batch waits an exponentially growing delay.
func (s *Service) Run(ctx context.Context) error {
	if err := s.checkDependencies(ctx); err != nil {
		return err
	}

	delay := backoff{base: s.interval, max: backoffCap}
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		busy, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			wait = delay.next()
		case busy:
			delay.reset()
			continue
		default:
			delay.reset()
			wait = s.interval
		}
		if err := pause(ctx, wait+jitter()); err != nil {
			return err
		}
	}
}

func (s *Service) checkDependencies(ctx context.Context) error {
	names := []string{"database", s.transport.Name()}
	for i, ping := range []func(context.Context) error{s.db.Ping, s.transport.Ping} {
		if err := ping(ctx); err != nil {
			s.logg.Error(ctx, names[i]+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", names[i], err)
		}
	}
	return nil
}

// processBatch reports whether any rows were claimed. Publish failures are
// recorded per row and never abort the batch; only bookkeeping errors do.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	claimed := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(rows)
		for _, row := range rows {
			if err := s.settle(ctx, tx, row, s.attempt(ctx, row)); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed > 0, err
}

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDeadLetter
)

// verdict is the result of trying to publish one row.
type verdict struct {
	outcome  outcome
	reason   enums.OutboxDLQErrorReason
	err      error
	topic    string
	envelope outbox.PayloadEnvelope
}

func (s *Service) attempt(ctx context.Context, row models.OutboxEvent) verdict {
	resolved, err := s.registry.Resolve(row)
	if err != nil {
		return verdict{outcome: outcomeDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, err: err}
	}
	v := verdict{topic: resolved.Descriptor.Topic, envelope: resolved.Envelope}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = s.transport.Publish(pubCtx, messageFor(row, resolved))

	var permanent registry.NonRetryableError
	switch {
	case err == nil:
		v.outcome = outcomePublished
	case errors.As(err, &permanent):
		v.outcome, v.reason, v.err = outcomeDeadLetter, enums.OutboxDLQReasonNonRetryable, err
	case row.AttemptCount+1 >= s.maxAttempts:
		v.outcome, v.reason = outcomeDeadLetter, enums.OutboxDLQReasonMaxAttempts
		v.err = fmt.Errorf("max publish attempts reached: %w", err)
	default:
		v.outcome, v.err = outcomeRetry, err
	}
	return v
}

// messageFor keys the message on the aggregate so per-aggregate order survives
// partitioned or ordered delivery.
func messageFor(row models.OutboxEvent, resolved *registry.ResolvedEvent) outboundMessage {
	aggregateID := row.AggregateID.String()
	return outboundMessage{
		Topic: resolved.Descriptor.Topic,
		Key:   aggregateID,
		Data:  row.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   aggregateID,
			"created_at":     row.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, v verdict) error {
	logCtx := s.logg.WithFields(ctx, s.rowFields(row, v))

	switch v.outcome {
	case outcomePublished:
		if err := s.repo.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		s.metrics.IncOutboxPublish(metrics.OutboxResultPublished)
		s.logg.Info(logCtx, "outbox event published")

	case outcomeRetry:
		s.logg.Warn(s.logg.WithField(logCtx, "error", v.err.Error()), "outbox publish failed")
		if err := s.repo.MarkFailedTx(tx, row.ID, v.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", row.ID, err)
		}
		s.metrics.IncOutboxPublish(metrics.OutboxResultRetry)

	case outcomeDeadLetter:
		logCtx = s.logg.WithFields(logCtx, map[string]any{"error_reason": v.reason, "error": v.err.Error()})
		s.logg.Warn(logCtx, "outbox event will not be retried")
		if err := s.dlq.InsertTx(tx, outbox.NewDLQEntry(row, v.reason, v.err, time.Now())); err != nil {
			return fmt.Errorf("insert dlq %s: %w", row.ID, err)
		}
		if err := s.repo.MarkTerminalTx(tx, row.ID, v.err, s.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", row.ID, err)
		}
		s.metrics.IncOutboxPublish(metrics.OutboxResultDLQ)
	}
	return nil
}

func (s *Service) rowFields(row models.OutboxEvent, v verdict) map[string]any {
	fields := map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
		"transport":      s.transport.Name(),
	}
	if v.outcome != outcomePublished {
		fields["attempt_count"] = row.AttemptCount + 1
	}
	if v.topic != "" {
		fields["topic"] = v.topic
	}
	if v.envelope.EventID != "" {
		fields["event_id"] = v.envelope.EventID
		fields["occurred_at"] = v.envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	return fields
}

// backoff doubles from base up to max.
type backoff struct {
	base, max, cur time.Duration
}

func (b *backoff) next() time.Duration {
	if b.cur < b.base {
		b.cur = b.base
	}
	b.cur = min(b.cur*2, b.max)
	return b.cur
}

func (b *backoff) reset() { b.cur = 0 }

func jitter() time.Duration { return rand.N(jitterWindow) }

func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
