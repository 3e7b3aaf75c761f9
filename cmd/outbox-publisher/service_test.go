package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/metrics"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/registry"
)

type relayFixture struct {
	rows   *rowStore
	broker *recordingBroker
	dlq    *dlqSink
	svc    *Service
}

func newRelay(t *testing.T, oc config.OutboxConfig, reg registryResolver, rows ...models.OutboxEvent) *relayFixture {
	t.Helper()
	f := &relayFixture{
		rows:   &rowStore{pending: rows},
		broker: &recordingBroker{},
		dlq:    &dlqSink{},
	}
	if reg == nil {
		reg = stubResolver{topic: "orders-topic"}
	}
	svc, err := NewService(ServiceParams{
		Config:        &config.Config{Outbox: oc},
		Logger:        logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:            noopDB{},
		Transport:     f.broker,
		Repository:    f.rows,
		Registry:      reg,
		DLQRepository: f.dlq,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func orderRow(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    outbox.EnvelopeVersion,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{"order_id":"x"}`),
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       payload,
		AttemptCount:  attempts,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestBatchOutcomes(t *testing.T) {
	transient := errors.New("broker unavailable")

	cases := []struct {
		name       string
		attempts   int
		maxAttempt int
		publishErr error
		reg        registryResolver
		published  int
		retried    int
		deadReason enums.OutboxDLQErrorReason
	}{
		{name: "published", published: 1},
		{name: "transient failure is retried", publishErr: transient, retried: 1},
		{name: "last attempt dead-letters", attempts: 2, maxAttempt: 3, publishErr: transient, deadReason: enums.OutboxDLQReasonMaxAttempts},
		{name: "permanent transport error", publishErr: registry.NewNonRetryableError(errors.New("no publisher")), deadReason: enums.OutboxDLQReasonNonRetryable},
		{name: "unresolvable row", reg: stubResolver{err: registry.NewNonRetryableError(errors.New("bad payload"))}, deadReason: enums.OutboxDLQReasonNonRetryable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			row := orderRow(t, tc.attempts)
			f := newRelay(t, config.OutboxConfig{MaxAttempts: tc.maxAttempt}, tc.reg, row)
			if tc.publishErr != nil {
				f.broker.errs = []error{tc.publishErr}
			}

			busy, err := f.svc.processBatch(context.Background())
			require.NoError(t, err)
			require.True(t, busy)

			require.Len(t, f.rows.published, tc.published)
			require.Len(t, f.rows.failed, tc.retried)
			if tc.deadReason == "" {
				require.Empty(t, f.dlq.entries)
				require.Empty(t, f.rows.terminal)
				return
			}
			require.Len(t, f.dlq.entries, 1)
			require.Equal(t, tc.deadReason, f.dlq.entries[0].ErrorReason)
			require.Equal(t, row.ID, f.dlq.entries[0].EventID)
			require.JSONEq(t, string(row.Payload), string(f.dlq.entries[0].Payload))
			require.Equal(t, []uuid.UUID{row.ID}, f.rows.terminal)
		})
	}
}

func TestBatchKeepsGoingAfterOneFailure(t *testing.T) {
	first, second := orderRow(t, 0), orderRow(t, 0)
	f := newRelay(t, config.OutboxConfig{}, nil, first, second)
	f.broker.errs = []error{errors.New("timeout"), nil}

	_, err := f.svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{first.ID}, f.rows.failed)
	require.Equal(t, []uuid.UUID{second.ID}, f.rows.published)
}

func TestMessageCarriesAggregateKeyAndAttributes(t *testing.T) {
	row := orderRow(t, 0)
	f := newRelay(t, config.OutboxConfig{}, nil, row)

	_, err := f.svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, f.broker.sent, 1)

	msg := f.broker.sent[0]
	require.Equal(t, "orders-topic", msg.Topic)
	require.Equal(t, row.AggregateID.String(), msg.Key)
	require.Equal(t, string(enums.EventOrderCreated), msg.Attributes["event_type"])
	require.Equal(t, row.AggregateID.String(), msg.Attributes["aggregate_id"])
	require.Equal(t, []byte(row.Payload), msg.Data)
}

func TestEmptyBatchIsIdle(t *testing.T) {
	f := newRelay(t, config.OutboxConfig{}, nil)
	busy, err := f.svc.processBatch(context.Background())
	require.NoError(t, err)
	require.False(t, busy)
}

func TestBookkeepingErrorAbortsBatch(t *testing.T) {
	f := newRelay(t, config.OutboxConfig{}, nil, orderRow(t, 0))
	f.rows.markErr = errors.New("db gone")

	_, err := f.svc.processBatch(context.Background())
	require.ErrorContains(t, err, "mark published")
}

func TestDeadLetterIsCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newRelay(t, config.OutboxConfig{}, stubResolver{err: registry.NewNonRetryableError(errors.New("x"))}, orderRow(t, 0))
	f.svc.metrics = metrics.NewMarketplaceMetrics(reg)

	_, err := f.svc.processBatch(context.Background())
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	var seen bool
	for _, mf := range families {
		if mf.GetName() == "outbox_publish_total" {
			seen = true
		}
	}
	require.True(t, seen)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	b := backoff{base: 100 * time.Millisecond, max: time.Second}
	require.Equal(t, 200*time.Millisecond, b.next())
	require.Equal(t, 400*time.Millisecond, b.next())
	require.Equal(t, 800*time.Millisecond, b.next())
	require.Equal(t, time.Second, b.next())
	b.reset()
	require.Equal(t, 200*time.Millisecond, b.next())
}

func TestNewServiceDefaultsAndRequirements(t *testing.T) {
	f := newRelay(t, config.OutboxConfig{}, nil)
	require.Equal(t, 50, f.svc.batchSize)
	require.Equal(t, 10, f.svc.maxAttempts)
	require.Equal(t, 500*time.Millisecond, f.svc.interval)

	_, err := NewService(ServiceParams{
		Config:        &config.Config{},
		Logger:        logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:            noopDB{},
		Repository:    &rowStore{},
		Registry:      stubResolver{},
		DLQRepository: &dlqSink{},
	})
	require.ErrorContains(t, err, "transport is required")
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newRelay(t, config.OutboxConfig{PollIntervalMS: 5}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, f.svc.Run(ctx), context.Canceled)
}

type rowStore struct {
	pending   []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
	markErr   error
}

func (r *rowStore) FetchUnpublishedForPublish(_ *gorm.DB, _, _ int) ([]models.OutboxEvent, error) {
	return r.pending, nil
}

func (r *rowStore) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	if r.markErr != nil {
		return r.markErr
	}
	r.published = append(r.published, id)
	return nil
}

func (r *rowStore) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	r.failed = append(r.failed, id)
	return nil
}

func (r *rowStore) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	r.terminal = append(r.terminal, id)
	return nil
}

type noopDB struct{}

func (noopDB) Ping(context.Context) error { return nil }

func (noopDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type recordingBroker struct {
	errs []error
	sent []outboundMessage
}

func (b *recordingBroker) Name() string { return "fake" }
func (b *recordingBroker) Ping(context.Context) error { return nil }
func (b *recordingBroker) Close() error { return nil }

func (b *recordingBroker) Publish(_ context.Context, msg outboundMessage) error {
	if len(b.errs) > 0 {
		err := b.errs[0]
		b.errs = b.errs[1:]
		if err != nil {
			return err
		}
	}
	b.sent = append(b.sent, msg)
	return nil
}

type stubResolver struct {
	topic string
	err   error
}

func (s stubResolver) Resolve(row models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	env, err := outbox.OpenEnvelope(row.Payload)
	if err != nil {
		return nil, err
	}
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{EventType: row.EventType, AggregateType: row.AggregateType, Topic: s.topic},
		Envelope:   env,
	}, nil
}

type dlqSink struct {
	entries []models.OutboxDLQ
}

func (d *dlqSink) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	d.entries = append(d.entries, entry)
	return nil
}
