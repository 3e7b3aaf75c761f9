package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	vendorID := uuid.New()
	payloadBytes := mustMarshal(t, payloads.OrderCreatedEvent{
		OrderID:     uuid.New(),
		OrderNumber: "MC-20260301120000-ABC123",
		VendorIDs:   []uuid.UUID{vendorID},
		ItemCount:   2,
		Total:       decimal.RequireFromString("59.99"),
		Currency:    "usd",
	})

	event := models.OutboxEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "orders-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	if resolved.Descriptor.EventType != enums.EventOrderCreated {
		t.Fatalf("unexpected event type %s", resolved.Descriptor.EventType)
	}
	payload, ok := resolved.Payload.(*payloads.OrderCreatedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if len(payload.VendorIDs) != 1 || payload.VendorIDs[0] != vendorID {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if !payload.Total.Equal(decimal.RequireFromString("59.99")) {
		t.Fatalf("unexpected total %s", payload.Total)
	}
	if resolved.Envelope.EventID == "" {
		t.Fatalf("envelope missing event id")
	}
	if resolved.Envelope.OccurredAt.IsZero() {
		t.Fatalf("envelope missing occurred_at")
	}
}

func TestEventRegistryRoutesByTopic(t *testing.T) {
	reg := newTestEventRegistry(t)

	cases := []struct {
		eventType enums.OutboxEventType
		aggregate enums.OutboxAggregateType
		topic     string
	}{
		{enums.EventOrderCancelled, enums.AggregateOrder, "orders-topic"},
		{enums.EventOrderItemStatusChanged, enums.AggregateOrderItem, "orders-topic"},
		{enums.EventOrderPaid, enums.AggregateOrder, "payments-topic"},
		{enums.EventPaymentFailed, enums.AggregatePayment, "payments-topic"},
		{enums.EventOrderRefunded, enums.AggregateOrder, "payments-topic"},
		{enums.EventNotificationRequested, enums.AggregateNotification, "notification-topic"},
	}
	for _, tc := range cases {
		resolved, err := reg.Resolve(models.OutboxEvent{
			EventType:     tc.eventType,
			AggregateType: tc.aggregate,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte(`{}`)),
		})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.eventType, err)
		}
		if resolved.Descriptor.Topic != tc.topic {
			t.Fatalf("%s: expected topic %q, got %q", tc.eventType, tc.topic, resolved.Descriptor.Topic)
		}
	}
}

func TestEventRegistryTopics(t *testing.T) {
	got := newTestEventRegistry(t).Topics()
	want := []string{"notification-topic", "orders-topic", "payments-topic"}
	if len(got) != len(want) {
		t.Fatalf("unexpected topics %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected topics %v", got)
		}
	}
}

func TestEventRegistryRejectsFutureEnvelope(t *testing.T) {
	reg := newTestEventRegistry(t)
	raw, _ := json.Marshal(map[string]any{"version": 2, "event_id": uuid.NewString(), "data": map[string]any{}})
	_, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventOrderCancelled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       raw,
	})
	if !errors.Is(err, outbox.ErrUnsupportedEnvelope) {
		t.Fatalf("expected unsupported envelope, got %v", err)
	}
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error, got %T", err)
	}
}

func TestNewEventRegistryRequiresTopics(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{OrdersTopic: "orders"}); err == nil {
		t.Fatalf("expected error when payments topic is missing")
	}
}

func TestEventRegistryPoisonRows(t *testing.T) {
	reg := newTestEventRegistry(t)
	valid := func() models.OutboxEvent {
		return models.OutboxEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte(`{}`)),
		}
	}

	cases := map[string]func(*models.OutboxEvent){
		"unknown event type": func(e *models.OutboxEvent) { e.EventType = "reservation_released" },
		"aggregate mismatch": func(e *models.OutboxEvent) { e.AggregateType = enums.AggregatePayment },
		"nil aggregate id":   func(e *models.OutboxEvent) { e.AggregateID = uuid.Nil },
		"null data":          func(e *models.OutboxEvent) { e.Payload = mustEnvelope(t, []byte("null")) },
		"undecodable data":   func(e *models.OutboxEvent) { e.Payload = mustEnvelope(t, []byte(`{"item_count":"two"}`)) },
		"not json":           func(e *models.OutboxEvent) { e.Payload = json.RawMessage(`not-json`) },
	}
	for name, mutate := range cases {
		event := valid()
		mutate(&event)
		_, err := reg.Resolve(event)
		var nonRetry NonRetryableError
		if !errors.As(err, &nonRetry) {
			t.Fatalf("%s: expected non-retryable error, got %v", name, err)
		}
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	cfg := config.PubSubConfig{
		OrdersTopic:       "orders-topic",
		PaymentsTopic:     "payments-topic",
		NotificationTopic: "notification-topic",
	}
	reg, err := NewEventRegistry(cfg)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}
