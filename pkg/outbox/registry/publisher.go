package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/payloads"
)

// EventDescriptor is the routing entry for one event type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string

	decode func(json.RawMessage) (any, error)
}

type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks rows that can never publish as stored; the
// publisher parks them in the DLQ on first sight.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func poison(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

// typed builds a descriptor whose payload decodes into T.
func typed[T any](eventType enums.OutboxEventType, topic string) EventDescriptor {
	agg, _ := outbox.AggregateFor(eventType)
	return EventDescriptor{
		EventType:     eventType,
		AggregateType: agg,
		Topic:         topic,
		decode: func(raw json.RawMessage) (any, error) {
			out := new(T)
			if err := json.Unmarshal(raw, out); err != nil {
				return nil, err
			}
			return out, nil
		},
	}
}

type EventRegistry struct {
	byType map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry routes order lifecycle events to the orders topic, payment
// outcomes to the payments topic and notification fan-out to its own topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topics := map[string]string{
		"orders":       cfg.OrdersTopic,
		"payments":     cfg.PaymentsTopic,
		"notification": cfg.NotificationTopic,
	}
	for name, topic := range topics {
		if topic == "" {
			return nil, fmt.Errorf("%s topic is required", name)
		}
	}

	descriptors := []EventDescriptor{
		typed[payloads.OrderCreatedEvent](enums.EventOrderCreated, cfg.OrdersTopic),
		typed[payloads.OrderCancelledEvent](enums.EventOrderCancelled, cfg.OrdersTopic),
		typed[payloads.OrderItemStatusChangedEvent](enums.EventOrderItemStatusChanged, cfg.OrdersTopic),
		typed[payloads.OrderPaidEvent](enums.EventOrderPaid, cfg.PaymentsTopic),
		typed[payloads.PaymentFailedEvent](enums.EventPaymentFailed, cfg.PaymentsTopic),
		typed[payloads.OrderRefundedEvent](enums.EventOrderRefunded, cfg.PaymentsTopic),
		typed[payloads.NotificationRequestedEvent](enums.EventNotificationRequested, cfg.NotificationTopic),
	}
	reg := &EventRegistry{byType: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, d := range descriptors {
		if d.AggregateType == "" {
			return nil, fmt.Errorf("event %s has no aggregate mapping", d.EventType)
		}
		reg.byType[d.EventType] = d
	}
	return reg, nil
}

// Topics lists the distinct topics events can be routed to.
func (r *EventRegistry) Topics() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, d := range r.byType {
		if _, ok := seen[d.Topic]; !ok {
			seen[d.Topic] = struct{}{}
			out = append(out, d.Topic)
		}
	}
	sort.Strings(out)
	return out
}

// Resolve checks the row against its descriptor and decodes the typed payload.
// Every failure here is non-retryable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.byType[event.EventType]
	if !ok {
		return nil, poison("unsupported event type %s", event.EventType)
	}
	if event.AggregateType != desc.AggregateType {
		return nil, poison("aggregate mismatch: %s expects %s, row has %s", event.EventType, desc.AggregateType, event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return nil, poison("missing aggregate_id")
	}

	env, err := outbox.OpenEnvelope(event.Payload)
	if err != nil {
		if errors.Is(err, outbox.ErrEmptyPayload) {
			return nil, poison("payload missing for %s", event.EventType)
		}
		return nil, NewNonRetryableError(err)
	}
	payload, err := desc.decode(env.Data)
	if err != nil {
		return nil, poison("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: env, Payload: payload}, nil
}
