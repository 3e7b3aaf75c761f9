package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

// EnvelopeVersion is the only payload layout this build writes and reads.
const EnvelopeVersion = 1

var (
	ErrUnsupportedEnvelope = errors.New("unsupported envelope version")
	ErrEmptyPayload        = errors.New("envelope has no data")
)

type ActorRef struct {
	UserID   uuid.UUID      `json:"user_id"`
	VendorID *uuid.UUID     `json:"vendor_id,omitempty"`
	Role     enums.UserRole `json:"role,omitempty"`
}

// PayloadEnvelope is the JSON stored in outbox_events.payload and published as the message body.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"event_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// keyedOn pins each event to the aggregate its outbox row is keyed on.
var keyedOn = map[enums.OutboxEventType]enums.OutboxAggregateType{
	enums.EventOrderCreated:           enums.AggregateOrder,
	enums.EventOrderCancelled:         enums.AggregateOrder,
	enums.EventOrderPaid:              enums.AggregateOrder,
	enums.EventOrderRefunded:          enums.AggregateOrder,
	enums.EventPaymentFailed:          enums.AggregatePayment,
	enums.EventOrderItemStatusChanged: enums.AggregateOrderItem,
	enums.EventNotificationRequested:  enums.AggregateNotification,
}

// AggregateFor returns the aggregate type an event must be emitted under.
func AggregateFor(eventType enums.OutboxEventType) (enums.OutboxAggregateType, bool) {
	agg, ok := keyedOn[eventType]
	return agg, ok
}

func seal(eventID uuid.UUID, ev DomainEvent) (json.RawMessage, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, fmt.Errorf("encode %s data: %w", ev.EventType, err)
	}
	return json.Marshal(PayloadEnvelope{
		Version:    EnvelopeVersion,
		EventID:    eventID.String(),
		OccurredAt: ev.OccurredAt,
		Actor:      ev.Actor,
		Data:       data,
	})
}

// OpenEnvelope decodes a stored payload. A version other than EnvelopeVersion or
// a null/empty data field is an error.
func OpenEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version != EnvelopeVersion {
		return env, fmt.Errorf("%w: %d", ErrUnsupportedEnvelope, env.Version)
	}
	if d := bytes.TrimSpace(env.Data); len(d) == 0 || bytes.Equal(d, []byte("null")) {
		return env, ErrEmptyPayload
	}
	return env, nil
}
