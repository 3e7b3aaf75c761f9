package enums

// OutboxAggregateType names the entity an outbox event is keyed on.
type OutboxAggregateType string

const (
	AggregateOrder        OutboxAggregateType = "order"
	AggregateOrderItem    OutboxAggregateType = "order_item"
	AggregatePayment      OutboxAggregateType = "payment"
	AggregateNotification OutboxAggregateType = "notification"
)

var aggregateTypes = closedSet[OutboxAggregateType]{
	AggregateOrder, AggregateOrderItem, AggregatePayment, AggregateNotification,
}

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse("aggregate type", value)
}

// OutboxEventType is the event name published on the bus.
type OutboxEventType string

const (
	EventOrderCreated           OutboxEventType = "order_created"
	EventOrderPaid              OutboxEventType = "order_paid"
	EventPaymentFailed          OutboxEventType = "payment_failed"
	EventOrderRefunded          OutboxEventType = "order_refunded"
	EventOrderCancelled         OutboxEventType = "order_cancelled"
	EventOrderItemStatusChanged OutboxEventType = "order_item_status_changed"
	EventNotificationRequested  OutboxEventType = "notification_requested"
)

var outboxEventTypes = closedSet[OutboxEventType]{
	EventOrderCreated,
	EventOrderPaid,
	EventPaymentFailed,
	EventOrderRefunded,
	EventOrderCancelled,
	EventOrderItemStatusChanged,
	EventNotificationRequested,
}

func (e OutboxEventType) IsValid() bool { return outboxEventTypes.has(e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return outboxEventTypes.parse("event type", value)
}

// OutboxDLQErrorReason records why a row was parked in outbox_dlq.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var dlqReasons = closedSet[OutboxDLQErrorReason]{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable}

func (r OutboxDLQErrorReason) IsValid() bool { return dlqReasons.has(r) }

func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	return dlqReasons.parse("outbox dlq error reason", value)
}
