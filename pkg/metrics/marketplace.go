package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

// Checkout outcomes.
const (
	CheckoutOutcomeSuccess           = "success"
	CheckoutOutcomeEmptyCart         = "empty_cart"
	CheckoutOutcomeInsufficientStock = "insufficient_stock"
	CheckoutOutcomeInvalid           = "invalid"
	CheckoutOutcomeError             = "error"
)

// Outbox publish results.
const (
	OutboxResultPublished = "published"
	OutboxResultRetry     = "retry"
	OutboxResultDLQ       = "dlq"
)

// MarketplaceMetrics carries the order pipeline counters. A nil receiver is a no-op.
type MarketplaceMetrics struct {
	checkoutAttempts *prometheus.CounterVec
	webhookEvents    *prometheus.CounterVec
	itemTransitions  *prometheus.CounterVec
	outboxPublish    *prometheus.CounterVec
}

// NewMarketplaceMetrics registers the order pipeline counters on the provided registerer.
func NewMarketplaceMetrics(reg prometheus.Registerer) *MarketplaceMetrics {
	if reg == nil {
		return &MarketplaceMetrics{}
	}
	checkout := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_attempts_total",
		Help: "Checkout attempts by outcome.",
	}, []string{"outcome"})
	webhook := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_events_total",
		Help: "Payment provider webhook events by type and outcome.",
	}, []string{"type", "outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_item_transitions_total",
		Help: "Order item status transitions.",
	}, []string{"from", "to"})
	outbox := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_total",
		Help: "Outbox publish attempts by result.",
	}, []string{"result"})
	reg.MustRegister(checkout, webhook, transitions, outbox)
	return &MarketplaceMetrics{
		checkoutAttempts: checkout,
		webhookEvents:    webhook,
		itemTransitions:  transitions,
		outboxPublish:    outbox,
	}
}

func (m *MarketplaceMetrics) IncCheckout(outcome string) {
	if m == nil || m.checkoutAttempts == nil {
		return
	}
	m.checkoutAttempts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *MarketplaceMetrics) IncWebhookEvent(eventType enums.PaymentEventType, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(string(eventType)), normalizeLabel(outcome)).Inc()
}

func (m *MarketplaceMetrics) IncItemTransition(from, to enums.OrderItemStatus) {
	if m == nil || m.itemTransitions == nil {
		return
	}
	m.itemTransitions.WithLabelValues(normalizeLabel(string(from)), normalizeLabel(string(to))).Inc()
}

func (m *MarketplaceMetrics) IncOutboxPublish(result string) {
	if m == nil || m.outboxPublish == nil {
		return
	}
	m.outboxPublish.WithLabelValues(normalizeLabel(result)).Inc()
}
