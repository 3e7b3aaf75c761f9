package paymentwebhook

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/internal/ledger"
	"github.com/angelmondragon/marketcore-backend/internal/notifications"
	"github.com/angelmondragon/marketcore-backend/internal/orders"
	"github.com/angelmondragon/marketcore-backend/internal/payments"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/metrics"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/payloads"
)

// ConsumerName scopes provider event ids in the shared idempotency keyspace.
const ConsumerName = "payments-webhook"

// Outcome reports what a webhook event did to marketplace state.
type Outcome string

const (
	// OutcomeApplied means the event moved the payment and its order.
	OutcomeApplied Outcome = "applied"
	// OutcomeIgnored means the precondition no longer held (duplicate or stale delivery).
	OutcomeIgnored Outcome = "ignored"
	// OutcomeUnhandled covers unknown event types and intents the marketplace never created.
	OutcomeUnhandled Outcome = "unhandled"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ledgerWriter interface {
	Credit(ctx context.Context, tx *gorm.DB, entry ledger.Entry) (bool, error)
	Reverse(ctx context.Context, tx *gorm.DB, entry ledger.Entry) (bool, error)
}

type inventoryReleaser interface {
	Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, variantID *uuid.UUID, qty int) error
}

type notifier interface {
	Enqueue(ctx context.Context, tx *gorm.DB, req notifications.Request) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ReconcilerParams wires the reconciler.
type ReconcilerParams struct {
	Orders    orders.Repository
	Tx        txRunner
	Ledger    ledgerWriter
	Inventory inventoryReleaser
	Notifier  notifier
	Outbox    outboxPublisher
	Metrics   *metrics.MarketplaceMetrics
	Logger    *logger.Logger
}

// Reconciler applies normalized payment events to payments, orders, items and vendor balances.
// Every step is a conditional update, so replays and out-of-order deliveries fall through as no-ops.
type Reconciler struct {
	orders    orders.Repository
	tx        txRunner
	ledger    ledgerWriter
	inventory inventoryReleaser
	notifier  notifier
	outbox    outboxPublisher
	metrics   *metrics.MarketplaceMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger required")
	}
	if params.Inventory == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory required")
	}
	if params.Notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifier required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox publisher required")
	}
	return &Reconciler{
		orders:    params.Orders,
		tx:        params.Tx,
		ledger:    params.Ledger,
		inventory: params.Inventory,
		notifier:  params.Notifier,
		outbox:    params.Outbox,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

var errUnknownIntent = errors.New("unknown payment intent")

// Apply reconciles one verified event.
func (r *Reconciler) Apply(ctx context.Context, event payments.NormalizedEvent) (Outcome, error) {
	outcome, err := r.apply(ctx, event)
	if err != nil {
		r.metrics.IncWebhookEvent(event.Type, "error")
		return "", err
	}
	r.metrics.IncWebhookEvent(event.Type, string(outcome))
	return outcome, nil
}

func (r *Reconciler) apply(ctx context.Context, event payments.NormalizedEvent) (Outcome, error) {
	if r.logg != nil {
		ctx = r.logg.WithFields(ctx, map[string]any{
			"event_id":          event.ID,
			"event_type":        event.Type.String(),
			"payment_intent_id": event.IntentID,
		})
	}

	var handler func(ctx context.Context, tx *gorm.DB, payment *models.Payment, event payments.NormalizedEvent) (Outcome, error)
	switch event.Type {
	case enums.PaymentEventSucceeded:
		handler = r.succeeded
	case enums.PaymentEventFailed:
		handler = r.failed
	case enums.PaymentEventRefunded:
		handler = r.refunded
	default:
		r.info(ctx, "payment event type not handled")
		return OutcomeUnhandled, nil
	}
	if event.IntentID == "" {
		r.info(ctx, "payment event without intent id")
		return OutcomeUnhandled, nil
	}

	var outcome Outcome
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		payment, err := r.orders.WithTx(tx).FindPaymentByIntent(ctx, event.IntentID)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return errUnknownIntent
			}
			return err
		}
		outcome, err = handler(ctx, tx, payment, event)
		return err
	})
	if errors.Is(err, errUnknownIntent) {
		r.info(ctx, "payment event for unknown intent")
		return OutcomeUnhandled, nil
	}
	if err != nil {
		return "", err
	}
	if outcome == OutcomeIgnored {
		r.info(ctx, "payment event precondition not met")
	}
	return outcome, nil
}

func (r *Reconciler) succeeded(ctx context.Context, tx *gorm.DB, payment *models.Payment, event payments.NormalizedEvent) (Outcome, error) {
	repo := r.orders.WithTx(tx)
	moved, err := repo.TransitionPayment(ctx, payment.ID,
		[]enums.PaymentStatus{enums.PaymentStatusPending, enums.PaymentStatusFailed},
		map[string]any{"status": enums.PaymentStatusPaid, "failure_reason": nil, "last_event_id": event.ID},
	)
	if err != nil || !moved {
		return OutcomeIgnored, err
	}

	order, err := repo.FindOrder(ctx, payment.OrderID)
	if err != nil {
		return "", err
	}
	paidAt := r.now()
	confirmed, err := repo.TransitionOrder(ctx, order.ID, []enums.OrderStatus{enums.OrderStatusPending}, map[string]any{
		"status":         enums.OrderStatusConfirmed,
		"payment_status": enums.PaymentStatusPaid,
		"paid_at":        paidAt,
	})
	if err != nil {
		return "", err
	}
	if !confirmed {
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{"payment_status": enums.PaymentStatusPaid, "paid_at": paidAt}); err != nil {
			return "", err
		}
	}

	for _, item := range order.Items {
		if item.Status == enums.OrderItemStatusPending {
			if _, err := repo.TransitionItem(ctx, item.ID, enums.OrderItemStatusPending, map[string]any{
				"status": enums.OrderItemStatusConfirmed,
			}); err != nil {
				return "", err
			}
		}
		if !item.Status.IsLive() {
			continue
		}
		if _, err := r.ledger.Credit(ctx, tx, ledger.EntryFor(item)); err != nil {
			return "", err
		}
	}

	if err := r.notifier.Enqueue(ctx, tx, notifications.Request{
		UserID:  order.UserID,
		Type:    enums.NotificationTypePaymentReceived,
		Title:   "Payment received",
		Message: fmt.Sprintf("We received your payment for order %s.", order.OrderNumber),
		Link:    orderLink(order.ID),
	}); err != nil {
		return "", err
	}

	if err := r.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderPaidEvent{
			OrderID:         order.ID,
			OrderNumber:     order.OrderNumber,
			PaymentIntentID: payment.ExternalIntentID,
			Amount:          payment.Amount,
			PaidAt:          paidAt,
		},
	}); err != nil {
		return "", err
	}
	return OutcomeApplied, nil
}

func (r *Reconciler) failed(ctx context.Context, tx *gorm.DB, payment *models.Payment, event payments.NormalizedEvent) (Outcome, error) {
	repo := r.orders.WithTx(tx)
	reason := event.FailureReason
	moved, err := repo.TransitionPayment(ctx, payment.ID,
		[]enums.PaymentStatus{enums.PaymentStatusPending},
		map[string]any{"status": enums.PaymentStatusFailed, "failure_reason": reason, "last_event_id": event.ID},
	)
	if err != nil || !moved {
		return OutcomeIgnored, err
	}

	order, err := repo.FindOrder(ctx, payment.OrderID)
	if err != nil {
		return "", err
	}
	if err := repo.UpdateOrder(ctx, order.ID, map[string]any{"payment_status": enums.PaymentStatusFailed}); err != nil {
		return "", err
	}

	message := fmt.Sprintf("Payment for order %s failed.", order.OrderNumber)
	if reason != "" {
		message = fmt.Sprintf("Payment for order %s failed: %s", order.OrderNumber, reason)
	}
	if err := r.notifier.Enqueue(ctx, tx, notifications.Request{
		UserID:  order.UserID,
		Type:    enums.NotificationTypePaymentFailed,
		Title:   "Payment failed",
		Message: message,
		Link:    orderLink(order.ID),
	}); err != nil {
		return "", err
	}

	if err := r.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentFailed,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Data: payloads.PaymentFailedEvent{
			OrderID:         order.ID,
			PaymentIntentID: payment.ExternalIntentID,
			Reason:          reason,
		},
	}); err != nil {
		return "", err
	}
	return OutcomeApplied, nil
}

func (r *Reconciler) refunded(ctx context.Context, tx *gorm.DB, payment *models.Payment, event payments.NormalizedEvent) (Outcome, error) {
	if payment.Status == enums.PaymentStatusRefunded {
		return OutcomeIgnored, nil
	}
	repo := r.orders.WithTx(tx)
	order, err := repo.FindOrder(ctx, payment.OrderID)
	if err != nil {
		return "", err
	}
	if !slices.Contains(refundableOrderStatuses, order.Status) {
		if r.logg != nil {
			r.logg.Warn(r.logg.WithField(ctx, "order_status", string(order.Status)), "refund for closed order left for manual handling")
		}
		return OutcomeIgnored, nil
	}

	wasPaid := payment.Status == enums.PaymentStatusPaid
	moved, err := repo.TransitionPayment(ctx, payment.ID, []enums.PaymentStatus{payment.Status}, map[string]any{
		"status":        enums.PaymentStatusRefunded,
		"last_event_id": event.ID,
	})
	if err != nil || !moved {
		return OutcomeIgnored, err
	}

	refundedAt := r.now()
	moved, err = repo.TransitionOrder(ctx, order.ID, refundableOrderStatuses, map[string]any{
		"status":         enums.OrderStatusRefunded,
		"payment_status": enums.PaymentStatusRefunded,
		"refunded_at":    refundedAt,
	})
	if err != nil {
		return "", err
	}
	if !moved {
		return "", pkgerrors.New(pkgerrors.CodeConflict, "order changed during refund")
	}

	for _, item := range order.Items {
		if !item.Status.IsLive() {
			continue
		}
		moved, err := repo.TransitionItem(ctx, item.ID, item.Status, map[string]any{
			"status":      enums.OrderItemStatusRefunded,
			"refunded_at": refundedAt,
		})
		if err != nil {
			return "", err
		}
		if !moved {
			continue
		}
		if err := r.inventory.Release(ctx, tx, item.ProductID, item.VariantID, item.Quantity); err != nil {
			return "", err
		}
		if wasPaid {
			if _, err := r.ledger.Reverse(ctx, tx, ledger.EntryFor(item)); err != nil {
				return "", err
			}
		}
	}

	if err := r.notifier.Enqueue(ctx, tx, notifications.Request{
		UserID:  order.UserID,
		Type:    enums.NotificationTypeOrderRefunded,
		Title:   "Order refunded",
		Message: fmt.Sprintf("Order %s has been refunded.", order.OrderNumber),
		Link:    orderLink(order.ID),
	}); err != nil {
		return "", err
	}

	amount := event.Amount
	if amount.IsZero() {
		amount = payment.Amount
	}
	if err := r.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderRefunded,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderRefundedEvent{
			OrderID:         order.ID,
			PaymentIntentID: payment.ExternalIntentID,
			Amount:          amount,
			RefundedAt:      refundedAt,
		},
	}); err != nil {
		return "", err
	}
	return OutcomeApplied, nil
}

// refundableOrderStatuses are the pre-terminal states; delivered, cancelled and
// refunded orders are closed.
var refundableOrderStatuses = []enums.OrderStatus{
	enums.OrderStatusPending,
	enums.OrderStatusConfirmed,
	enums.OrderStatusShipped,
}

func (r *Reconciler) info(ctx context.Context, msg string) {
	if r.logg != nil {
		r.logg.Info(ctx, msg)
	}
}

func orderLink(orderID uuid.UUID) string {
	return "/orders/" + orderID.String()
}
