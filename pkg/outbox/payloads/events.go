package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

// OrderCreatedEvent is queued when checkout commits a new order.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      uuid.UUID       `json:"user_id"`
	VendorIDs   []uuid.UUID     `json:"vendor_ids"`
	ItemCount   int             `json:"item_count"`
	Total       decimal.Decimal `json:"total"`
	Currency    string          `json:"currency"`
}

// OrderPaidEvent follows a confirmed payment.
type OrderPaidEvent struct {
	OrderID         uuid.UUID       `json:"order_id"`
	OrderNumber     string          `json:"order_number"`
	PaymentIntentID string          `json:"payment_intent_id"`
	Amount          decimal.Decimal `json:"amount"`
	PaidAt          time.Time       `json:"paid_at"`
}

type PaymentFailedEvent struct {
	OrderID         uuid.UUID `json:"order_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	Reason          string    `json:"reason,omitempty"`
}

type OrderRefundedEvent struct {
	OrderID         uuid.UUID       `json:"order_id"`
	PaymentIntentID string          `json:"payment_intent_id"`
	Amount          decimal.Decimal `json:"amount"`
	RefundedAt      time.Time       `json:"refunded_at"`
}

// OrderCancelledEvent covers customer cancels and pending-order expiry.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	UserID      uuid.UUID `json:"user_id"`
	CancelledAt time.Time `json:"cancelled_at"`
	Reason      string    `json:"reason,omitempty"`
}

// OrderItemStatusChangedEvent records one vendor-driven transition of a line.
type OrderItemStatusChangedEvent struct {
	OrderItemID    uuid.UUID             `json:"order_item_id"`
	OrderID        uuid.UUID             `json:"order_id"`
	VendorID       uuid.UUID             `json:"vendor_id"`
	From           enums.OrderItemStatus `json:"from"`
	To             enums.OrderItemStatus `json:"to"`
	TrackingNumber *string               `json:"tracking_number,omitempty"`
}

// NotificationRequestedEvent mirrors a persisted in-app notification for push/email fan-out.
type NotificationRequestedEvent struct {
	NotificationID uuid.UUID              `json:"notification_id"`
	UserID         uuid.UUID              `json:"user_id"`
	Type           enums.NotificationType `json:"type"`
	Title          string                 `json:"title"`
	Message        string                 `json:"message"`
	Link           string                 `json:"link,omitempty"`
}
