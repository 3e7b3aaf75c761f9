package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/types"
)

// OrderDTO is the customer view of an order.
type OrderDTO struct {
	ID              uuid.UUID             `json:"id"`
	OrderNumber     string                `json:"order_number"`
	Status          enums.OrderStatus     `json:"status"`
	PaymentStatus   enums.PaymentStatus   `json:"payment_status"`
	Subtotal        string                `json:"subtotal"`
	Tax             string                `json:"tax"`
	ShippingCost    string                `json:"shipping_cost"`
	Discount        string                `json:"discount"`
	Total           string                `json:"total"`
	Currency        string                `json:"currency"`
	ShippingAddress types.AddressSnapshot `json:"shipping_address"`
	BillingAddress  types.AddressSnapshot `json:"billing_address"`
	Items           []OrderItemDTO        `json:"items"`
	Payment         *PaymentDTO           `json:"payment,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	PaidAt          *time.Time            `json:"paid_at,omitempty"`
	ShippedAt       *time.Time            `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time            `json:"delivered_at,omitempty"`
	CancelledAt     *time.Time            `json:"cancelled_at,omitempty"`
	RefundedAt      *time.Time            `json:"refunded_at,omitempty"`
}

// OrderItemDTO is shared by the customer order view and the vendor queue.
type OrderItemDTO struct {
	ID               uuid.UUID             `json:"id"`
	OrderID          uuid.UUID             `json:"order_id"`
	OrderNumber      string                `json:"order_number,omitempty"`
	VendorID         uuid.UUID             `json:"vendor_id"`
	ProductID        uuid.UUID             `json:"product_id"`
	VariantID        *uuid.UUID            `json:"variant_id,omitempty"`
	ProductName      string                `json:"product_name"`
	Quantity         int                   `json:"quantity"`
	UnitPrice        string                `json:"unit_price"`
	Subtotal         string                `json:"subtotal"`
	CommissionAmount string                `json:"commission_amount"`
	Status           enums.OrderItemStatus `json:"status"`
	Carrier          *string               `json:"carrier,omitempty"`
	TrackingNumber   *string               `json:"tracking_number,omitempty"`
	TrackingURL      *string               `json:"tracking_url,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
}

type PaymentDTO struct {
	IntentID      string              `json:"payment_intent_id"`
	Amount        string              `json:"amount"`
	Currency      string              `json:"currency"`
	Status        enums.PaymentStatus `json:"status"`
	FailureReason *string             `json:"failure_reason,omitempty"`
}

// VendorItemList wraps a page of vendor order items plus the next cursor.
type VendorItemList struct {
	Items      []OrderItemDTO `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

func toOrderDTO(order *models.Order) *OrderDTO {
	dto := &OrderDTO{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		Status:          order.Status,
		PaymentStatus:   order.PaymentStatus,
		Subtotal:        order.Subtotal.StringFixed(2),
		Tax:             order.Tax.StringFixed(2),
		ShippingCost:    order.ShippingCost.StringFixed(2),
		Discount:        order.Discount.StringFixed(2),
		Total:           order.Total.StringFixed(2),
		Currency:        order.Currency,
		ShippingAddress: order.ShippingAddress,
		BillingAddress:  order.BillingAddress,
		Items:           make([]OrderItemDTO, 0, len(order.Items)),
		CreatedAt:       order.CreatedAt,
		PaidAt:          order.PaidAt,
		ShippedAt:       order.ShippedAt,
		DeliveredAt:     order.DeliveredAt,
		CancelledAt:     order.CancelledAt,
		RefundedAt:      order.RefundedAt,
	}
	for _, item := range order.Items {
		dto.Items = append(dto.Items, toItemDTO(item, ""))
	}
	if order.Payment != nil {
		dto.Payment = &PaymentDTO{
			IntentID:      order.Payment.ExternalIntentID,
			Amount:        order.Payment.Amount.StringFixed(2),
			Currency:      order.Payment.Currency,
			Status:        order.Payment.Status,
			FailureReason: order.Payment.FailureReason,
		}
	}
	return dto
}

func toItemDTO(item models.OrderItem, orderNumber string) OrderItemDTO {
	return OrderItemDTO{
		ID:               item.ID,
		OrderID:          item.OrderID,
		OrderNumber:      orderNumber,
		VendorID:         item.VendorID,
		ProductID:        item.ProductID,
		VariantID:        item.VariantID,
		ProductName:      item.ProductName,
		Quantity:         item.Quantity,
		UnitPrice:        item.UnitPrice.StringFixed(2),
		Subtotal:         item.Subtotal.StringFixed(2),
		CommissionAmount: item.CommissionAmount.StringFixed(2),
		Status:           item.Status,
		Carrier:          item.Carrier,
		TrackingNumber:   item.TrackingNumber,
		TrackingURL:      item.TrackingURL,
		CreatedAt:        item.CreatedAt,
	}
}
