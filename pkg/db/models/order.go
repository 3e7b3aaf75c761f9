package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/types"
)

// Order is the customer-facing aggregate created by checkout.
type Order struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber      string                `gorm:"column:order_number;not null;uniqueIndex:orders_order_number_key"`
	UserID           uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	Status           enums.OrderStatus     `gorm:"column:status;type:order_status;not null;default:'pending'"`
	PaymentStatus    enums.PaymentStatus   `gorm:"column:payment_status;type:payment_status;not null;default:'pending'"`
	Subtotal         decimal.Decimal       `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Tax              decimal.Decimal       `gorm:"column:tax;type:numeric(12,2);not null"`
	ShippingCost     decimal.Decimal       `gorm:"column:shipping_cost;type:numeric(12,2);not null"`
	Discount         decimal.Decimal       `gorm:"column:discount;type:numeric(12,2);not null"`
	Total            decimal.Decimal       `gorm:"column:total;type:numeric(12,2);not null"`
	Currency         string                `gorm:"column:currency;not null"`
	ShippingMethodID uuid.UUID             `gorm:"column:shipping_method_id;type:uuid;not null"`
	ShippingAddress  types.AddressSnapshot `gorm:"column:shipping_address;type:jsonb;serializer:json;not null"`
	BillingAddress   types.AddressSnapshot `gorm:"column:billing_address;type:jsonb;serializer:json;not null"`
	PaidAt           *time.Time            `gorm:"column:paid_at"`
	ShippedAt        *time.Time            `gorm:"column:shipped_at"`
	DeliveredAt      *time.Time            `gorm:"column:delivered_at"`
	CancelledAt      *time.Time            `gorm:"column:cancelled_at"`
	RefundedAt       *time.Time            `gorm:"column:refunded_at"`
	Items            []OrderItem           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payment          *Payment              `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}

// OrderItem is one vendor's line within an order and carries its own fulfillment state.
type OrderItem struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	VendorID         uuid.UUID             `gorm:"column:vendor_id;type:uuid;not null;index"`
	ProductID        uuid.UUID             `gorm:"column:product_id;type:uuid;not null"`
	VariantID        *uuid.UUID            `gorm:"column:variant_id;type:uuid"`
	ProductName      string                `gorm:"column:product_name;not null"`
	Quantity         int                   `gorm:"column:quantity;not null"`
	UnitPrice        decimal.Decimal       `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Subtotal         decimal.Decimal       `gorm:"column:subtotal;type:numeric(12,2);not null"`
	CommissionRate   decimal.Decimal       `gorm:"column:commission_rate;type:numeric(5,2);not null"`
	CommissionAmount decimal.Decimal       `gorm:"column:commission_amount;type:numeric(12,2);not null"`
	Status           enums.OrderItemStatus `gorm:"column:status;type:order_item_status;not null;default:'pending'"`
	Carrier          *string               `gorm:"column:carrier"`
	TrackingNumber   *string               `gorm:"column:tracking_number"`
	TrackingURL      *string               `gorm:"column:tracking_url"`
	ProcessingAt     *time.Time            `gorm:"column:processing_at"`
	ShippedAt        *time.Time            `gorm:"column:shipped_at"`
	DeliveredAt      *time.Time            `gorm:"column:delivered_at"`
	CancelledAt      *time.Time            `gorm:"column:cancelled_at"`
	RefundedAt       *time.Time            `gorm:"column:refunded_at"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}

// VendorNet is the amount owed to the vendor for this item.
func (i OrderItem) VendorNet() decimal.Decimal {
	return i.Subtotal.Sub(i.CommissionAmount)
}
