package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

// VendorBalance accumulates revenue owed to a vendor ahead of payout.
type VendorBalance struct {
	VendorID       uuid.UUID       `gorm:"column:vendor_id;type:uuid;primaryKey"`
	PendingBalance decimal.Decimal `gorm:"column:pending_balance;type:numeric(12,2);not null"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// LedgerEvent journals every balance movement for a vendor order item.
type LedgerEvent struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	VendorID    uuid.UUID             `gorm:"column:vendor_id;type:uuid;not null;index"`
	OrderID     uuid.UUID             `gorm:"column:order_id;type:uuid;not null"`
	OrderItemID uuid.UUID             `gorm:"column:order_item_id;type:uuid;not null;uniqueIndex:ledger_events_item_type_key"`
	Type        enums.LedgerEventType `gorm:"column:type;type:ledger_event_type;not null;uniqueIndex:ledger_events_item_type_key"`
	Amount      decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (l *LedgerEvent) BeforeCreate(*gorm.DB) error {
	assignID(&l.ID)
	return nil
}
