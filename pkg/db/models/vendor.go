package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Vendor is the selling party; CommissionRate is a percentage (e.g. 15.00).
type Vendor struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OwnerUserID    uuid.UUID       `gorm:"column:owner_user_id;type:uuid;not null;index"`
	Name           string          `gorm:"column:name;not null"`
	CommissionRate decimal.Decimal `gorm:"column:commission_rate;type:numeric(5,2);not null"`
	IsActive       bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *Vendor) BeforeCreate(*gorm.DB) error {
	assignID(&v.ID)
	return nil
}
