package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ShippingMethod struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name          string          `gorm:"column:name;not null"`
	Carrier       string          `gorm:"column:carrier"`
	Cost          decimal.Decimal `gorm:"column:cost;type:numeric(12,2);not null"`
	EstimatedDays int             `gorm:"column:estimated_days;not null;default:0"`
	IsActive      bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *ShippingMethod) BeforeCreate(*gorm.DB) error {
	assignID(&s.ID)
	return nil
}
