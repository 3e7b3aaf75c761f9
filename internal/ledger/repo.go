package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

// Repository manages persistence for ledger events and vendor balances.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, event *models.LedgerEvent) error
	Exists(ctx context.Context, orderItemID uuid.UUID, eventType enums.LedgerEventType) (bool, error)
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error)
	AdjustBalance(ctx context.Context, vendorID uuid.UUID, delta decimal.Decimal) error
	Balance(ctx context.Context, vendorID uuid.UUID) (decimal.Decimal, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, event *models.LedgerEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) Exists(ctx context.Context, orderItemID uuid.UUID, eventType enums.LedgerEventType) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEvent{}).
		Where("order_item_id = ? AND type = ?", orderItemID, eventType).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error) {
	var events []models.LedgerEvent
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// AdjustBalance adds delta to the vendor's pending balance, creating the row on first use.
func (r *repository) AdjustBalance(ctx context.Context, vendorID uuid.UUID, delta decimal.Decimal) error {
	res := r.db.WithContext(ctx).
		Model(&models.VendorBalance{}).
		Where("vendor_id = ?", vendorID).
		Update("pending_balance", gorm.Expr("pending_balance + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&models.VendorBalance{
		VendorID:       vendorID,
		PendingBalance: delta,
	}).Error
}

func (r *repository) Balance(ctx context.Context, vendorID uuid.UUID) (decimal.Decimal, error) {
	var row models.VendorBalance
	err := r.db.WithContext(ctx).Where("vendor_id = ?", vendorID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return row.PendingBalance, nil
}
