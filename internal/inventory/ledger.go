package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
)

// StockDetails is attached to INSUFFICIENT_STOCK errors.
type StockDetails struct {
	ProductID uuid.UUID  `json:"product_id"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Available int        `json:"available"`
}

// Ledger moves stock on products and variants. Every method requires the caller's transaction.
type Ledger struct{}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Reserve decrements stock with a single conditional UPDATE so two buyers can never take the same unit.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, variantID *uuid.UUID, qty int) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	res := stockTarget(tx.WithContext(ctx), productID, variantID).
		Where("quantity >= ?", qty).
		Update("quantity", gorm.Expr("quantity - ?", qty))
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, res.Error, "reserve inventory")
	}
	if res.RowsAffected == 1 {
		return nil
	}

	available, err := l.Available(ctx, tx, productID, variantID)
	if err != nil {
		return err
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("Only %d left in stock", available)).
		WithDetails(StockDetails{ProductID: productID, VariantID: variantID, Available: available})
}

// Release puts stock back after a cancel or refund. Deleted listings are restored too so the
// count stays truthful if the listing is revived.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, variantID *uuid.UUID, qty int) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	res := stockTarget(tx.WithContext(ctx).Unscoped(), productID, variantID).
		Update("quantity", gorm.Expr("quantity + ?", qty))
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, res.Error, "release inventory")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "inventory row not found")
	}
	return nil
}

// Available reads the current quantity; a missing or deleted row reports 0.
func (l *Ledger) Available(ctx context.Context, tx *gorm.DB, productID uuid.UUID, variantID *uuid.UUID) (int, error) {
	var qty []int
	err := stockTarget(tx.WithContext(ctx), productID, variantID).Pluck("quantity", &qty).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "read inventory")
	}
	if len(qty) == 0 {
		return 0, nil
	}
	return qty[0], nil
}

func stockTarget(db *gorm.DB, productID uuid.UUID, variantID *uuid.UUID) *gorm.DB {
	if variantID != nil {
		return db.Model(&models.ProductVariant{}).Where("id = ? AND product_id = ?", *variantID, productID)
	}
	return db.Model(&models.Product{}).Where("id = ?", productID)
}
