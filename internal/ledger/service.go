package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
)

// Service moves money on vendor balances. Every change is journaled once per order item,
// so replays of the same payment event cannot double-credit.
type Service interface {
	Credit(ctx context.Context, tx *gorm.DB, entry Entry) (bool, error)
	Reverse(ctx context.Context, tx *gorm.DB, entry Entry) (bool, error)
	HasEvent(ctx context.Context, orderItemID uuid.UUID, eventType enums.LedgerEventType) (bool, error)
	Balance(ctx context.Context, vendorID uuid.UUID) (decimal.Decimal, error)
}

// Entry is the vendor share of one order item.
type Entry struct {
	VendorID    uuid.UUID
	OrderID     uuid.UUID
	OrderItemID uuid.UUID
	Amount      decimal.Decimal
}

// EntryFor builds the credit entry for an item: subtotal minus commission.
func EntryFor(item models.OrderItem) Entry {
	return Entry{
		VendorID:    item.VendorID,
		OrderID:     item.OrderID,
		OrderItemID: item.ID,
		Amount:      item.VendorNet(),
	}
}

type service struct {
	repo Repository
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

// Credit accrues revenue for the item. It reports false when the item was already credited.
func (s *service) Credit(ctx context.Context, tx *gorm.DB, entry Entry) (bool, error) {
	if err := entry.validate(); err != nil {
		return false, err
	}
	return s.apply(ctx, tx, entry, enums.LedgerEventTypeRevenueAccrued)
}

// Reverse undoes a prior credit. Items that were never credited, or were already reversed, are skipped.
func (s *service) Reverse(ctx context.Context, tx *gorm.DB, entry Entry) (bool, error) {
	if err := entry.validate(); err != nil {
		return false, err
	}
	credited, err := s.repo.WithTx(tx).Exists(ctx, entry.OrderItemID, enums.LedgerEventTypeRevenueAccrued)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "check ledger credit")
	}
	if !credited {
		return false, nil
	}
	return s.apply(ctx, tx, entry, enums.LedgerEventTypeRefundReversed)
}

func (s *service) apply(ctx context.Context, tx *gorm.DB, entry Entry, eventType enums.LedgerEventType) (bool, error) {
	if tx == nil {
		return false, fmt.Errorf("transaction required")
	}
	repo := s.repo.WithTx(tx)

	// A unique violation would abort the surrounding postgres transaction, so look first.
	exists, err := repo.Exists(ctx, entry.OrderItemID, eventType)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "check ledger event")
	}
	if exists {
		return false, nil
	}

	delta := entry.Amount.Mul(decimal.NewFromInt(int64(eventType.Sign())))
	event := &models.LedgerEvent{
		VendorID:    entry.VendorID,
		OrderID:     entry.OrderID,
		OrderItemID: entry.OrderItemID,
		Type:        eventType,
		Amount:      delta,
	}
	if err := repo.Create(ctx, event); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "record ledger event")
	}
	if err := repo.AdjustBalance(ctx, entry.VendorID, delta); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "adjust vendor balance")
	}
	return true, nil
}

func (s *service) HasEvent(ctx context.Context, orderItemID uuid.UUID, eventType enums.LedgerEventType) (bool, error) {
	if orderItemID == uuid.Nil {
		return false, fmt.Errorf("order item id is required")
	}
	if !eventType.IsValid() {
		return false, fmt.Errorf("invalid ledger event type %q", eventType)
	}
	return s.repo.Exists(ctx, orderItemID, eventType)
}

func (s *service) Balance(ctx context.Context, vendorID uuid.UUID) (decimal.Decimal, error) {
	if vendorID == uuid.Nil {
		return decimal.Zero, fmt.Errorf("vendor id is required")
	}
	return s.repo.Balance(ctx, vendorID)
}

func (e Entry) validate() error {
	switch {
	case e.VendorID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	case e.OrderID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	case e.OrderItemID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "order item id is required")
	case e.Amount.IsNegative():
		return pkgerrors.New(pkgerrors.CodeValidation, "ledger amount must not be negative")
	}
	return nil
}
