package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketcore-backend/internal/products"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/types"
)

// Line is one purchasable product/variant after availability checks. Cart rows for
// the same product and variant are folded into a single Line.
type Line struct {
	CartItemIDs []uuid.UUID
	ProductID   uuid.UUID
	VariantID   *uuid.UUID
	VendorID    uuid.UUID
	Name        string
	Quantity    int
	UnitPrice   decimal.Decimal
	PriceAtAdd  decimal.Decimal
}

// Subtotal is UnitPrice * Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Snapshot is the validated view of a cart at a point in time.
type Snapshot struct {
	UserID   uuid.UUID
	Lines    []Line
	Warnings types.CartWarnings
}

// Subtotal sums every line.
func (s *Snapshot) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range s.Lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// VendorIDs lists the distinct vendors in line order.
func (s *Snapshot) VendorIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(s.Lines))
	out := make([]uuid.UUID, 0, len(s.Lines))
	for _, line := range s.Lines {
		if _, ok := seen[line.VendorID]; ok {
			continue
		}
		seen[line.VendorID] = struct{}{}
		out = append(out, line.VendorID)
	}
	return out
}

// CartItemIDs lists the cart rows backing the purchasable lines.
func (s *Snapshot) CartItemIDs() []uuid.UUID {
	var out []uuid.UUID
	for _, line := range s.Lines {
		out = append(out, line.CartItemIDs...)
	}
	return out
}

// Snapshotter builds cart snapshots against the live catalog.
type Snapshotter struct {
	repo    Store
	catalog products.Catalog
}

func NewSnapshotter(repo Store, catalog products.Catalog) (*Snapshotter, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("product catalog required")
	}
	return &Snapshotter{repo: repo, catalog: catalog}, nil
}

// Snapshot reads the cart and drops, clamps or reprices lines against current availability.
// Dropped lines stay in the cart; they are only reported as warnings.
func (s *Snapshotter) Snapshot(ctx context.Context, userID uuid.UUID) (*Snapshot, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	items, err := s.repo.Lines(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load cart")
	}

	snap := &Snapshot{UserID: userID}
	for _, group := range mergeLines(items) {
		item := group.first
		avail, err := s.catalog.GetAvailability(ctx, item.ProductID, item.VariantID)
		if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
		if err != nil || !avail.Active {
			snap.Warnings = append(snap.Warnings, types.CartWarning{
				Type:      enums.CartWarningUnavailable,
				CartItem:  item.ID,
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				Message:   "item is no longer available",
			})
			continue
		}

		qty := group.quantity
		if qty > avail.Quantity {
			snap.Warnings = append(snap.Warnings, types.CartWarning{
				Type:      enums.CartWarningQuantityClamped,
				CartItem:  item.ID,
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				Requested: group.quantity,
				Available: avail.Quantity,
				Message:   fmt.Sprintf("Only %d left in stock", avail.Quantity),
			})
			qty = avail.Quantity
		}
		if qty <= 0 {
			continue
		}

		if !item.PriceAtAdd.Equal(avail.Price) {
			snap.Warnings = append(snap.Warnings, types.CartWarning{
				Type:      enums.CartWarningPriceChanged,
				CartItem:  item.ID,
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				Message:   fmt.Sprintf("price changed from %s to %s", item.PriceAtAdd.StringFixed(2), avail.Price.StringFixed(2)),
			})
		}

		snap.Lines = append(snap.Lines, Line{
			CartItemIDs: group.ids,
			ProductID:   item.ProductID,
			VariantID:   avail.VariantID,
			VendorID:    avail.VendorID,
			Name:        avail.Name,
			Quantity:    qty,
			UnitPrice:   avail.Price,
			PriceAtAdd:  item.PriceAtAdd,
		})
	}

	if len(snap.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty").WithDetails(snap.Warnings)
	}
	return snap, nil
}

type lineKey struct {
	product uuid.UUID
	variant uuid.UUID
}

type lineGroup struct {
	first    models.CartItem
	ids      []uuid.UUID
	quantity int
}

// mergeLines folds rows for the same product and variant, keeping the order of
// each group's oldest row. Stock is then checked against the summed quantity.
func mergeLines(items []models.CartItem) []*lineGroup {
	groups := make([]*lineGroup, 0, len(items))
	byKey := make(map[lineKey]*lineGroup, len(items))
	for _, item := range items {
		key := lineKey{product: item.ProductID}
		if item.VariantID != nil {
			key.variant = *item.VariantID
		}
		group, ok := byKey[key]
		if !ok {
			group = &lineGroup{first: item}
			byKey[key] = group
			groups = append(groups, group)
		}
		group.ids = append(group.ids, item.ID)
		group.quantity += item.Quantity
	}
	return groups
}
