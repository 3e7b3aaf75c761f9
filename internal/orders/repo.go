package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit("Items", "Payment").Create(order).Error
}

func (r *repository) CreateItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("Payment").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, notFound(err, "order not found")
	}
	return &order, nil
}

func (r *repository) FindItem(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error) {
	var item models.OrderItem
	if err := r.db.WithContext(ctx).Where("id = ?", itemID).First(&item).Error; err != nil {
		return nil, notFound(err, "order item not found")
	}
	return &item, nil
}

func (r *repository) ListItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load order items")
	}
	return items, nil
}

func (r *repository) FindPaymentByIntent(ctx context.Context, intentID string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("external_intent_id = ?", intentID).First(&payment).Error; err != nil {
		return nil, notFound(err, "payment not found")
	}
	return &payment, nil
}

func (r *repository) ListVendorItems(ctx context.Context, params vendorItemsQuery) ([]models.OrderItem, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.OrderItem{}).Where("vendor_id = ?", params.VendorID)
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	var items []models.OrderItem
	if err := pagination.Keyset(query, params.Cursor, params.Limit).Find(&items).Error; err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list vendor order items")
	}
	items, next := pagination.Page(items, params.Limit, func(item models.OrderItem) pagination.Cursor {
		return pagination.Cursor{CreatedAt: item.CreatedAt, ID: item.ID}
	})
	return items, next, nil
}

func (r *repository) OrderNumbers(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	var rows []models.Order
	if err := r.db.WithContext(ctx).Select("id", "order_number").Where("id IN ?", orderIDs).Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load order numbers")
	}
	for _, row := range rows {
		out[row.ID] = row.OrderNumber
	}
	return out, nil
}

// FindExpirable lists pending, unpaid orders created before cutoff, oldest first.
func (r *repository) FindExpirable(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("status = ? AND payment_status <> ? AND created_at < ?", enums.OrderStatusPending, enums.PaymentStatusPaid, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "find expirable orders")
	}
	return ids, nil
}

func (r *repository) TransitionOrder(ctx context.Context, orderID uuid.UUID, from []enums.OrderStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status IN ?", orderID, from).
		Updates(updates)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodePersistence, res.Error, "update order")
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) TransitionItem(ctx context.Context, itemID uuid.UUID, from enums.OrderItemStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id = ? AND status = ?", itemID, from).
		Updates(updates)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodePersistence, res.Error, "update order item")
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) TransitionPayment(ctx context.Context, paymentID uuid.UUID, from []enums.PaymentStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status IN ?", paymentID, from).
		Updates(updates)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodePersistence, res.Error, "update payment")
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	err := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", orderID).Updates(updates).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "update order")
	}
	return nil
}

func notFound(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodePersistence, err, message)
}
