package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
)

// Repository defines persistence operations for orders, items and payments.
// Transition methods are conditional updates keyed on the current status and report
// whether a row actually moved.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateOrder(ctx context.Context, order *models.Order) error
	CreateItems(ctx context.Context, items []models.OrderItem) error
	CreatePayment(ctx context.Context, payment *models.Payment) error

	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindItem(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error)
	ListItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	FindPaymentByIntent(ctx context.Context, intentID string) (*models.Payment, error)
	ListVendorItems(ctx context.Context, params vendorItemsQuery) ([]models.OrderItem, *pagination.Cursor, error)
	OrderNumbers(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID]string, error)
	FindExpirable(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)

	TransitionOrder(ctx context.Context, orderID uuid.UUID, from []enums.OrderStatus, updates map[string]any) (bool, error)
	TransitionItem(ctx context.Context, itemID uuid.UUID, from enums.OrderItemStatus, updates map[string]any) (bool, error)
	TransitionPayment(ctx context.Context, paymentID uuid.UUID, from []enums.PaymentStatus, updates map[string]any) (bool, error)
	UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
}

type vendorItemsQuery struct {
	VendorID uuid.UUID
	Status   *enums.OrderItemStatus
	Limit    int
	Cursor   *pagination.Cursor
}
