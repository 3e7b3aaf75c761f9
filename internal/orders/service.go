package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/internal/notifications"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/metrics"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type notifier interface {
	Enqueue(ctx context.Context, tx *gorm.DB, req notifications.Request) error
}

// InventoryReleaser returns stock when an item is cancelled.
type InventoryReleaser interface {
	Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, variantID *uuid.UUID, qty int) error
}

// IntentCanceller voids the provider-side payment intent after a cancel commits.
type IntentCanceller interface {
	CancelIntent(ctx context.Context, intentID string) error
}

// Service covers the customer and vendor order operations.
type Service interface {
	GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error)
	CancelOrder(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error)
	ExpirePending(ctx context.Context, orderID uuid.UUID) (bool, error)
	ExpirableOrders(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
	ListVendorOrders(ctx context.Context, vendorID uuid.UUID, params VendorListParams) (*VendorItemList, error)
	UpdateItemStatus(ctx context.Context, actor VendorActor, itemID uuid.UUID, to enums.OrderItemStatus) (*OrderItemDTO, error)
	AddTracking(ctx context.Context, actor VendorActor, itemID uuid.UUID, input TrackingInput) (*OrderItemDTO, error)
}

// VendorActor identifies the vendor user performing an item action.
type VendorActor struct {
	UserID   uuid.UUID
	VendorID uuid.UUID
}

// TrackingInput carries shipment details for AddTracking.
type TrackingInput struct {
	Carrier        string
	TrackingNumber string
	TrackingURL    string
}

// VendorListParams filters the vendor order queue.
type VendorListParams struct {
	Status string
	Limit  int
	Cursor string
}

// ServiceParams wires the orders service.
type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Outbox    outboxPublisher
	Notifier  notifier
	Inventory InventoryReleaser
	Intents   IntentCanceller
	Metrics   *metrics.MarketplaceMetrics
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	notifier  notifier
	inventory InventoryReleaser
	intents   IntentCanceller
	metrics   *metrics.MarketplaceMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the orders service. Intents, Metrics and Logger are optional.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory releaser required")
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		outbox:    params.Outbox,
		notifier:  params.Notifier,
		inventory: params.Inventory,
		intents:   params.Intents,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return toOrderDTO(order), nil
}

// CancelOrder cancels a pending order on the customer's behalf.
func (s *service) CancelOrder(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	var intentID string
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		actor := &outbox.ActorRef{UserID: userID, Role: enums.UserRoleCustomer}
		intentID, err = s.cancel(ctx, tx, order, "customer_cancelled", actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.cancelIntent(ctx, intentID)
	return s.GetOrder(ctx, userID, orderID)
}

// ExpirePending cancels an order that stayed pending and unpaid past its TTL.
// It reports false when the order no longer qualifies.
func (s *service) ExpirePending(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var (
		expired  bool
		intentID string
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).FindOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusPending || order.PaymentStatus == enums.PaymentStatusPaid {
			return nil
		}
		intentID, err = s.cancel(ctx, tx, order, "expired", nil)
		if err != nil {
			return err
		}
		expired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	s.cancelIntent(ctx, intentID)
	return expired, nil
}

func (s *service) ExpirableOrders(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = pagination.MaxLimit
	}
	return s.repo.FindExpirable(ctx, cutoff, limit)
}

// cancel moves a pending order, its items and its payment to cancelled and restocks every item.
// It returns the payment intent to void once the transaction commits.
func (s *service) cancel(ctx context.Context, tx *gorm.DB, order *models.Order, reason string, actor *outbox.ActorRef) (string, error) {
	repo := s.repo.WithTx(tx)
	now := s.now()

	moved, err := repo.TransitionOrder(ctx, order.ID, []enums.OrderStatus{enums.OrderStatusPending}, map[string]any{
		"status":         enums.OrderStatusCancelled,
		"payment_status": enums.PaymentStatusCancelled,
		"cancelled_at":   now,
	})
	if err != nil {
		return "", err
	}
	if !moved {
		return "", illegalOrderTransition(order.Status, enums.OrderStatusCancelled)
	}

	for _, item := range order.Items {
		if !customerCancellable[item.Status] {
			return "", illegalItemTransition(item.Status, enums.OrderItemStatusCancelled)
		}
		moved, err := repo.TransitionItem(ctx, item.ID, item.Status, map[string]any{
			"status":       enums.OrderItemStatusCancelled,
			"cancelled_at": now,
		})
		if err != nil {
			return "", err
		}
		if !moved {
			return "", illegalItemTransition(item.Status, enums.OrderItemStatusCancelled)
		}
		if err := s.inventory.Release(ctx, tx, item.ProductID, item.VariantID, item.Quantity); err != nil {
			return "", err
		}
	}

	var intentID string
	if order.Payment != nil {
		if _, err := repo.TransitionPayment(ctx, order.Payment.ID,
			[]enums.PaymentStatus{enums.PaymentStatusPending, enums.PaymentStatusFailed},
			map[string]any{"status": enums.PaymentStatusCancelled},
		); err != nil {
			return "", err
		}
		intentID = order.Payment.ExternalIntentID
	}

	if err := s.notifier.Enqueue(ctx, tx, notifications.Request{
		UserID:  order.UserID,
		Type:    enums.NotificationTypeOrderCancelled,
		Title:   "Order cancelled",
		Message: fmt.Sprintf("Order %s has been cancelled.", order.OrderNumber),
		Link:    orderLink(order.ID),
	}); err != nil {
		return "", err
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventOrderCancelled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Data: payloads.OrderCancelledEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			UserID:      order.UserID,
			CancelledAt: now,
			Reason:      reason,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return "", err
	}
	return intentID, nil
}

func (s *service) cancelIntent(ctx context.Context, intentID string) {
	if s.intents == nil || intentID == "" {
		return
	}
	if err := s.intents.CancelIntent(ctx, intentID); err != nil && s.logg != nil {
		logCtx := s.logg.WithField(ctx, "payment_intent_id", intentID)
		s.logg.Warn(logCtx, fmt.Sprintf("cancel payment intent failed: %v", err))
	}
}

func (s *service) ListVendorOrders(ctx context.Context, vendorID uuid.UUID, params VendorListParams) (*VendorItemList, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor context missing")
	}
	query := vendorItemsQuery{VendorID: vendorID, Limit: params.Limit}
	if raw := strings.TrimSpace(params.Status); raw != "" {
		status, err := enums.ParseOrderItemStatus(raw)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		query.Status = &status
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	items, next, err := s.repo.ListVendorItems(ctx, query)
	if err != nil {
		return nil, err
	}
	orderIDs := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		orderIDs = append(orderIDs, item.OrderID)
	}
	numbers, err := s.repo.OrderNumbers(ctx, orderIDs)
	if err != nil {
		return nil, err
	}

	out := &VendorItemList{Items: make([]OrderItemDTO, 0, len(items))}
	for _, item := range items {
		out.Items = append(out.Items, toItemDTO(item, numbers[item.OrderID]))
	}
	if next != nil {
		out.NextCursor = pagination.EncodeCursor(*next)
	}
	return out, nil
}

// UpdateItemStatus applies one vendor transition from vendorTransitions and rolls the order up.
func (s *service) UpdateItemStatus(ctx context.Context, actor VendorActor, itemID uuid.UUID, to enums.OrderItemStatus) (*OrderItemDTO, error) {
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order item id required")
	}
	if !to.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order item status")
	}

	var (
		result *models.OrderItem
		from   enums.OrderItemStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := s.loadVendorItem(ctx, repo, actor, itemID)
		if err != nil {
			return err
		}
		from = item.Status
		if !CanVendorTransition(from, to) {
			return illegalItemTransition(from, to)
		}

		now := s.now()
		updates := map[string]any{"status": to}
		switch to {
		case enums.OrderItemStatusProcessing:
			updates["processing_at"] = now
		case enums.OrderItemStatusShipped:
			updates["shipped_at"] = now
		case enums.OrderItemStatusDelivered:
			updates["delivered_at"] = now
		}
		moved, err := repo.TransitionItem(ctx, item.ID, from, updates)
		if err != nil {
			return err
		}
		if !moved {
			return illegalItemTransition(from, to)
		}

		order, err := repo.FindOrder(ctx, item.OrderID)
		if err != nil {
			return err
		}
		if err := s.emitItemChanged(ctx, tx, actor, item, from, to, nil); err != nil {
			return err
		}
		if to == enums.OrderItemStatusShipped {
			if err := s.notifier.Enqueue(ctx, tx, notifications.Request{
				UserID:  order.UserID,
				Type:    enums.NotificationTypeOrderShipped,
				Title:   "Item shipped",
				Message: fmt.Sprintf("%s from order %s has shipped.", item.ProductName, order.OrderNumber),
				Link:    orderLink(order.ID),
			}); err != nil {
				return err
			}
		}
		if err := s.rollUp(ctx, tx, order); err != nil {
			return err
		}
		result, err = repo.FindItem(ctx, item.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncItemTransition(from, to)
	dto := toItemDTO(*result, "")
	return &dto, nil
}

// AddTracking records shipment details. Items not yet shipped are advanced to shipped.
func (s *service) AddTracking(ctx context.Context, actor VendorActor, itemID uuid.UUID, input TrackingInput) (*OrderItemDTO, error) {
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order item id required")
	}
	carrier := strings.TrimSpace(input.Carrier)
	number := strings.TrimSpace(input.TrackingNumber)
	if carrier == "" || number == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "carrier and tracking number required")
	}

	var (
		result  *models.OrderItem
		from    enums.OrderItemStatus
		shipped bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := s.loadVendorItem(ctx, repo, actor, itemID)
		if err != nil {
			return err
		}
		from = item.Status

		updates := map[string]any{
			"carrier":         carrier,
			"tracking_number": number,
		}
		if url := strings.TrimSpace(input.TrackingURL); url != "" {
			updates["tracking_url"] = url
		}
		switch {
		case trackingShippable[from]:
			shipped = true
			updates["status"] = enums.OrderItemStatusShipped
			updates["shipped_at"] = s.now()
		case from == enums.OrderItemStatusShipped:
		default:
			return illegalItemTransition(from, enums.OrderItemStatusShipped)
		}

		moved, err := repo.TransitionItem(ctx, item.ID, from, updates)
		if err != nil {
			return err
		}
		if !moved {
			return illegalItemTransition(from, enums.OrderItemStatusShipped)
		}

		order, err := repo.FindOrder(ctx, item.OrderID)
		if err != nil {
			return err
		}
		if shipped {
			if err := s.emitItemChanged(ctx, tx, actor, item, from, enums.OrderItemStatusShipped, &number); err != nil {
				return err
			}
		}
		if err := s.notifier.Enqueue(ctx, tx, notifications.Request{
			UserID:  order.UserID,
			Type:    enums.NotificationTypeOrderShipped,
			Title:   "Your item is on the way",
			Message: fmt.Sprintf("%s from order %s shipped with %s, tracking number %s.", item.ProductName, order.OrderNumber, carrier, number),
			Link:    orderLink(order.ID),
		}); err != nil {
			return err
		}
		if err := s.rollUp(ctx, tx, order); err != nil {
			return err
		}
		result, err = repo.FindItem(ctx, item.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if shipped {
		s.metrics.IncItemTransition(from, enums.OrderItemStatusShipped)
	}
	dto := toItemDTO(*result, "")
	return &dto, nil
}

func (s *service) loadVendorItem(ctx context.Context, repo Repository, actor VendorActor, itemID uuid.UUID) (*models.OrderItem, error) {
	if actor.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor context missing")
	}
	item, err := repo.FindItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.VendorID != actor.VendorID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
	}
	return item, nil
}

// rollUp derives the order status from its live items: all shipped-or-delivered ships the
// order, all delivered delivers it. Orders still pending payment never move here.
func (s *service) rollUp(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	repo := s.repo.WithTx(tx)
	items, err := repo.ListItemsByOrder(ctx, order.ID)
	if err != nil {
		return err
	}

	live, shipped, delivered := 0, 0, 0
	for _, item := range items {
		if !item.Status.IsLive() {
			continue
		}
		live++
		switch item.Status {
		case enums.OrderItemStatusDelivered:
			delivered++
			shipped++
		case enums.OrderItemStatusShipped:
			shipped++
		}
	}
	if live == 0 || shipped < live {
		return nil
	}

	now := s.now()
	if delivered == live {
		updates := map[string]any{"status": enums.OrderStatusDelivered, "delivered_at": now}
		if order.ShippedAt == nil {
			updates["shipped_at"] = now
		}
		moved, err := repo.TransitionOrder(ctx, order.ID,
			[]enums.OrderStatus{enums.OrderStatusConfirmed, enums.OrderStatusShipped}, updates)
		if err != nil || !moved {
			return err
		}
		return s.notifier.Enqueue(ctx, tx, notifications.Request{
			UserID:  order.UserID,
			Type:    enums.NotificationTypeOrderDelivered,
			Title:   "Order delivered",
			Message: fmt.Sprintf("Order %s has been delivered.", order.OrderNumber),
			Link:    orderLink(order.ID),
		})
	}

	_, err = repo.TransitionOrder(ctx, order.ID,
		[]enums.OrderStatus{enums.OrderStatusConfirmed},
		map[string]any{"status": enums.OrderStatusShipped, "shipped_at": now})
	return err
}

func (s *service) emitItemChanged(ctx context.Context, tx *gorm.DB, actor VendorActor, item *models.OrderItem, from, to enums.OrderItemStatus, tracking *string) error {
	vendorID := actor.VendorID
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderItemStatusChanged,
		AggregateType: enums.AggregateOrderItem,
		AggregateID:   item.ID,
		Actor:         &outbox.ActorRef{UserID: actor.UserID, VendorID: &vendorID, Role: enums.UserRoleVendor},
		Data: payloads.OrderItemStatusChangedEvent{
			OrderItemID:    item.ID,
			OrderID:        item.OrderID,
			VendorID:       item.VendorID,
			From:           from,
			To:             to,
			TrackingNumber: tracking,
		},
	})
}

func orderLink(orderID uuid.UUID) string {
	return "/orders/" + orderID.String()
}
