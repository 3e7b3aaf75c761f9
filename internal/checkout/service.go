package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/internal/cart"
	"github.com/angelmondragon/marketcore-backend/internal/checkout/helpers"
	"github.com/angelmondragon/marketcore-backend/internal/commission"
	"github.com/angelmondragon/marketcore-backend/internal/notifications"
	"github.com/angelmondragon/marketcore-backend/internal/orders"
	"github.com/angelmondragon/marketcore-backend/internal/payments"
	"github.com/angelmondragon/marketcore-backend/internal/products"
	"github.com/angelmondragon/marketcore-backend/internal/vendors"
	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/metrics"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/marketcore-backend/pkg/types"
)

const orderNumberConstraint = "order_number"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type snapshotter interface {
	Snapshot(ctx context.Context, userID uuid.UUID) (*cart.Snapshot, error)
}

type addressResolver interface {
	Resolve(ctx context.Context, userID, addressID uuid.UUID) (types.AddressSnapshot, error)
}

type shippingMethods interface {
	FindActive(ctx context.Context, id uuid.UUID) (*models.ShippingMethod, error)
}

type stockReserver interface {
	Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, variantID *uuid.UUID, qty int) error
}

type notifier interface {
	Enqueue(ctx context.Context, tx *gorm.DB, req notifications.Request) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// PaymentGateway is the slice of the payment provider checkout needs.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*payments.Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*payments.Intent, error)
	ValidateAmount(amountMinor int64) error
}

// Service turns a cart into an order in one transaction and quotes payment intents.
type Service interface {
	Execute(ctx context.Context, input CheckoutInput) (*models.Order, error)
	QuotePaymentIntent(ctx context.Context, input QuoteInput) (*IntentQuote, error)
}

// CheckoutInput captures the buyer's checkout request.
type CheckoutInput struct {
	UserID            uuid.UUID
	ShippingAddressID uuid.UUID
	BillingAddressID  uuid.UUID
	ShippingMethodID  uuid.UUID
	PaymentIntentID   string
	Discount          decimal.Decimal
}

// QuoteInput is the pre-checkout request for a payment intent.
type QuoteInput struct {
	UserID            uuid.UUID
	ShippingAddressID uuid.UUID
	ShippingMethodID  uuid.UUID
}

// IntentQuote is returned to the client to confirm payment.
type IntentQuote struct {
	ClientSecret    string
	PaymentIntentID string
	Amount          decimal.Decimal
	Currency        string
	Totals          helpers.Totals
	Warnings        types.CartWarnings
}

// ServiceParams wires the checkout service. Gateway, Metrics and Logger are optional.
type ServiceParams struct {
	Tx          txRunner
	Config      config.CheckoutConfig
	Carts       cart.Store
	Snapshotter snapshotter
	Catalog     products.Catalog
	Inventory   stockReserver
	Vendors     vendors.Repository
	Addresses   addressResolver
	Shipping    shippingMethods
	Orders      orders.Repository
	Notifier    notifier
	Outbox      outboxPublisher
	Gateway     PaymentGateway
	Metrics     *metrics.MarketplaceMetrics
	Logger      *logger.Logger
}

type service struct {
	tx          txRunner
	cfg         config.CheckoutConfig
	carts       cart.Store
	snapshotter snapshotter
	catalog     products.Catalog
	inventory   stockReserver
	vendors     vendors.Repository
	addresses   addressResolver
	shipping    shippingMethods
	orders      orders.Repository
	notifier    notifier
	outbox      outboxPublisher
	gateway     PaymentGateway
	metrics     *metrics.MarketplaceMetrics
	logg        *logger.Logger
	now         func() time.Time
	orderNumber func(time.Time) (string, error)
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Carts == nil:
		return nil, fmt.Errorf("cart repository required")
	case params.Snapshotter == nil:
		return nil, fmt.Errorf("cart snapshotter required")
	case params.Catalog == nil:
		return nil, fmt.Errorf("product catalog required")
	case params.Inventory == nil:
		return nil, fmt.Errorf("inventory required")
	case params.Vendors == nil:
		return nil, fmt.Errorf("vendor repository required")
	case params.Addresses == nil:
		return nil, fmt.Errorf("address resolver required")
	case params.Shipping == nil:
		return nil, fmt.Errorf("shipping methods required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Notifier == nil:
		return nil, fmt.Errorf("notifier required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	cfg := params.Config
	if cfg.OrderNumberRetries < 1 {
		cfg.OrderNumberRetries = 1
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	return &service{
		tx:          params.Tx,
		cfg:         cfg,
		carts:       params.Carts,
		snapshotter: params.Snapshotter,
		catalog:     params.Catalog,
		inventory:   params.Inventory,
		vendors:     params.Vendors,
		addresses:   params.Addresses,
		shipping:    params.Shipping,
		orders:      params.Orders,
		notifier:    params.Notifier,
		outbox:      params.Outbox,
		gateway:     params.Gateway,
		metrics:     params.Metrics,
		logg:        params.Logger,
		now:         func() time.Time { return time.Now().UTC() },
		orderNumber: helpers.NewOrderNumber,
	}, nil
}

// checkIntent accepts only an open intent quoted for this buyer.
func checkIntent(intent *payments.Intent, userID uuid.UUID) error {
	if intent.Metadata["user_id"] != userID.String() {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent was not issued for this buyer")
	}
	if intent.Settled() {
		return pkgerrors.New(pkgerrors.CodeConflict, "payment intent is no longer open").
			WithDetails(map[string]any{"status": intent.Status})
	}
	return nil
}

// checkoutPlan is everything resolved before the transaction opens.
type checkoutPlan struct {
	input    CheckoutInput
	shipping types.AddressSnapshot
	billing  types.AddressSnapshot
	method   *models.ShippingMethod
	snapshot *cart.Snapshot
	intent   *payments.Intent
}

func (s *service) Execute(ctx context.Context, input CheckoutInput) (*models.Order, error) {
	order, err := s.execute(ctx, input)
	s.metrics.IncCheckout(checkoutOutcome(err))
	return order, err
}

func (s *service) execute(ctx context.Context, input CheckoutInput) (*models.Order, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.PaymentIntentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}
	if input.Discount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount must not be negative")
	}

	plan := checkoutPlan{input: input}
	var err error
	if plan.shipping, err = s.addresses.Resolve(ctx, input.UserID, input.ShippingAddressID); err != nil {
		return nil, err
	}
	if plan.billing, err = s.addresses.Resolve(ctx, input.UserID, input.BillingAddressID); err != nil {
		return nil, err
	}
	if plan.method, err = s.shipping.FindActive(ctx, input.ShippingMethodID); err != nil {
		return nil, err
	}
	if plan.snapshot, err = s.snapshotter.Snapshot(ctx, input.UserID); err != nil {
		return nil, stockError(err)
	}
	if clamped := clampedWarnings(plan.snapshot.Warnings); len(clamped) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, clamped[0].Message).WithDetails(clamped)
	}
	if s.gateway != nil {
		if plan.intent, err = s.gateway.RetrieveIntent(ctx, input.PaymentIntentID); err != nil {
			return nil, err
		}
		if err := checkIntent(plan.intent, input.UserID); err != nil {
			return nil, err
		}
	}

	var order *models.Order
	for attempt := 1; attempt <= s.cfg.OrderNumberRetries; attempt++ {
		order, err = s.place(ctx, plan)
		if err == nil || !pkgerrors.IsCode(err, pkgerrors.CodeDuplicateOrderNumber) {
			break
		}
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "order number collision, retrying")
		}
	}
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(s.logg.WithUserID(ctx, input.UserID.String()), order.ID.String())
		s.logg.Info(logCtx, fmt.Sprintf("order %s placed", order.OrderNumber))
	}
	return order, nil
}

// place runs one checkout attempt. Any error rolls back stock, rows and cart deletion together.
func (s *service) place(ctx context.Context, plan checkoutPlan) (*models.Order, error) {
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		catalog := s.catalog.WithTx(tx)
		ordersRepo := s.orders.WithTx(tx)

		vendorsByID, err := s.vendors.WithTx(tx).FindByIDs(ctx, plan.snapshot.VendorIDs())
		if err != nil {
			return err
		}

		items := make([]models.OrderItem, 0, len(plan.snapshot.Lines))
		subtotal := decimal.Zero
		for _, line := range plan.snapshot.Lines {
			avail, err := catalog.GetAvailability(ctx, line.ProductID, line.VariantID)
			if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return err
			}
			if err != nil || !avail.Active {
				return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("%s is no longer available", line.Name)).
					WithDetails(map[string]any{"product_id": line.ProductID, "variant_id": line.VariantID})
			}
			if err := s.inventory.Reserve(ctx, tx, line.ProductID, line.VariantID, line.Quantity); err != nil {
				return err
			}

			vendor, ok := vendorsByID[avail.VendorID]
			if !ok || !vendor.IsActive {
				return pkgerrors.New(pkgerrors.CodeConflict, "vendor is not accepting orders").
					WithDetails(map[string]any{"vendor_id": avail.VendorID})
			}
			lineSubtotal := avail.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
			fee, err := commission.Calculate(lineSubtotal, vendor.CommissionRate)
			if err != nil {
				return err
			}
			items = append(items, models.OrderItem{
				VendorID:         vendor.ID,
				ProductID:        line.ProductID,
				VariantID:        line.VariantID,
				ProductName:      avail.Name,
				Quantity:         line.Quantity,
				UnitPrice:        avail.Price,
				Subtotal:         lineSubtotal,
				CommissionRate:   vendor.CommissionRate,
				CommissionAmount: fee,
				Status:           enums.OrderItemStatusPending,
			})
			subtotal = subtotal.Add(lineSubtotal)
		}

		totals, err := helpers.ComputeTotals(subtotal, plan.method.Cost, plan.input.Discount, s.cfg)
		if err != nil {
			return err
		}
		if plan.intent != nil && plan.intent.AmountMinor != payments.ToMinor(totals.Total) {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment amount mismatch").WithDetails(map[string]any{
				"expected": totals.Total.StringFixed(2),
				"intent":   plan.intent.Amount().StringFixed(2),
			})
		}

		number, err := s.orderNumber(s.now())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
		}
		record := &models.Order{
			OrderNumber:      number,
			UserID:           plan.input.UserID,
			Status:           enums.OrderStatusPending,
			PaymentStatus:    enums.PaymentStatusPending,
			Subtotal:         totals.Subtotal,
			Tax:              totals.Tax,
			ShippingCost:     totals.Shipping,
			Discount:         totals.Discount,
			Total:            totals.Total,
			Currency:         s.cfg.Currency,
			ShippingMethodID: plan.method.ID,
			ShippingAddress:  plan.shipping,
			BillingAddress:   plan.billing,
		}
		if err := ordersRepo.CreateOrder(ctx, record); err != nil {
			if db.IsUniqueViolation(err, orderNumberConstraint) {
				return pkgerrors.Wrap(pkgerrors.CodeDuplicateOrderNumber, err, "order number already used")
			}
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create order")
		}

		for i := range items {
			items[i].OrderID = record.ID
		}
		if err := ordersRepo.CreateItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create order items")
		}
		payment := &models.Payment{
			OrderID:          record.ID,
			ExternalIntentID: plan.input.PaymentIntentID,
			Amount:           totals.Total,
			Currency:         s.cfg.Currency,
			Status:           enums.PaymentStatusPending,
		}
		if err := ordersRepo.CreatePayment(ctx, payment); err != nil {
			if db.IsUniqueViolation(err, "external_intent_id") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment intent already used")
			}
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create payment")
		}
		if _, err := s.carts.WithTx(tx).Remove(ctx, plan.input.UserID, plan.snapshot.CartItemIDs()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "remove purchased cart lines")
		}

		if err := s.announce(ctx, tx, record, items, vendorsByID); err != nil {
			return err
		}

		record.Items = items
		record.Payment = payment
		order = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// announce queues the buyer and vendor notifications and the order_created event.
func (s *service) announce(ctx context.Context, tx *gorm.DB, order *models.Order, items []models.OrderItem, vendorsByID map[uuid.UUID]models.Vendor) error {
	if err := s.notifier.Enqueue(ctx, tx, notifications.Request{
		UserID:  order.UserID,
		Type:    enums.NotificationTypeOrderPlaced,
		Title:   "Order placed",
		Message: fmt.Sprintf("Your order %s has been placed.", order.OrderNumber),
		Link:    "/orders/" + order.ID.String(),
	}); err != nil {
		return err
	}

	vendorIDs := make([]uuid.UUID, 0, len(vendorsByID))
	counts := map[uuid.UUID]int{}
	for _, item := range items {
		if _, ok := counts[item.VendorID]; !ok {
			vendorIDs = append(vendorIDs, item.VendorID)
		}
		counts[item.VendorID] += item.Quantity
	}
	for _, vendorID := range vendorIDs {
		vendor := vendorsByID[vendorID]
		if err := s.notifier.Enqueue(ctx, tx, notifications.Request{
			UserID:  vendor.OwnerUserID,
			Type:    enums.NotificationTypeNewVendorOrder,
			Title:   "New order",
			Message: fmt.Sprintf("Order %s includes %d unit(s) from %s.", order.OrderNumber, counts[vendorID], vendor.Name),
			Link:    "/vendor/orders",
		}); err != nil {
			return err
		}
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: order.UserID, Role: enums.UserRoleCustomer},
		Data: payloads.OrderCreatedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			UserID:      order.UserID,
			VendorIDs:   vendorIDs,
			ItemCount:   len(items),
			Total:       order.Total,
			Currency:    order.Currency,
		},
	})
}

// QuotePaymentIntent prices the current cart and opens a provider intent for the total.
func (s *service) QuotePaymentIntent(ctx context.Context, input QuoteInput) (*IntentQuote, error) {
	if s.gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway unavailable")
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if _, err := s.addresses.Resolve(ctx, input.UserID, input.ShippingAddressID); err != nil {
		return nil, err
	}
	method, err := s.shipping.FindActive(ctx, input.ShippingMethodID)
	if err != nil {
		return nil, err
	}
	snap, err := s.snapshotter.Snapshot(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	totals, err := helpers.ComputeTotals(snap.Subtotal(), method.Cost, decimal.Zero, s.cfg)
	if err != nil {
		return nil, err
	}
	amountMinor := payments.ToMinor(totals.Total)
	if err := s.gateway.ValidateAmount(amountMinor); err != nil {
		return nil, err
	}

	intent, err := s.gateway.CreateIntent(ctx, amountMinor, s.cfg.Currency, map[string]string{
		"user_id":             input.UserID.String(),
		"shipping_address_id": input.ShippingAddressID.String(),
		"shipping_method_id":  input.ShippingMethodID.String(),
	})
	if err != nil {
		return nil, err
	}
	return &IntentQuote{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		Amount:          totals.Total,
		Currency:        s.cfg.Currency,
		Totals:          totals,
		Warnings:        snap.Warnings,
	}, nil
}

func clampedWarnings(warnings types.CartWarnings) types.CartWarnings {
	var out types.CartWarnings
	for _, w := range warnings {
		if w.Type == enums.CartWarningQuantityClamped {
			out = append(out, w)
		}
	}
	return out
}

// stockError turns an empty cart caused only by sold-out lines into INSUFFICIENT_STOCK.
func stockError(err error) error {
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeEmptyCart {
		return err
	}
	warnings, _ := typed.Details().(types.CartWarnings)
	if clamped := clampedWarnings(warnings); len(clamped) > 0 {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, clamped[0].Message).WithDetails(clamped)
	}
	return err
}

func checkoutOutcome(err error) string {
	if err == nil {
		return "success"
	}
	return string(pkgerrors.CodeOf(err))
}
