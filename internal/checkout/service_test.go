package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketcore-backend/internal/address"
	"github.com/angelmondragon/marketcore-backend/internal/cart"
	"github.com/angelmondragon/marketcore-backend/internal/inventory"
	"github.com/angelmondragon/marketcore-backend/internal/notifications"
	"github.com/angelmondragon/marketcore-backend/internal/orders"
	"github.com/angelmondragon/marketcore-backend/internal/payments"
	"github.com/angelmondragon/marketcore-backend/internal/products"
	"github.com/angelmondragon/marketcore-backend/internal/shipping"
	"github.com/angelmondragon/marketcore-backend/internal/testdb"
	"github.com/angelmondragon/marketcore-backend/internal/vendors"
	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
)

type fakeGateway struct {
	mu        sync.Mutex
	intent    *payments.Intent
	owners    map[string]string
	created   []int64
	metadata  map[string]string
	createErr error
}

// issue records the buyer an intent was quoted for, as CreateIntent metadata would.
func (f *fakeGateway) issue(intentID string, userID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.owners == nil {
		f.owners = map[string]string{}
	}
	f.owners[intentID] = userID.String()
}

func (f *fakeGateway) CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*payments.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, amountMinor)
	f.metadata = metadata
	return &payments.Intent{ID: "pi_quote", ClientSecret: "pi_quote_secret", AmountMinor: amountMinor, Currency: currency}, nil
}

func (f *fakeGateway) RetrieveIntent(ctx context.Context, id string) (*payments.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	intent := *f.intent
	intent.ID = id
	if intent.Metadata == nil {
		intent.Metadata = map[string]string{"user_id": f.owners[id]}
	}
	return &intent, nil
}

func (f *fakeGateway) ValidateAmount(amountMinor int64) error {
	if amountMinor < 50 {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment amount out of range")
	}
	return nil
}

type fixture struct {
	client  *db.Client
	svc     *service
	gateway *fakeGateway
	vendor  *models.Vendor
	product *models.Product
	method  *models.ShippingMethod
}

func checkoutConfig() config.CheckoutConfig {
	return config.CheckoutConfig{
		TaxRatePercent:        decimal.NewFromInt(8),
		FreeShippingThreshold: decimal.RequireFromString("100.00"),
		Currency:              "usd",
		MinIntentAmount:       decimal.RequireFromString("0.50"),
		MaxIntentAmount:       decimal.RequireFromString("999999.99"),
		OrderNumberRetries:    3,
	}
}

func newFixture(t *testing.T, gateway PaymentGateway) *fixture {
	t.Helper()
	client := testdb.Open(t)
	gdb := client.DB()

	catalog, err := products.NewCatalog(gdb)
	require.NoError(t, err)
	carts := cart.NewStore(gdb)
	snap, err := cart.NewSnapshotter(carts, catalog)
	require.NoError(t, err)
	vendorRepo, err := vendors.NewRepository(gdb)
	require.NoError(t, err)
	resolver, err := address.NewResolver(gdb)
	require.NoError(t, err)
	methods, err := shipping.NewMethods(gdb)
	require.NoError(t, err)
	publisher := outbox.NewService(outbox.NewRepository(gdb), nil)
	emitter, err := notifications.NewEmitter(notifications.NewRepository(gdb), publisher)
	require.NoError(t, err)

	params := ServiceParams{
		Tx:          client,
		Config:      checkoutConfig(),
		Carts:       carts,
		Snapshotter: snap,
		Catalog:     catalog,
		Inventory:   inventory.NewLedger(),
		Vendors:     vendorRepo,
		Addresses:   resolver,
		Shipping:    methods,
		Orders:      orders.NewRepository(gdb),
		Notifier:    emitter,
		Outbox:      publisher,
		Gateway:     gateway,
	}
	svc, err := NewService(params)
	require.NoError(t, err)

	vendor := testdb.Vendor(t, gdb, "15")
	fake, _ := gateway.(*fakeGateway)
	return &fixture{
		client:  client,
		svc:     svc.(*service),
		gateway: fake,
		vendor:  vendor,
		product: testdb.Product(t, gdb, vendor.ID, "25.00", 10),
		method:  testdb.ShippingMethod(t, gdb, "5.99"),
	}
}

// buyer seeds an address and a cart of qty units of the fixture product.
func (f *fixture) buyer(t *testing.T, qty int) CheckoutInput {
	t.Helper()
	gdb := f.client.DB()
	userID := uuid.New()
	addr := testdb.Address(t, gdb, userID)
	testdb.CartItem(t, gdb, userID, f.product, nil, qty)
	input := CheckoutInput{
		UserID:            userID,
		ShippingAddressID: addr.ID,
		BillingAddressID:  addr.ID,
		ShippingMethodID:  f.method.ID,
		PaymentIntentID:   "pi_" + uuid.NewString()[:12],
	}
	if f.gateway != nil {
		f.gateway.issue(input.PaymentIntentID, userID)
	}
	return input
}

func (f *fixture) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	q := f.client.DB().Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func TestExecutePricesAndPersistsOrder(t *testing.T) {
	f := newFixture(t, nil)
	input := f.buyer(t, 2)

	order, err := f.svc.Execute(context.Background(), input)
	require.NoError(t, err)

	assert.Regexp(t, `^MC-\d{14}-[A-Z2-7]{6}$`, order.OrderNumber)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, enums.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, "50.00", order.Subtotal.StringFixed(2))
	assert.Equal(t, "4.00", order.Tax.StringFixed(2))
	assert.Equal(t, "5.99", order.ShippingCost.StringFixed(2))
	assert.Equal(t, "59.99", order.Total.StringFixed(2))
	assert.Equal(t, "1 Market St", order.ShippingAddress.Line1)

	require.Len(t, order.Items, 1)
	item := order.Items[0]
	assert.Equal(t, "7.50", item.CommissionAmount.StringFixed(2))
	assert.Equal(t, "42.50", item.VendorNet().StringFixed(2))
	assert.Equal(t, enums.OrderItemStatusPending, item.Status)

	sum := decimal.Zero
	for _, it := range order.Items {
		sum = sum.Add(it.Subtotal)
	}
	assert.True(t, sum.Equal(order.Subtotal))
	assert.True(t, order.Total.Equal(order.Subtotal.Add(order.Tax).Add(order.ShippingCost).Sub(order.Discount)))

	require.NotNil(t, order.Payment)
	assert.Equal(t, input.PaymentIntentID, order.Payment.ExternalIntentID)
	assert.Equal(t, "59.99", order.Payment.Amount.StringFixed(2))

	gdb := f.client.DB()
	assert.Equal(t, 8, testdb.ProductQuantity(t, gdb, f.product.ID))
	assert.EqualValues(t, 0, f.count(t, &models.CartItem{}, "user_id = ?", input.UserID))
	assert.EqualValues(t, 1, f.count(t, &models.Notification{}, "user_id = ? AND type = ?", input.UserID, enums.NotificationTypeOrderPlaced))
	assert.EqualValues(t, 1, f.count(t, &models.Notification{}, "user_id = ? AND type = ?", f.vendor.OwnerUserID, enums.NotificationTypeNewVendorOrder))
	assert.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventOrderCreated))
}

func TestExecuteFreeShippingAndDiscount(t *testing.T) {
	f := newFixture(t, nil)
	input := f.buyer(t, 4)
	input.Discount = decimal.RequireFromString("8.00")

	order, err := f.svc.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "100.00", order.Subtotal.StringFixed(2))
	assert.Equal(t, "0.00", order.ShippingCost.StringFixed(2))
	assert.Equal(t, "100.00", order.Total.StringFixed(2))
}

func TestExecuteRejectsInvalidInputs(t *testing.T) {
	f := newFixture(t, nil)
	gdb := f.client.DB()
	ctx := context.Background()

	foreign := f.buyer(t, 1)
	other := testdb.Address(t, gdb, uuid.New())
	foreign.ShippingAddressID = other.ID
	_, err := f.svc.Execute(ctx, foreign)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidAddress), "got %v", err)

	inactive := testdb.ShippingMethod(t, gdb, "3.00")
	require.NoError(t, gdb.Model(inactive).Update("is_active", false).Error)
	badMethod := f.buyer(t, 1)
	badMethod.ShippingMethodID = inactive.ID
	_, err = f.svc.Execute(ctx, badMethod)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidShippingMethod), "got %v", err)

	userID := uuid.New()
	addr := testdb.Address(t, gdb, userID)
	_, err = f.svc.Execute(ctx, CheckoutInput{
		UserID: userID, ShippingAddressID: addr.ID, BillingAddressID: addr.ID,
		ShippingMethodID: f.method.ID, PaymentIntentID: "pi_empty",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeEmptyCart), "got %v", err)

	assert.EqualValues(t, 0, f.count(t, &models.Order{}, ""))
}

func TestExecuteStockExhaustedCreatesNothing(t *testing.T) {
	f := newFixture(t, nil)
	input := f.buyer(t, 12)

	_, err := f.svc.Execute(context.Background(), input)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())
	assert.Equal(t, "Only 10 left in stock", typed.Message())

	assert.EqualValues(t, 0, f.count(t, &models.Order{}, ""))
	assert.EqualValues(t, 0, f.count(t, &models.OrderItem{}, ""))
	assert.Equal(t, 10, testdb.ProductQuantity(t, f.client.DB(), f.product.ID))
	assert.EqualValues(t, 1, f.count(t, &models.CartItem{}, "user_id = ?", input.UserID))
}

func TestExecuteRollsBackEverythingOnLateFailure(t *testing.T) {
	f := newFixture(t, nil)
	gdb := f.client.DB()
	second := testdb.Product(t, gdb, f.vendor.ID, "5.00", 4)
	input := f.buyer(t, 2)
	testdb.CartItem(t, gdb, input.UserID, second, nil, 1)

	// an intent already bound to another order fails after stock and rows are written
	existing := testdb.PlacedOrder(t, gdb, uuid.New(), f.vendor, 1, second)
	input.PaymentIntentID = existing.Payment.ExternalIntentID
	ordersBefore := f.count(t, &models.Order{}, "")

	_, err := f.svc.Execute(context.Background(), input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)

	assert.Equal(t, ordersBefore, f.count(t, &models.Order{}, ""))
	assert.Equal(t, 10, testdb.ProductQuantity(t, gdb, f.product.ID))
	assert.Equal(t, 3, testdb.ProductQuantity(t, gdb, second.ID))
	assert.EqualValues(t, 2, f.count(t, &models.CartItem{}, "user_id = ?", input.UserID))
	assert.EqualValues(t, 0, f.count(t, &models.Notification{}, "user_id = ?", input.UserID))
}

func TestExecuteRetriesOrderNumberCollision(t *testing.T) {
	f := newFixture(t, nil)
	gdb := f.client.DB()
	taken := testdb.PlacedOrder(t, gdb, uuid.New(), f.vendor, 1, f.product)

	calls := 0
	f.svc.orderNumber = func(now time.Time) (string, error) {
		calls++
		if calls == 1 {
			return taken.OrderNumber, nil
		}
		return "MC-20260301120000-ABCDEF", nil
	}
	order, err := f.svc.Execute(context.Background(), f.buyer(t, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "MC-20260301120000-ABCDEF", order.OrderNumber)
	// the failed attempt left no stock behind: 10 - 1 (seed) - 1 (checkout)
	assert.Equal(t, 8, testdb.ProductQuantity(t, gdb, f.product.ID))
}

func TestExecuteGivesUpAfterRetries(t *testing.T) {
	f := newFixture(t, nil)
	taken := testdb.PlacedOrder(t, f.client.DB(), uuid.New(), f.vendor, 1, f.product)
	f.svc.orderNumber = func(time.Time) (string, error) { return taken.OrderNumber, nil }

	_, err := f.svc.Execute(context.Background(), f.buyer(t, 1))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDuplicateOrderNumber), "got %v", err)
	assert.True(t, pkgerrors.MetadataFor(pkgerrors.CodeDuplicateOrderNumber).Retryable)
}

func TestExecuteVerifiesIntentAmount(t *testing.T) {
	gateway := &fakeGateway{intent: &payments.Intent{AmountMinor: 5000}}
	f := newFixture(t, gateway)

	_, err := f.svc.Execute(context.Background(), f.buyer(t, 2))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Equal(t, "payment amount mismatch", typed.Message())
	assert.Equal(t, 10, testdb.ProductQuantity(t, f.client.DB(), f.product.ID))

	gateway.intent = &payments.Intent{AmountMinor: 5999}
	_, err = f.svc.Execute(context.Background(), f.buyer(t, 2))
	require.NoError(t, err)
}

func TestExecuteRejectsForeignIntent(t *testing.T) {
	gateway := &fakeGateway{intent: &payments.Intent{AmountMinor: 5999}}
	f := newFixture(t, gateway)
	owner := f.buyer(t, 2)
	other := f.buyer(t, 2)
	other.PaymentIntentID = owner.PaymentIntentID

	_, err := f.svc.Execute(context.Background(), other)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
	assert.Equal(t, 10, testdb.ProductQuantity(t, f.client.DB(), f.product.ID))
	assert.EqualValues(t, 0, f.count(t, &models.Order{}, ""))

	_, err = f.svc.Execute(context.Background(), owner)
	require.NoError(t, err)
}

func TestExecuteRejectsSettledIntent(t *testing.T) {
	for _, status := range []string{"canceled", "succeeded"} {
		t.Run(status, func(t *testing.T) {
			gateway := &fakeGateway{intent: &payments.Intent{AmountMinor: 5999, Status: status}}
			f := newFixture(t, gateway)

			_, err := f.svc.Execute(context.Background(), f.buyer(t, 2))
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)
			assert.EqualValues(t, 0, f.count(t, &models.Order{}, ""))
			assert.Equal(t, 10, testdb.ProductQuantity(t, f.client.DB(), f.product.ID))
		})
	}
}

func TestExecuteMergesDuplicateCartLines(t *testing.T) {
	f := newFixture(t, nil)
	input := f.buyer(t, 2)
	testdb.CartItem(t, f.client.DB(), input.UserID, f.product, nil, 3)

	order, err := f.svc.Execute(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 5, order.Items[0].Quantity)
	assert.Equal(t, "125.00", order.Items[0].Subtotal.StringFixed(2))
	assert.Equal(t, 5, testdb.ProductQuantity(t, f.client.DB(), f.product.ID))
	assert.EqualValues(t, 0, f.count(t, &models.CartItem{}, "user_id = ?", input.UserID))
}

func TestExecuteRejectsMergedLinesBeyondStock(t *testing.T) {
	f := newFixture(t, nil)
	input := f.buyer(t, 6)
	testdb.CartItem(t, f.client.DB(), input.UserID, f.product, nil, 6)

	_, err := f.svc.Execute(context.Background(), input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock), "got %v", err)
	assert.Equal(t, 10, testdb.ProductQuantity(t, f.client.DB(), f.product.ID))
	assert.EqualValues(t, 2, f.count(t, &models.CartItem{}, "user_id = ?", input.UserID))
}

func TestExecuteKeepsUnavailableLinesInCart(t *testing.T) {
	f := newFixture(t, nil)
	gdb := f.client.DB()
	input := f.buyer(t, 1)
	retired := testdb.Product(t, gdb, f.vendor.ID, "9.00", 5)
	kept := testdb.CartItem(t, gdb, input.UserID, retired, nil, 1)
	require.NoError(t, gdb.Model(retired).Update("is_active", false).Error)

	order, err := f.svc.Execute(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, order.Items, 1)

	var left []models.CartItem
	require.NoError(t, gdb.Where("user_id = ?", input.UserID).Find(&left).Error)
	require.Len(t, left, 1)
	assert.Equal(t, kept.ID, left[0].ID)
}

func TestConcurrentCheckoutsForLastUnit(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.client.DB().Model(f.product).Update("quantity", 1).Error)
	inputs := []CheckoutInput{f.buyer(t, 1), f.buyer(t, 1)}

	var (
		wg   sync.WaitGroup
		errs = make([]error, len(inputs))
	)
	for i := range inputs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Execute(context.Background(), inputs[i])
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock), "got %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, testdb.ProductQuantity(t, f.client.DB(), f.product.ID))
	assert.EqualValues(t, 1, f.count(t, &models.Order{}, ""))
}

func TestQuotePaymentIntent(t *testing.T) {
	gateway := &fakeGateway{}
	f := newFixture(t, gateway)
	input := f.buyer(t, 2)

	quote, err := f.svc.QuotePaymentIntent(context.Background(), QuoteInput{
		UserID:            input.UserID,
		ShippingAddressID: input.ShippingAddressID,
		ShippingMethodID:  input.ShippingMethodID,
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_quote_secret", quote.ClientSecret)
	assert.Equal(t, "59.99", quote.Amount.StringFixed(2))
	assert.Equal(t, []int64{5999}, gateway.created)
	assert.Equal(t, input.UserID.String(), gateway.metadata["user_id"])
	assert.Equal(t, input.ShippingMethodID.String(), gateway.metadata["shipping_method_id"])
	assert.Equal(t, input.ShippingAddressID.String(), gateway.metadata["shipping_address_id"])

	// quoting never touches stock or orders
	assert.Equal(t, 10, testdb.ProductQuantity(t, f.client.DB(), f.product.ID))
	assert.EqualValues(t, 0, f.count(t, &models.Order{}, ""))
}

func TestQuotePaymentIntentWithoutGateway(t *testing.T) {
	f := newFixture(t, nil)
	input := f.buyer(t, 1)
	_, err := f.svc.QuotePaymentIntent(context.Background(), QuoteInput{
		UserID: input.UserID, ShippingAddressID: input.ShippingAddressID, ShippingMethodID: input.ShippingMethodID,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency), "got %v", err)
}
