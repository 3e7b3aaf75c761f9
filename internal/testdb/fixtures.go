package testdb

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/types"
)

func mustCreate(t testing.TB, db *gorm.DB, value any) {
	t.Helper()
	if err := db.Create(value).Error; err != nil {
		t.Fatalf("seed %T: %v", value, err)
	}
}

// Vendor seeds an active vendor with the given commission percentage.
func Vendor(t testing.TB, db *gorm.DB, commissionRate string) *models.Vendor {
	t.Helper()
	v := &models.Vendor{
		OwnerUserID:    uuid.New(),
		Name:           "Vendor " + uuid.NewString()[:8],
		CommissionRate: decimal.RequireFromString(commissionRate),
		IsActive:       true,
	}
	mustCreate(t, db, v)
	return v
}

// Product seeds an active product.
func Product(t testing.TB, db *gorm.DB, vendorID uuid.UUID, price string, qty int) *models.Product {
	t.Helper()
	p := &models.Product{
		VendorID: vendorID,
		SKU:      "SKU-" + uuid.NewString()[:8],
		Name:     "Product " + uuid.NewString()[:6],
		Price:    decimal.RequireFromString(price),
		Quantity: qty,
		IsActive: true,
	}
	mustCreate(t, db, p)
	return p
}

// Variant seeds an active variant under productID.
func Variant(t testing.TB, db *gorm.DB, productID uuid.UUID, price string, qty int) *models.ProductVariant {
	t.Helper()
	v := &models.ProductVariant{
		ProductID: productID,
		SKU:       "VAR-" + uuid.NewString()[:8],
		Name:      "Large",
		Price:     decimal.RequireFromString(price),
		Quantity:  qty,
		IsActive:  true,
	}
	mustCreate(t, db, v)
	return v
}

// Address seeds a complete address owned by userID.
func Address(t testing.TB, db *gorm.DB, userID uuid.UUID) *models.Address {
	t.Helper()
	a := &models.Address{
		UserID:     userID,
		FullName:   "Ada Buyer",
		Line1:      "1 Market St",
		City:       "Springfield",
		State:      "IL",
		PostalCode: "62701",
		Country:    "US",
	}
	mustCreate(t, db, a)
	return a
}

// ShippingMethod seeds an active shipping method at cost.
func ShippingMethod(t testing.TB, db *gorm.DB, cost string) *models.ShippingMethod {
	t.Helper()
	m := &models.ShippingMethod{
		Name:          "Standard",
		Carrier:       "UPS",
		Cost:          decimal.RequireFromString(cost),
		EstimatedDays: 5,
		IsActive:      true,
	}
	mustCreate(t, db, m)
	return m
}

// CartItem seeds a cart line priced at the product's current price.
func CartItem(t testing.TB, db *gorm.DB, userID uuid.UUID, product *models.Product, variant *models.ProductVariant, qty int) *models.CartItem {
	t.Helper()
	item := &models.CartItem{
		UserID:     userID,
		ProductID:  product.ID,
		Quantity:   qty,
		PriceAtAdd: product.Price,
	}
	if variant != nil {
		id := variant.ID
		item.VariantID = &id
		item.PriceAtAdd = variant.Price
	}
	mustCreate(t, db, item)
	return item
}

// ProductQuantity reads the current stock of a product.
func ProductQuantity(t testing.TB, db *gorm.DB, productID uuid.UUID) int {
	t.Helper()
	var p models.Product
	if err := db.Unscoped().First(&p, "id = ?", productID).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	return p.Quantity
}

// PlacedOrder seeds a pending order with one item per product at qty each, plus a pending
// payment, and decrements stock the way checkout would.
func PlacedOrder(t testing.TB, db *gorm.DB, userID uuid.UUID, vendor *models.Vendor, qty int, products ...*models.Product) *models.Order {
	t.Helper()
	subtotal := decimal.Zero
	for _, p := range products {
		subtotal = subtotal.Add(p.Price.Mul(decimal.NewFromInt(int64(qty))))
	}
	snapshot := types.AddressSnapshot{FullName: "Ada Buyer", Line1: "1 Market St", City: "Springfield", PostalCode: "62701", Country: "US"}
	order := &models.Order{
		OrderNumber:      "MC-TEST-" + uuid.NewString()[:8],
		UserID:           userID,
		Status:           enums.OrderStatusPending,
		PaymentStatus:    enums.PaymentStatusPending,
		Subtotal:         subtotal,
		Tax:              decimal.Zero,
		ShippingCost:     decimal.Zero,
		Discount:         decimal.Zero,
		Total:            subtotal,
		Currency:         "usd",
		ShippingMethodID: uuid.New(),
		ShippingAddress:  snapshot,
		BillingAddress:   snapshot,
	}
	if err := db.Omit("Items", "Payment").Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	base := time.Now().UTC()
	for i, p := range products {
		lineSubtotal := p.Price.Mul(decimal.NewFromInt(int64(qty)))
		commission := lineSubtotal.Mul(vendor.CommissionRate).Div(decimal.NewFromInt(100)).Round(2)
		mustCreate(t, db, &models.OrderItem{
			CreatedAt:        base.Add(time.Duration(i) * time.Millisecond),
			OrderID:          order.ID,
			VendorID:         vendor.ID,
			ProductID:        p.ID,
			ProductName:      p.Name,
			Quantity:         qty,
			UnitPrice:        p.Price,
			Subtotal:         lineSubtotal,
			CommissionRate:   vendor.CommissionRate,
			CommissionAmount: commission,
			Status:           enums.OrderItemStatusPending,
		})
		if err := db.Model(&models.Product{}).Where("id = ?", p.ID).
			Update("quantity", gorm.Expr("quantity - ?", qty)).Error; err != nil {
			t.Fatalf("decrement stock: %v", err)
		}
	}
	mustCreate(t, db, &models.Payment{
		OrderID:          order.ID,
		ExternalIntentID: "pi_" + uuid.NewString()[:12],
		Amount:           order.Total,
		Currency:         "usd",
		Status:           enums.PaymentStatusPending,
	})

	var loaded models.Order
	if err := db.Preload("Items", func(q *gorm.DB) *gorm.DB { return q.Order("created_at ASC") }).
		Preload("Payment").First(&loaded, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	return &loaded
}
