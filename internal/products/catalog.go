package products

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
)

// Availability is the sellable view of a product or one of its variants.
type Availability struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	VendorID  uuid.UUID
	Name      string
	Price     decimal.Decimal
	Quantity  int
	Active    bool
}

// Catalog is the read side of the product catalog used by cart and checkout.
type Catalog interface {
	WithTx(tx *gorm.DB) Catalog
	GetAvailability(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*Availability, error)
}

type catalog struct {
	db *gorm.DB
}

// NewCatalog builds a gorm-backed catalog.
func NewCatalog(db *gorm.DB) (Catalog, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &catalog{db: db}, nil
}

func (c *catalog) WithTx(tx *gorm.DB) Catalog {
	if tx == nil {
		return c
	}
	return &catalog{db: tx}
}

// GetAvailability returns NOT_FOUND when the product (or the variant under it) never existed.
// Soft-deleted and deactivated rows come back with Active=false.
func (c *catalog) GetAvailability(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*Availability, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}

	var product models.Product
	if err := c.db.WithContext(ctx).Unscoped().Where("id = ?", productID).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load product")
	}

	productLive := product.IsActive && !product.DeletedAt.Valid
	if variantID == nil {
		return &Availability{
			ProductID: product.ID,
			VendorID:  product.VendorID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  product.Quantity,
			Active:    productLive,
		}, nil
	}

	var variant models.ProductVariant
	err := c.db.WithContext(ctx).Unscoped().
		Where("id = ? AND product_id = ?", *variantID, productID).
		First(&variant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product variant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load product variant")
	}

	id := variant.ID
	return &Availability{
		ProductID: product.ID,
		VariantID: &id,
		VendorID:  product.VendorID,
		Name:      product.Name + " - " + variant.Name,
		Price:     variant.Price,
		Quantity:  variant.Quantity,
		Active:    productLive && variant.IsActive && !variant.DeletedAt.Valid,
	}, nil
}
