package shipping

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/internal/repo"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
)

// Methods looks up shipping methods offered at checkout.
type Methods interface {
	FindActive(ctx context.Context, id uuid.UUID) (*models.ShippingMethod, error)
}

type repository struct {
	repo.Base
}

func NewMethods(db *gorm.DB) (Methods, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &repository{Base: repo.NewBase(db)}, nil
}

func (r *repository) FindActive(ctx context.Context, id uuid.UUID) (*models.ShippingMethod, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidShippingMethod, "shipping method id required")
	}
	var method models.ShippingMethod
	if err := r.First(ctx, &method, "shipping method not found", "id = ? AND is_active = ?", id, true); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidShippingMethod, "shipping method unavailable")
		}
		return nil, err
	}
	return &method, nil
}
