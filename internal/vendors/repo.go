package vendors

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/internal/repo"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
)

// Repository reads vendor rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Vendor, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Vendor, error)
	FindByOwner(ctx context.Context, ownerUserID uuid.UUID) (*models.Vendor, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a vendor repository bound to db.
func NewRepository(db *gorm.DB) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &repository{Base: repo.NewBase(db)}, nil
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Rebind(tx)}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Vendor, error) {
	var vendor models.Vendor
	if err := r.First(ctx, &vendor, "vendor not found", "id = ?", id); err != nil {
		return nil, err
	}
	return &vendor, nil
}

// FindByIDs loads vendors keyed by id. Missing ids are reported as NOT_FOUND.
func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Vendor, error) {
	out := make(map[uuid.UUID]models.Vendor, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Vendor
	if err := r.DB(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load vendors")
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found").
				WithDetails(map[string]any{"vendor_id": id})
		}
	}
	return out, nil
}

// FindByOwner resolves the vendor managed by a user; used to scope vendor routes.
func (r *repository) FindByOwner(ctx context.Context, ownerUserID uuid.UUID) (*models.Vendor, error) {
	var vendor models.Vendor
	if err := r.First(ctx, &vendor, "vendor not found", "owner_user_id = ? AND is_active = ?", ownerUserID, true); err != nil {
		return nil, err
	}
	return &vendor, nil
}
