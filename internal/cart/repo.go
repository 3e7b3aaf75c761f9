package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
)

// Store reads a buyer's cart lines and removes purchased ones. Cart editing belongs to the
// storefront service; Add exists for seeding and tooling.
type Store interface {
	WithTx(tx *gorm.DB) Store
	Add(ctx context.Context, line *models.CartItem) error
	Lines(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error)
	Remove(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error)
}

type gormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return gormStore{db: db}
}

func (s gormStore) WithTx(tx *gorm.DB) Store {
	if tx == nil {
		return s
	}
	return gormStore{db: tx}
}

func (s gormStore) owned(ctx context.Context, userID uuid.UUID) *gorm.DB {
	return s.db.WithContext(ctx).Where("user_id = ?", userID)
}

func (s gormStore) Add(ctx context.Context, line *models.CartItem) error {
	return s.db.WithContext(ctx).Create(line).Error
}

// Lines returns the cart oldest-first; id breaks ties between lines added together.
func (s gormStore) Lines(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	var lines []models.CartItem
	if err := s.owned(ctx, userID).Order("created_at ASC, id ASC").Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

// Remove deletes the listed rows, scoped to the owner.
func (s gormStore) Remove(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.owned(ctx, userID).Where("id IN ?", ids).Delete(&models.CartItem{})
	return res.RowsAffected, res.Error
}
