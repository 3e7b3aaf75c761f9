package address

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/internal/repo"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/types"
)

// Resolver turns a saved address into the snapshot copied onto an order.
type Resolver interface {
	Resolve(ctx context.Context, userID, addressID uuid.UUID) (types.AddressSnapshot, error)
}

type repository struct {
	repo.Base
}

// NewResolver returns an address resolver bound to db.
func NewResolver(db *gorm.DB) (Resolver, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &repository{Base: repo.NewBase(db)}, nil
}

// Resolve fails with INVALID_ADDRESS when the address is missing, belongs to another user, or is incomplete.
func (r *repository) Resolve(ctx context.Context, userID, addressID uuid.UUID) (types.AddressSnapshot, error) {
	if addressID == uuid.Nil {
		return types.AddressSnapshot{}, pkgerrors.New(pkgerrors.CodeInvalidAddress, "address id required")
	}
	var row models.Address
	err := r.First(ctx, &row, "address not found", "id = ? AND user_id = ?", addressID, userID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return types.AddressSnapshot{}, pkgerrors.New(pkgerrors.CodeInvalidAddress, "address not found")
		}
		return types.AddressSnapshot{}, err
	}
	snapshot := row.Snapshot()
	if err := snapshot.Validate(); err != nil {
		return types.AddressSnapshot{}, pkgerrors.Wrap(pkgerrors.CodeInvalidAddress, err, "address incomplete")
	}
	return snapshot, nil
}
