package types

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

// CartWarning reports an adjustment made to a cart line while snapshotting it.
type CartWarning struct {
	Type      enums.CartWarningType `json:"type"`
	CartItem  uuid.UUID             `json:"cart_item_id"`
	ProductID uuid.UUID             `json:"product_id"`
	VariantID *uuid.UUID            `json:"variant_id,omitempty"`
	Requested int                   `json:"requested,omitempty"`
	Available int                   `json:"available,omitempty"`
	Message   string                `json:"message"`
}

type CartWarnings []CartWarning

// Has reports whether any warning of the given type is present.
func (w CartWarnings) Has(kind enums.CartWarningType) bool {
	for _, warning := range w {
		if warning.Type == kind {
			return true
		}
	}
	return false
}
