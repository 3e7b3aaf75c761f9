package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcore-backend/api/responses"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

type vendorOwnerLookup interface {
	FindByOwner(ctx context.Context, ownerUserID uuid.UUID) (*models.Vendor, error)
}

// VendorContext resolves the active vendor owned by the caller. A vendor_id claim that
// disagrees with the owned vendor is rejected.
func VendorContext(vendors vendorOwnerLookup, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := UserIDFromContext(ctx)
			if userID == uuid.Nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
				return
			}

			vendor, err := vendors.FindByOwner(ctx, userID)
			if err != nil {
				if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
					err = pkgerrors.New(pkgerrors.CodeForbidden, "no active vendor for user")
				}
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if claimed := VendorIDFromContext(ctx); claimed != uuid.Nil && claimed != vendor.ID {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "vendor claim mismatch"))
				return
			}

			ctx = WithVendorID(ctx, vendor.ID)
			if logg != nil {
				ctx = logg.WithVendorID(ctx, vendor.ID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
