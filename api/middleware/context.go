package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

// Principal is the authenticated caller as seen by handlers. VendorID holds
// the token claim after Auth and the verified owned vendor after VendorContext.
type Principal struct {
	UserID   uuid.UUID
	Role     enums.UserRole
	VendorID uuid.UUID
}

type principalKey struct{}

// PrincipalFromContext returns the zero Principal outside authenticated routes.
func PrincipalFromContext(ctx context.Context) Principal {
	if ctx == nil {
		return Principal{}
	}
	p, _ := ctx.Value(principalKey{}).(Principal)
	return p
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey{}, p)
}

func amend(ctx context.Context, edit func(*Principal)) context.Context {
	p := PrincipalFromContext(ctx)
	edit(&p)
	return WithPrincipal(ctx, p)
}

func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return amend(ctx, func(p *Principal) { p.UserID = id })
}

func WithRole(ctx context.Context, role enums.UserRole) context.Context {
	return amend(ctx, func(p *Principal) { p.Role = role })
}

func WithVendorID(ctx context.Context, id uuid.UUID) context.Context {
	return amend(ctx, func(p *Principal) { p.VendorID = id })
}

func UserIDFromContext(ctx context.Context) uuid.UUID { return PrincipalFromContext(ctx).UserID }

func RoleFromContext(ctx context.Context) enums.UserRole { return PrincipalFromContext(ctx).Role }

func VendorIDFromContext(ctx context.Context) uuid.UUID { return PrincipalFromContext(ctx).VendorID }
