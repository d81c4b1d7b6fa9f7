package auth

import (
	"context"

	"github.com/labstack/echo/v4"
)

// Roles a user account may hold.
const (
	RoleMother       = "mother"
	RoleHealthWorker = "health_worker"
	RoleAdmin        = "admin"
)

// Principal is the authenticated caller as decoded from a verified token.
type Principal struct {
	UserID int64
	Role   string
	// TokenID and ExpiresAt identify the presented token for revocation.
	TokenID   string
	ExpiresAt int64
}

// IsStaff reports whether the caller may act on every record.
func (p Principal) IsStaff() bool {
	return p.Role == RoleAdmin || p.Role == RoleHealthWorker
}

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the caller stored by the JWT middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// CallerFrom returns the principal of an echo request, or the zero
// Principal, which every capability check denies.
func CallerFrom(c echo.Context) Principal {
	p, _ := PrincipalFromContext(c.Request().Context())
	return p
}
