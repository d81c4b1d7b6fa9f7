package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// JWTConfig wires the token middleware.
type JWTConfig struct {
	Tokens     *TokenService
	Revocation RevocationStore
	Logger     zerolog.Logger
	// Skipper lets public routes through without a token.
	Skipper func(c echo.Context) bool
}

var publicPaths = map[string]bool{
	"/health":               true,
	"/health/db":            true,
	"/metrics":              true,
	"/api/v1/auth/register": true,
	"/api/v1/auth/login":    true,
}

// PublicSkipper skips authentication for health, metrics, register and
// login.
func PublicSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// JWTMiddleware verifies the bearer token and stores the caller's
// Principal on the request context. Revoked tokens are rejected.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			raw, ok := BearerToken(header)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			p, err := cfg.Tokens.Verify(raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}

			if cfg.Revocation != nil && p.TokenID != "" {
				ctx := c.Request().Context()
				revoked, err := cfg.Revocation.IsRevoked(ctx, p.TokenID)
				if err != nil {
					cfg.Logger.Error().Err(err).Msg("token revocation lookup failed")
					return echo.NewHTTPError(http.StatusServiceUnavailable, "authentication backend unavailable")
				}
				if revoked {
					return echo.NewHTTPError(http.StatusUnauthorized, "token has been revoked")
				}
			}

			c.Set("user_id", p.UserID)
			c.Set("role", p.Role)
			c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), p)))
			return next(c)
		}
	}
}
