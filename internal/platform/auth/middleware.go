package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserEmailKey contextKey = "user_email"
)

// Identity is the authenticated caller resolved from a bearer token.
type Identity struct {
	UserID uuid.UUID
	Email  string
}

// IsZero reports whether the identity carries no user.
func (i Identity) IsZero() bool {
	return i.UserID == uuid.Nil
}

// AccessVerifier resolves an access token to an Identity.
type AccessVerifier interface {
	VerifyAccess(token string) (Identity, error)
}

type JWTConfig struct {
	Verifier AccessVerifier
	// Skipper bypasses authentication when it returns true.
	Skipper func(c echo.Context) bool
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			id, err := cfg.Verifier.VerifyAccess(strings.TrimSpace(parts[1]))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), id)))
			return next(c)
		}
	}
}

// WithIdentity stores id on ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, id.UserID)
	return context.WithValue(ctx, UserEmailKey, id.Email)
}

// IdentityFromContext returns the caller stored by JWTMiddleware. The boolean
// is false when the request is unauthenticated.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	uid, ok := ctx.Value(UserIDKey).(uuid.UUID)
	if !ok || uid == uuid.Nil {
		return Identity{}, false
	}
	email, _ := ctx.Value(UserEmailKey).(string)
	return Identity{UserID: uid, Email: email}, true
}

// UserIDFromContext returns the caller's id as a string, or "" when absent.
func UserIDFromContext(ctx context.Context) string {
	uid, ok := ctx.Value(UserIDKey).(uuid.UUID)
	if !ok || uid == uuid.Nil {
		return ""
	}
	return uid.String()
}
