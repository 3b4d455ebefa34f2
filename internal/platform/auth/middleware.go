package auth

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/bloodlab/bloodlab/internal/platform/apperr"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserEmailKey contextKey = "user_email"
	UserRoleKey  contextKey = "user_role"
)

// Roles
const (
	RoleAdmin   = "admin"
	RolePatient = "patient"
)

// UserLookup confirms a token's user still exists and is active, and returns
// the role currently on record.
type UserLookup interface {
	ActiveRole(ctx context.Context, userID int64) (string, error)
}

// JWTMiddleware requires a valid bearer token. When users is non-nil the
// account must still be active, and its stored role replaces the token's.
func JWTMiddleware(tokens *TokenIssuer, users UserLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return apperr.Unauthorized("access denied, no token provided")
			}

			scheme, tokenStr, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || tokenStr == "" {
				return apperr.Unauthorized("invalid authorization format")
			}

			claims, err := tokens.Parse(strings.TrimSpace(tokenStr))
			if err != nil {
				return apperr.Unauthorized("invalid token")
			}
			userID, _ := claims.UserID()
			role := claims.Role

			ctx := c.Request().Context()
			if users != nil {
				role, err = users.ActiveRole(ctx, userID)
				if err != nil {
					if apperr.IsNotFound(err) {
						return apperr.Unauthorized("invalid token or user not active")
					}
					return err
				}
			}

			c.SetRequest(c.Request().WithContext(WithUser(ctx, userID, claims.Email, role)))
			c.Set(string(UserIDKey), userID)
			return next(c)
		}
	}
}

// WithUser stores the caller identity on ctx.
func WithUser(ctx context.Context, userID int64, email, role string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	ctx = context.WithValue(ctx, UserEmailKey, email)
	return context.WithValue(ctx, UserRoleKey, role)
}

func UserIDFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(UserIDKey).(int64)
	return id
}

func EmailFromContext(ctx context.Context) string {
	v, _ := ctx.Value(UserEmailKey).(string)
	return v
}

func RoleFromContext(ctx context.Context) string {
	v, _ := ctx.Value(UserRoleKey).(string)
	return v
}
