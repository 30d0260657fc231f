package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/cardledger/internal/auth"
)

const (
	localUserID = "user_id"
	localRoles  = "roles"
)

// TokenVerifier resolves an access token to its principal.
type TokenVerifier interface {
	Verify(ctx context.Context, accessToken string) (auth.Principal, error)
}

// JWTAuth returns a middleware that validates bearer access tokens and
// stores the caller's id and roles in the request locals.
func JWTAuth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < len("Bearer ") || !strings.EqualFold(authz[:len("Bearer ")], "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		principal, err := verifier.Verify(c.UserContext(), strings.TrimSpace(authz[len("Bearer "):]))
		if err != nil {
			return err
		}

		c.Locals(localUserID, principal.UserID)
		c.Locals(localRoles, principal.Roles)
		return c.Next()
	}
}

// RequireRole rejects callers that lack role. Mount it after JWTAuth.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		for _, r := range Roles(c) {
			if r == role {
				return c.Next()
			}
		}
		return fiber.NewError(http.StatusForbidden, "access denied")
	}
}

// UserID returns the authenticated caller, or "" outside JWTAuth.
func UserID(c *fiber.Ctx) string {
	uid, _ := c.Locals(localUserID).(string)
	return uid
}

// Roles returns the authenticated caller's roles.
func Roles(c *fiber.Ctx) []string {
	roles, _ := c.Locals(localRoles).([]string)
	return roles
}
