package middleware

// identity.go holds helpers that read the caller stored by JWTAuth.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/raffle-checkout/internal/model"
)

// IdentityFrom returns the identity stored by JWTAuth.
func IdentityFrom(c echo.Context) (model.Identity, bool) {
	id, ok := c.Get(CtxIdentity).(model.Identity)
	return id, ok && id.UserID != ""
}

// userID returns the caller's user id, or "anon" for unauthenticated
// requests.  Used to build per-user rate limit keys.
func userID(c echo.Context) string {
	if s, ok := c.Get(CtxUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}
