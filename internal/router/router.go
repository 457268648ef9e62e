package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/raffle-checkout/internal/handler"    // handlers that implement each endpoint
	"github.com/iliyamo/raffle-checkout/internal/middleware" // JWT authentication, roles, rate limit and cache
	"github.com/iliyamo/raffle-checkout/internal/utils"
)

// RegisterRoutes registers the health endpoints.  /healthz only proves the
// process is up; /readyz also pings the database.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
}

// RegisterPublic registers unauthenticated endpoints.  The price quote does
// not depend on the caller, so it may sit behind the response cache.
func RegisterPublic(e *echo.Echo, cache echo.MiddlewareFunc) {
	e.GET("/v1/pricing", handler.Quote, cache)
}

// RegisterPurchases registers buyer endpoints.  Purchase creation verifies
// the bearer token inside the service and is rate limited; the read and
// resume endpoints run behind JWTAuth.
func RegisterPurchases(e *echo.Echo, h *handler.PurchaseHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	e.POST("/v1/purchases", h.Create, limiter)

	g := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	g.GET("/my-purchases", h.ListMine)
	g.GET("/purchases/:id", h.Get)
	g.POST("/purchases/:id/checkout", h.Resume, limiter)
}

// RegisterAdmin registers support endpoints restricted to the ADMIN role.
// The purchase lookup ignores ownership for admins.
func RegisterAdmin(e *echo.Echo, h *handler.PurchaseHandler, jwtSecret string) {
	g := e.Group("/v1/admin", middleware.JWTAuth(jwtSecret), middleware.RequireRole(utils.RoleAdmin))
	g.GET("/purchases/:id", h.Get)
}

// RegisterWebhooks registers payment provider callbacks.  They carry no
// bearer token; authenticity comes from the provider signature.
func RegisterWebhooks(e *echo.Echo, h *handler.WebhookHandler) {
	e.POST("/v1/webhooks/stripe", h.Stripe)
}
