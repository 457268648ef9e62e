package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/raffle-checkout/internal/middleware"
	"github.com/iliyamo/raffle-checkout/internal/model"
	"github.com/iliyamo/raffle-checkout/internal/service"
)

// Purchases is the part of service.PurchaseService the HTTP layer uses.
type Purchases interface {
	CreatePurchase(ctx context.Context, req service.PurchaseRequest) (*service.CheckoutResult, error)
	ResumeCheckout(ctx context.Context, viewer model.Identity, purchaseID, origin string) (*service.CheckoutResult, error)
	ListPurchases(ctx context.Context, viewer model.Identity) ([]model.Purchase, error)
	GetPurchase(ctx context.Context, viewer model.Identity, purchaseID string) (*model.Purchase, error)
}

// PurchaseHandler serves purchase intake and the buyer's purchase views.
type PurchaseHandler struct {
	svc    Purchases
	logger logrus.FieldLogger
}

// NewPurchaseHandler constructs a PurchaseHandler.  svc must be non-nil.
func NewPurchaseHandler(svc Purchases, logger logrus.FieldLogger) *PurchaseHandler {
	if svc == nil {
		panic("nil service passed to NewPurchaseHandler")
	}
	return &PurchaseHandler{svc: svc, logger: logger}
}

type createPurchaseRequest struct {
	Quantity int    `json:"quantity"`
	ClickID  string `json:"click_id"`
}

type checkoutResponse struct {
	PurchaseID       string  `json:"purchase_id"`
	RedirectURL      string  `json:"redirect_url"`
	Quantity         int     `json:"quantity"`
	TotalAmount      float64 `json:"total_amount"`
	TotalAmountCents int64   `json:"total_amount_cents"`
}

func newCheckoutResponse(r *service.CheckoutResult) checkoutResponse {
	return checkoutResponse{
		PurchaseID:       r.PurchaseID,
		RedirectURL:      r.RedirectURL,
		Quantity:         r.Quantity,
		TotalAmount:      majorUnits(r.Amount),
		TotalAmountCents: r.Amount,
	}
}

// purchaseView adds the display amount to a stored purchase.
type purchaseView struct {
	model.Purchase
	TotalAmount float64 `json:"total_amount"`
}

func newPurchaseView(p model.Purchase) purchaseView {
	if p.RaffleNumbers == nil {
		p.RaffleNumbers = model.RaffleNumbers{}
	}
	return purchaseView{Purchase: p, TotalAmount: majorUnits(p.Amount)}
}

// Create handles POST /v1/purchases.  The body is {"quantity": N} with an
// optional marketing "click_id".  The bearer token is verified by the
// service so that nothing is stored for anonymous callers.  On success the
// client is sent the checkout redirect URL.
func (h *PurchaseHandler) Create(c echo.Context) error {
	var body createPurchaseRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	res, err := h.svc.CreatePurchase(c.Request().Context(), service.PurchaseRequest{
		Token:    middleware.BearerToken(c),
		Quantity: body.Quantity,
		Origin:   c.Request().Header.Get(echo.HeaderOrigin),
		ClickID:  body.ClickID,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, newCheckoutResponse(res))
}

// Resume handles POST /v1/purchases/:id/checkout for a PENDING purchase
// whose checkout was abandoned.
func (h *PurchaseHandler) Resume(c echo.Context) error {
	viewer, ok := middleware.IdentityFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	res, err := h.svc.ResumeCheckout(c.Request().Context(), viewer, c.Param("id"), c.Request().Header.Get(echo.HeaderOrigin))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, newCheckoutResponse(res))
}

// ListMine handles GET /v1/my-purchases.
func (h *PurchaseHandler) ListMine(c echo.Context) error {
	viewer, ok := middleware.IdentityFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	items, err := h.svc.ListPurchases(c.Request().Context(), viewer)
	if err != nil {
		return h.fail(c, err)
	}
	views := make([]purchaseView, 0, len(items))
	for _, p := range items {
		views = append(views, newPurchaseView(p))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": views})
}

// Get handles GET /v1/purchases/:id and the admin variant.
func (h *PurchaseHandler) Get(c echo.Context) error {
	viewer, ok := middleware.IdentityFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	p, err := h.svc.GetPurchase(c.Request().Context(), viewer, c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": newPurchaseView(*p)})
}

func (h *PurchaseHandler) fail(c echo.Context, err error) error {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("path", c.Path()).Error("purchase request failed")
	}
	return c.JSON(status, echo.Map{"error": msg})
}
