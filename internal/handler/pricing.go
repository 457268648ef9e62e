package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/raffle-checkout/internal/pricing"
)

// Quote handles GET /v1/pricing?quantity=N.  It is the interactive price
// helper for the purchase form: unlike purchase intake it clamps the
// quantity into range instead of rejecting it.  A missing or non-numeric
// quantity quotes the minimum.
func Quote(c echo.Context) error {
	q, err := strconv.Atoi(c.QueryParam("quantity"))
	if err != nil {
		q = pricing.MinQuantity
	}
	q = pricing.Clamp(q)
	amount, err := pricing.ComputePrice(q)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": invalidQuantityMessage})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"quantity":           q,
		"unit_price":         majorUnits(pricing.UnitPrice(q)),
		"total_amount":       majorUnits(amount),
		"total_amount_cents": amount,
		"promotional":        pricing.IsPromotional(q),
		"promo_threshold":    pricing.PromoThreshold,
		"min_quantity":       pricing.MinQuantity,
		"max_quantity":       pricing.MaxQuantity,
	})
}

// majorUnits converts minor currency units to a decimal amount for display.
func majorUnits(minor int64) float64 { return float64(minor) / 100 }
