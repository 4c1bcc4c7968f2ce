package controllers

import (
	"context"
	"net/http"

	"github.com/mvalderrama/shopflow-backend/api/middleware"
	"github.com/mvalderrama/shopflow-backend/api/responses"
	"github.com/mvalderrama/shopflow-backend/api/validators"
	"github.com/mvalderrama/shopflow-backend/internal/carts"
	"github.com/mvalderrama/shopflow-backend/internal/discounts"
	"github.com/mvalderrama/shopflow-backend/internal/ledger"
	"github.com/mvalderrama/shopflow-backend/pkg/db/models"
	pkgerrors "github.com/mvalderrama/shopflow-backend/pkg/errors"
	"github.com/mvalderrama/shopflow-backend/pkg/logger"
)

type checkoutRequest struct {
	DiscountCode *string `json:"discount_code,omitempty" validate:"omitempty,min=1,max=64"`
}

type quoteResponse struct {
	SubtotalCents int                 `json:"subtotal_cents"`
	DiscountCents int                 `json:"discount_cents"`
	TotalCents    int                 `json:"total_cents"`
	Discounts     []discounts.Applied `json:"discounts,omitempty"`
}

type checkoutResponse struct {
	quoteResponse
	OrderID     string `json:"order_id"`
	OrderNumber int64  `json:"order_number"`
	Status      string `json:"status"`
}

// CheckoutQuote prices the caller's active cart without creating an order.
func CheckoutQuote(cartsSvc carts.Service, engine discounts.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req checkoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		cart, err := cartsSvc.GetOrCreateActive(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := quoteCart(r.Context(), engine, cart, req.DiscountCode)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quoteResponse{
			SubtotalCents: quote.SubtotalCents,
			DiscountCents: quote.DiscountCents,
			TotalCents:    quote.TotalCents,
			Discounts:     quote.Applied,
		})
	}
}

// Checkout prices the active cart and converts it into an order atomically.
func Checkout(cartsSvc carts.Service, engine discounts.Engine, ledgerSvc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req checkoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		cart, err := cartsSvc.GetOrCreateActive(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := quoteCart(r.Context(), engine, cart, req.DiscountCode)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := ledgerSvc.CreateOrderFromCart(r.Context(), ledger.CreateOrderInput{
			UserID:  userID,
			CartID:  cart.ID,
			Applied: quote.Applied,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutResponse{
			quoteResponse: quoteResponse{
				SubtotalCents: result.SubtotalCents,
				DiscountCents: result.DiscountCents,
				TotalCents:    result.TotalCents,
				Discounts:     quote.Applied,
			},
			OrderID:     result.OrderID.String(),
			OrderNumber: result.OrderNumber,
			Status:      "AWAITING_APPROVAL",
		})
	}
}

func quoteCart(ctx context.Context, engine discounts.Engine, cart *models.Cart, code *string) (discounts.Quote, error) {
	if len(cart.Items) == 0 {
		return discounts.Quote{}, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	lines := make([]discounts.CartLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		lines = append(lines, discounts.CartLine{
			ProductID:      item.ProductID,
			Qty:            item.Qty,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	return engine.Calculate(ctx, discounts.CartSnapshot{UserID: cart.UserID, Items: lines}, code)
}
