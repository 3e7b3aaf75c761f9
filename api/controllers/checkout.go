package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcore-backend/api/middleware"
	"github.com/angelmondragon/marketcore-backend/api/responses"
	"github.com/angelmondragon/marketcore-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/marketcore-backend/internal/checkout"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/types"
)

// Checkout converts the caller's cart into a pending order paid by an existing intent.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Execute(r.Context(), checkoutsvc.CheckoutInput{
			UserID:            userID,
			ShippingAddressID: payload.ShippingAddressID,
			BillingAddressID:  payload.BillingAddressID,
			ShippingMethodID:  payload.ShippingMethodID,
			PaymentIntentID:   payload.PaymentIntentID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutResponse{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			Total:       order.Total.StringFixed(2),
			Currency:    order.Currency,
		})
	}
}

// CreatePaymentIntent prices the cart and returns a client secret for the payment form.
func CreatePaymentIntent(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload paymentIntentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := svc.QuotePaymentIntent(r.Context(), checkoutsvc.QuoteInput{
			UserID:            userID,
			ShippingAddressID: payload.ShippingAddressID,
			ShippingMethodID:  payload.ShippingMethodID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, paymentIntentResponse{
			ClientSecret:    quote.ClientSecret,
			PaymentIntentID: quote.PaymentIntentID,
			Amount:          quote.Amount.StringFixed(2),
			Currency:        quote.Currency,
			Warnings:        quote.Warnings,
		})
	}
}

type checkoutRequest struct {
	ShippingAddressID uuid.UUID `json:"shipping_address_id" validate:"required"`
	BillingAddressID  uuid.UUID `json:"billing_address_id" validate:"required"`
	ShippingMethodID  uuid.UUID `json:"shipping_method_id" validate:"required"`
	PaymentIntentID   string    `json:"payment_intent_id" validate:"required,max=255"`
}

type checkoutResponse struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Total       string    `json:"total"`
	Currency    string    `json:"currency"`
}

type paymentIntentRequest struct {
	ShippingAddressID uuid.UUID `json:"shipping_address_id" validate:"required"`
	ShippingMethodID  uuid.UUID `json:"shipping_method_id" validate:"required"`
}

type paymentIntentResponse struct {
	ClientSecret    string             `json:"client_secret"`
	PaymentIntentID string             `json:"payment_intent_id"`
	Amount          string             `json:"amount"`
	Currency        string             `json:"currency"`
	Warnings        types.CartWarnings `json:"warnings,omitempty"`
}

func requireUser(r *http.Request) (uuid.UUID, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return userID, nil
}
