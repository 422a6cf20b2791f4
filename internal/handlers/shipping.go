package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/vitrine-field/api/internal/domain"
	"github.com/vitrine-field/api/internal/platform/httpx"
	"github.com/vitrine-field/api/internal/services"
)

// ShippingHandlers exposes shipping option calculation for a cart.
type ShippingHandlers struct {
	shipping services.ShippingService
}

// NewShippingHandlers constructs shipping handlers.
func NewShippingHandlers(shipping services.ShippingService) *ShippingHandlers {
	return &ShippingHandlers{shipping: shipping}
}

// Routes registers shipping endpoints under the tenant router.
func (h *ShippingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/shipping:calculate", h.calculate)
}

type cartItemPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type calculateShippingRequest struct {
	Items      []cartItemPayload `json:"items"`
	PostalCode string            `json:"postal_code"`
}

type shippingOptionPayload struct {
	MethodID      string `json:"method_id"`
	MethodName    string `json:"method_name"`
	MethodType    string `json:"method_type"`
	Price         string `json:"price"`
	DeliveryDays  *int   `json:"delivery_days,omitempty"`
	DeliveryLabel string `json:"delivery_label,omitempty"`
	Error         string `json:"error,omitempty"`
}

type calculateShippingResponse struct {
	Options []shippingOptionPayload `json:"options"`
}

func (h *ShippingHandlers) calculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipping == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_unavailable", "shipping service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req calculateShippingRequest
	if !decodeJSONBody(w, r, maxStorefrontBodySize, &req) {
		return
	}

	calcs, err := h.shipping.CalculateShipping(ctx, services.CalculateShippingCommand{
		TenantID:   TenantScope(r),
		Items:      toCartItemInputs(req.Items),
		PostalCode: req.PostalCode,
	})
	if err != nil {
		writeShippingError(ctx, w, err)
		return
	}

	ranked := services.RankShippingOptions(calcs)
	resp := calculateShippingResponse{Options: make([]shippingOptionPayload, 0, len(ranked))}
	for _, calc := range ranked {
		resp.Options = append(resp.Options, buildShippingOptionPayload(calc))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func toCartItemInputs(items []cartItemPayload) []services.CartItemInput {
	out := make([]services.CartItemInput, 0, len(items))
	for _, item := range items {
		out = append(out, services.CartItemInput{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return out
}

func buildShippingOptionPayload(calc domain.ShippingCalculation) shippingOptionPayload {
	return shippingOptionPayload{
		MethodID:      calc.MethodID,
		MethodName:    calc.MethodName,
		MethodType:    string(calc.MethodType),
		Price:         formatMoney(calc.Price),
		DeliveryDays:  calc.DeliveryDays,
		DeliveryLabel: calc.DeliveryLabel,
		Error:         calc.Error,
	}
}

func writeShippingError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrShippingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrShippingUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("shipping_unavailable", "shipping service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("shipping_error", "failed to calculate shipping", http.StatusInternalServerError))
	}
}
