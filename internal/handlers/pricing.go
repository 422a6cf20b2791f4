package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/vitrine-field/api/internal/domain"
	"github.com/vitrine-field/api/internal/platform/httpx"
	"github.com/vitrine-field/api/internal/services"
)

const maxPriceBatchSize = 100

// PricingHandlers exposes storefront price resolution.
type PricingHandlers struct {
	pricing services.PricingService
}

// NewPricingHandlers constructs pricing handlers.
func NewPricingHandlers(pricing services.PricingService) *PricingHandlers {
	return &PricingHandlers{pricing: pricing}
}

// Routes registers pricing endpoints under the tenant router.
func (h *PricingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products/{productId}/price", h.getProductPrice)
	r.Post("/products:prices", h.listProductPrices)
}

type productPricesRequest struct {
	ProductIDs []string `json:"product_ids"`
}

type promotionPayload struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Type             string  `json:"type"`
	DiscountType     string  `json:"discount_type"`
	DiscountValue    string  `json:"discount_value"`
	Priority         int     `json:"priority"`
	PromotionalPrice string  `json:"promotional_price"`
	CompareAtPrice   *string `json:"compare_at_price,omitempty"`
}

type productPricePayload struct {
	ProductID       string            `json:"product_id"`
	ProductName     string            `json:"product_name,omitempty"`
	OriginalPrice   string            `json:"original_price"`
	FinalPrice      string            `json:"final_price"`
	HasDiscount     bool              `json:"has_discount"`
	Promotion       *promotionPayload `json:"promotion,omitempty"`
	PercentageLabel string            `json:"percentage_label,omitempty"`
	ComparisonLabel string            `json:"comparison_label,omitempty"`
	PricedAt        string            `json:"priced_at"`
}

type productPricesResponse struct {
	Items []productPricePayload `json:"items"`
}

func (h *PricingHandlers) getProductPrice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_unavailable", "pricing service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productId"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	price, err := h.pricing.ResolveProductPrice(ctx, TenantScope(r), productID)
	if err != nil {
		writePricingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPricePayload(price))
}

func (h *PricingHandlers) listProductPrices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_unavailable", "pricing service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req productPricesRequest
	if !decodeJSONBody(w, r, maxStorefrontBodySize, &req) {
		return
	}
	if len(req.ProductIDs) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product_ids is required", http.StatusBadRequest))
		return
	}
	if len(req.ProductIDs) > maxPriceBatchSize {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "too many product ids", http.StatusBadRequest))
		return
	}

	prices, err := h.pricing.ResolveProductPrices(ctx, TenantScope(r), req.ProductIDs)
	if err != nil {
		writePricingError(ctx, w, err)
		return
	}

	resp := productPricesResponse{Items: make([]productPricePayload, 0, len(prices))}
	for _, price := range prices {
		resp.Items = append(resp.Items, buildProductPricePayload(price))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func buildProductPricePayload(price services.ProductPrice) productPricePayload {
	payload := productPricePayload{
		ProductID:       price.ProductID,
		ProductName:     price.ProductName,
		OriginalPrice:   formatMoney(price.OriginalPrice),
		FinalPrice:      formatMoney(price.FinalPrice),
		HasDiscount:     price.FinalPrice.LessThan(price.OriginalPrice),
		PercentageLabel: price.PercentageLabel,
		ComparisonLabel: price.ComparisonLabel,
		PricedAt:        formatTime(price.PricedAt),
	}
	if price.Promotion != nil {
		payload.Promotion = buildPromotionPayload(*price.Promotion)
	}
	return payload
}

func buildPromotionPayload(promo domain.PromotionWithPriority) *promotionPayload {
	return &promotionPayload{
		ID:               promo.ID,
		Name:             promo.Name,
		Type:             string(promo.PromotionType),
		DiscountType:     string(promo.DiscountType),
		DiscountValue:    promo.DiscountValue.String(),
		Priority:         promo.Priority,
		PromotionalPrice: formatMoney(promo.PromotionalPrice),
		CompareAtPrice:   formatOptionalMoney(promo.CompareAtPrice),
	}
}

func writePricingError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPricingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPricingUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("pricing_unavailable", "pricing service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("pricing_error", "failed to resolve price", http.StatusInternalServerError))
	}
}
