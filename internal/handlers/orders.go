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

// OrderHandlers exposes order placement and payment confirmation.
type OrderHandlers struct {
	checkout      services.CheckoutService
	placeOrderMWs []func(http.Handler) http.Handler
}

// OrderHandlersOption customises order handlers.
type OrderHandlersOption func(*OrderHandlers)

// WithPlaceOrderMiddlewares wraps the order placement endpoint, typically with idempotency.
func WithPlaceOrderMiddlewares(mw ...func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		for _, m := range mw {
			if m != nil {
				h.placeOrderMWs = append(h.placeOrderMWs, m)
			}
		}
	}
}

// NewOrderHandlers constructs order handlers.
func NewOrderHandlers(checkout services.CheckoutService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{checkout: checkout}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers order endpoints under the tenant router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(h.placeOrderMWs...).Post("/orders", h.placeOrder)
	r.Post("/orders/{orderId}:confirm", h.confirmOrder)
}

type placeOrderRequest struct {
	Items            []cartItemPayload `json:"items"`
	PostalCode       string            `json:"postal_code"`
	ShippingMethodID string            `json:"shipping_method_id"`
	CustomerEmail    string            `json:"customer_email"`
	SuccessURL       string            `json:"success_url"`
	CancelURL        string            `json:"cancel_url"`
	Locale           string            `json:"locale"`
}

type orderLinePayload struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	UnitPrice      string `json:"unit_price"`
	FinalUnitPrice string `json:"final_unit_price"`
	PromotionID    string `json:"promotion_id,omitempty"`
	PromotionType  string `json:"promotion_type,omitempty"`
	LineTotal      string `json:"line_total"`
}

type orderShippingPayload struct {
	MethodID      string `json:"method_id"`
	MethodName    string `json:"method_name"`
	Price         string `json:"price"`
	DeliveryLabel string `json:"delivery_label,omitempty"`
}

type orderPayload struct {
	ID            string               `json:"id"`
	Status        string               `json:"status"`
	Currency      string               `json:"currency"`
	Lines         []orderLinePayload   `json:"lines"`
	PostalCode    string               `json:"postal_code"`
	Shipping      orderShippingPayload `json:"shipping"`
	Subtotal      string               `json:"subtotal"`
	Total         string               `json:"total"`
	CustomerEmail string               `json:"customer_email,omitempty"`
	PricedAt      string               `json:"priced_at,omitempty"`
	CreatedAt     string               `json:"created_at,omitempty"`
}

type paymentSessionPayload struct {
	ID        string `json:"id"`
	Provider  string `json:"provider"`
	URL       string `json:"url"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

type placeOrderResponse struct {
	Order   orderPayload          `json:"order"`
	Payment paymentSessionPayload `json:"payment"`
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req placeOrderRequest
	if !decodeJSONBody(w, r, maxStorefrontBodySize, &req) {
		return
	}
	if strings.TrimSpace(req.SuccessURL) == "" || strings.TrimSpace(req.CancelURL) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "success_url and cancel_url are required", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.ShippingMethodID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "shipping_method_id is required", http.StatusBadRequest))
		return
	}

	placed, err := h.checkout.PlaceOrder(ctx, services.PlaceOrderCommand{
		TenantID:         TenantScope(r),
		Items:            toCartItemInputs(req.Items),
		PostalCode:       req.PostalCode,
		ShippingMethodID: req.ShippingMethodID,
		CustomerEmail:    req.CustomerEmail,
		SuccessURL:       req.SuccessURL,
		CancelURL:        req.CancelURL,
		Locale:           req.Locale,
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, placeOrderResponse{
		Order: buildOrderPayload(placed.Order),
		Payment: paymentSessionPayload{
			ID:        placed.Session.ID,
			Provider:  placed.Session.Provider,
			URL:       placed.Session.RedirectURL,
			ExpiresAt: formatTime(placed.Session.ExpiresAt),
		},
	})
}

func (h *OrderHandlers) confirmOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.checkout.ConfirmOrder(ctx, services.ConfirmOrderCommand{
		TenantID: TenantScope(r),
		OrderID:  orderID,
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func buildOrderPayload(order domain.Order) orderPayload {
	lines := make([]orderLinePayload, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderLinePayload{
			ProductID:      line.ProductID,
			ProductName:    line.ProductName,
			Quantity:       line.Quantity,
			UnitPrice:      formatMoney(line.UnitPrice),
			FinalUnitPrice: formatMoney(line.FinalUnitPrice),
			PromotionID:    line.PromotionID,
			PromotionType:  string(line.PromotionType),
			LineTotal:      formatMoney(line.LineTotal),
		})
	}
	return orderPayload{
		ID:         order.ID,
		Status:     string(order.Status),
		Currency:   order.Currency,
		Lines:      lines,
		PostalCode: order.PostalCode,
		Shipping: orderShippingPayload{
			MethodID:      order.ShippingMethodID,
			MethodName:    order.ShippingMethodName,
			Price:         formatMoney(order.ShippingPrice),
			DeliveryLabel: order.DeliveryLabel,
		},
		Subtotal:      formatMoney(order.Subtotal),
		Total:         formatMoney(order.Total),
		CustomerEmail: order.CustomerEmail,
		PricedAt:      formatTime(order.PricedAt),
		CreatedAt:     formatTime(order.CreatedAt),
	}
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrTenantNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("tenant_not_found", "tenant not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutMerchantNotConnected):
		httpx.WriteError(ctx, w, httpx.NewError("merchant_not_connected", "store cannot accept payments yet", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutShippingUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("shipping_method_unavailable", "selected shipping method is unavailable", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment could not be started", http.StatusBadGateway))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to process order", http.StatusInternalServerError))
	}
}
