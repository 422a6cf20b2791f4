package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vitrine-field/api/internal/platform/httpx"
	"github.com/vitrine-field/api/internal/services"
)

// StripeConnectHandlers drives the merchant Stripe account linking flow.
type StripeConnectHandlers struct {
	connect services.StripeConnectService
}

// NewStripeConnectHandlers constructs Connect handlers.
func NewStripeConnectHandlers(connect services.StripeConnectService) *StripeConnectHandlers {
	return &StripeConnectHandlers{connect: connect}
}

// TenantRoutes registers the onboarding start endpoint under the tenant router.
func (h *StripeConnectHandlers) TenantRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/stripe/connect", h.begin)
}

// CallbackRoutes registers the OAuth redirect target. The tenant travels in the signed state.
func (h *StripeConnectHandlers) CallbackRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/callback", h.callback)
}

type connectCallbackResponse struct {
	TenantID        string `json:"tenant_id"`
	StripeAccountID string `json:"stripe_account_id"`
	Connected       bool   `json:"connected"`
}

func (h *StripeConnectHandlers) begin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.connect == nil {
		httpx.WriteError(ctx, w, httpx.NewError("stripe_connect_unavailable", "stripe connect is not configured", http.StatusServiceUnavailable))
		return
	}

	url, err := h.connect.BeginOnboarding(ctx, TenantScope(r))
	if err != nil {
		writeConnectError(ctx, w, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (h *StripeConnectHandlers) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.connect == nil {
		httpx.WriteError(ctx, w, httpx.NewError("stripe_connect_unavailable", "stripe connect is not configured", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	if denied := strings.TrimSpace(query.Get("error")); denied != "" {
		httpx.WriteError(ctx, w, httpx.NewError("stripe_connect_denied", strings.TrimSpace(query.Get("error_description")), http.StatusBadRequest).
			WithDetails(map[string]any{"reason": denied}))
		return
	}
	state := strings.TrimSpace(query.Get("state"))
	code := strings.TrimSpace(query.Get("code"))
	if state == "" || code == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "state and code are required", http.StatusBadRequest))
		return
	}

	tenant, err := h.connect.CompleteOnboarding(ctx, state, code)
	if err != nil {
		writeConnectError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, connectCallbackResponse{
		TenantID:        tenant.ID,
		StripeAccountID: tenant.StripeAccountID,
		Connected:       tenant.StripeAccountID != "",
	})
}

func writeConnectError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrTenantNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("tenant_not_found", "tenant not found", http.StatusNotFound))
	case errors.Is(err, services.ErrConnectInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_state", "authorization is invalid or expired", http.StatusBadRequest))
	case errors.Is(err, services.ErrConnectUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("stripe_connect_unavailable", "stripe connect unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("stripe_connect_error", "failed to link stripe account", http.StatusInternalServerError))
	}
}
