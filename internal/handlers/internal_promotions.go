package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vitrine-field/api/internal/platform/httpx"
	"github.com/vitrine-field/api/internal/services"
)

// InternalPromotionHandlers lets schedulers trigger a promotion status sweep.
type InternalPromotionHandlers struct {
	sweeper services.PromotionStatusSweeper
}

// NewInternalPromotionHandlers constructs the internal promotion handlers.
func NewInternalPromotionHandlers(sweeper services.PromotionStatusSweeper) *InternalPromotionHandlers {
	return &InternalPromotionHandlers{sweeper: sweeper}
}

// Routes registers internal promotion endpoints.
func (h *InternalPromotionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/promotions:sweep", h.sweep)
}

type promotionTransitionPayload struct {
	TenantID    string `json:"tenant_id"`
	PromotionID string `json:"promotion_id"`
	From        string `json:"from"`
	To          string `json:"to"`
	ChangedAt   string `json:"changed_at"`
}

type sweepResponse struct {
	Tenants     int                          `json:"tenants"`
	Examined    int                          `json:"examined"`
	Transitions []promotionTransitionPayload `json:"transitions"`
	Error       string                       `json:"error,omitempty"`
}

func (h *InternalPromotionHandlers) sweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sweeper == nil {
		httpx.WriteError(ctx, w, httpx.NewError("sweeper_unavailable", "promotion sweeper unavailable", http.StatusServiceUnavailable))
		return
	}

	result, err := h.sweeper.Sweep(ctx)
	resp := sweepResponse{
		Tenants:     result.Tenants,
		Examined:    result.Examined,
		Transitions: make([]promotionTransitionPayload, 0, len(result.Transitions)),
	}
	for _, t := range result.Transitions {
		resp.Transitions = append(resp.Transitions, promotionTransitionPayload{
			TenantID:    t.TenantID,
			PromotionID: t.PromotionID,
			From:        string(t.From),
			To:          string(t.To),
			ChangedAt:   formatTime(t.ChangedAt),
		})
	}

	status := http.StatusOK
	if err != nil {
		// Partial progress is still reported; the scheduler retries on 5xx.
		resp.Error = err.Error()
		status = http.StatusInternalServerError
	}
	writeJSONResponse(w, status, resp)
}
