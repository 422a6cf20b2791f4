package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/vitrine-field/api/internal/platform/httpx"
	"github.com/vitrine-field/api/internal/platform/requestctx"
)

const (
	maxStorefrontBodySize = 64 * 1024
	tenantIDParam         = "tenantId"
	maxTenantIDLength     = 128
)

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")
)

// TenantContext validates the tenant path parameter and stores it on the request context so
// logs and traces carry the tenant.
func TenantContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := strings.TrimSpace(chi.URLParam(r, tenantIDParam))
		if tenantID == "" || len(tenantID) > maxTenantIDLength || strings.ContainsAny(tenantID, "/ ") {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_tenant", "tenant id is invalid", http.StatusBadRequest))
			return
		}
		ctx := requestctx.WithTenant(r.Context(), tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TenantScope namespaces idempotency keys by tenant.
func TenantScope(r *http.Request) string {
	if tenantID := requestctx.TenantID(r.Context()); tenantID != "" {
		return tenantID
	}
	return strings.TrimSpace(chi.URLParam(r, tenantIDParam))
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxStorefrontBodySize
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeJSONBody reads and decodes the request body, writing the error response itself when it fails.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	body, err := readLimitedBody(r, limit)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), status))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatMoney(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

func formatOptionalMoney(amount *decimal.Decimal) *string {
	if amount == nil {
		return nil
	}
	value := formatMoney(*amount)
	return &value
}
