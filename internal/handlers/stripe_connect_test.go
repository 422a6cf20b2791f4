package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	domain "github.com/vitrine-field/api/internal/domain"
	"github.com/vitrine-field/api/internal/services"
)

func newConnectRouter(svc services.StripeConnectService) http.Handler {
	handlers := NewStripeConnectHandlers(svc)
	return NewRouter(
		WithTenantRoutes(handlers.TenantRoutes),
		WithStripeRoutes(handlers.CallbackRoutes),
	)
}

func TestStripeConnectHandlers_BeginRedirects(t *testing.T) {
	svc := &stubConnectService{url: "https://connect.stripe.com/oauth/authorize?state=abc"}

	rr := httptest.NewRecorder()
	newConnectRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/tenants/tenant-1/stripe/connect", nil))

	if rr.Code != http.StatusFound {
		t.Fatalf("expected status 302, got %d", rr.Code)
	}
	if rr.Header().Get("Location") != svc.url {
		t.Fatalf("unexpected location %s", rr.Header().Get("Location"))
	}
	if svc.tenantID != "tenant-1" {
		t.Fatalf("expected tenant-1, got %s", svc.tenantID)
	}
}

func TestStripeConnectHandlers_BeginUnknownTenant(t *testing.T) {
	svc := &stubConnectService{err: services.ErrTenantNotFound}

	rr := httptest.NewRecorder()
	newConnectRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/tenants/ghost/stripe/connect", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestStripeConnectHandlers_Callback(t *testing.T) {
	svc := &stubConnectService{tenant: domain.Tenant{ID: "tenant-1", StripeAccountID: "acct_123"}}

	rr := httptest.NewRecorder()
	newConnectRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/stripe/callback?state=signed&code=ac_1", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if svc.state != "signed" || svc.code != "ac_1" {
		t.Fatalf("unexpected state/code %q %q", svc.state, svc.code)
	}
	var body connectCallbackResponse
	decodeBody(t, rr.Body.Bytes(), &body)
	if !body.Connected || body.StripeAccountID != "acct_123" {
		t.Fatalf("unexpected callback response %+v", body)
	}
}

func TestStripeConnectHandlers_CallbackFailures(t *testing.T) {
	cases := []struct {
		name   string
		query  string
		err    error
		status int
		code   string
	}{
		{"denied", "?error=access_denied&error_description=user+denied", nil, http.StatusBadRequest, "stripe_connect_denied"},
		{"missing code", "?state=signed", nil, http.StatusBadRequest, "invalid_request"},
		{"forged state", "?state=forged&code=ac_1", fmt.Errorf("%w: signature", services.ErrConnectInvalidState), http.StatusBadRequest, "invalid_state"},
		{"stripe down", "?state=signed&code=ac_1", fmt.Errorf("%w: timeout", services.ErrConnectUnavailable), http.StatusServiceUnavailable, "stripe_connect_unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			newConnectRouter(&stubConnectService{err: tc.err}).
				ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/stripe/callback"+tc.query, nil))
			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
			assertErrorCode(t, rr.Body.Bytes(), tc.code)
		})
	}
}
