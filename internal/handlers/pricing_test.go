package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/vitrine-field/api/internal/domain"
	"github.com/vitrine-field/api/internal/services"
)

func newPricingRouter(svc services.PricingService) http.Handler {
	return NewRouter(WithTenantRoutes(NewPricingHandlers(svc).Routes))
}

func TestPricingHandlers_GetProductPrice(t *testing.T) {
	pricedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := &stubPricingService{
		price: services.ProductPrice{
			ProductID:     "prod-1",
			ProductName:   "Caneca",
			OriginalPrice: decimal.RequireFromString("100"),
			FinalPrice:    decimal.RequireFromString("89.9"),
			Promotion: &domain.PromotionWithPriority{
				ID:               "promo-1",
				Name:             "Semana do cliente",
				DiscountType:     domain.DiscountTypeFixedAmount,
				DiscountValue:    decimal.RequireFromString("10.1"),
				PromotionalPrice: decimal.RequireFromString("89.9"),
				PromotionType:    domain.PromotionTypeProduct,
				Priority:         3,
			},
			PercentageLabel: "10% OFF",
			ComparisonLabel: "De R$ 100,00 por R$ 89,90",
			PricedAt:        pricedAt,
		},
	}

	rr := httptest.NewRecorder()
	newPricingRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/tenants/tenant-1/products/prod-1/price", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if svc.tenantID != "tenant-1" || len(svc.productIDs) != 1 || svc.productIDs[0] != "prod-1" {
		t.Fatalf("unexpected service call tenant=%q products=%v", svc.tenantID, svc.productIDs)
	}

	var body productPricePayload
	decodeBody(t, rr.Body.Bytes(), &body)
	if body.OriginalPrice != "100.00" || body.FinalPrice != "89.90" {
		t.Fatalf("unexpected prices %s -> %s", body.OriginalPrice, body.FinalPrice)
	}
	if !body.HasDiscount {
		t.Fatal("expected has_discount to be true")
	}
	if body.Promotion == nil || body.Promotion.ID != "promo-1" || body.Promotion.Type != "product" {
		t.Fatalf("unexpected promotion %+v", body.Promotion)
	}
	if body.Promotion.DiscountValue != "10.1" {
		t.Fatalf("expected discount value 10.1, got %s", body.Promotion.DiscountValue)
	}
	if body.PercentageLabel != "10% OFF" {
		t.Fatalf("unexpected percentage label %q", body.PercentageLabel)
	}
	if body.PricedAt != "2025-03-01T12:00:00Z" {
		t.Fatalf("unexpected priced_at %s", body.PricedAt)
	}
}

func TestPricingHandlers_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: prod-9", services.ErrProductNotFound), http.StatusNotFound, "product_not_found"},
		{services.ErrPricingInvalidInput, http.StatusBadRequest, "invalid_request"},
		{fmt.Errorf("%w: firestore down", services.ErrPricingUnavailable), http.StatusServiceUnavailable, "pricing_unavailable"},
		{errors.New("unexpected"), http.StatusInternalServerError, "pricing_error"},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		newPricingRouter(&stubPricingService{err: tc.err}).
			ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/tenants/tenant-1/products/prod-9/price", nil))
		if rr.Code != tc.status {
			t.Fatalf("%v: expected status %d, got %d", tc.err, tc.status, rr.Code)
		}
		assertErrorCode(t, rr.Body.Bytes(), tc.code)
	}
}

func TestPricingHandlers_ListProductPrices(t *testing.T) {
	svc := &stubPricingService{
		prices: []services.ProductPrice{
			{ProductID: "a", OriginalPrice: decimal.NewFromInt(50), FinalPrice: decimal.NewFromInt(50)},
			{ProductID: "b", OriginalPrice: decimal.NewFromInt(80), FinalPrice: decimal.NewFromInt(60)},
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants/tenant-1/products:prices", bytes.NewBufferString(`{"product_ids":["a","b"]}`))
	rr := httptest.NewRecorder()
	newPricingRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body productPricesResponse
	decodeBody(t, rr.Body.Bytes(), &body)
	if len(body.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(body.Items))
	}
	if body.Items[0].HasDiscount || !body.Items[1].HasDiscount {
		t.Fatalf("unexpected discount flags %+v", body.Items)
	}
	if body.Items[1].FinalPrice != "60.00" {
		t.Fatalf("expected final price 60.00, got %s", body.Items[1].FinalPrice)
	}
}

func TestPricingHandlers_ListProductPricesValidation(t *testing.T) {
	cases := map[string]string{
		"empty body":  "",
		"invalid":     "{",
		"no products": `{"product_ids":[]}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &stubPricingService{}
			req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants/tenant-1/products:prices", bytes.NewBufferString(payload))
			rr := httptest.NewRecorder()
			newPricingRouter(svc).ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rr.Code)
			}
			if svc.tenantID != "" {
				t.Fatal("service should not be called for invalid input")
			}
		})
	}
}
