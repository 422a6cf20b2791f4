package handlers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	domain "github.com/vitrine-field/api/internal/domain"
	"github.com/vitrine-field/api/internal/services"
)

type stubSystemService struct {
	report domain.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (domain.SystemHealthReport, error) {
	return s.report, s.err
}

type stubPricingService struct {
	price      services.ProductPrice
	prices     []services.ProductPrice
	err        error
	tenantID   string
	productIDs []string
}

func (s *stubPricingService) ResolveProductPrice(_ context.Context, tenantID, productID string) (services.ProductPrice, error) {
	s.tenantID = tenantID
	s.productIDs = []string{productID}
	return s.price, s.err
}

func (s *stubPricingService) ResolveProductPrices(_ context.Context, tenantID string, productIDs []string) ([]services.ProductPrice, error) {
	s.tenantID = tenantID
	s.productIDs = productIDs
	return s.prices, s.err
}

func (s *stubPricingService) PriceProducts(context.Context, string, []domain.Product, time.Time) ([]services.ProductPrice, error) {
	return s.prices, s.err
}

type stubShippingService struct {
	calcs []domain.ShippingCalculation
	err   error
	cmd   services.CalculateShippingCommand
}

func (s *stubShippingService) CalculateShipping(_ context.Context, cmd services.CalculateShippingCommand) ([]domain.ShippingCalculation, error) {
	s.cmd = cmd
	return s.calcs, s.err
}

func (s *stubShippingService) CalculateForLines(context.Context, string, []domain.CartLine, string) ([]domain.ShippingCalculation, error) {
	return s.calcs, s.err
}

type stubCheckoutService struct {
	placed     services.PlacedOrder
	confirmed  domain.Order
	err        error
	placeCalls int
	placeCmd   services.PlaceOrderCommand
	confirmCmd services.ConfirmOrderCommand
}

func (s *stubCheckoutService) PlaceOrder(_ context.Context, cmd services.PlaceOrderCommand) (services.PlacedOrder, error) {
	s.placeCalls++
	s.placeCmd = cmd
	return s.placed, s.err
}

func (s *stubCheckoutService) ConfirmOrder(_ context.Context, cmd services.ConfirmOrderCommand) (domain.Order, error) {
	s.confirmCmd = cmd
	return s.confirmed, s.err
}

type stubPostalCodeService struct {
	address domain.PostalAddress
	err     error
}

func (s *stubPostalCodeService) Lookup(context.Context, string) (domain.PostalAddress, error) {
	return s.address, s.err
}

type stubConnectService struct {
	url      string
	tenant   domain.Tenant
	err      error
	tenantID string
	state    string
	code     string
}

func (s *stubConnectService) BeginOnboarding(_ context.Context, tenantID string) (string, error) {
	s.tenantID = tenantID
	return s.url, s.err
}

func (s *stubConnectService) CompleteOnboarding(_ context.Context, state, code string) (domain.Tenant, error) {
	s.state = state
	s.code = code
	return s.tenant, s.err
}

type stubSweeper struct {
	result services.SweepResult
	err    error
	calls  int
}

func (s *stubSweeper) Sweep(context.Context) (services.SweepResult, error) {
	s.calls++
	return s.result, s.err
}

var (
	_ services.SystemService          = (*stubSystemService)(nil)
	_ services.PricingService         = (*stubPricingService)(nil)
	_ services.ShippingService        = (*stubShippingService)(nil)
	_ services.CheckoutService        = (*stubCheckoutService)(nil)
	_ services.PostalCodeService      = (*stubPostalCodeService)(nil)
	_ services.StripeConnectService   = (*stubConnectService)(nil)
	_ services.PromotionStatusSweeper = (*stubSweeper)(nil)
)

func decodeBody(t *testing.T, data []byte, dst any) {
	t.Helper()
	if err := json.Unmarshal(data, dst); err != nil {
		t.Fatalf("failed to decode response %s: %v", string(data), err)
	}
}

func assertErrorCode(t *testing.T, data []byte, code string) {
	t.Helper()
	var payload map[string]any
	decodeBody(t, data, &payload)
	if payload["error"] != code {
		t.Fatalf("expected error code %s, got %v", code, payload["error"])
	}
}
