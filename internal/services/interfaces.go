package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/vitrine-field/api/internal/domain"
	"github.com/vitrine-field/api/internal/payments"
)

// PricingService resolves the effective storefront price of products.
type PricingService interface {
	ResolveProductPrice(ctx context.Context, tenantID string, productID string) (ProductPrice, error)
	ResolveProductPrices(ctx context.Context, tenantID string, productIDs []string) ([]ProductPrice, error)
	// PriceProducts prices already loaded products against a fixed instant.
	PriceProducts(ctx context.Context, tenantID string, products []domain.Product, now time.Time) ([]ProductPrice, error)
}

// ShippingService quotes the tenant's shipping methods for a cart.
type ShippingService interface {
	CalculateShipping(ctx context.Context, cmd CalculateShippingCommand) ([]domain.ShippingCalculation, error)
	CalculateForLines(ctx context.Context, tenantID string, lines []domain.CartLine, postalCode string) ([]domain.ShippingCalculation, error)
}

// CheckoutService prices a cart server-side, persists the order and opens a payment session.
type CheckoutService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlacedOrder, error)
	ConfirmOrder(ctx context.Context, cmd ConfirmOrderCommand) (domain.Order, error)
}

// PostalCodeService resolves Brazilian CEPs into addresses.
type PostalCodeService interface {
	Lookup(ctx context.Context, postalCode string) (domain.PostalAddress, error)
}

// StripeConnectService links a tenant to its Stripe account.
type StripeConnectService interface {
	BeginOnboarding(ctx context.Context, tenantID string) (string, error)
	CompleteOnboarding(ctx context.Context, state string, code string) (domain.Tenant, error)
}

// PromotionStatusSweeper keeps stored promotion statuses in line with their windows.
type PromotionStatusSweeper interface {
	Sweep(ctx context.Context) (SweepResult, error)
}

// Command and DTO definitions ------------------------------------------------

// ProductPrice is the resolved price of one product together with its display labels.
type ProductPrice struct {
	ProductID       string
	ProductName     string
	OriginalPrice   decimal.Decimal
	FinalPrice      decimal.Decimal
	Promotion       *domain.PromotionWithPriority
	PercentageLabel string
	ComparisonLabel string
	PricedAt        time.Time
}

// CartItemInput identifies a product and quantity in a storefront request.
type CartItemInput struct {
	ProductID string
	Quantity  int
}

type CalculateShippingCommand struct {
	TenantID   string
	Items      []CartItemInput
	PostalCode string
}

type PlaceOrderCommand struct {
	TenantID         string
	Items            []CartItemInput
	PostalCode       string
	ShippingMethodID string
	CustomerEmail    string
	SuccessURL       string
	CancelURL        string
	Locale           string
}

// PlacedOrder is the persisted order and the payment session the customer is redirected to.
type PlacedOrder struct {
	Order   domain.Order
	Session payments.CheckoutSession
}

type ConfirmOrderCommand struct {
	TenantID string
	OrderID  string
}

// SweepResult summarises a promotion status sweep.
type SweepResult struct {
	Tenants     int
	Examined    int
	Transitions []PromotionTransition
}

// PromotionTransition records a status change applied by the sweeper.
type PromotionTransition struct {
	TenantID    string
	PromotionID string
	From        domain.PromotionStatus
	To          domain.PromotionStatus
	ChangedAt   time.Time
}
