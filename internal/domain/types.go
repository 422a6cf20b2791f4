package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tenant is an independent store operating on the platform.
type Tenant struct {
	ID              string
	Name            string
	Currency        string
	StripeAccountID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Product is a tenant catalog entry. Dimension fields are nil when the merchant never filled them in.
type Product struct {
	ID             string
	TenantID       string
	Name           string
	CategoryID     string
	Price          decimal.Decimal
	CompareAtPrice *decimal.Decimal
	Weight         *float64
	Length         *float64
	Width          *float64
	Height         *float64
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PromotionType identifies the hierarchy level a promotion targets.
type PromotionType string

const (
	// PromotionTypeProduct targets specific products.
	PromotionTypeProduct PromotionType = "product"
	// PromotionTypeCategory targets every product of the listed categories.
	PromotionTypeCategory PromotionType = "category"
	// PromotionTypeGlobal targets the entire storefront.
	PromotionTypeGlobal PromotionType = "global"
)

// DiscountType selects how a promotion's discount value is interpreted.
type DiscountType string

const (
	// DiscountTypePercentage treats the value as a percent in [0, 100].
	DiscountTypePercentage DiscountType = "percentage"
	// DiscountTypeFixedAmount treats the value as a currency amount.
	DiscountTypeFixedAmount DiscountType = "fixed_amount"
)

// PromotionStatus is the lifecycle state derived from the promotion window.
type PromotionStatus string

const (
	PromotionStatusScheduled PromotionStatus = "scheduled"
	PromotionStatusActive    PromotionStatus = "active"
	PromotionStatusExpired   PromotionStatus = "expired"
)

// Promotion is a tenant-defined discount rule. A zero StartDate or EndDate means the window is
// missing and the promotion can never be active.
type Promotion struct {
	ID            string
	TenantID      string
	Name          string
	Description   string
	PromotionType PromotionType
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	StartDate     time.Time
	EndDate       time.Time
	IsActive      bool
	Priority      int
	Status        PromotionStatus
	ProductIDs    []string
	CategoryIDs   []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PromotionWithPriority is the resolved promotion attached to a product price.
type PromotionWithPriority struct {
	ID               string
	Name             string
	DiscountType     DiscountType
	DiscountValue    decimal.Decimal
	PromotionalPrice decimal.Decimal
	PromotionType    PromotionType
	Priority         int
	CompareAtPrice   *decimal.Decimal
}

// ShippingMethodType enumerates the supported shipping method kinds.
type ShippingMethodType string

const (
	// ShippingMethodExpress is a flat-rate method priced by the merchant.
	ShippingMethodExpress ShippingMethodType = "express"
	// ShippingMethodAPI is quoted by a carrier endpoint at checkout time.
	ShippingMethodAPI ShippingMethodType = "api"
)

// DeliveryLabelType selects how express methods describe the delivery promise.
type DeliveryLabelType string

const (
	DeliveryLabelDays       DeliveryLabelType = "days"
	DeliveryLabelGuaranteed DeliveryLabelType = "guaranteed"
)

// ShippingMethod is a tenant-configured way of delivering an order.
type ShippingMethod struct {
	ID                string
	TenantID          string
	Name              string
	Type              ShippingMethodType
	IsActive          bool
	Price             *decimal.Decimal
	DeliveryDays      *int
	DeliveryLabelType DeliveryLabelType
	APIURL            string
	APIHeaders        map[string]string
	SortOrder         int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ShippingCalculation is the per-method quote returned to the storefront. Error is set when the
// method could not be evaluated; Price is zero in that case.
type ShippingCalculation struct {
	MethodID      string
	MethodName    string
	MethodType    ShippingMethodType
	Price         decimal.Decimal
	DeliveryDays  *int
	DeliveryLabel string
	Error         string
}

// ProductDimensions carries the aggregate package envelope sent to carriers. Length, Width and
// Height are the edge of a cube whose volume equals Volume.
type ProductDimensions struct {
	Weight float64
	Length float64
	Width  float64
	Height float64
	Volume float64
}

// CartLine pairs a product with the quantity being purchased.
type CartLine struct {
	Product  Product
	Quantity int
}

// PostalAddress is the address resolved for a Brazilian CEP.
type PostalAddress struct {
	PostalCode   string
	Street       string
	Complement   string
	Neighborhood string
	City         string
	State        string
}

// OrderStatus tracks the payment lifecycle of a placed order.
type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusPaymentFailed  OrderStatus = "payment_failed"
)

// OrderLine freezes the price a product was sold at.
type OrderLine struct {
	ProductID      string
	ProductName    string
	Quantity       int
	UnitPrice      decimal.Decimal
	FinalUnitPrice decimal.Decimal
	PromotionID    string
	PromotionType  PromotionType
	LineTotal      decimal.Decimal
}

// Order is a checkout priced server-side and handed to the payment provider.
type Order struct {
	ID                 string
	TenantID           string
	Status             OrderStatus
	Currency           string
	Lines              []OrderLine
	PostalCode         string
	ShippingMethodID   string
	ShippingMethodName string
	ShippingPrice      decimal.Decimal
	DeliveryLabel      string
	Subtotal           decimal.Decimal
	Total              decimal.Decimal
	CustomerEmail      string
	PaymentSessionID   string
	PaymentIntentID    string
	PricedAt           time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
