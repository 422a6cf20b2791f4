package repositories

import (
	"context"
	"sort"

	domain "github.com/vitrine-field/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Tenants() TenantRepository
	Products() ProductRepository
	Promotions() PromotionRepository
	ShippingMethods() ShippingMethodRepository
	Orders() OrderRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// TenantRepository loads stores and records their connected payment account.
type TenantRepository interface {
	FindByID(ctx context.Context, tenantID string) (domain.Tenant, error)
	List(ctx context.Context) ([]domain.Tenant, error)
	UpdateStripeAccount(ctx context.Context, tenantID string, accountID string) error
}

// ProductRepository reads tenant catalog entries.
type ProductRepository interface {
	FindByID(ctx context.Context, tenantID string, productID string) (domain.Product, error)
	// FindByIDs returns the products that exist, in the order of productIDs. Missing ids are skipped.
	FindByIDs(ctx context.Context, tenantID string, productIDs []string) ([]domain.Product, error)
}

// PromotionRepository returns promotions pre-scoped to a hierarchy level. Implementations return
// promotions ordered by creation time, then id, so priority ties resolve deterministically.
type PromotionRepository interface {
	ListForProduct(ctx context.Context, tenantID string, productID string) ([]domain.Promotion, error)
	ListForCategory(ctx context.Context, tenantID string, categoryID string) ([]domain.Promotion, error)
	ListGlobal(ctx context.Context, tenantID string) ([]domain.Promotion, error)
	ListAll(ctx context.Context, tenantID string) ([]domain.Promotion, error)
	// TransitionStatus moves the promotion from one status to another and reports whether it did.
	// It returns false without error when the stored status no longer equals from.
	TransitionStatus(ctx context.Context, tenantID string, promotionID string, from, to domain.PromotionStatus) (bool, error)
}

// ShippingMethodRepository lists a tenant's configured shipping methods in display order.
type ShippingMethodRepository interface {
	List(ctx context.Context, tenantID string) ([]domain.ShippingMethod, error)
}

// OrderRepository persists placed orders.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, tenantID string, orderID string) (domain.Order, error)
	UpdatePayment(ctx context.Context, tenantID string, orderID string, update OrderPaymentUpdate) error
}

// OrderPaymentUpdate carries the payment fields that change after an order is created.
type OrderPaymentUpdate struct {
	Status           domain.OrderStatus
	PaymentSessionID string
	PaymentIntentID  string
}

// HealthRepository aggregates dependency probes for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// SortPromotionsByCreation orders promotions by creation time, then id, in place.
func SortPromotionsByCreation(promos []domain.Promotion) {
	sort.SliceStable(promos, func(i, j int) bool {
		if !promos[i].CreatedAt.Equal(promos[j].CreatedAt) {
			return promos[i].CreatedAt.Before(promos[j].CreatedAt)
		}
		return promos[i].ID < promos[j].ID
	})
}
