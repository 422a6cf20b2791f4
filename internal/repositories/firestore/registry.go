package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/vitrine-field/api/internal/platform/firestore"
	"github.com/vitrine-field/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind repositories.Registry.
type Registry struct {
	provider        *pfirestore.Provider
	tenants         *TenantRepository
	products        *ProductRepository
	promotions      *PromotionRepository
	shippingMethods *ShippingMethodRepository
	orders          *OrderRepository
	health          repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs every Firestore repository sharing the provider. health may be nil.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	tenants, err := NewTenantRepository(provider)
	if err != nil {
		return nil, err
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	promotions, err := NewPromotionRepository(provider)
	if err != nil {
		return nil, err
	}
	shippingMethods, err := NewShippingMethodRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider:        provider,
		tenants:         tenants,
		products:        products,
		promotions:      promotions,
		shippingMethods: shippingMethods,
		orders:          orders,
		health:          health,
	}, nil
}

func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}

func (r *Registry) Tenants() repositories.TenantRepository { return r.tenants }

func (r *Registry) Products() repositories.ProductRepository { return r.products }

func (r *Registry) Promotions() repositories.PromotionRepository { return r.promotions }

func (r *Registry) ShippingMethods() repositories.ShippingMethodRepository {
	return r.shippingMethods
}

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) Health() repositories.HealthRepository { return r.health }
