package services

import (
	"context"
	"errors"
	"sync"

	domain "github.com/vitrine-field/api/internal/domain"
	"github.com/vitrine-field/api/internal/payments"
	"github.com/vitrine-field/api/internal/repositories"
	"github.com/vitrine-field/api/internal/shipping"
)

type repoError struct {
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *repoError) Error() string       { return e.err.Error() }
func (e *repoError) IsNotFound() bool    { return e.notFound }
func (e *repoError) IsConflict() bool    { return e.conflict }
func (e *repoError) IsUnavailable() bool { return e.unavailable }

func notFoundErr() error {
	return &repoError{err: errors.New("not found"), notFound: true}
}

type fakeProductRepository struct {
	products map[string]domain.Product
	err      error
}

func (f *fakeProductRepository) FindByID(_ context.Context, _ string, productID string) (domain.Product, error) {
	if f.err != nil {
		return domain.Product{}, f.err
	}
	product, ok := f.products[productID]
	if !ok {
		return domain.Product{}, notFoundErr()
	}
	return product, nil
}

func (f *fakeProductRepository) FindByIDs(_ context.Context, _ string, productIDs []string) ([]domain.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Product
	for _, id := range productIDs {
		if product, ok := f.products[id]; ok {
			out = append(out, product)
		}
	}
	return out, nil
}

type fakePromotionRepository struct {
	mu          sync.Mutex
	byProduct   map[string][]domain.Promotion
	byCategory  map[string][]domain.Promotion
	global      []domain.Promotion
	all         map[string][]domain.Promotion
	err         error
	globalCalls int
	categoryIDs []string
	transitions []PromotionTransition
	staleIDs    map[string]bool
}

func (f *fakePromotionRepository) ListForProduct(_ context.Context, _ string, productID string) ([]domain.Promotion, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byProduct[productID], nil
}

func (f *fakePromotionRepository) ListForCategory(_ context.Context, _ string, categoryID string) ([]domain.Promotion, error) {
	f.mu.Lock()
	f.categoryIDs = append(f.categoryIDs, categoryID)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.byCategory[categoryID], nil
}

func (f *fakePromotionRepository) ListGlobal(context.Context, string) ([]domain.Promotion, error) {
	f.mu.Lock()
	f.globalCalls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.global, nil
}

func (f *fakePromotionRepository) ListAll(_ context.Context, tenantID string) ([]domain.Promotion, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.all[tenantID], nil
}

func (f *fakePromotionRepository) TransitionStatus(_ context.Context, tenantID string, promotionID string, from, to domain.PromotionStatus) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.staleIDs[promotionID] {
		return false, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, PromotionTransition{TenantID: tenantID, PromotionID: promotionID, From: from, To: to})
	return true, nil
}

type fakeShippingMethodRepository struct {
	methods []domain.ShippingMethod
	err     error
}

func (f *fakeShippingMethodRepository) List(context.Context, string) ([]domain.ShippingMethod, error) {
	return f.methods, f.err
}

type fakeTenantRepository struct {
	tenants       map[string]domain.Tenant
	err           error
	updateErr     error
	linkedTenant  string
	linkedAccount string
}

func (f *fakeTenantRepository) FindByID(_ context.Context, tenantID string) (domain.Tenant, error) {
	if f.err != nil {
		return domain.Tenant{}, f.err
	}
	tenant, ok := f.tenants[tenantID]
	if !ok {
		return domain.Tenant{}, notFoundErr()
	}
	return tenant, nil
}

func (f *fakeTenantRepository) List(context.Context) ([]domain.Tenant, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Tenant, 0, len(f.tenants))
	for _, tenant := range f.tenants {
		out = append(out, tenant)
	}
	return out, nil
}

func (f *fakeTenantRepository) UpdateStripeAccount(_ context.Context, tenantID string, accountID string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.linkedTenant = tenantID
	f.linkedAccount = accountID
	if tenant, ok := f.tenants[tenantID]; ok {
		tenant.StripeAccountID = accountID
		f.tenants[tenantID] = tenant
	}
	return nil
}

type fakeOrderRepository struct {
	orders    map[string]domain.Order
	insertErr error
	updates   []repositories.OrderPaymentUpdate
}

func (f *fakeOrderRepository) Insert(_ context.Context, order domain.Order) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	if f.orders == nil {
		f.orders = map[string]domain.Order{}
	}
	f.orders[order.ID] = order
	return nil
}

func (f *fakeOrderRepository) FindByID(_ context.Context, _ string, orderID string) (domain.Order, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return domain.Order{}, notFoundErr()
	}
	return order, nil
}

func (f *fakeOrderRepository) UpdatePayment(_ context.Context, _ string, orderID string, update repositories.OrderPaymentUpdate) error {
	order, ok := f.orders[orderID]
	if !ok {
		return notFoundErr()
	}
	f.updates = append(f.updates, update)
	if update.Status != "" {
		order.Status = update.Status
	}
	if update.PaymentSessionID != "" {
		order.PaymentSessionID = update.PaymentSessionID
	}
	if update.PaymentIntentID != "" {
		order.PaymentIntentID = update.PaymentIntentID
	}
	f.orders[orderID] = order
	return nil
}

type fakePaymentProvider struct {
	lastCreate payments.CheckoutSessionRequest
	lastLookup payments.LookupRequest
	session    payments.CheckoutSession
	details    payments.PaymentDetails
	err        error
}

func (f *fakePaymentProvider) CreateCheckoutSession(_ context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	f.lastCreate = req
	return f.session, f.err
}

func (f *fakePaymentProvider) LookupSession(_ context.Context, req payments.LookupRequest) (payments.PaymentDetails, error) {
	f.lastLookup = req
	return f.details, f.err
}

type fakeCarrier struct {
	mu       sync.Mutex
	quotes   map[string]shipping.RateResponse
	err      error
	requests []shipping.RateRequest
}

func (f *fakeCarrier) Quote(_ context.Context, method domain.ShippingMethod, req shipping.RateRequest) (shipping.RateResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.err != nil {
		return shipping.RateResponse{}, f.err
	}
	return f.quotes[method.ID], nil
}

var (
	_ repositories.ProductRepository        = (*fakeProductRepository)(nil)
	_ repositories.PromotionRepository      = (*fakePromotionRepository)(nil)
	_ repositories.ShippingMethodRepository = (*fakeShippingMethodRepository)(nil)
	_ repositories.TenantRepository         = (*fakeTenantRepository)(nil)
	_ repositories.OrderRepository          = (*fakeOrderRepository)(nil)
	_ payments.Provider                     = (*fakePaymentProvider)(nil)
	_ shipping.CarrierClient                = (*fakeCarrier)(nil)
)
