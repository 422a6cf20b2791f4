package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/vitrine-field/api/internal/domain"
	"github.com/vitrine-field/api/internal/payments"
	"github.com/vitrine-field/api/internal/repositories"
)

// ConnectStateCodec binds an OAuth round trip to a tenant.
type ConnectStateCodec interface {
	Issue(tenantID string) (string, error)
	Verify(state string) (string, error)
}

// StripeConnectServiceDeps wires the dependencies required by the Connect onboarding service.
type StripeConnectServiceDeps struct {
	Tenants repositories.TenantRepository
	Connect payments.ConnectProvider
	States  ConnectStateCodec
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type stripeConnectService struct {
	tenants repositories.TenantRepository
	connect payments.ConnectProvider
	states  ConnectStateCodec
	logger  func(ctx context.Context, event string, fields map[string]any)
}

// NewStripeConnectService constructs a StripeConnectService validating required dependencies.
func NewStripeConnectService(deps StripeConnectServiceDeps) (StripeConnectService, error) {
	if deps.Tenants == nil {
		return nil, errors.New("stripe connect service: tenant repository is required")
	}
	if deps.Connect == nil {
		return nil, errors.New("stripe connect service: connect provider is required")
	}
	if deps.States == nil {
		return nil, errors.New("stripe connect service: state codec is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &stripeConnectService{
		tenants: deps.Tenants,
		connect: deps.Connect,
		states:  deps.States,
		logger:  logger,
	}, nil
}

// BeginOnboarding returns the URL the merchant is redirected to in order to link a Stripe account.
func (s *stripeConnectService) BeginOnboarding(ctx context.Context, tenantID string) (string, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return "", ErrTenantNotFound
	}
	if _, err := s.tenants.FindByID(ctx, tenantID); err != nil {
		if isRepoNotFound(err) {
			return "", ErrTenantNotFound
		}
		return "", fmt.Errorf("%w: load tenant: %v", ErrConnectUnavailable, err)
	}

	state, err := s.states.Issue(tenantID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConnectUnavailable, err)
	}
	url, err := s.connect.AuthorizeURL(state)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConnectUnavailable, err)
	}
	s.logger(ctx, "stripe_connect.onboarding_started", map[string]any{"tenantId": tenantID})
	return url, nil
}

// CompleteOnboarding verifies state, exchanges the code and stores the account on the tenant.
func (s *stripeConnectService) CompleteOnboarding(ctx context.Context, state string, code string) (domain.Tenant, error) {
	tenantID, err := s.states.Verify(state)
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("%w: %v", ErrConnectInvalidState, err)
	}

	account, err := s.connect.ExchangeCode(ctx, code)
	if err != nil {
		if errors.Is(err, payments.ErrInvalidAuthorizationCode) {
			return domain.Tenant{}, fmt.Errorf("%w: %v", ErrConnectInvalidState, err)
		}
		return domain.Tenant{}, fmt.Errorf("%w: %v", ErrConnectUnavailable, err)
	}

	if err := s.tenants.UpdateStripeAccount(ctx, tenantID, account.AccountID); err != nil {
		if isRepoNotFound(err) {
			return domain.Tenant{}, ErrTenantNotFound
		}
		return domain.Tenant{}, fmt.Errorf("%w: store account: %v", ErrConnectUnavailable, err)
	}

	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("%w: reload tenant: %v", ErrConnectUnavailable, err)
	}
	s.logger(ctx, "stripe_connect.account_linked", map[string]any{
		"tenantId": tenantID,
		"account":  account.AccountID,
		"livemode": account.Livemode,
	})
	return tenant, nil
}
