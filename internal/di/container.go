package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/vitrine-field/api/internal/payments"
	"github.com/vitrine-field/api/internal/platform/config"
	"github.com/vitrine-field/api/internal/pricing"
	"github.com/vitrine-field/api/internal/repositories"
	"github.com/vitrine-field/api/internal/services"
	"github.com/vitrine-field/api/internal/shipping"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Pricing       services.PricingService
	Shipping      services.ShippingService
	Checkout      services.CheckoutService
	PostalCodes   services.PostalCodeService
	StripeConnect services.StripeConnectService
	Sweeper       services.PromotionStatusSweeper
	System        services.SystemService
}

// Infrastructure carries the external clients built by the process entry point. Optional
// collaborators left nil disable the services that need them.
type Infrastructure struct {
	Carrier          shipping.CarrierClient
	QuoteCache       shipping.QuoteCache
	Payments         payments.Provider
	Connect          payments.ConnectProvider
	ConnectStates    services.ConnectStateCodec
	Publisher        services.PromotionEventPublisher
	PostalHTTPClient *http.Client
	Build            services.BuildInfo
	Clock            func() time.Time
	IDGen            func() string
	Logger           func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring will provide real
// implementations, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, withInfraDefaults(infra))
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func withInfraDefaults(infra Infrastructure) Infrastructure {
	if infra.Clock == nil {
		infra.Clock = time.Now
	}
	if infra.IDGen == nil {
		infra.IDGen = func() string { return ulid.Make().String() }
	}
	if infra.Logger == nil {
		infra.Logger = func(context.Context, string, map[string]any) {}
	}
	return infra
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, infra Infrastructure) (Services, error) {
	var svc Services

	resolver := pricing.NewResolver(
		pricing.WithResolverClock(infra.Clock),
		pricing.WithResolverLogger(infra.Logger),
	)
	formatter := pricing.NewCurrencyFormatter(cfg.Pricing.Locale, cfg.Pricing.CurrencySymbol)

	pricingSvc, err := services.NewPricingService(services.PricingServiceDeps{
		Products:   reg.Products(),
		Promotions: reg.Promotions(),
		Resolver:   resolver,
		Formatter:  formatter,
		Clock:      infra.Clock,
		Logger:     infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing service: %w", err)
	}
	svc.Pricing = pricingSvc

	carrier := infra.Carrier
	if carrier == nil {
		carrier = shipping.NewHTTPCarrierClient()
	}
	cache := infra.QuoteCache
	if cache == nil && cfg.Shipping.QuoteCacheTTL > 0 {
		cache = shipping.NewMemoryQuoteCache(cfg.Shipping.QuoteCacheTTL, infra.Clock)
	}
	evaluator, err := shipping.NewEvaluator(shipping.EvaluatorDeps{
		Carrier:        carrier,
		Cache:          cache,
		Timeout:        cfg.Shipping.CarrierTimeout,
		MaxConcurrency: cfg.Shipping.MaxConcurrency,
		Logger:         infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build shipping evaluator: %w", err)
	}
	shippingSvc, err := services.NewShippingService(services.ShippingServiceDeps{
		Products:  reg.Products(),
		Methods:   reg.ShippingMethods(),
		Evaluator: evaluator,
		Logger:    infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build shipping service: %w", err)
	}
	svc.Shipping = shippingSvc

	postalSvc, err := services.NewPostalCodeService(services.PostalCodeServiceDeps{
		BaseURL:     cfg.PostalCode.BaseURL,
		HTTPClient:  infra.PostalHTTPClient,
		Attempts:    cfg.PostalCode.Attempts,
		BackoffStep: cfg.PostalCode.BackoffStep,
		Timeout:     cfg.PostalCode.Timeout,
		Logger:      infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build postal code service: %w", err)
	}
	svc.PostalCodes = postalSvc

	if infra.Payments != nil {
		checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
			Tenants:  reg.Tenants(),
			Products: reg.Products(),
			Orders:   reg.Orders(),
			Pricing:  pricingSvc,
			Shipping: shippingSvc,
			Payments: infra.Payments,
			Currency: cfg.Pricing.Currency,
			Clock:    infra.Clock,
			IDGen:    infra.IDGen,
			Logger:   infra.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build checkout service: %w", err)
		}
		svc.Checkout = checkoutSvc
	}

	if infra.Connect != nil && infra.ConnectStates != nil {
		connectSvc, err := services.NewStripeConnectService(services.StripeConnectServiceDeps{
			Tenants: reg.Tenants(),
			Connect: infra.Connect,
			States:  infra.ConnectStates,
			Logger:  infra.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build stripe connect service: %w", err)
		}
		svc.StripeConnect = connectSvc
	}

	sweeper, err := services.NewPromotionStatusSweeper(services.PromotionStatusSweeperDeps{
		Tenants:    reg.Tenants(),
		Promotions: reg.Promotions(),
		Publisher:  infra.Publisher,
		Clock:      infra.Clock,
		IDGen:      infra.IDGen,
		Logger:     infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build promotion sweeper: %w", err)
	}
	svc.Sweeper = sweeper

	if healthRepo := reg.Health(); healthRepo != nil {
		build := infra.Build
		if build.Environment == "" {
			build.Environment = cfg.Security.Environment
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            infra.Clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
