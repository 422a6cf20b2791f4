package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vitrine-field/api/internal/platform/httpx"
)

const (
	apiPrefix         = "/api/v1"
	requestTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

// routeGroup is a mount point. A group without registrars is not mounted at all.
type routeGroup struct {
	middlewares []func(http.Handler) http.Handler
	registrars  []RouteRegistrar
}

func (g routeGroup) mount(r chi.Router, pattern string) {
	if len(g.registrars) == 0 {
		return
	}
	r.Route(pattern, func(sub chi.Router) {
		for _, mw := range g.middlewares {
			if mw != nil {
				sub.Use(mw)
			}
		}
		for _, register := range g.registrars {
			if register != nil {
				register(sub)
			}
		}
	})
}

type routerConfig struct {
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	tenant      routeGroup
	postalCodes routeGroup
	stripe      routeGroup
	internal    routeGroup
}

// Option customises the router.
type Option func(*routerConfig)

// NewRouter builds the storefront router:
//
//	/healthz, /readyz
//	/api/v1/tenants/{tenantId}/...   tenant-scoped pricing, shipping, orders and Connect
//	/api/v1/postal-codes/...         CEP lookup
//	/api/v1/stripe/...               tenant-independent Stripe callbacks
//	/internal/...                    signed operator and scheduler calls
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(requestTimeout),
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}
	cfg.tenant.middlewares = append([]func(http.Handler) http.Handler{TenantContext}, cfg.tenant.middlewares...)

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, "no route for "+req.URL.Path, http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", req.Method+" not allowed on "+req.URL.Path, http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(apiPrefix, func(api chi.Router) {
		cfg.tenant.mount(api, "/tenants/{tenantId}")
		cfg.postalCodes.mount(api, "/postal-codes")
		cfg.stripe.mount(api, "/stripe")
	})
	cfg.internal.mount(r, "/internal")
	return r
}

// WithMiddlewares appends global middleware.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.middlewares = append(cfg.middlewares, mw...) }
}

// WithHealthHandlers overrides the /healthz and /readyz handlers.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

// WithTenantRoutes adds registrars under /tenants/{tenantId}; the tenant id is on the context.
func WithTenantRoutes(reg ...RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.tenant.registrars = append(cfg.tenant.registrars, reg...) }
}

// WithPostalCodeRoutes mounts the CEP lookup routes.
func WithPostalCodeRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.postalCodes.registrars = append(cfg.postalCodes.registrars, reg) }
}

// WithStripeRoutes mounts tenant-independent Stripe routes.
func WithStripeRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.stripe.registrars = append(cfg.stripe.registrars, reg) }
}

// WithInternalRoutes mounts the /internal routes.
func WithInternalRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.internal.registrars = append(cfg.internal.registrars, reg) }
}

// WithInternalMiddlewares guards the /internal group, typically with HMAC verification.
func WithInternalMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.internal.middlewares = append(cfg.internal.middlewares, mw...) }
}
