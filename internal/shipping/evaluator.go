package shipping

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/vitrine-field/api/internal/domain"
)

const (
	defaultCarrierTimeout = 8 * time.Second
	defaultMaxConcurrency = 8

	errMissingAPIURL  = "shipping method has no api url configured"
	errCarrierFailed  = "carrier quote unavailable"
	errCarrierTimeout = "carrier quote timed out"
)

// EvaluatorDeps wires the collaborators used by Evaluator.
type EvaluatorDeps struct {
	Carrier        CarrierClient
	Cache          QuoteCache
	Timeout        time.Duration
	MaxConcurrency int
	Logger         func(context.Context, string, map[string]any)
}

// Evaluator computes one ShippingCalculation per active method of a tenant.
type Evaluator struct {
	carrier        CarrierClient
	cache          QuoteCache
	timeout        time.Duration
	maxConcurrency int
	logger         func(context.Context, string, map[string]any)
}

// NewEvaluator validates deps and applies defaults.
func NewEvaluator(deps EvaluatorDeps) (*Evaluator, error) {
	if deps.Carrier == nil {
		return nil, errors.New("shipping evaluator: carrier client is required")
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultCarrierTimeout
	}
	limit := deps.MaxConcurrency
	if limit <= 0 {
		limit = defaultMaxConcurrency
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Evaluator{
		carrier:        deps.Carrier,
		cache:          deps.Cache,
		timeout:        timeout,
		maxConcurrency: limit,
		logger:         logger,
	}, nil
}

// Calculate evaluates every active method. Express methods are priced locally. Api methods are
// quoted concurrently, each bounded by the evaluator timeout; a failing carrier yields an entry
// with Error set and never affects the others. Api methods are skipped while no postal code is
// known. Results keep the order of methods.
func (e *Evaluator) Calculate(ctx context.Context, methods []domain.ShippingMethod, lines []domain.CartLine, postalCode string) []domain.ShippingCalculation {
	postalCode = strings.TrimSpace(postalCode)
	dims := AggregateDimensions(lines)
	req := RateRequest{
		PostalCode: postalCode,
		Weight:     dims.Weight,
		Length:     dims.Length,
		Width:      dims.Width,
		Height:     dims.Height,
	}

	slots := make([]*domain.ShippingCalculation, len(methods))
	var group errgroup.Group
	group.SetLimit(e.maxConcurrency)

	for i, method := range methods {
		if !method.IsActive {
			continue
		}
		switch method.Type {
		case domain.ShippingMethodExpress:
			calc := expressCalculation(method)
			slots[i] = &calc
		case domain.ShippingMethodAPI:
			if postalCode == "" {
				continue
			}
			if strings.TrimSpace(method.APIURL) == "" {
				calc := baseCalculation(method)
				calc.Error = errMissingAPIURL
				slots[i] = &calc
				continue
			}
			i, method := i, method
			group.Go(func() error {
				calc := e.quote(ctx, method, req)
				slots[i] = &calc
				return nil
			})
		default:
			e.logger(ctx, "shipping.method_type_unknown", map[string]any{
				"methodId": method.ID,
				"tenantId": method.TenantID,
				"type":     string(method.Type),
			})
		}
	}
	_ = group.Wait()

	results := make([]domain.ShippingCalculation, 0, len(methods))
	for _, slot := range slots {
		if slot != nil {
			results = append(results, *slot)
		}
	}
	return results
}

func baseCalculation(method domain.ShippingMethod) domain.ShippingCalculation {
	return domain.ShippingCalculation{
		MethodID:   method.ID,
		MethodName: method.Name,
		MethodType: method.Type,
		Price:      decimal.Zero,
	}
}

func expressCalculation(method domain.ShippingMethod) domain.ShippingCalculation {
	calc := baseCalculation(method)
	if method.Price != nil {
		calc.Price = *method.Price
	}
	if method.DeliveryDays != nil {
		days := *method.DeliveryDays
		calc.DeliveryDays = &days
	}
	calc.DeliveryLabel = expressDeliveryLabel(method)
	return calc
}

func (e *Evaluator) quote(ctx context.Context, method domain.ShippingMethod, req RateRequest) domain.ShippingCalculation {
	calc := baseCalculation(method)
	key := QuoteCacheKey(method, req)

	if e.cache != nil {
		cached, ok, err := e.cache.Get(ctx, key)
		if err != nil {
			e.logger(ctx, "shipping.quote_cache_error", map[string]any{"methodId": method.ID, "error": err.Error()})
		}
		if ok {
			return applyRate(calc, cached)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.carrier.Quote(callCtx, method, req)
	if err != nil {
		message := errCarrierFailed
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			message = errCarrierTimeout
		}
		e.logger(ctx, "shipping.carrier_quote_failed", map[string]any{
			"methodId": method.ID,
			"tenantId": method.TenantID,
			"error":    err.Error(),
		})
		calc.Error = message
		return calc
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, key, resp); err != nil {
			e.logger(ctx, "shipping.quote_cache_error", map[string]any{"methodId": method.ID, "error": err.Error()})
		}
	}
	return applyRate(calc, resp)
}

func applyRate(calc domain.ShippingCalculation, resp RateResponse) domain.ShippingCalculation {
	calc.Price = resp.Price
	if resp.DeliveryDays != nil {
		days := *resp.DeliveryDays
		calc.DeliveryDays = &days
	}
	calc.DeliveryLabel = sanitizeLabel(resp.DeliveryLabel)
	if calc.DeliveryLabel == "" && calc.DeliveryDays != nil {
		calc.DeliveryLabel = DeliveryDaysLabel(*calc.DeliveryDays)
	}
	return calc
}
