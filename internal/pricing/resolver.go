package pricing

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vitrine-field/api/internal/domain"
)

// CompareAtPromotionID identifies the promotion synthesized from a product's compare-at price.
const CompareAtPromotionID = "compare-at-price"

const compareAtPriority = -1

// Candidates holds the promotions scoped to a single product, one slice per hierarchy level.
// Within a level, ties on priority keep the slice order, so callers must supply a stable order.
type Candidates struct {
	OriginalPrice      decimal.Decimal
	CompareAtPrice     *decimal.Decimal
	ProductPromotions  []domain.Promotion
	CategoryPromotions []domain.Promotion
	GlobalPromotions   []domain.Promotion
}

// Resolver selects the single effective promotion for a product.
type Resolver struct {
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
}

// ResolverOption customises a Resolver.
type ResolverOption func(*Resolver)

// WithResolverClock overrides the clock used by Resolve.
func WithResolverClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithResolverLogger installs a structured logging hook.
func WithResolverLogger(logger func(context.Context, string, map[string]any)) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver constructs a Resolver using the wall clock and a no-op logger by default.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		now:    time.Now,
		logger: func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Resolve evaluates the candidates against the resolver clock.
func (r *Resolver) Resolve(ctx context.Context, in Candidates) *domain.PromotionWithPriority {
	return r.ResolveAt(ctx, in, r.now().UTC())
}

// ResolveAt applies the hierarchy global, then category, then product. The first level with an
// active promotion wins outright and only its highest-priority entry is considered; the result is
// tagged with the level it was found at. When no level
// has an active promotion, a compare-at price above the original price yields a synthetic
// promotion. Nil means the product sells at its original price.
func (r *Resolver) ResolveAt(ctx context.Context, in Candidates, now time.Time) *domain.PromotionWithPriority {
	levels := []struct {
		level  domain.PromotionType
		promos []domain.Promotion
	}{
		{domain.PromotionTypeGlobal, in.GlobalPromotions},
		{domain.PromotionTypeCategory, in.CategoryPromotions},
		{domain.PromotionTypeProduct, in.ProductPromotions},
	}
	for _, candidate := range levels {
		best, ok := highestPriorityActive(candidate.promos, now)
		if !ok {
			continue
		}
		price, known := applyDiscount(in.OriginalPrice, best.DiscountType, best.DiscountValue)
		if !known {
			r.logger(ctx, "pricing.discount_type_unknown", map[string]any{
				"promotionId":   best.ID,
				"tenantId":      best.TenantID,
				"discountType":  string(best.DiscountType),
				"promotionType": string(candidate.level),
			})
		}
		return &domain.PromotionWithPriority{
			ID:               best.ID,
			Name:             best.Name,
			DiscountType:     best.DiscountType,
			DiscountValue:    best.DiscountValue,
			PromotionalPrice: price,
			PromotionType:    candidate.level,
			Priority:         best.Priority,
		}
	}

	if in.CompareAtPrice != nil && in.CompareAtPrice.GreaterThan(in.OriginalPrice) {
		compareAt := *in.CompareAtPrice
		return &domain.PromotionWithPriority{
			ID:               CompareAtPromotionID,
			Name:             "Compare-at price",
			DiscountType:     domain.DiscountTypeFixedAmount,
			DiscountValue:    compareAt.Sub(in.OriginalPrice),
			PromotionalPrice: in.OriginalPrice,
			PromotionType:    domain.PromotionTypeProduct,
			Priority:         compareAtPriority,
			CompareAtPrice:   &compareAt,
		}
	}

	return nil
}

var defaultResolver = NewResolver()

// ResolveBestPromotion is the stateless form of Resolver.ResolveAt with a no-op logger.
func ResolveBestPromotion(in Candidates, now time.Time) *domain.PromotionWithPriority {
	return defaultResolver.ResolveAt(context.Background(), in, now)
}

func highestPriorityActive(promos []domain.Promotion, now time.Time) (domain.Promotion, bool) {
	active := make([]domain.Promotion, 0, len(promos))
	for _, promo := range promos {
		if IsPromotionActive(promo, now) {
			active = append(active, promo)
		}
	}
	if len(active) == 0 {
		return domain.Promotion{}, false
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority > active[j].Priority
	})
	return active[0], true
}
