package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/vitrine-field/api/internal/domain"
	"github.com/vitrine-field/api/internal/pricing"
	"github.com/vitrine-field/api/internal/repositories"
)

const defaultPromotionLoadConcurrency = 8

// PricingServiceDeps wires the dependencies required by the pricing service.
type PricingServiceDeps struct {
	Products    repositories.ProductRepository
	Promotions  repositories.PromotionRepository
	Resolver    *pricing.Resolver
	Formatter   *pricing.CurrencyFormatter
	Concurrency int
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type pricingService struct {
	products    repositories.ProductRepository
	promotions  repositories.PromotionRepository
	resolver    *pricing.Resolver
	formatter   *pricing.CurrencyFormatter
	concurrency int
	now         func() time.Time
	logger      func(ctx context.Context, event string, fields map[string]any)
}

// NewPricingService constructs a PricingService validating required dependencies.
func NewPricingService(deps PricingServiceDeps) (PricingService, error) {
	if deps.Products == nil {
		return nil, errors.New("pricing service: product repository is required")
	}
	if deps.Promotions == nil {
		return nil, errors.New("pricing service: promotion repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	resolver := deps.Resolver
	if resolver == nil {
		resolver = pricing.NewResolver(pricing.WithResolverLogger(logger))
	}
	formatter := deps.Formatter
	if formatter == nil {
		formatter = pricing.NewCurrencyFormatter("pt-BR", "R$")
	}
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = defaultPromotionLoadConcurrency
	}
	return &pricingService{
		products:    deps.Products,
		promotions:  deps.Promotions,
		resolver:    resolver,
		formatter:   formatter,
		concurrency: concurrency,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *pricingService) ResolveProductPrice(ctx context.Context, tenantID string, productID string) (ProductPrice, error) {
	tenantID = strings.TrimSpace(tenantID)
	productID = strings.TrimSpace(productID)
	if tenantID == "" || productID == "" {
		return ProductPrice{}, ErrPricingInvalidInput
	}

	product, err := s.products.FindByID(ctx, tenantID, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return ProductPrice{}, ErrProductNotFound
		}
		return ProductPrice{}, fmt.Errorf("%w: load product: %v", ErrPricingUnavailable, err)
	}
	if !product.IsActive {
		return ProductPrice{}, ErrProductNotFound
	}

	prices, err := s.PriceProducts(ctx, tenantID, []domain.Product{product}, s.now())
	if err != nil {
		return ProductPrice{}, err
	}
	return prices[0], nil
}

func (s *pricingService) ResolveProductPrices(ctx context.Context, tenantID string, productIDs []string) ([]ProductPrice, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" || len(productIDs) == 0 {
		return nil, ErrPricingInvalidInput
	}

	products, err := s.products.FindByIDs(ctx, tenantID, productIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: load products: %v", ErrPricingUnavailable, err)
	}
	active := products[:0:0]
	for _, product := range products {
		if product.IsActive {
			active = append(active, product)
		}
	}
	if len(active) == 0 {
		return []ProductPrice{}, nil
	}
	return s.PriceProducts(ctx, tenantID, active, s.now())
}

// PriceProducts loads every candidate promotion concurrently, then resolves each product against
// the same instant so a batch never straddles a promotion boundary.
func (s *pricingService) PriceProducts(ctx context.Context, tenantID string, products []domain.Product, now time.Time) ([]ProductPrice, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, ErrPricingInvalidInput
	}
	if len(products) == 0 {
		return []ProductPrice{}, nil
	}

	var (
		global        []domain.Promotion
		productPromos = make([][]domain.Promotion, len(products))
		categoryMu    sync.Mutex
		categoryPromo = make(map[string][]domain.Promotion)
	)

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)

	group.Go(func() error {
		promos, err := s.promotions.ListGlobal(gctx, tenantID)
		if err != nil {
			return fmt.Errorf("list global promotions: %w", err)
		}
		global = promos
		return nil
	})

	for _, categoryID := range uniqueCategories(products) {
		categoryID := categoryID
		group.Go(func() error {
			promos, err := s.promotions.ListForCategory(gctx, tenantID, categoryID)
			if err != nil {
				return fmt.Errorf("list category %s promotions: %w", categoryID, err)
			}
			categoryMu.Lock()
			categoryPromo[categoryID] = promos
			categoryMu.Unlock()
			return nil
		})
	}

	for i, product := range products {
		i, productID := i, product.ID
		group.Go(func() error {
			promos, err := s.promotions.ListForProduct(gctx, tenantID, productID)
			if err != nil {
				return fmt.Errorf("list product %s promotions: %w", productID, err)
			}
			productPromos[i] = promos
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		s.logger(ctx, "pricing.promotions_load_failed", map[string]any{
			"tenantId": tenantID,
			"error":    err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", ErrPricingUnavailable, err)
	}

	prices := make([]ProductPrice, 0, len(products))
	for i, product := range products {
		promo := s.resolver.ResolveAt(ctx, pricing.Candidates{
			OriginalPrice:      product.Price,
			CompareAtPrice:     product.CompareAtPrice,
			ProductPromotions:  productPromos[i],
			CategoryPromotions: categoryPromo[strings.TrimSpace(product.CategoryID)],
			GlobalPromotions:   global,
		}, now)
		prices = append(prices, s.buildPrice(product, promo, now))
	}
	return prices, nil
}

func (s *pricingService) buildPrice(product domain.Product, promo *domain.PromotionWithPriority, now time.Time) ProductPrice {
	price := ProductPrice{
		ProductID:     product.ID,
		ProductName:   product.Name,
		OriginalPrice: product.Price,
		FinalPrice:    pricing.FinalPrice(product.Price, promo),
		Promotion:     promo,
		PricedAt:      now,
	}
	if promo == nil {
		return price
	}
	reference := product.Price
	if promo.CompareAtPrice != nil {
		reference = *promo.CompareAtPrice
	}
	price.PercentageLabel = pricing.PercentageLabel(reference, price.FinalPrice)
	price.ComparisonLabel = s.formatter.ComparisonLabel(reference, price.FinalPrice)
	return price
}

func uniqueCategories(products []domain.Product) []string {
	seen := make(map[string]struct{}, len(products))
	var out []string
	for _, product := range products {
		id := strings.TrimSpace(product.CategoryID)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
