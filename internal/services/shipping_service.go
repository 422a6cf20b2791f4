package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	domain "github.com/vitrine-field/api/internal/domain"
	"github.com/vitrine-field/api/internal/repositories"
	"github.com/vitrine-field/api/internal/shipping"
)

const maxShippingItems = 100

// ShippingServiceDeps wires the dependencies required by the shipping service.
type ShippingServiceDeps struct {
	Products  repositories.ProductRepository
	Methods   repositories.ShippingMethodRepository
	Evaluator *shipping.Evaluator
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type shippingService struct {
	products  repositories.ProductRepository
	methods   repositories.ShippingMethodRepository
	evaluator *shipping.Evaluator
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewShippingService constructs a ShippingService validating required dependencies.
func NewShippingService(deps ShippingServiceDeps) (ShippingService, error) {
	if deps.Products == nil {
		return nil, errors.New("shipping service: product repository is required")
	}
	if deps.Methods == nil {
		return nil, errors.New("shipping service: shipping method repository is required")
	}
	if deps.Evaluator == nil {
		return nil, errors.New("shipping service: evaluator is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &shippingService{
		products:  deps.Products,
		methods:   deps.Methods,
		evaluator: deps.Evaluator,
		logger:    logger,
	}, nil
}

func (s *shippingService) CalculateShipping(ctx context.Context, cmd CalculateShippingCommand) ([]domain.ShippingCalculation, error) {
	tenantID := strings.TrimSpace(cmd.TenantID)
	if tenantID == "" {
		return nil, ErrShippingInvalidInput
	}
	items, err := normalizeCartItems(cmd.Items)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShippingInvalidInput, err)
	}

	lines, err := loadCartLines(ctx, s.products, tenantID, items)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrShippingInvalidInput, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrShippingUnavailable, err)
	}
	return s.CalculateForLines(ctx, tenantID, lines, cmd.PostalCode)
}

func (s *shippingService) CalculateForLines(ctx context.Context, tenantID string, lines []domain.CartLine, postalCode string) ([]domain.ShippingCalculation, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, ErrShippingInvalidInput
	}
	if postalCode = strings.TrimSpace(postalCode); postalCode != "" {
		normalized, err := NormalizePostalCode(postalCode)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrShippingInvalidInput, err)
		}
		postalCode = normalized
	}

	methods, err := s.methods.List(ctx, tenantID)
	if err != nil {
		s.logger(ctx, "shipping.methods_load_failed", map[string]any{
			"tenantId": tenantID,
			"error":    err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", ErrShippingUnavailable, err)
	}

	results := s.evaluator.Calculate(ctx, methods, lines, postalCode)
	s.logger(ctx, "shipping.calculated", map[string]any{
		"tenantId": tenantID,
		"methods":  len(methods),
		"results":  len(results),
	})
	return results, nil
}

// RankShippingOptions orders calculations for display: usable options first, cheapest first,
// keeping the configured order between equal prices. The input is not modified.
func RankShippingOptions(calcs []domain.ShippingCalculation) []domain.ShippingCalculation {
	ranked := make([]domain.ShippingCalculation, len(calcs))
	copy(ranked, calcs)
	sort.SliceStable(ranked, func(i, j int) bool {
		iFailed, jFailed := ranked[i].Error != "", ranked[j].Error != ""
		if iFailed != jFailed {
			return !iFailed
		}
		return ranked[i].Price.LessThan(ranked[j].Price)
	})
	return ranked
}

// normalizeCartItems trims ids, rejects non-positive quantities and merges duplicate products
// keeping first-seen order.
func normalizeCartItems(items []CartItemInput) ([]CartItemInput, error) {
	if len(items) == 0 {
		return nil, errors.New("at least one item is required")
	}
	if len(items) > maxShippingItems {
		return nil, fmt.Errorf("at most %d items are allowed", maxShippingItems)
	}
	index := make(map[string]int, len(items))
	out := make([]CartItemInput, 0, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			return nil, errors.New("product id is required")
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("quantity for %s must be positive", id)
		}
		if pos, ok := index[id]; ok {
			out[pos].Quantity += item.Quantity
			continue
		}
		index[id] = len(out)
		out = append(out, CartItemInput{ProductID: id, Quantity: item.Quantity})
	}
	return out, nil
}

// loadCartLines resolves items against the catalog. A missing or inactive product yields
// ErrProductNotFound.
func loadCartLines(ctx context.Context, products repositories.ProductRepository, tenantID string, items []CartItemInput) ([]domain.CartLine, error) {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}
	found, err := products.FindByIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	byID := make(map[string]domain.Product, len(found))
	for _, product := range found {
		byID[product.ID] = product
	}
	lines := make([]domain.CartLine, 0, len(items))
	for _, item := range items {
		product, ok := byID[item.ProductID]
		if !ok || !product.IsActive {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, item.ProductID)
		}
		lines = append(lines, domain.CartLine{Product: product, Quantity: item.Quantity})
	}
	return lines, nil
}
