package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/vitrine-field/api/internal/domain"
	pfirestore "github.com/vitrine-field/api/internal/platform/firestore"
	"github.com/vitrine-field/api/internal/repositories"
)

const productCollection = "products"

// ProductRepository reads catalog entries from tenants/{tenantId}/products.
type ProductRepository struct {
	provider *pfirestore.Provider
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{provider: provider}, nil
}

type productDocument struct {
	Name           string    `firestore:"name"`
	CategoryID     string    `firestore:"categoryId,omitempty"`
	Price          float64   `firestore:"price"`
	CompareAtPrice *float64  `firestore:"compareAtPrice"`
	Weight         *float64  `firestore:"weight"`
	Length         *float64  `firestore:"length"`
	Width          *float64  `firestore:"width"`
	Height         *float64  `firestore:"height"`
	IsActive       bool      `firestore:"isActive"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

func (r *ProductRepository) FindByID(ctx context.Context, tenantID string, productID string) (domain.Product, error) {
	base, err := r.base(tenantID)
	if err != nil {
		return domain.Product{}, err
	}
	doc, err := base.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	return decodeProduct(strings.TrimSpace(tenantID), doc), nil
}

func (r *ProductRepository) FindByIDs(ctx context.Context, tenantID string, productIDs []string) ([]domain.Product, error) {
	base, err := r.base(tenantID)
	if err != nil {
		return nil, err
	}
	ids := uniqueTrimmed(productIDs)
	docs, err := base.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, decodeProduct(strings.TrimSpace(tenantID), doc))
	}
	return products, nil
}

func (r *ProductRepository) base(tenantID string) (*pfirestore.Collection[productDocument], error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("product repository not initialised")
	}
	if strings.TrimSpace(tenantID) == "" {
		return nil, errors.New("product repository: tenant id is required")
	}
	return pfirestore.NewCollection[productDocument](r.provider, pfirestore.TenantCollection(tenantID, productCollection)), nil
}

func decodeProduct(tenantID string, doc pfirestore.Document[productDocument]) domain.Product {
	data := doc.Data
	product := domain.Product{
		ID:         doc.ID,
		TenantID:   tenantID,
		Name:       strings.TrimSpace(data.Name),
		CategoryID: strings.TrimSpace(data.CategoryID),
		Price:      decimal.NewFromFloat(data.Price),
		Weight:     copyFloat(data.Weight),
		Length:     copyFloat(data.Length),
		Width:      copyFloat(data.Width),
		Height:     copyFloat(data.Height),
		IsActive:   data.IsActive,
		CreatedAt:  data.CreatedAt.UTC(),
		UpdatedAt:  data.UpdatedAt.UTC(),
	}
	if data.CompareAtPrice != nil {
		compareAt := decimal.NewFromFloat(*data.CompareAtPrice)
		product.CompareAtPrice = &compareAt
	}
	return product
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func uniqueTrimmed(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
