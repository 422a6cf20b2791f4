package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	domain "github.com/vitrine-field/api/internal/domain"
	pfirestore "github.com/vitrine-field/api/internal/platform/firestore"
	"github.com/vitrine-field/api/internal/repositories"
)

const promotionCollection = "promotions"

// PromotionRepository reads tenant promotions from tenants/{tenantId}/promotions.
type PromotionRepository struct {
	provider *pfirestore.Provider
}

var _ repositories.PromotionRepository = (*PromotionRepository)(nil)

// NewPromotionRepository constructs a Firestore-backed promotion repository.
func NewPromotionRepository(provider *pfirestore.Provider) (*PromotionRepository, error) {
	if provider == nil {
		return nil, errors.New("promotion repository requires firestore provider")
	}
	return &PromotionRepository{provider: provider}, nil
}

type promotionDocument struct {
	Name          string     `firestore:"name"`
	Description   string     `firestore:"description,omitempty"`
	PromotionType string     `firestore:"promotionType"`
	DiscountType  string     `firestore:"discountType"`
	DiscountValue float64    `firestore:"discountValue"`
	StartDate     *time.Time `firestore:"startDate"`
	EndDate       *time.Time `firestore:"endDate"`
	IsActive      bool       `firestore:"isActive"`
	Priority      int        `firestore:"priority"`
	Status        string     `firestore:"status,omitempty"`
	ProductIDs    []string   `firestore:"productIds,omitempty"`
	CategoryIDs   []string   `firestore:"categoryIds,omitempty"`
	CreatedAt     time.Time  `firestore:"createdAt"`
	UpdatedAt     time.Time  `firestore:"updatedAt"`
}

func (r *PromotionRepository) ListForProduct(ctx context.Context, tenantID string, productID string) ([]domain.Promotion, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, errors.New("promotion repository: product id is required")
	}
	return r.list(ctx, tenantID, func(q firestore.Query) firestore.Query {
		return q.Where("promotionType", "==", string(domain.PromotionTypeProduct)).
			Where("productIds", "array-contains", productID)
	})
}

func (r *PromotionRepository) ListForCategory(ctx context.Context, tenantID string, categoryID string) ([]domain.Promotion, error) {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return nil, nil
	}
	return r.list(ctx, tenantID, func(q firestore.Query) firestore.Query {
		return q.Where("promotionType", "==", string(domain.PromotionTypeCategory)).
			Where("categoryIds", "array-contains", categoryID)
	})
}

func (r *PromotionRepository) ListGlobal(ctx context.Context, tenantID string) ([]domain.Promotion, error) {
	return r.list(ctx, tenantID, func(q firestore.Query) firestore.Query {
		return q.Where("promotionType", "==", string(domain.PromotionTypeGlobal))
	})
}

func (r *PromotionRepository) ListAll(ctx context.Context, tenantID string) ([]domain.Promotion, error) {
	return r.list(ctx, tenantID, nil)
}

func (r *PromotionRepository) TransitionStatus(ctx context.Context, tenantID string, promotionID string, from, to domain.PromotionStatus) (bool, error) {
	base, err := r.base(tenantID)
	if err != nil {
		return false, err
	}
	ref, err := base.Ref(ctx, strings.TrimSpace(promotionID))
	if err != nil {
		return false, err
	}

	changed := false
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		changed = false
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		current, _ := snap.DataAt("status")
		currentStatus, _ := current.(string)
		if domain.PromotionStatus(currentStatus) != from {
			return nil
		}
		changed = true
		return tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(to)},
			{Path: "updatedAt", Value: time.Now().UTC()},
		})
	})
	if err != nil {
		return false, pfirestore.WrapError("promotions.transition_status", err)
	}
	return changed, nil
}

func (r *PromotionRepository) list(ctx context.Context, tenantID string, build pfirestore.QueryBuilder) ([]domain.Promotion, error) {
	base, err := r.base(tenantID)
	if err != nil {
		return nil, err
	}
	docs, err := base.Query(ctx, build)
	if err != nil {
		return nil, err
	}
	promos := make([]domain.Promotion, 0, len(docs))
	for _, doc := range docs {
		promos = append(promos, decodePromotion(strings.TrimSpace(tenantID), doc))
	}
	repositories.SortPromotionsByCreation(promos)
	return promos, nil
}

func (r *PromotionRepository) base(tenantID string) (*pfirestore.Collection[promotionDocument], error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("promotion repository not initialised")
	}
	if strings.TrimSpace(tenantID) == "" {
		return nil, errors.New("promotion repository: tenant id is required")
	}
	return pfirestore.NewCollection[promotionDocument](r.provider, pfirestore.TenantCollection(tenantID, promotionCollection)), nil
}

func decodePromotion(tenantID string, doc pfirestore.Document[promotionDocument]) domain.Promotion {
	data := doc.Data
	promo := domain.Promotion{
		ID:            doc.ID,
		TenantID:      tenantID,
		Name:          strings.TrimSpace(data.Name),
		Description:   strings.TrimSpace(data.Description),
		PromotionType: domain.PromotionType(strings.TrimSpace(data.PromotionType)),
		DiscountType:  domain.DiscountType(strings.TrimSpace(data.DiscountType)),
		DiscountValue: decimal.NewFromFloat(data.DiscountValue),
		IsActive:      data.IsActive,
		Priority:      data.Priority,
		Status:        domain.PromotionStatus(strings.TrimSpace(data.Status)),
		ProductIDs:    append([]string(nil), data.ProductIDs...),
		CategoryIDs:   append([]string(nil), data.CategoryIDs...),
		CreatedAt:     data.CreatedAt.UTC(),
		UpdatedAt:     data.UpdatedAt.UTC(),
	}
	if data.StartDate != nil {
		promo.StartDate = data.StartDate.UTC()
	}
	if data.EndDate != nil {
		promo.EndDate = data.EndDate.UTC()
	}
	if promo.CreatedAt.IsZero() {
		promo.CreatedAt = doc.CreateTime.UTC()
	}
	return promo
}
