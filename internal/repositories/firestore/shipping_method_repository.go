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

const shippingMethodCollection = "shippingMethods"

// ShippingMethodRepository reads tenant shipping methods from tenants/{tenantId}/shippingMethods.
type ShippingMethodRepository struct {
	provider *pfirestore.Provider
}

var _ repositories.ShippingMethodRepository = (*ShippingMethodRepository)(nil)

// NewShippingMethodRepository constructs a Firestore-backed shipping method repository.
func NewShippingMethodRepository(provider *pfirestore.Provider) (*ShippingMethodRepository, error) {
	if provider == nil {
		return nil, errors.New("shipping method repository requires firestore provider")
	}
	return &ShippingMethodRepository{provider: provider}, nil
}

type shippingMethodDocument struct {
	Name              string            `firestore:"name"`
	Type              string            `firestore:"type"`
	IsActive          bool              `firestore:"isActive"`
	Price             *float64          `firestore:"price"`
	DeliveryDays      *int              `firestore:"deliveryDays"`
	DeliveryLabelType string            `firestore:"deliveryLabelType,omitempty"`
	APIURL            string            `firestore:"apiUrl,omitempty"`
	APIHeaders        map[string]string `firestore:"apiHeaders,omitempty"`
	SortOrder         int               `firestore:"sortOrder"`
	CreatedAt         time.Time         `firestore:"createdAt"`
	UpdatedAt         time.Time         `firestore:"updatedAt"`
}

// List returns every method, including inactive ones, ordered by sortOrder.
func (r *ShippingMethodRepository) List(ctx context.Context, tenantID string) ([]domain.ShippingMethod, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("shipping method repository not initialised")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, errors.New("shipping method repository: tenant id is required")
	}

	base := pfirestore.NewCollection[shippingMethodDocument](r.provider, pfirestore.TenantCollection(tenantID, shippingMethodCollection))
	docs, err := base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("sortOrder", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	methods := make([]domain.ShippingMethod, 0, len(docs))
	for _, doc := range docs {
		methods = append(methods, decodeShippingMethod(tenantID, doc))
	}
	return methods, nil
}

func decodeShippingMethod(tenantID string, doc pfirestore.Document[shippingMethodDocument]) domain.ShippingMethod {
	data := doc.Data
	method := domain.ShippingMethod{
		ID:                doc.ID,
		TenantID:          tenantID,
		Name:              strings.TrimSpace(data.Name),
		Type:              domain.ShippingMethodType(strings.ToLower(strings.TrimSpace(data.Type))),
		IsActive:          data.IsActive,
		DeliveryLabelType: domain.DeliveryLabelType(strings.ToLower(strings.TrimSpace(data.DeliveryLabelType))),
		APIURL:            strings.TrimSpace(data.APIURL),
		SortOrder:         data.SortOrder,
		CreatedAt:         data.CreatedAt.UTC(),
		UpdatedAt:         data.UpdatedAt.UTC(),
	}
	if data.Price != nil {
		price := decimal.NewFromFloat(*data.Price)
		method.Price = &price
	}
	if data.DeliveryDays != nil {
		days := *data.DeliveryDays
		method.DeliveryDays = &days
	}
	if len(data.APIHeaders) > 0 {
		method.APIHeaders = make(map[string]string, len(data.APIHeaders))
		for key, value := range data.APIHeaders {
			method.APIHeaders[key] = value
		}
	}
	return method
}
