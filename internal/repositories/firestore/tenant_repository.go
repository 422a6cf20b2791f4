package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/vitrine-field/api/internal/domain"
	pfirestore "github.com/vitrine-field/api/internal/platform/firestore"
	"github.com/vitrine-field/api/internal/repositories"
)

// TenantRepository persists tenant documents in the root tenants collection.
type TenantRepository struct {
	base *pfirestore.Collection[tenantDocument]
}

var _ repositories.TenantRepository = (*TenantRepository)(nil)

// NewTenantRepository constructs a Firestore-backed tenant repository.
func NewTenantRepository(provider *pfirestore.Provider) (*TenantRepository, error) {
	if provider == nil {
		return nil, errors.New("tenant repository requires firestore provider")
	}
	return &TenantRepository{
		base: pfirestore.NewCollection[tenantDocument](provider, pfirestore.TenantsCollection()),
	}, nil
}

type tenantDocument struct {
	Name            string    `firestore:"name"`
	Currency        string    `firestore:"currency,omitempty"`
	StripeAccountID string    `firestore:"stripeAccountId,omitempty"`
	CreatedAt       time.Time `firestore:"createdAt"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

func (r *TenantRepository) FindByID(ctx context.Context, tenantID string) (domain.Tenant, error) {
	if r == nil || r.base == nil {
		return domain.Tenant{}, errors.New("tenant repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(tenantID))
	if err != nil {
		return domain.Tenant{}, err
	}
	return decodeTenant(doc), nil
}

func (r *TenantRepository) List(ctx context.Context) ([]domain.Tenant, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("tenant repository not initialised")
	}
	docs, err := r.base.Query(ctx, nil)
	if err != nil {
		return nil, err
	}
	tenants := make([]domain.Tenant, 0, len(docs))
	for _, doc := range docs {
		tenants = append(tenants, decodeTenant(doc))
	}
	return tenants, nil
}

func (r *TenantRepository) UpdateStripeAccount(ctx context.Context, tenantID string, accountID string) error {
	if r == nil || r.base == nil {
		return errors.New("tenant repository not initialised")
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return errors.New("tenant repository: stripe account id is required")
	}
	return r.base.Update(ctx, strings.TrimSpace(tenantID), []firestore.Update{
		{Path: "stripeAccountId", Value: accountID},
		{Path: "updatedAt", Value: time.Now().UTC()},
	})
}

func decodeTenant(doc pfirestore.Document[tenantDocument]) domain.Tenant {
	return domain.Tenant{
		ID:              doc.ID,
		Name:            strings.TrimSpace(doc.Data.Name),
		Currency:        strings.ToUpper(strings.TrimSpace(doc.Data.Currency)),
		StripeAccountID: strings.TrimSpace(doc.Data.StripeAccountID),
		CreatedAt:       doc.Data.CreatedAt.UTC(),
		UpdatedAt:       doc.Data.UpdatedAt.UTC(),
	}
}
