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

const orderCollection = "orders"

// OrderRepository persists orders in tenants/{tenantId}/orders. Money is stored as fixed
// two-decimal strings.
type OrderRepository struct {
	provider *pfirestore.Provider
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{provider: provider}, nil
}

type orderDocument struct {
	Status             string              `firestore:"status"`
	Currency           string              `firestore:"currency"`
	Lines              []orderLineDocument `firestore:"lines"`
	PostalCode         string              `firestore:"postalCode,omitempty"`
	ShippingMethodID   string              `firestore:"shippingMethodId"`
	ShippingMethodName string              `firestore:"shippingMethodName"`
	ShippingPrice      string              `firestore:"shippingPrice"`
	DeliveryLabel      string              `firestore:"deliveryLabel,omitempty"`
	Subtotal           string              `firestore:"subtotal"`
	Total              string              `firestore:"total"`
	CustomerEmail      string              `firestore:"customerEmail,omitempty"`
	PaymentSessionID   string              `firestore:"paymentSessionId,omitempty"`
	PaymentIntentID    string              `firestore:"paymentIntentId,omitempty"`
	PricedAt           time.Time           `firestore:"pricedAt"`
	CreatedAt          time.Time           `firestore:"createdAt"`
	UpdatedAt          time.Time           `firestore:"updatedAt"`
}

type orderLineDocument struct {
	ProductID      string `firestore:"productId"`
	ProductName    string `firestore:"productName"`
	Quantity       int    `firestore:"quantity"`
	UnitPrice      string `firestore:"unitPrice"`
	FinalUnitPrice string `firestore:"finalUnitPrice"`
	PromotionID    string `firestore:"promotionId,omitempty"`
	PromotionType  string `firestore:"promotionType,omitempty"`
	LineTotal      string `firestore:"lineTotal"`
}

// Insert creates the order document and fails with a conflict when the id already exists.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	base, err := r.base(order.TenantID)
	if err != nil {
		return err
	}
	ref, err := base.Ref(ctx, strings.TrimSpace(order.ID))
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, encodeOrder(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, tenantID string, orderID string) (domain.Order, error) {
	base, err := r.base(tenantID)
	if err != nil {
		return domain.Order{}, err
	}
	doc, err := base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(strings.TrimSpace(tenantID), doc), nil
}

func (r *OrderRepository) UpdatePayment(ctx context.Context, tenantID string, orderID string, update repositories.OrderPaymentUpdate) error {
	base, err := r.base(tenantID)
	if err != nil {
		return err
	}
	updates := []firestore.Update{{Path: "updatedAt", Value: time.Now().UTC()}}
	if update.Status != "" {
		updates = append(updates, firestore.Update{Path: "status", Value: string(update.Status)})
	}
	if id := strings.TrimSpace(update.PaymentSessionID); id != "" {
		updates = append(updates, firestore.Update{Path: "paymentSessionId", Value: id})
	}
	if id := strings.TrimSpace(update.PaymentIntentID); id != "" {
		updates = append(updates, firestore.Update{Path: "paymentIntentId", Value: id})
	}
	return base.Update(ctx, strings.TrimSpace(orderID), updates)
}

func (r *OrderRepository) base(tenantID string) (*pfirestore.Collection[orderDocument], error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(tenantID) == "" {
		return nil, errors.New("order repository: tenant id is required")
	}
	return pfirestore.NewCollection[orderDocument](r.provider, pfirestore.TenantCollection(tenantID, orderCollection)), nil
}

func encodeOrder(order domain.Order) orderDocument {
	lines := make([]orderLineDocument, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderLineDocument{
			ProductID:      line.ProductID,
			ProductName:    line.ProductName,
			Quantity:       line.Quantity,
			UnitPrice:      money(line.UnitPrice),
			FinalUnitPrice: money(line.FinalUnitPrice),
			PromotionID:    line.PromotionID,
			PromotionType:  string(line.PromotionType),
			LineTotal:      money(line.LineTotal),
		})
	}
	return orderDocument{
		Status:             string(order.Status),
		Currency:           strings.ToUpper(strings.TrimSpace(order.Currency)),
		Lines:              lines,
		PostalCode:         strings.TrimSpace(order.PostalCode),
		ShippingMethodID:   order.ShippingMethodID,
		ShippingMethodName: order.ShippingMethodName,
		ShippingPrice:      money(order.ShippingPrice),
		DeliveryLabel:      order.DeliveryLabel,
		Subtotal:           money(order.Subtotal),
		Total:              money(order.Total),
		CustomerEmail:      strings.TrimSpace(order.CustomerEmail),
		PaymentSessionID:   order.PaymentSessionID,
		PaymentIntentID:    order.PaymentIntentID,
		PricedAt:           order.PricedAt.UTC(),
		CreatedAt:          order.CreatedAt.UTC(),
		UpdatedAt:          order.UpdatedAt.UTC(),
	}
}

func decodeOrder(tenantID string, doc pfirestore.Document[orderDocument]) domain.Order {
	data := doc.Data
	lines := make([]domain.OrderLine, 0, len(data.Lines))
	for _, line := range data.Lines {
		lines = append(lines, domain.OrderLine{
			ProductID:      line.ProductID,
			ProductName:    line.ProductName,
			Quantity:       line.Quantity,
			UnitPrice:      parseMoney(line.UnitPrice),
			FinalUnitPrice: parseMoney(line.FinalUnitPrice),
			PromotionID:    line.PromotionID,
			PromotionType:  domain.PromotionType(line.PromotionType),
			LineTotal:      parseMoney(line.LineTotal),
		})
	}
	return domain.Order{
		ID:                 doc.ID,
		TenantID:           tenantID,
		Status:             domain.OrderStatus(data.Status),
		Currency:           data.Currency,
		Lines:              lines,
		PostalCode:         data.PostalCode,
		ShippingMethodID:   data.ShippingMethodID,
		ShippingMethodName: data.ShippingMethodName,
		ShippingPrice:      parseMoney(data.ShippingPrice),
		DeliveryLabel:      data.DeliveryLabel,
		Subtotal:           parseMoney(data.Subtotal),
		Total:              parseMoney(data.Total),
		CustomerEmail:      data.CustomerEmail,
		PaymentSessionID:   data.PaymentSessionID,
		PaymentIntentID:    data.PaymentIntentID,
		PricedAt:           data.PricedAt.UTC(),
		CreatedAt:          data.CreatedAt.UTC(),
		UpdatedAt:          data.UpdatedAt.UTC(),
	}
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func parseMoney(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
