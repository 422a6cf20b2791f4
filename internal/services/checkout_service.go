package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/vitrine-field/api/internal/domain"
	"github.com/vitrine-field/api/internal/payments"
	"github.com/vitrine-field/api/internal/repositories"
)

const (
	defaultCheckoutCurrency = "BRL"
	checkoutShippingSKU     = "shipping"
)

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Tenants  repositories.TenantRepository
	Products repositories.ProductRepository
	Orders   repositories.OrderRepository
	Pricing  PricingService
	Shipping ShippingService
	Payments payments.Provider
	Currency string
	Clock    func() time.Time
	IDGen    func() string
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	tenants  repositories.TenantRepository
	products repositories.ProductRepository
	orders   repositories.OrderRepository
	pricing  PricingService
	shipping ShippingService
	payments payments.Provider
	currency string
	now      func() time.Time
	newID    func() string
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Tenants == nil {
		return nil, errors.New("checkout service: tenant repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("checkout service: product repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("checkout service: pricing service is required")
	}
	if deps.Shipping == nil {
		return nil, errors.New("checkout service: shipping service is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment provider is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultCheckoutCurrency
	}

	return &checkoutService{
		tenants:  deps.Tenants,
		products: deps.Products,
		orders:   deps.Orders,
		pricing:  deps.Pricing,
		shipping: deps.Shipping,
		payments: deps.Payments,
		currency: currency,
		now: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// PlaceOrder re-prices the cart server-side, persists a pending order and opens a checkout
// session on the merchant's connected account.
func (s *checkoutService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlacedOrder, error) {
	tenantID := strings.TrimSpace(cmd.TenantID)
	methodID := strings.TrimSpace(cmd.ShippingMethodID)
	successURL := strings.TrimSpace(cmd.SuccessURL)
	cancelURL := strings.TrimSpace(cmd.CancelURL)
	if tenantID == "" || methodID == "" || successURL == "" || cancelURL == "" {
		return PlacedOrder{}, ErrCheckoutInvalidInput
	}
	postalCode, err := NormalizePostalCode(cmd.PostalCode)
	if err != nil {
		return PlacedOrder{}, fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
	}
	email := strings.TrimSpace(cmd.CustomerEmail)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return PlacedOrder{}, fmt.Errorf("%w: invalid customer email", ErrCheckoutInvalidInput)
		}
	}
	items, err := normalizeCartItems(cmd.Items)
	if err != nil {
		return PlacedOrder{}, fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
	}

	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		if isRepoNotFound(err) {
			return PlacedOrder{}, ErrTenantNotFound
		}
		return PlacedOrder{}, fmt.Errorf("%w: load tenant: %v", ErrCheckoutUnavailable, err)
	}
	if strings.TrimSpace(tenant.StripeAccountID) == "" {
		return PlacedOrder{}, ErrCheckoutMerchantNotConnected
	}

	lines, err := loadCartLines(ctx, s.products, tenantID, items)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return PlacedOrder{}, fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
		}
		return PlacedOrder{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}

	now := s.now()
	products := make([]domain.Product, len(lines))
	for i, line := range lines {
		products[i] = line.Product
	}
	prices, err := s.pricing.PriceProducts(ctx, tenantID, products, now)
	if err != nil {
		return PlacedOrder{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}

	options, err := s.shipping.CalculateForLines(ctx, tenantID, lines, postalCode)
	if err != nil {
		return PlacedOrder{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	selected, ok := selectShippingOption(options, methodID)
	if !ok {
		return PlacedOrder{}, ErrCheckoutShippingUnavailable
	}

	order := s.buildOrder(tenantID, lines, prices, selected, postalCode, email, now)
	if err := s.orders.Insert(ctx, order); err != nil {
		return PlacedOrder{}, fmt.Errorf("%w: persist order: %v", ErrCheckoutUnavailable, err)
	}

	session, err := s.payments.CreateCheckoutSession(ctx, s.sessionRequest(tenant, order, cmd, successURL, cancelURL))
	if err != nil {
		s.logger(ctx, "checkout.session_failed", map[string]any{
			"tenantId": tenantID,
			"orderId":  order.ID,
			"error":    err.Error(),
		})
		if updateErr := s.orders.UpdatePayment(ctx, tenantID, order.ID, repositories.OrderPaymentUpdate{
			Status: domain.OrderStatusPaymentFailed,
		}); updateErr != nil {
			s.logger(ctx, "checkout.order_update_failed", map[string]any{
				"tenantId": tenantID,
				"orderId":  order.ID,
				"error":    updateErr.Error(),
			})
		}
		return PlacedOrder{}, fmt.Errorf("%w: %v", ErrCheckoutPaymentFailed, err)
	}

	update := repositories.OrderPaymentUpdate{
		PaymentSessionID: session.ID,
		PaymentIntentID:  session.IntentID,
	}
	if err := s.orders.UpdatePayment(ctx, tenantID, order.ID, update); err != nil {
		return PlacedOrder{}, fmt.Errorf("%w: record payment session: %v", ErrCheckoutUnavailable, err)
	}
	order.PaymentSessionID = session.ID
	order.PaymentIntentID = session.IntentID

	s.logger(ctx, "checkout.order_placed", map[string]any{
		"tenantId":  tenantID,
		"orderId":   order.ID,
		"total":     order.Total.StringFixed(2),
		"sessionId": session.ID,
		"lines":     len(order.Lines),
	})

	return PlacedOrder{Order: order, Session: session}, nil
}

// ConfirmOrder reconciles the order status with the checkout session state.
func (s *checkoutService) ConfirmOrder(ctx context.Context, cmd ConfirmOrderCommand) (domain.Order, error) {
	tenantID := strings.TrimSpace(cmd.TenantID)
	orderID := strings.TrimSpace(cmd.OrderID)
	if tenantID == "" || orderID == "" {
		return domain.Order{}, ErrCheckoutInvalidInput
	}

	order, err := s.orders.FindByID(ctx, tenantID, orderID)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.Order{}, ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("%w: load order: %v", ErrCheckoutUnavailable, err)
	}
	if order.Status != domain.OrderStatusPendingPayment || order.PaymentSessionID == "" {
		return order, nil
	}

	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.Order{}, ErrTenantNotFound
		}
		return domain.Order{}, fmt.Errorf("%w: load tenant: %v", ErrCheckoutUnavailable, err)
	}

	details, err := s.payments.LookupSession(ctx, payments.LookupRequest{
		ConnectedAccountID: tenant.StripeAccountID,
		SessionID:          order.PaymentSessionID,
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}

	var status domain.OrderStatus
	switch details.Status {
	case payments.StatusSucceeded:
		status = domain.OrderStatusPaid
	case payments.StatusFailed:
		status = domain.OrderStatusPaymentFailed
	default:
		return order, nil
	}

	update := repositories.OrderPaymentUpdate{Status: status, PaymentIntentID: details.IntentID}
	if err := s.orders.UpdatePayment(ctx, tenantID, orderID, update); err != nil {
		return domain.Order{}, fmt.Errorf("%w: update order: %v", ErrCheckoutUnavailable, err)
	}
	order.Status = status
	if details.IntentID != "" {
		order.PaymentIntentID = details.IntentID
	}
	s.logger(ctx, "checkout.order_confirmed", map[string]any{
		"tenantId": tenantID,
		"orderId":  orderID,
		"status":   string(status),
	})
	return order, nil
}

func (s *checkoutService) buildOrder(tenantID string, lines []domain.CartLine, prices []ProductPrice, shippingOption domain.ShippingCalculation, postalCode, email string, now time.Time) domain.Order {
	orderLines := make([]domain.OrderLine, 0, len(lines))
	subtotal := decimal.Zero
	for i, line := range lines {
		price := prices[i]
		// Charged unit price: the same cents Stripe receives per line item.
		unit := price.FinalPrice.Round(2)
		lineTotal := unit.Mul(decimal.NewFromInt(int64(line.Quantity)))
		orderLine := domain.OrderLine{
			ProductID:      line.Product.ID,
			ProductName:    line.Product.Name,
			Quantity:       line.Quantity,
			UnitPrice:      price.OriginalPrice,
			FinalUnitPrice: unit,
			LineTotal:      lineTotal,
		}
		if price.Promotion != nil {
			orderLine.PromotionID = price.Promotion.ID
			orderLine.PromotionType = price.Promotion.PromotionType
		}
		orderLines = append(orderLines, orderLine)
		subtotal = subtotal.Add(lineTotal)
	}

	shippingPrice := shippingOption.Price.Round(2)
	return domain.Order{
		ID:                 s.newID(),
		TenantID:           tenantID,
		Status:             domain.OrderStatusPendingPayment,
		Currency:           s.currency,
		Lines:              orderLines,
		PostalCode:         postalCode,
		ShippingMethodID:   shippingOption.MethodID,
		ShippingMethodName: shippingOption.MethodName,
		ShippingPrice:      shippingPrice,
		DeliveryLabel:      shippingOption.DeliveryLabel,
		Subtotal:           subtotal,
		Total:              subtotal.Add(shippingPrice),
		CustomerEmail:      email,
		PricedAt:           now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func (s *checkoutService) sessionRequest(tenant domain.Tenant, order domain.Order, cmd PlaceOrderCommand, successURL, cancelURL string) payments.CheckoutSessionRequest {
	items := make([]payments.CheckoutLineItem, 0, len(order.Lines)+1)
	for _, line := range order.Lines {
		items = append(items, payments.CheckoutLineItem{
			Name:     line.ProductName,
			SKU:      line.ProductID,
			Quantity: int64(line.Quantity),
			Amount:   minorUnits(line.FinalUnitPrice),
		})
	}
	if order.ShippingPrice.IsPositive() {
		items = append(items, payments.CheckoutLineItem{
			Name:        order.ShippingMethodName,
			Description: order.DeliveryLabel,
			SKU:         checkoutShippingSKU,
			Quantity:    1,
			Amount:      minorUnits(order.ShippingPrice),
		})
	}

	return payments.CheckoutSessionRequest{
		ConnectedAccountID: tenant.StripeAccountID,
		Amount:             minorUnits(order.Total),
		Currency:           order.Currency,
		CustomerEmail:      order.CustomerEmail,
		SuccessURL:         successURL,
		CancelURL:          cancelURL,
		Locale:             strings.TrimSpace(cmd.Locale),
		IdempotencyKey:     "order-" + order.ID,
		Metadata: map[string]string{
			"orderId":  order.ID,
			"tenantId": order.TenantID,
		},
		Items: items,
	}
}

// selectShippingOption returns the calculation for methodID when it priced successfully.
func selectShippingOption(options []domain.ShippingCalculation, methodID string) (domain.ShippingCalculation, bool) {
	for _, option := range options {
		if option.MethodID != methodID {
			continue
		}
		if option.Error != "" {
			return domain.ShippingCalculation{}, false
		}
		return option, true
	}
	return domain.ShippingCalculation{}, false
}

// minorUnits rounds half away from zero to cents.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}
