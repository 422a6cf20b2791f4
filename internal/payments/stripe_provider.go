package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

const (
	providerStripe         = "stripe"
	defaultSessionLifetime = 30 * time.Minute
	fallbackLineName       = "Order"
)

var errNilProvider = errors.New("stripe: provider is nil")

// StripeLogger receives structured provider events.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeOAuthAPI interface {
	New(params *stripe.OAuthTokenParams) (*stripe.OAuthToken, error)
	AuthorizeURL(params *stripe.AuthorizeURLParams) string
}

type stripeClients struct {
	sessions stripeSessionAPI
	oauth    stripeOAuthAPI
}

// StripeProviderConfig configures the StripeProvider. Clients replaces the SDK clients in tests.
type StripeProviderConfig struct {
	APIKey          string
	ConnectClientID string
	RedirectURL     string
	Backends        *stripe.Backends
	Logger          StripeLogger
	Clock           func() time.Time
	Clients         *stripeClients
}

// StripeProvider creates Checkout sessions on connected accounts and runs the Connect OAuth flow.
type StripeProvider struct {
	api         stripeClients
	clientID    string
	redirectURL string
	now         func() time.Time
	logger      StripeLogger
}

var (
	_ Provider        = (*StripeProvider)(nil)
	_ ConnectProvider = (*StripeProvider)(nil)
)

func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	api, err := stripeClientsFor(cfg)
	if err != nil {
		return nil, err
	}
	p := &StripeProvider{
		api:         api,
		clientID:    strings.TrimSpace(cfg.ConnectClientID),
		redirectURL: strings.TrimSpace(cfg.RedirectURL),
		now:         time.Now,
		logger:      cfg.Logger,
	}
	if cfg.Clock != nil {
		p.now = cfg.Clock
	}
	if p.logger == nil {
		p.logger = func(context.Context, string, map[string]any) {}
	}
	return p, nil
}

func stripeClientsFor(cfg StripeProviderConfig) (stripeClients, error) {
	if cfg.Clients != nil {
		if cfg.Clients.sessions == nil || cfg.Clients.oauth == nil {
			return stripeClients{}, errors.New("stripe: incomplete client configuration")
		}
		return *cfg.Clients, nil
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return stripeClients{}, errors.New("stripe: api key is required")
	}
	api := client.New(key, cfg.Backends)
	return stripeClients{sessions: api.CheckoutSessions, oauth: api.OAuth}, nil
}

// CreateCheckoutSession opens a payment-mode Checkout session on the merchant's connected
// account. Line item amounts are minor units; an empty item list charges req.Amount as one line.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if p == nil {
		return CheckoutSession{}, errNilProvider
	}
	session, err := p.api.sessions.New(checkoutParams(ctx, req))
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	intentID := paymentIntentID(session)
	p.logger(ctx, "payments.stripe.session.created", map[string]any{
		"sessionId":     session.ID,
		"paymentIntent": intentID,
		"account":       req.ConnectedAccountID,
		"currency":      session.Currency,
	})

	expiresAt := p.now().UTC().Add(defaultSessionLifetime)
	if session.ExpiresAt > 0 {
		expiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}
	return CheckoutSession{
		ID:          session.ID,
		Provider:    providerStripe,
		RedirectURL: session.URL,
		IntentID:    intentID,
		ExpiresAt:   expiresAt,
	}, nil
}

func checkoutParams(ctx context.Context, req CheckoutSessionRequest) *stripe.CheckoutSessionParams {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	if v := strings.TrimSpace(req.IdempotencyKey); v != "" {
		params.SetIdempotencyKey(v)
	}
	if v := strings.TrimSpace(req.ConnectedAccountID); v != "" {
		params.SetStripeAccount(v)
	}
	if v := strings.TrimSpace(req.CustomerEmail); v != "" {
		params.CustomerEmail = stripe.String(v)
	}
	if v := stripeLocale(req.Locale); v != "" {
		params.Locale = stripe.String(v)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = cloneMetadata(req.Metadata)
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: cloneMetadata(req.Metadata),
		}
	}

	items := req.Items
	if len(items) == 0 {
		items = []CheckoutLineItem{{Name: fallbackLineName, Quantity: 1, Amount: req.Amount}}
	}
	params.LineItems = make([]*stripe.CheckoutSessionLineItemParams, 0, len(items))
	for _, item := range items {
		params.LineItems = append(params.LineItems, lineItemParams(item, req.Currency))
	}
	return params
}

func lineItemParams(item CheckoutLineItem, currency string) *stripe.CheckoutSessionLineItemParams {
	if c := strings.TrimSpace(item.Currency); c != "" {
		currency = c
	}
	product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
		Name: stripe.String(item.Name),
	}
	if item.Description != "" {
		product.Description = stripe.String(item.Description)
	}
	if item.SKU != "" {
		product.Metadata = map[string]string{"productId": item.SKU}
	}
	return &stripe.CheckoutSessionLineItemParams{
		Quantity: stripe.Int64(max(item.Quantity, 1)),
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:    stripe.String(strings.ToLower(currency)),
			UnitAmount:  stripe.Int64(item.Amount),
			ProductData: product,
		},
	}
}

// LookupSession retrieves a Checkout session and reports its payment state.
func (p *StripeProvider) LookupSession(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errNilProvider
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	if v := strings.TrimSpace(req.ConnectedAccountID); v != "" {
		params.SetStripeAccount(v)
	}
	session, err := p.api.sessions.Get(strings.TrimSpace(req.SessionID), params)
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("stripe: lookup checkout session: %w", err)
	}
	if session == nil {
		return PaymentDetails{Provider: providerStripe, Status: StatusPending}, nil
	}
	return PaymentDetails{
		Provider: providerStripe,
		IntentID: paymentIntentID(session),
		Status:   sessionStatus(session),
		Amount:   session.AmountTotal,
		Currency: strings.ToUpper(string(session.Currency)),
	}, nil
}

// AuthorizeURL returns the Connect onboarding URL carrying state for CSRF protection.
func (p *StripeProvider) AuthorizeURL(state string) (string, error) {
	if p == nil {
		return "", errNilProvider
	}
	if p.clientID == "" {
		return "", ErrConnectNotConfigured
	}
	params := &stripe.AuthorizeURLParams{
		ClientID:     stripe.String(p.clientID),
		ResponseType: stripe.String("code"),
		Scope:        stripe.String(string(stripe.OAuthScopeTypeReadWrite)),
		State:        stripe.String(state),
	}
	if p.redirectURL != "" {
		params.RedirectURI = stripe.String(p.redirectURL)
	}
	return p.api.oauth.AuthorizeURL(params), nil
}

// ExchangeCode trades the OAuth authorization code for the merchant's account id.
func (p *StripeProvider) ExchangeCode(ctx context.Context, code string) (ConnectedAccount, error) {
	if p == nil {
		return ConnectedAccount{}, errNilProvider
	}
	if code = strings.TrimSpace(code); code == "" {
		return ConnectedAccount{}, ErrInvalidAuthorizationCode
	}
	params := &stripe.OAuthTokenParams{
		GrantType: stripe.String("authorization_code"),
		Code:      stripe.String(code),
	}
	params.Context = ctx
	token, err := p.api.oauth.New(params)
	if err != nil {
		return ConnectedAccount{}, fmt.Errorf("stripe: exchange oauth code: %w", err)
	}
	if token == nil || strings.TrimSpace(token.StripeUserID) == "" {
		return ConnectedAccount{}, ErrInvalidAuthorizationCode
	}
	p.logger(ctx, "payments.stripe.connect.linked", map[string]any{
		"account":  token.StripeUserID,
		"livemode": token.Livemode,
	})
	return ConnectedAccount{
		AccountID: token.StripeUserID,
		Scope:     string(token.Scope),
		Livemode:  token.Livemode,
	}, nil
}

func sessionStatus(session *stripe.CheckoutSession) Status {
	switch {
	case session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		return StatusSucceeded
	case session.Status == stripe.CheckoutSessionStatusExpired:
		return StatusFailed
	default:
		return StatusPending
	}
}

func paymentIntentID(session *stripe.CheckoutSession) string {
	if session == nil || session.PaymentIntent == nil {
		return ""
	}
	return session.PaymentIntent.ID
}

// stripeLocale maps pt_BR style tags to what Checkout accepts; pt-BR keeps its region.
func stripeLocale(locale string) string {
	tag := strings.ReplaceAll(strings.TrimSpace(locale), "_", "-")
	if strings.EqualFold(tag, "pt-BR") {
		return "pt-BR"
	}
	return strings.ToLower(tag)
}

func cloneMetadata(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
