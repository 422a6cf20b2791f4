package payments

import (
	"context"
	"errors"
	"time"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or PSP confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the PSP reports the payment as successfully captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the PSP reports a failure and no further action is possible.
	StatusFailed Status = "failed"
)

var (
	// ErrConnectNotConfigured is returned when the Connect client id is missing.
	ErrConnectNotConfigured = errors.New("payments: connect client id not configured")
	// ErrInvalidAuthorizationCode is returned when the OAuth callback carries no usable code.
	ErrInvalidAuthorizationCode = errors.New("payments: invalid authorization code")
)

// CheckoutLineItem describes a single line item to include in a checkout session. Amount is the
// unit price in minor units.
type CheckoutLineItem struct {
	Name        string
	Description string
	SKU         string
	Quantity    int64
	Amount      int64
	Currency    string
}

// CheckoutSessionRequest captures the payload required to create a checkout session on behalf of
// a connected merchant account.
type CheckoutSessionRequest struct {
	ConnectedAccountID string
	Amount             int64
	Currency           string
	CustomerEmail      string
	SuccessURL         string
	CancelURL          string
	Locale             string
	Metadata           map[string]string
	IdempotencyKey     string
	Items              []CheckoutLineItem
}

// CheckoutSession represents the PSP session returned to the client.
type CheckoutSession struct {
	ID          string
	Provider    string
	RedirectURL string
	IntentID    string
	ExpiresAt   time.Time
}

// LookupRequest identifies a checkout session on a connected account.
type LookupRequest struct {
	ConnectedAccountID string
	SessionID          string
}

// PaymentDetails normalises PSP specific fields for storage.
type PaymentDetails struct {
	Provider string
	IntentID string
	Status   Status
	Amount   int64
	Currency string
}

// ConnectedAccount is the merchant account linked through the OAuth flow.
type ConnectedAccount struct {
	AccountID string
	Scope     string
	Livemode  bool
}

// Provider defines the checkout contract for PSP adapters.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	LookupSession(ctx context.Context, req LookupRequest) (PaymentDetails, error)
}

// ConnectProvider links merchant accounts to the platform.
type ConnectProvider interface {
	AuthorizeURL(state string) (string, error)
	ExchangeCode(ctx context.Context, code string) (ConnectedAccount, error)
}
