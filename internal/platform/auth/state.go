package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/oklog/ulid/v2"
)

const (
	stateIssuer     = "vitrine-api"
	stateAudience   = "stripe-connect"
	defaultStateTTL = 15 * time.Minute
)

var (
	// ErrStateInvalid indicates the state token is malformed, forged or expired.
	ErrStateInvalid = errors.New("auth: invalid state")
)

type stateClaims struct {
	TenantID string `json:"tid"`
	jwt.RegisteredClaims
}

// StateSigner issues and verifies short-lived HS256 tokens binding an OAuth round trip to a tenant.
type StateSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewStateSigner validates the key and applies the default lifetime when ttl is not positive.
func NewStateSigner(secret string, ttl time.Duration, now func() time.Time) (*StateSigner, error) {
	secret = strings.TrimSpace(secret)
	if len(secret) < 32 {
		return nil, errors.New("auth: state secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	if now == nil {
		now = time.Now
	}
	return &StateSigner{key: []byte(secret), ttl: ttl, now: now}, nil
}

// Issue returns a signed state carrying tenantID.
func (s *StateSigner) Issue(tenantID string) (string, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return "", errors.New("auth: tenant id is required")
	}
	now := s.now().UTC()
	claims := stateClaims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Issuer:    stateIssuer,
			Audience:  jwt.ClaimStrings{stateAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("auth: sign state: %w", err)
	}
	return signed, nil
}

// Verify returns the tenant bound to state. Any failure maps to ErrStateInvalid.
func (s *StateSigner) Verify(state string) (string, error) {
	state = strings.TrimSpace(state)
	if state == "" {
		return "", ErrStateInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	claims := &stateClaims{}
	if _, err := parser.ParseWithClaims(state, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	}); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStateInvalid, err)
	}
	if !claims.VerifyExpiresAt(s.now().UTC(), true) {
		return "", fmt.Errorf("%w: expired", ErrStateInvalid)
	}
	if !claims.VerifyIssuer(stateIssuer, true) || !claims.VerifyAudience(stateAudience, true) {
		return "", ErrStateInvalid
	}
	if strings.TrimSpace(claims.TenantID) == "" {
		return "", ErrStateInvalid
	}
	return claims.TenantID, nil
}
