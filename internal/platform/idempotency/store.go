package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long records are retained when no TTL is configured.
const DefaultTTL = 24 * time.Hour

// ErrFingerprintMismatch is returned when a key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key reserved for different request fingerprint")

// Claim is the outcome of reserving a key.
type Claim int

const (
	// ClaimAcquired means the caller owns the key and runs the handler.
	ClaimAcquired Claim = iota
	// ClaimReplay means a completed response is stored and must be replayed.
	ClaimReplay
	// ClaimInFlight means another request holds the key.
	ClaimInFlight
)

// State is the lifecycle of a stored key.
type State string

const (
	StatePending   State = "pending"
	StateCompleted State = "completed"
)

// Key is a client supplied idempotency key inside its scope, usually the tenant.
type Key struct {
	Scope string
	Value string
}

// ID is the storage identifier: sha256 of scope and value.
func (k Key) ID() string {
	return digest([]byte(strings.TrimSpace(k.Scope) + "|" + strings.TrimSpace(k.Value)))
}

// Record is the stored state of one key.
type Record struct {
	Key         Key
	Fingerprint string
	State       State
	Response    Response
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ExpiresAt   time.Time
}

func (r Record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Response is the HTTP response kept for replays.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store persists reservations and completed responses. Reserve must be atomic across
// instances: two concurrent calls for one key never both get ClaimAcquired.
type Store interface {
	Reserve(ctx context.Context, key Key, fingerprint string, now time.Time, ttl time.Duration) (Claim, Record, error)
	SaveResponse(ctx context.Context, key Key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key Key) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// claimAgainst decides a reservation given the stored record, if any. It returns the record to
// write when the caller acquires the key, or nil when the stored record stands.
func claimAgainst(existing *Record, key Key, fingerprint string, now time.Time, ttl time.Duration) (Claim, Record, *Record, error) {
	if existing != nil && !existing.expired(now) {
		switch {
		case existing.Fingerprint != fingerprint:
			return 0, Record{}, nil, ErrFingerprintMismatch
		case existing.State == StateCompleted:
			return ClaimReplay, *existing, nil, nil
		default:
			return ClaimInFlight, *existing, nil, nil
		}
	}
	pending := Record{
		Key:         key,
		Fingerprint: fingerprint,
		State:       StatePending,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(ttlOrDefault(ttl)),
	}
	return ClaimAcquired, pending, &pending, nil
}

// completed returns the record holding resp. A missing record is recreated.
func completed(existing *Record, key Key, fingerprint string, resp Response, now time.Time, ttl time.Duration) (Record, error) {
	record := Record{Key: key, Fingerprint: fingerprint, CreatedAt: now}
	if existing != nil {
		if existing.Fingerprint != fingerprint {
			return Record{}, ErrFingerprintMismatch
		}
		record = *existing
	}
	record.State = StateCompleted
	record.Response = Response{Status: resp.Status, Headers: replayableHeaders(resp.Headers)}
	if len(resp.Body) > 0 {
		record.Response.Body = append([]byte(nil), resp.Body...)
	}
	record.UpdatedAt = now
	record.ExpiresAt = now.Add(ttlOrDefault(ttl))
	return record, nil
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return DefaultTTL
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// hopByHop lists headers that describe one connection and must not be replayed.
var hopByHop = map[string]bool{
	"Connection": true, "Content-Length": true, "Date": true, "Keep-Alive": true,
	"Proxy-Authenticate": true, "Proxy-Authorization": true, "Te": true, "Trailers": true,
	"Transfer-Encoding": true, "Upgrade": true,
}

func replayableHeaders(header http.Header) http.Header {
	out := make(http.Header, len(header))
	for name, values := range header {
		name = http.CanonicalHeaderKey(name)
		if !hopByHop[name] {
			out[name] = append([]string(nil), values...)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
