package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/vitrine-field/api/internal/platform/httpx"
)

const (
	defaultSignatureHeader = "X-Signature"
	defaultTimestampHeader = "X-Signature-Timestamp"
	defaultNonceHeader     = "X-Signature-Nonce"

	defaultClockSkew = 5 * time.Minute
	defaultNonceTTL  = 5 * time.Minute

	meterName = "github.com/vitrine-field/api/internal/platform/auth"
)

// SecretProvider resolves the shared secret for a named internal caller.
type SecretProvider interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// StaticSecrets serves secrets from configuration.
type StaticSecrets map[string]string

// GetSecret implements SecretProvider.
func (s StaticSecrets) GetSecret(_ context.Context, name string) (string, error) {
	value := strings.TrimSpace(s[name])
	if value == "" {
		return "", fmt.Errorf("auth: secret %q not configured", name)
	}
	return value, nil
}

// HMACValidator guards internal endpoints with a signed canonical request plus a single-use nonce.
//
// The canonical form is METHOD, escaped path, timestamp, nonce and hex sha256(body), joined with
// newlines. The signature is HMAC-SHA256 over it, sent as base64 or hex.
type HMACValidator struct {
	secrets SecretProvider
	nonces  NonceStore
	logger  *zap.Logger
	counter metric.Int64Counter
	now     func() time.Time

	headers   signatureHeaders
	clockSkew time.Duration
	nonceTTL  time.Duration
}

type signatureHeaders struct {
	signature, timestamp, nonce string
}

// HMACOption customises the validator.
type HMACOption func(*HMACValidator)

// NewHMACValidator builds a validator over the given secrets and nonce registry.
func NewHMACValidator(secrets SecretProvider, nonces NonceStore, opts ...HMACOption) *HMACValidator {
	v := &HMACValidator{
		secrets:   secrets,
		nonces:    nonces,
		logger:    zap.NewNop(),
		now:       time.Now,
		headers:   signatureHeaders{defaultSignatureHeader, defaultTimestampHeader, defaultNonceHeader},
		clockSkew: defaultClockSkew,
		nonceTTL:  defaultNonceTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	v.counter, _ = otel.GetMeterProvider().Meter(meterName).Int64Counter(
		"auth.hmac.verifications",
		metric.WithDescription("Signed internal request verifications by outcome"),
	)
	return v
}

// WithHMACLogger overrides the validator logger.
func WithHMACLogger(logger *zap.Logger) HMACOption {
	return func(v *HMACValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithHMACClock injects a clock for tests.
func WithHMACClock(now func() time.Time) HMACOption {
	return func(v *HMACValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithHMACHeaders renames the signature, timestamp and nonce headers. Blank names keep the default.
func WithHMACHeaders(signature, timestamp, nonce string) HMACOption {
	return func(v *HMACValidator) {
		override := func(dst *string, value string) {
			if value = strings.TrimSpace(value); value != "" {
				*dst = value
			}
		}
		override(&v.headers.signature, signature)
		override(&v.headers.timestamp, timestamp)
		override(&v.headers.nonce, nonce)
	}
}

// WithHMACClockSkew sets how far the signed timestamp may drift from now.
func WithHMACClockSkew(d time.Duration) HMACOption {
	return func(v *HMACValidator) {
		if d > 0 {
			v.clockSkew = d
		}
	}
}

// WithHMACNonceTTL sets how long a nonce stays burned.
func WithHMACNonceTTL(d time.Duration) HMACOption {
	return func(v *HMACValidator) {
		if d > 0 {
			v.nonceTTL = d
		}
	}
}

// HMACMetadata is attached to verified requests.
type HMACMetadata struct {
	SecretName string
	Timestamp  time.Time
	Nonce      string
}

type hmacContextKey struct{}

// HMACMetadataFromContext returns the verification details of the current request.
func HMACMetadataFromContext(ctx context.Context) (*HMACMetadata, bool) {
	meta, ok := ctx.Value(hmacContextKey{}).(*HMACMetadata)
	return meta, ok && meta != nil
}

// SignRequest computes the base64 signature a caller sends for the given request parts.
func SignRequest(secret, method, path string, body []byte, timestamp, nonce string) string {
	return base64.StdEncoding.EncodeToString(sign([]byte(secret), canonicalRequest(method, path, body, timestamp, nonce)))
}

// rejection is a verification failure rendered as an error envelope.
type rejection struct {
	status int
	code   string
	reason string
	cause  error
}

func (r *rejection) Error() string {
	if r.cause != nil {
		return r.reason + ": " + r.cause.Error()
	}
	return r.reason
}

func reject(status int, code, reason string) *rejection {
	return &rejection{status: status, code: code, reason: reason}
}

// RequireHMAC rejects requests that are not signed with the named secret.
func (v *HMACValidator) RequireHMAC(secretName string) func(http.Handler) http.Handler {
	secretName = strings.TrimSpace(secretName)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			meta, rej := v.verify(ctx, r, secretName)
			if rej != nil {
				v.observe(ctx, false, rej.code)
				if rej.status >= http.StatusInternalServerError {
					v.logger.Warn("hmac verification unavailable", zap.String("secret", secretName), zap.Error(rej))
				}
				httpx.WriteError(ctx, w, httpx.NewError(rej.code, rej.reason, rej.status))
				return
			}
			v.observe(ctx, true, "ok")
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, hmacContextKey{}, meta)))
		})
	}
}

func (v *HMACValidator) verify(ctx context.Context, r *http.Request, secretName string) (*HMACMetadata, *rejection) {
	unavailable := func(reason string, cause error) *rejection {
		rej := reject(http.StatusServiceUnavailable, "verification_unavailable", reason)
		rej.cause = cause
		return rej
	}
	if secretName == "" || v.secrets == nil {
		return nil, unavailable("hmac secret not configured", nil)
	}
	secret, err := v.secrets.GetSecret(ctx, secretName)
	if err != nil {
		return nil, unavailable("hmac secret unavailable", err)
	}

	sigValue := strings.TrimSpace(r.Header.Get(v.headers.signature))
	tsValue := strings.TrimSpace(r.Header.Get(v.headers.timestamp))
	nonce := strings.TrimSpace(r.Header.Get(v.headers.nonce))
	if sigValue == "" || tsValue == "" || nonce == "" {
		return nil, reject(http.StatusUnauthorized, "signature_missing", "signature headers missing")
	}

	signedAt, err := parseTimestamp(tsValue)
	if err != nil {
		return nil, reject(http.StatusUnauthorized, "timestamp_invalid", "signature timestamp invalid")
	}
	now := v.now()
	if drift := now.Sub(signedAt); drift > v.clockSkew || drift < -v.clockSkew {
		return nil, reject(http.StatusUnauthorized, "timestamp_skew", "signature timestamp outside allowed window")
	}

	body, err := bufferBody(r)
	if err != nil {
		return nil, reject(http.StatusBadRequest, "invalid_body", "unable to read body for signature verification")
	}
	got, err := decodeSignature(sigValue)
	if err != nil {
		return nil, reject(http.StatusUnauthorized, "signature_invalid", "signature encoding invalid")
	}
	want := sign([]byte(secret), canonicalRequest(r.Method, r.URL.EscapedPath(), body, tsValue, nonce))
	if !hmac.Equal(got, want) {
		return nil, reject(http.StatusUnauthorized, "signature_mismatch", "signature verification failed")
	}

	if v.nonces == nil {
		return nil, unavailable("nonce store unavailable", nil)
	}
	expiry := signedAt.Add(v.nonceTTL)
	if expiry.Before(now) {
		expiry = now.Add(v.nonceTTL)
	}
	fresh, err := v.nonces.UseNonce(ctx, secretName, nonce, expiry)
	if err != nil {
		return nil, unavailable("nonce storage error", err)
	}
	if !fresh {
		return nil, reject(http.StatusUnauthorized, "nonce_replay", "duplicate signature nonce")
	}
	return &HMACMetadata{SecretName: secretName, Timestamp: signedAt, Nonce: nonce}, nil
}

func (v *HMACValidator) observe(ctx context.Context, success bool, outcome string) {
	if v.counter == nil {
		return
	}
	v.counter.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", success),
		attribute.String("outcome", outcome),
	))
}

// bufferBody reads the body and replaces it so the next handler can read it again.
func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// decodeSignature accepts hex (64 chars) or base64 (44 chars) HMAC-SHA256 digests.
func decodeSignature(value string) ([]byte, error) {
	if len(value) == hex.EncodedLen(sha256.Size) {
		if decoded, err := hex.DecodeString(value); err == nil {
			return decoded, nil
		}
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil && len(decoded) > 0 {
		return decoded, nil
	}
	return nil, errors.New("auth: signature must be base64 or hex encoded")
}

// parseTimestamp accepts RFC 3339 or unix seconds.
func parseTimestamp(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	seconds, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("auth: unable to parse timestamp %q", value)
	}
	return time.Unix(seconds, 0).UTC(), nil
}

func canonicalRequest(method, path string, body []byte, timestamp, nonce string) []byte {
	if path == "" {
		path = "/"
	}
	digest := sha256.Sum256(body)
	var b strings.Builder
	for i, part := range []string{strings.ToUpper(method), path, timestamp, nonce, hex.EncodeToString(digest[:])} {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(part)
	}
	return []byte(b.String())
}

func sign(secret, message []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(message)
	return mac.Sum(nil)
}
