package idempotency

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vitrine-field/api/internal/platform/httpx"
)

const (
	replayHeaderName = "X-Idempotent-Replay"
	maxKeyLength     = 255
	maxBodyBytes     = 1 << 20
)

// ScopeFunc returns the namespace a key belongs to, typically the tenant of the request.
type ScopeFunc func(r *http.Request) string

// MiddlewareOption customises Middleware.
type MiddlewareOption func(*guard)

// WithHeader overrides the key header, Idempotency-Key by default.
func WithHeader(name string) MiddlewareOption {
	return func(g *guard) {
		if name = strings.TrimSpace(name); name != "" {
			g.header = name
		}
	}
}

// WithTTL sets how long keys and responses are kept.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(g *guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithScope namespaces keys. Keys from different scopes never collide.
func WithScope(scope ScopeFunc) MiddlewareOption {
	return func(g *guard) {
		if scope != nil {
			g.scope = scope
		}
	}
}

func WithLogger(logger *zap.Logger) MiddlewareOption {
	return func(g *guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithClock(clock func() time.Time) MiddlewareOption {
	return func(g *guard) {
		if clock != nil {
			g.now = clock
		}
	}
}

type guard struct {
	store  Store
	header string
	ttl    time.Duration
	scope  ScopeFunc
	now    func() time.Time
	logger *zap.Logger
}

// Middleware makes a handler safe to retry. The first request with a key runs the handler and
// its response is stored; retries with the same key and body get the stored response with
// X-Idempotent-Replay: true. The key header is required. 5xx responses are not stored so the
// client can retry them.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	g := &guard{
		store:  store,
		header: "Idempotency-Key",
		ttl:    DefaultTTL,
		scope:  func(*http.Request) string { return "global" },
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.serve(w, r, next)
		})
	}
}

func (g *guard) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	ctx := r.Context()
	fail := func(code, message string, status int) {
		httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
	}

	value := strings.TrimSpace(r.Header.Get(g.header))
	switch {
	case value == "":
		fail("idempotency_key_required", "missing "+g.header+" header", http.StatusBadRequest)
		return
	case len(value) > maxKeyLength:
		fail("idempotency_key_invalid", "idempotency key is too long", http.StatusBadRequest)
		return
	}
	body, err := bufferRequestBody(r)
	if err != nil {
		fail("invalid_request", "unable to read request body", http.StatusBadRequest)
		return
	}

	key := Key{Scope: g.scope(r), Value: value}
	fingerprint := fingerprintRequest(r, key.Scope, body)
	logger := g.logger.With(zap.String("idempotency_scope", key.Scope))

	claim, record, err := g.store.Reserve(ctx, key, fingerprint, g.now().UTC(), g.ttl)
	switch {
	case errors.Is(err, ErrFingerprintMismatch):
		fail("idempotency_key_conflict", "idempotency key already used for a different request", http.StatusConflict)
		return
	case err != nil:
		logger.Error("idempotency reserve failed", zap.Error(err))
		fail("idempotency_unavailable", "unable to process idempotency key", http.StatusServiceUnavailable)
		return
	case claim == ClaimReplay:
		replay(w, record.Response)
		return
	case claim == ClaimInFlight:
		fail("idempotency_in_progress", "another request is processing this idempotency key", http.StatusConflict)
		return
	}

	buf := newBufferedResponse()
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				g.release(logger, r, key)
				panic(rec)
			}
		}()
		next.ServeHTTP(buf, r)
	}()

	if buf.status() >= http.StatusInternalServerError {
		g.release(logger, r, key)
	} else if err := g.store.SaveResponse(ctx, key, fingerprint, buf.response(), g.now().UTC(), g.ttl); err != nil {
		logger.Error("idempotency save failed", zap.Error(err))
		g.release(logger, r, key)
	}
	if err := buf.flushTo(w); err != nil {
		logger.Warn("idempotency response flush failed", zap.Error(err))
	}
}

func (g *guard) release(logger *zap.Logger, r *http.Request, key Key) {
	if err := g.store.Release(r.Context(), key); err != nil {
		logger.Warn("idempotency release failed", zap.Error(err))
	}
}

func bufferRequestBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	if len(data) > maxBodyBytes {
		return nil, errors.New("idempotency: request body too large")
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

// fingerprintRequest binds a key to method, path, query, scope and body digest.
func fingerprintRequest(r *http.Request, scope string, body []byte) string {
	bodyDigest := ""
	if len(body) > 0 {
		bodyDigest = digest(body)
	}
	parts := []string{strings.ToUpper(r.Method), r.URL.Path, r.URL.RawQuery, scope, bodyDigest}
	return digest([]byte(strings.Join(parts, "|")))
}

func replay(w http.ResponseWriter, resp Response) {
	for name, values := range resp.Headers {
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.Header().Set(replayHeaderName, "true")
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}
