package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const meterName = "github.com/vitrine-field/api/internal/platform/secrets"

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret references against Secret Manager, with a local file for machines
// without credentials.
type Fetcher struct {
	remote     secretManagerClient
	ownsRemote bool
	fallback   *fallbackFile
	logger     *zap.Logger

	environment    string
	defaultProject string
	projects       map[string]string

	ttl time.Duration
	now func() time.Time

	mu     sync.RWMutex
	cached map[string]cachedValue
	flight singleflight.Group

	fetchLatency metric.Float64Histogram
	cacheHits    metric.Int64Counter
}

type cachedValue struct {
	value     string
	canonical string
	expires   time.Time
}

func (c cachedValue) fresh(now time.Time) bool {
	return c.expires.IsZero() || now.Before(c.expires)
}

type settings struct {
	logger         *zap.Logger
	environment    string
	defaultProject string
	projects       map[string]string
	fallbackPath   string
	client         secretManagerClient
	clientOpts     []option.ClientOption
	ttl            time.Duration
	now            func() time.Time
}

// Option customises NewFetcher.
type Option func(*settings)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithEnvironment selects the key used in the project map.
func WithEnvironment(env string) Option {
	return func(s *settings) { s.environment = strings.ToLower(strings.TrimSpace(env)) }
}

// WithDefaultProject is used when the project map has no entry for the environment.
func WithDefaultProject(projectID string) Option {
	return func(s *settings) { s.defaultProject = strings.TrimSpace(projectID) }
}

// WithProjectMap maps environments to Secret Manager projects.
func WithProjectMap(projects map[string]string) Option {
	return func(s *settings) {
		s.projects = make(map[string]string, len(projects))
		for env, id := range projects {
			s.projects[strings.ToLower(env)] = strings.TrimSpace(id)
		}
	}
}

// WithFallbackFile points at the local secrets file. Defaults to .secrets.local.
func WithFallbackFile(path string) Option {
	return func(s *settings) { s.fallbackPath = strings.TrimSpace(path) }
}

// WithSecretManagerClient injects a client instead of dialing one.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(s *settings) { s.client = client }
}

// WithClientOptions forwards options to the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(s *settings) { s.clientOpts = append(s.clientOpts, opts...) }
}

// WithCacheTTL bounds how long a value is reused. Zero caches for the process lifetime.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *settings) { s.ttl = ttl }
}

// WithClock overrides the time source for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// NewFetcher builds a Fetcher. When the Secret Manager client cannot be created the fetcher
// serves the fallback file only.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	s := settings{
		logger:       zap.NewNop(),
		environment:  strings.ToLower(strings.TrimSpace(os.Getenv("API_SECURITY_ENVIRONMENT"))),
		fallbackPath: ".secrets.local",
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.ttl < 0 {
		return nil, errors.New("secrets: cache ttl must not be negative")
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.environment == "" {
		s.environment = "local"
	}
	if s.fallbackPath != "" {
		if abs, err := filepath.Abs(s.fallbackPath); err == nil {
			s.fallbackPath = abs
		}
	}

	meter := otel.GetMeterProvider().Meter(meterName)
	latency, err := meter.Float64Histogram("secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Secret resolution latency by source"))
	if err != nil {
		return nil, fmt.Errorf("secrets: register latency metric: %w", err)
	}
	hits, err := meter.Int64Counter("secrets.fetch.cache_hits",
		metric.WithDescription("Secret resolutions served from cache"))
	if err != nil {
		return nil, fmt.Errorf("secrets: register cache metric: %w", err)
	}

	f := &Fetcher{
		remote:         s.client,
		fallback:       &fallbackFile{path: s.fallbackPath},
		logger:         s.logger,
		environment:    s.environment,
		defaultProject: s.defaultProject,
		projects:       s.projects,
		ttl:            s.ttl,
		now:            s.now,
		cached:         make(map[string]cachedValue),
		fetchLatency:   latency,
		cacheHits:      hits,
	}
	if f.remote == nil {
		client, err := secretManagerClientFactory(ctx, s.clientOpts...)
		if err != nil {
			s.logger.Warn("secret manager unavailable, using fallback file only", zap.Error(err))
		} else {
			f.remote, f.ownsRemote = client, true
		}
	}
	return f, nil
}

// Close releases a client the fetcher created itself.
func (f *Fetcher) Close() error {
	if !f.ownsRemote || f.remote == nil {
		return nil
	}
	return f.remote.Close()
}

// ResolveSecret satisfies config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f.Resolve(ctx, ref)
}

// Resolve returns the value for ref. Concurrent misses for one reference share a single fetch.
func (f *Fetcher) Resolve(ctx context.Context, raw string) (string, error) {
	started := time.Now()
	ref, err := parseReference(raw)
	if err != nil {
		return "", err
	}

	key := ref.cacheKey()
	f.mu.RLock()
	entry, ok := f.cached[key]
	f.mu.RUnlock()
	if ok && entry.fresh(f.now()) {
		f.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", ref.masked())))
		f.observe(ctx, started, "cache")
		return entry.value, nil
	}

	value, err, _ := f.flight.Do(key, func() (any, error) {
		value, source, err := f.fetch(ctx, ref)
		if err != nil {
			return "", err
		}
		entry := cachedValue{value: value, canonical: ref.canonical}
		if f.ttl > 0 {
			entry.expires = f.now().Add(f.ttl)
		}
		f.mu.Lock()
		f.cached[key] = entry
		f.mu.Unlock()
		f.observe(ctx, started, source)
		return value, nil
	})
	if err != nil {
		f.observe(ctx, started, "error")
		return "", err
	}
	return value.(string), nil
}

// Invalidate forgets every cached version of ref.
func (f *Fetcher) Invalidate(raw string) {
	ref, err := parseReference(raw)
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, entry := range f.cached {
		if entry.canonical == ref.canonical {
			delete(f.cached, key)
		}
	}
}

// fetch asks Secret Manager first. Auth and availability failures fall through to the local
// file; anything else, NotFound included, is returned.
func (f *Fetcher) fetch(ctx context.Context, ref reference) (string, string, error) {
	if project := f.projectFor(ref); project != "" && f.remote != nil {
		resp, err := f.remote.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: ref.resource(project)})
		switch {
		case err == nil && resp.GetPayload() != nil:
			return string(resp.GetPayload().GetData()), "remote", nil
		case err == nil:
			return "", "", fmt.Errorf("secrets: empty payload for %s", ref.canonical)
		case !retryLocally(err):
			return "", "", fmt.Errorf("secrets: fetch %s: %w", ref.canonical, err)
		}
		f.logger.Debug("secret manager refused, trying fallback file", zap.String("secret", ref.masked()), zap.Error(err))
	}
	value, err := f.fallback.lookup(ref)
	if err != nil {
		return "", "", err
	}
	return value, "fallback", nil
}

func (f *Fetcher) projectFor(ref reference) string {
	if ref.project != "" {
		return ref.project
	}
	if id := f.projects[f.environment]; id != "" {
		return id
	}
	return f.defaultProject
}

func (f *Fetcher) observe(ctx context.Context, started time.Time, source string) {
	ms := float64(time.Since(started)) / float64(time.Millisecond)
	f.fetchLatency.Record(ctx, ms, metric.WithAttributes(attribute.String("source", source)))
}

func retryLocally(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}
