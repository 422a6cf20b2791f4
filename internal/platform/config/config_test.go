package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func loadFromMap(t *testing.T, env map[string]string, opts ...Option) (Config, error) {
	t.Helper()
	base := []Option{WithEnvMap(env), WithoutSystemEnv(), WithEnvFile("")}
	return Load(context.Background(), append(base, opts...)...)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadFromMap(t, map[string]string{"API_FIRESTORE_PROJECT_ID": "vitrine-dev"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	checks := []struct {
		name string
		ok   bool
	}{
		{"port", cfg.Server.Port == "8080"},
		{"read timeout", cfg.Server.ReadTimeout == 15*time.Second},
		{"pubsub project follows firestore", cfg.Jobs.PubSubProjectID == "vitrine-dev"},
		{"carrier timeout", cfg.Shipping.CarrierTimeout == 8*time.Second},
		{"redis disabled", cfg.Shipping.RedisAddr == ""},
		{"postal retries", cfg.PostalCode.Attempts == 2 && cfg.PostalCode.BackoffStep == 300*time.Millisecond},
		{"postal base url", cfg.PostalCode.BaseURL == "https://viacep.com.br/ws"},
		{"pricing", cfg.Pricing.Currency == "BRL" && cfg.Pricing.Locale == "pt-BR" && cfg.Pricing.CurrencySymbol == "R$"},
		{"state ttl", cfg.PSP.StateTTL == 15*time.Minute},
		{"sweep", cfg.Jobs.SweepEnabled && cfg.Jobs.SweepInterval == 5*time.Minute},
		{"security env", cfg.Security.Environment == "local"},
		{"hmac header", cfg.Security.HMAC.SignatureHeader == "X-Signature"},
		{"hmac secrets empty", len(cfg.Security.HMAC.Secrets) == 0},
		{"idempotency", cfg.Idempotency.Header == "Idempotency-Key" && cfg.Idempotency.TTL == 24*time.Hour},
	}
	for _, c := range checks {
		if !c.ok {
			t.Errorf("unexpected default: %s (%+v)", c.name, cfg)
		}
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := loadFromMap(t, map[string]string{
		"API_FIRESTORE_PROJECT_ID":       "vitrine-prod",
		"API_SERVER_PORT":                "9090",
		"API_SHIPPING_MAX_CONCURRENCY":   "8",
		"API_SHIPPING_QUOTE_CACHE_TTL":   "2m",
		"API_REDIS_ADDR":                 "redis:6379",
		"API_REDIS_DB":                   "3",
		"API_PRICING_CURRENCY":           "usd",
		"API_JOBS_PUBSUB_PROJECT_ID":     "events-prod",
		"API_JOBS_SWEEP_ENABLED":         "off",
		"API_SECURITY_ENVIRONMENT":       "PROD",
		"API_SECURITY_HMAC_SECRETS":      "Internal/Promotions-Sweep=abc, broken, =x",
		"API_IDEMPOTENCY_CLEANUP_BATCH":  "50",
		"API_SHIPPING_CARRIER_TIMEOUT":   "not-a-duration",
		"API_POSTAL_CODE_BACKOFF_STEP":   "1s",
		"API_SECURITY_HMAC_NONCE_TTL":    "30s",
		"API_SECURITY_HMAC_HEADER_NONCE": "X-Nonce",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Shipping.MaxConcurrency != 8 || cfg.Shipping.QuoteCacheTTL != 2*time.Minute {
		t.Fatalf("unexpected server/shipping %+v %+v", cfg.Server, cfg.Shipping)
	}
	if cfg.Shipping.RedisAddr != "redis:6379" || cfg.Shipping.RedisDB != 3 {
		t.Fatalf("unexpected redis settings %+v", cfg.Shipping)
	}
	if cfg.Shipping.CarrierTimeout != defaultCarrierTimeout {
		t.Fatalf("invalid duration should fall back, got %s", cfg.Shipping.CarrierTimeout)
	}
	if cfg.Pricing.Currency != "USD" {
		t.Fatalf("expected upper-cased currency, got %s", cfg.Pricing.Currency)
	}
	if cfg.Jobs.PubSubProjectID != "events-prod" || cfg.Jobs.SweepEnabled {
		t.Fatalf("unexpected jobs %+v", cfg.Jobs)
	}
	if cfg.Security.Environment != "prod" || cfg.Security.HMAC.NonceHeader != "X-Nonce" || cfg.Security.HMAC.NonceTTL != 30*time.Second {
		t.Fatalf("unexpected security %+v", cfg.Security)
	}
	if len(cfg.Security.HMAC.Secrets) != 1 || cfg.Security.HMAC.Secrets["internal/promotions-sweep"] != "abc" {
		t.Fatalf("unexpected hmac secrets %v", cfg.Security.HMAC.Secrets)
	}
	if cfg.Idempotency.CleanupBatchSize != 50 || cfg.PostalCode.BackoffStep != time.Second {
		t.Fatalf("unexpected idempotency/postal %+v %+v", cfg.Idempotency, cfg.PostalCode)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name  string
		env   map[string]string
		field string
	}{
		{"missing project", map[string]string{}, "Firestore.ProjectID"},
		{"bad currency", map[string]string{"API_FIRESTORE_PROJECT_ID": "p", "API_PRICING_CURRENCY": "EURO"}, "Pricing.Currency"},
		{"zero concurrency", map[string]string{"API_FIRESTORE_PROJECT_ID": "p", "API_SHIPPING_MAX_CONCURRENCY": "0"}, "Shipping.MaxConcurrency"},
		{"zero postal attempts", map[string]string{"API_FIRESTORE_PROJECT_ID": "p", "API_POSTAL_CODE_ATTEMPTS": "0"}, "PostalCode.Attempts"},
		{"connect without redirect", map[string]string{
			"API_FIRESTORE_PROJECT_ID":         "p",
			"API_PSP_STRIPE_CONNECT_CLIENT_ID": "ca_123",
			"API_PSP_CONNECT_STATE_SECRET":     strings.Repeat("s", 32),
		}, "PSP.ConnectRedirectURL"},
		{"short state secret", map[string]string{
			"API_FIRESTORE_PROJECT_ID":            "p",
			"API_PSP_STRIPE_CONNECT_CLIENT_ID":    "ca_123",
			"API_PSP_STRIPE_CONNECT_REDIRECT_URL": "https://shop.example/connect",
			"API_PSP_CONNECT_STATE_SECRET":        "short",
		}, "PSP.StateSecret"},
		{"sweep without interval", map[string]string{"API_FIRESTORE_PROJECT_ID": "p", "API_JOBS_SWEEP_INTERVAL": "0s"}, "Jobs.SweepInterval"},
		{"zero idempotency batch", map[string]string{"API_FIRESTORE_PROJECT_ID": "p", "API_IDEMPOTENCY_CLEANUP_BATCH": "-1"}, "Idempotency.CleanupBatchSize"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadFromMap(t, tc.env)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			found := false
			for _, f := range verr.Fields() {
				if f == tc.field {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %s in %v", tc.field, verr.Fields())
			}
		})
	}
}

func TestLoadResolvesSecretReferences(t *testing.T) {
	var refs []string
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		refs = append(refs, ref)
		return " value-of-" + strings.TrimPrefix(ref, "secret://") + " ", nil
	})
	cfg, err := loadFromMap(t, map[string]string{
		"API_FIRESTORE_PROJECT_ID":  "p",
		"API_PSP_STRIPE_API_KEY":    "sm://stripe-key",
		"API_REDIS_PASSWORD":        "plain-password",
		"API_SECURITY_HMAC_SECRETS": "internal/promotions-sweep=secret://sweep-hmac",
	}, WithSecretResolver(resolver), WithRequiredSecrets("PSP.StripeAPIKey", "Security.HMAC.Secrets[internal/promotions-sweep]"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PSP.StripeAPIKey != "value-of-stripe-key" {
		t.Fatalf("expected resolved stripe key, got %q", cfg.PSP.StripeAPIKey)
	}
	if cfg.Security.HMAC.Secrets["internal/promotions-sweep"] != "value-of-sweep-hmac" {
		t.Fatalf("expected resolved hmac secret, got %v", cfg.Security.HMAC.Secrets)
	}
	if cfg.Shipping.RedisPassword != "plain-password" {
		t.Fatalf("plain values must pass through, got %q", cfg.Shipping.RedisPassword)
	}
	if len(refs) != 2 {
		t.Fatalf("expected two resolver calls, got %v", refs)
	}
	for _, ref := range refs {
		if !strings.HasPrefix(ref, "secret://") {
			t.Fatalf("expected normalised reference, got %s", ref)
		}
	}
}

func TestLoadSecretErrors(t *testing.T) {
	env := map[string]string{"API_FIRESTORE_PROJECT_ID": "p", "API_PSP_STRIPE_API_KEY": "secret://stripe"}

	_, err := loadFromMap(t, env)
	var serr *SecretError
	if !errors.As(err, &serr) || !errors.Is(err, errSecretResolverNotConfigured) || serr.Field != "PSP.StripeAPIKey" {
		t.Fatalf("expected unconfigured resolver error, got %v", err)
	}

	boom := errors.New("permission denied")
	_, err = loadFromMap(t, env, WithSecretResolver(SecretResolverFunc(func(context.Context, string) (string, error) {
		return "", boom
	})))
	if !errors.Is(err, boom) {
		t.Fatalf("expected resolver error, got %v", err)
	}
	if strings.Contains(err.Error(), "secret://stripe") {
		t.Fatalf("error must not leak the reference: %v", err)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	_, err := loadFromMap(t,
		map[string]string{"API_FIRESTORE_PROJECT_ID": "p"},
		WithRequiredSecrets("PSP.StripeAPIKey", "Security.HMAC.Secrets[internal/promotions-sweep]", "PSP.StripeAPIKey"),
	)
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected missing secrets error, got %v", err)
	}
	redacted := missing.RedactedNames()
	if len(redacted) != 2 {
		t.Fatalf("expected two missing secrets, got %v", redacted)
	}
	for _, name := range redacted {
		if !strings.HasPrefix(name, "secret-") || strings.Contains(name, "Stripe") {
			t.Fatalf("expected redacted name, got %s", name)
		}
	}
	if strings.Contains(err.Error(), "PSP.StripeAPIKey") {
		t.Fatalf("error must only carry redacted names: %v", err)
	}
}

func TestDotEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := strings.Join([]string{
		"# local overrides",
		"export API_FIRESTORE_PROJECT_ID=from-file",
		`API_SERVER_PORT="7070"`,
		"API_PRICING_LOCALE='en-US'",
		"not a pair",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(),
		WithEnvFile(path),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{"API_SERVER_PORT": "6060"}),
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Firestore.ProjectID != "from-file" || cfg.Pricing.Locale != "en-US" {
		t.Fatalf("expected dotenv values, got %+v %+v", cfg.Firestore, cfg.Pricing)
	}
	if cfg.Server.Port != "6060" {
		t.Fatalf("explicit map must win over dotenv, got %s", cfg.Server.Port)
	}

	values, err := EnvironmentValues(WithEnvFile(path), WithoutSystemEnv(), WithEnvMap(map[string]string{"API_SERVER_PORT": "6060"}))
	if err != nil {
		t.Fatalf("EnvironmentValues: %v", err)
	}
	if values["API_SERVER_PORT"] != "6060" || values["API_FIRESTORE_PROJECT_ID"] != "from-file" {
		t.Fatalf("unexpected merged values %v", values)
	}
}

func TestMissingDotEnvIsIgnored(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvFile(filepath.Join(t.TempDir(), "absent.env")),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{"API_FIRESTORE_PROJECT_ID": "p"}),
	)
	if err != nil {
		t.Fatalf("expected missing env file to be ignored, got %v", err)
	}
}

func TestSystemEnvironmentLayer(t *testing.T) {
	t.Setenv("API_FIRESTORE_PROJECT_ID", "from-os")
	t.Setenv("API_SERVER_PORT", "5050")

	cfg, err := Load(context.Background(), WithEnvFile(""), WithEnvMap(map[string]string{"API_SERVER_PORT": "4040"}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Firestore.ProjectID != "from-os" || cfg.Server.Port != "4040" {
		t.Fatalf("unexpected layering %+v %+v", cfg.Firestore, cfg.Server)
	}
}
