package config

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	defaultEnvFile = ".env"

	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second

	defaultCarrierTimeout     = 8 * time.Second
	defaultCarrierConcurrency = 4
	defaultQuoteCacheTTL      = 10 * time.Minute

	defaultPostalCodeBaseURL  = "https://viacep.com.br/ws"
	defaultPostalCodeAttempts = 2
	defaultPostalCodeBackoff  = 300 * time.Millisecond
	defaultPostalCodeTimeout  = 5 * time.Second

	defaultCurrency       = "BRL"
	defaultLocale         = "pt-BR"
	defaultCurrencySymbol = "R$"

	defaultStateTTL        = 15 * time.Minute
	minStateSecretLength   = 32
	defaultPromotionsTopic = "promotion-events"
	defaultSweepInterval   = 5 * time.Minute

	defaultSecurityEnvironment = "local"
	defaultHMACSignatureHeader = "X-Signature"
	defaultHMACTimestampHeader = "X-Signature-Timestamp"
	defaultHMACNonceHeader     = "X-Signature-Nonce"
	defaultHMACClockSkew       = 5 * time.Minute
	defaultHMACNonceTTL        = 5 * time.Minute

	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
)

// Config is the storefront API runtime configuration, one section per concern.
type Config struct {
	Server      ServerConfig
	Firestore   FirestoreConfig
	Shipping    ShippingConfig
	PostalCode  PostalCodeConfig
	Pricing     PricingConfig
	PSP         PSPConfig
	Jobs        JobsConfig
	Security    SecurityConfig
	Idempotency IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// ShippingConfig tunes carrier rate lookups.
type ShippingConfig struct {
	CarrierTimeout time.Duration
	MaxConcurrency int
	QuoteCacheTTL  time.Duration
	// RedisAddr enables the shared quote cache and nonce store when set.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// PostalCodeConfig configures the CEP lookup client.
type PostalCodeConfig struct {
	BaseURL     string
	Attempts    int
	BackoffStep time.Duration
	Timeout     time.Duration
}

// PricingConfig controls currency presentation.
type PricingConfig struct {
	Currency       string
	Locale         string
	CurrencySymbol string
}

// PSPConfig collects Stripe settings.
type PSPConfig struct {
	StripeAPIKey       string
	ConnectClientID    string
	ConnectRedirectURL string
	StateSecret        string
	StateTTL           time.Duration
}

// JobsConfig configures background publishing and the promotion sweep.
type JobsConfig struct {
	PubSubProjectID string
	PromotionsTopic string
	SweepInterval   time.Duration
	SweepEnabled    bool
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	HMAC        HMACConfig
}

// HMACConfig captures internal endpoint signing expectations. Secret names are lower-cased.
type HMACConfig struct {
	Secrets         map[string]string
	SignatureHeader string
	TimestampHeader string
	NonceHeader     string
	ClockSkew       time.Duration
	NonceTTL        time.Duration
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// ValidationError lists the fields that are missing or out of range.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the offending field names.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// Load reads the API_* variables (explicit map, then OS env, then the .env file), resolves
// secret:// and sm:// references through the configured resolver and validates the result.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	src, err := newSource(options)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         src.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:  src.dur("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: src.dur("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  src.dur("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    src.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: src.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Shipping: ShippingConfig{
			CarrierTimeout: src.dur("API_SHIPPING_CARRIER_TIMEOUT", defaultCarrierTimeout),
			MaxConcurrency: src.int("API_SHIPPING_MAX_CONCURRENCY", defaultCarrierConcurrency),
			QuoteCacheTTL:  src.dur("API_SHIPPING_QUOTE_CACHE_TTL", defaultQuoteCacheTTL),
			RedisAddr:      src.str("API_REDIS_ADDR", ""),
			RedisPassword:  src.str("API_REDIS_PASSWORD", ""),
			RedisDB:        src.int("API_REDIS_DB", 0),
		},
		PostalCode: PostalCodeConfig{
			BaseURL:     src.str("API_POSTAL_CODE_BASE_URL", defaultPostalCodeBaseURL),
			Attempts:    src.int("API_POSTAL_CODE_ATTEMPTS", defaultPostalCodeAttempts),
			BackoffStep: src.dur("API_POSTAL_CODE_BACKOFF_STEP", defaultPostalCodeBackoff),
			Timeout:     src.dur("API_POSTAL_CODE_TIMEOUT", defaultPostalCodeTimeout),
		},
		Pricing: PricingConfig{
			Currency:       strings.ToUpper(src.str("API_PRICING_CURRENCY", defaultCurrency)),
			Locale:         src.str("API_PRICING_LOCALE", defaultLocale),
			CurrencySymbol: src.str("API_PRICING_CURRENCY_SYMBOL", defaultCurrencySymbol),
		},
		PSP: PSPConfig{
			StripeAPIKey:       src.str("API_PSP_STRIPE_API_KEY", ""),
			ConnectClientID:    src.str("API_PSP_STRIPE_CONNECT_CLIENT_ID", ""),
			ConnectRedirectURL: src.str("API_PSP_STRIPE_CONNECT_REDIRECT_URL", ""),
			StateSecret:        src.str("API_PSP_CONNECT_STATE_SECRET", ""),
			StateTTL:           src.dur("API_PSP_CONNECT_STATE_TTL", defaultStateTTL),
		},
		Jobs: JobsConfig{
			PubSubProjectID: src.str("API_JOBS_PUBSUB_PROJECT_ID", ""),
			PromotionsTopic: src.str("API_JOBS_PROMOTIONS_TOPIC", defaultPromotionsTopic),
			SweepInterval:   src.dur("API_JOBS_SWEEP_INTERVAL", defaultSweepInterval),
			SweepEnabled:    src.bool("API_JOBS_SWEEP_ENABLED", true),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(src.str("API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			HMAC: HMACConfig{
				Secrets:         src.pairs("API_SECURITY_HMAC_SECRETS"),
				SignatureHeader: src.str("API_SECURITY_HMAC_HEADER_SIGNATURE", defaultHMACSignatureHeader),
				TimestampHeader: src.str("API_SECURITY_HMAC_HEADER_TIMESTAMP", defaultHMACTimestampHeader),
				NonceHeader:     src.str("API_SECURITY_HMAC_HEADER_NONCE", defaultHMACNonceHeader),
				ClockSkew:       src.dur("API_SECURITY_HMAC_CLOCK_SKEW", defaultHMACClockSkew),
				NonceTTL:        src.dur("API_SECURITY_HMAC_NONCE_TTL", defaultHMACNonceTTL),
			},
		},
		Idempotency: IdempotencyConfig{
			Header:           src.str("API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              src.dur("API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  src.dur("API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: src.int("API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
	}
	if cfg.Jobs.PubSubProjectID == "" {
		cfg.Jobs.PubSubProjectID = cfg.Firestore.ProjectID
	}

	resolved, err := resolveSecrets(ctx, &cfg, options.secret)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	var invalid []string
	check := func(ok bool, field string) {
		if !ok {
			invalid = append(invalid, field)
		}
	}

	check(cfg.Server.Port != "", "Server.Port")
	check(cfg.Firestore.ProjectID != "", "Firestore.ProjectID")
	check(cfg.Shipping.CarrierTimeout > 0, "Shipping.CarrierTimeout")
	check(cfg.Shipping.MaxConcurrency > 0, "Shipping.MaxConcurrency")
	check(cfg.PostalCode.Attempts > 0, "PostalCode.Attempts")
	check(len(cfg.Pricing.Currency) == 3, "Pricing.Currency")
	if cfg.PSP.ConnectClientID != "" {
		check(cfg.PSP.ConnectRedirectURL != "", "PSP.ConnectRedirectURL")
		check(len(cfg.PSP.StateSecret) >= minStateSecretLength, "PSP.StateSecret")
	}
	check(!cfg.Jobs.SweepEnabled || cfg.Jobs.SweepInterval > 0, "Jobs.SweepInterval")
	check(strings.TrimSpace(cfg.Idempotency.Header) != "", "Idempotency.Header")
	check(cfg.Idempotency.TTL > 0, "Idempotency.TTL")
	check(cfg.Idempotency.CleanupInterval > 0, "Idempotency.CleanupInterval")
	check(cfg.Idempotency.CleanupBatchSize > 0, "Idempotency.CleanupBatchSize")

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}
