package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vitrine-field/api/internal/di"
	"github.com/vitrine-field/api/internal/handlers"
	"github.com/vitrine-field/api/internal/payments"
	"github.com/vitrine-field/api/internal/platform/auth"
	"github.com/vitrine-field/api/internal/platform/config"
	pfirestore "github.com/vitrine-field/api/internal/platform/firestore"
	"github.com/vitrine-field/api/internal/platform/idempotency"
	"github.com/vitrine-field/api/internal/platform/jobs"
	"github.com/vitrine-field/api/internal/platform/observability"
	"github.com/vitrine-field/api/internal/repositories"
	firestoreRepo "github.com/vitrine-field/api/internal/repositories/firestore"
	"github.com/vitrine-field/api/internal/services"
	"github.com/vitrine-field/api/internal/shipping"
)

const (
	sweepSecretName   = "internal/promotions-sweep"
	redisKeyPrefix    = "vitrine:"
	backgroundTimeout = time.Minute
	shutdownTimeout   = 10 * time.Second
)

func main() {
	env, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "read environment: %v\n", err)
		os.Exit(1)
	}
	base, err := observability.NewLogger(env["API_LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "initialise logger: %v\n", err)
		os.Exit(1)
	}
	logger := base.Named("api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(observability.WithLogger(ctx, logger), logger, env)
	stop()
	if err != nil {
		logger.Error("api exited", zap.Error(err))
	}
	_ = base.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// cleanups runs registered release functions in reverse order.
type cleanups []func()

func (c *cleanups) add(fn func()) { *c = append(*c, fn) }
func (c cleanups) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func run(ctx context.Context, logger *zap.Logger, env map[string]string) error {
	startedAt := time.Now().UTC()
	var release cleanups
	defer release.run()

	fetcher, err := newSecretFetcher(ctx, logger, env)
	if err != nil {
		return fmt.Errorf("secret fetcher: %w", err)
	}
	release.add(func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	})

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(env)...),
	)
	var missing *config.MissingSecretsError
	switch {
	case errors.As(err, &missing):
		logger.Error("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		return errors.New("required secrets unresolved")
	case err != nil:
		return fmt.Errorf("load configuration: %w", err)
	}
	build := buildInfoFromEnv(env, cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		return fmt.Errorf("firestore client: %w", err)
	}

	redisClient := openRedis(cfg.Shipping, logger, &release)
	healthRepo, err := repositories.NewDependencyHealthRepository(
		dependencyChecks(firestoreProvider, redisClient),
		repositories.WithEnvironment(build.Environment),
	)
	if err != nil {
		return fmt.Errorf("health repository: %w", err)
	}
	registry, err := firestoreRepo.NewRegistry(firestoreProvider, healthRepo)
	if err != nil {
		return fmt.Errorf("repositories: %w", err)
	}

	infra := di.Infrastructure{
		Carrier: shipping.NewHTTPCarrierClient(
			shipping.WithHTTPClient(&http.Client{Timeout: cfg.Shipping.CarrierTimeout}),
		),
		PostalHTTPClient: &http.Client{Timeout: cfg.PostalCode.Timeout},
		Build:            build,
		Logger:           observability.EventLogger(logger),
	}
	nonces, err := wireRedis(redisClient, cfg.Shipping, &infra)
	if err != nil {
		return err
	}
	if err := wirePayments(cfg.PSP, logger, &infra); err != nil {
		return err
	}
	publisher, err := newPromotionPublisher(ctx, cfg.Jobs, logger, &release)
	if err != nil {
		return err
	}
	if publisher != nil {
		infra.Publisher = publisher
	}

	container, err := di.NewContainer(ctx, cfg, registry, infra)
	if err != nil {
		return fmt.Errorf("service container: %w", err)
	}
	release.add(func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	})

	idempotencyStore, err := idempotency.NewFirestoreStore(firestoreClient)
	if err != nil {
		return fmt.Errorf("idempotency store: %w", err)
	}
	hmac := auth.NewHMACValidator(auth.StaticSecrets(cfg.Security.HMAC.Secrets), nonces,
		auth.WithHMACLogger(logger.Named("auth")),
		auth.WithHMACHeaders(cfg.Security.HMAC.SignatureHeader, cfg.Security.HMAC.TimestampHeader, cfg.Security.HMAC.NonceHeader),
		auth.WithHMACClockSkew(cfg.Security.HMAC.ClockSkew),
		auth.WithHMACNonceTTL(cfg.Security.HMAC.NonceTTL),
	)
	if _, ok := cfg.Security.HMAC.Secrets[sweepSecretName]; !ok {
		logger.Warn("internal sweep secret not configured; internal routes will reject requests",
			zap.String("secret", sweepSecretName))
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	var background sync.WaitGroup
	startBackgroundJobs(bgCtx, &background, cfg, container.Services, idempotencyStore, logger)

	idempotent := idempotency.Middleware(idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithScope(handlers.TenantScope),
		idempotency.WithLogger(logger.Named("idempotency")),
	)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handlers.NewRouter(routerOptions(cfg, container.Services, build, logger, idempotent, hmac)...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Named("http").Info("vitrine api listening", zap.String("addr", server.Addr))
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received; draining requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Error("graceful shutdown failed", zap.Error(shutdownErr))
		}
		cancel()
	}

	stopBackground()
	background.Wait()
	if publisher != nil {
		publisher.Stop()
	}
	return err
}

func openRedis(cfg config.ShippingConfig, logger *zap.Logger, release *cleanups) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	release.add(func() {
		if err := client.Close(); err != nil {
			logger.Warn("redis close error", zap.Error(err))
		}
	})
	return client
}

// wireRedis installs the shared quote cache and returns the nonce store for HMAC replay
// protection. Without Redis both stay process-local.
func wireRedis(client *redis.Client, cfg config.ShippingConfig, infra *di.Infrastructure) (auth.NonceStore, error) {
	if client == nil {
		return auth.NewInMemoryNonceStore(), nil
	}
	quotes, err := shipping.NewRedisQuoteCache(client, cfg.QuoteCacheTTL, redisKeyPrefix+"quotes:")
	if err != nil {
		return nil, fmt.Errorf("redis quote cache: %w", err)
	}
	infra.QuoteCache = quotes
	nonces, err := auth.NewRedisNonceStore(client, redisKeyPrefix+"nonces:")
	if err != nil {
		return nil, fmt.Errorf("redis nonce store: %w", err)
	}
	return nonces, nil
}

func wirePayments(cfg config.PSPConfig, logger *zap.Logger, infra *di.Infrastructure) error {
	apiKey := strings.TrimSpace(cfg.StripeAPIKey)
	if apiKey == "" {
		logger.Warn("checkout disabled; stripe api key not configured")
		return nil
	}
	provider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey:          apiKey,
		ConnectClientID: cfg.ConnectClientID,
		RedirectURL:     cfg.ConnectRedirectURL,
		Logger:          payments.StripeLogger(infra.Logger),
	})
	if err != nil {
		return fmt.Errorf("stripe provider: %w", err)
	}
	infra.Payments = provider

	if cfg.ConnectClientID == "" || cfg.StateSecret == "" {
		logger.Warn("stripe connect onboarding disabled; client id or state secret not configured")
		return nil
	}
	states, err := auth.NewStateSigner(cfg.StateSecret, cfg.StateTTL, nil)
	if err != nil {
		return fmt.Errorf("connect state signer: %w", err)
	}
	infra.Connect = provider
	infra.ConnectStates = states
	return nil
}

func newPromotionPublisher(ctx context.Context, cfg config.JobsConfig, logger *zap.Logger, release *cleanups) (*jobs.PubSubPromotionPublisher, error) {
	projectID := strings.TrimSpace(cfg.PubSubProjectID)
	if projectID == "" {
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	release.add(func() {
		if err := client.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	})
	topic := client.Topic(cfg.PromotionsTopic)
	topic.EnableMessageOrdering = true
	publisher, err := jobs.NewPubSubPromotionPublisher(topic)
	if err != nil {
		return nil, fmt.Errorf("promotion publisher: %w", err)
	}
	return publisher, nil
}

func startBackgroundJobs(ctx context.Context, wg *sync.WaitGroup, cfg config.Config, svc di.Services, store idempotency.Store, logger *zap.Logger) {
	if cfg.Idempotency.CleanupInterval > 0 {
		log := logger.Named("idempotency")
		runPeriodically(ctx, wg, cfg.Idempotency.CleanupInterval, func(runCtx context.Context) {
			removed, err := store.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
			switch {
			case err != nil:
				log.Error("idempotency cleanup error", zap.Error(err))
			case removed > 0:
				log.Info("idempotency cleanup removed records", zap.Int("count", removed))
			}
		})
	}

	if cfg.Jobs.SweepEnabled && cfg.Jobs.SweepInterval > 0 && svc.Sweeper != nil {
		log := logger.Named("sweeper")
		runPeriodically(ctx, wg, cfg.Jobs.SweepInterval, func(runCtx context.Context) {
			result, err := svc.Sweeper.Sweep(runCtx)
			fields := []zap.Field{
				zap.Int("tenants", result.Tenants),
				zap.Int("examined", result.Examined),
				zap.Int("transitions", len(result.Transitions)),
			}
			switch {
			case err != nil:
				log.Error("promotion sweep incomplete", append(fields, zap.Error(err))...)
			case len(result.Transitions) > 0:
				log.Info("promotion sweep applied transitions", fields...)
			}
		})
	}
}

// runPeriodically invokes fn on every tick until ctx is cancelled. Each run gets its own deadline.
func runPeriodically(ctx context.Context, wg *sync.WaitGroup, interval time.Duration, fn func(context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runCtx, cancel := context.WithTimeout(ctx, backgroundTimeout)
				fn(runCtx)
				cancel()
			}
		}
	}()
}

func routerOptions(
	cfg config.Config,
	svc di.Services,
	build services.BuildInfo,
	logger *zap.Logger,
	idempotent func(http.Handler) http.Handler,
	hmac *auth.HMACValidator,
) []handlers.Option {
	projectID := strings.TrimSpace(cfg.Firestore.ProjectID)

	healthOpts := []handlers.HealthOption{handlers.WithHealthBuildInfo(build)}
	if svc.System != nil {
		healthOpts = append(healthOpts, handlers.WithHealthSystemService(svc.System))
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(logger),
			observability.RequestLoggerMiddleware(projectID),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(healthOpts...)),
		handlers.WithTenantRoutes(
			handlers.NewPricingHandlers(svc.Pricing).Routes,
			handlers.NewShippingHandlers(svc.Shipping).Routes,
		),
		handlers.WithPostalCodeRoutes(handlers.NewPostalCodeHandlers(svc.PostalCodes).Routes),
		handlers.WithInternalRoutes(handlers.NewInternalPromotionHandlers(svc.Sweeper).Routes),
		handlers.WithInternalMiddlewares(hmac.RequireHMAC(sweepSecretName)),
	}
	if svc.Checkout != nil {
		orders := handlers.NewOrderHandlers(svc.Checkout, handlers.WithPlaceOrderMiddlewares(idempotent))
		opts = append(opts, handlers.WithTenantRoutes(orders.Routes))
	}
	if svc.StripeConnect != nil {
		connect := handlers.NewStripeConnectHandlers(svc.StripeConnect)
		opts = append(opts,
			handlers.WithTenantRoutes(connect.TenantRoutes),
			handlers.WithStripeRoutes(connect.CallbackRoutes),
		)
	}
	return opts
}

func dependencyChecks(provider *pfirestore.Provider, redisClient *redis.Client) []repositories.DependencyCheck {
	checks := []repositories.DependencyCheck{{Name: "firestore", Critical: true, Check: provider.Ping}}
	if redisClient != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	return checks
}
