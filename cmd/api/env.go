package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/vitrine-field/api/internal/platform/config"
	"github.com/vitrine-field/api/internal/platform/secrets"
	"github.com/vitrine-field/api/internal/services"
)

func envOr(env map[string]string, key, fallback string) string {
	if v := strings.TrimSpace(env[key]); v != "" {
		return v
	}
	return fallback
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     envOr(env, "API_BUILD_VERSION", "dev"),
		CommitSHA:   envOr(env, "API_BUILD_COMMIT_SHA", "unknown"),
		Environment: environment,
		StartedAt:   started,
	}
}

// newSecretFetcher reads its settings straight from env because it has to exist before
// config.Load can resolve secret references.
func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	opts := []secrets.Option{
		secrets.WithEnvironment(strings.ToLower(envOr(env, "API_SECURITY_ENVIRONMENT", "local"))),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(envOr(env, "API_SECRET_FALLBACK_FILE", ".secrets.local")),
	}
	if project := envOr(env, "API_SECRET_DEFAULT_PROJECT_ID", envOr(env, "API_FIRESTORE_PROJECT_ID", "")); project != "" {
		opts = append(opts, secrets.WithDefaultProject(project))
	}
	if projects := parseKeyValueList(env["API_SECRET_PROJECT_IDS"]); len(projects) > 0 {
		opts = append(opts, secrets.WithProjectMap(projects))
	}
	if file := envOr(env, "API_SECRET_CREDENTIALS_FILE", ""); file != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(file)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secret fields that must resolve for the features env enables.
func requiredSecretNames(env map[string]string) []string {
	set := make(map[string]struct{})
	if envOr(env, "API_PSP_STRIPE_API_KEY", "") != "" {
		set["PSP.StripeAPIKey"] = struct{}{}
	}
	if envOr(env, "API_PSP_STRIPE_CONNECT_CLIENT_ID", "") != "" {
		set["PSP.StateSecret"] = struct{}{}
	}
	if envOr(env, "API_REDIS_PASSWORD", "") != "" {
		set["Shipping.RedisPassword"] = struct{}{}
	}
	for name := range parseKeyValueList(env["API_SECURITY_HMAC_SECRETS"]) {
		set[fmt.Sprintf("Security.HMAC.Secrets[%s]", strings.ToLower(name))] = struct{}{}
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// parseKeyValueList reads "a=1,b=2". Entries without a key or value are skipped.
func parseKeyValueList(raw string) map[string]string {
	result := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(entry, "=")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if ok && key != "" && value != "" {
			result[key] = value
		}
	}
	return result
}
