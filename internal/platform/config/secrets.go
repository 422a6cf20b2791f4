package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var errSecretResolverNotConfigured = errors.New("config: secret resolver not configured")

// SecretResolver turns a secret reference (secret://name or the legacy sm://name) into its value.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts a function to SecretResolver.
type SecretResolverFunc func(ctx context.Context, ref string) (string, error)

// ResolveSecret implements SecretResolver.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// SecretError reports a reference that could not be resolved. The reference itself is never printed.
type SecretError struct {
	Field string
	Err   error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("config: resolve secret for %s: %v", e.Field, e.Err)
}

func (e *SecretError) Unwrap() error {
	return e.Err
}

// MissingSecretsError lists required secrets that ended up empty.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("config: %d required secret(s) missing: %s", len(e.names), strings.Join(e.RedactedNames(), ", "))
}

// RedactedNames returns hashed identifiers safe for logs.
func (e *MissingSecretsError) RedactedNames() []string {
	out := make([]string, len(e.names))
	for i, name := range e.names {
		sum := sha256.Sum256([]byte(name))
		out[i] = "secret-" + hex.EncodeToString(sum[:6])
	}
	return out
}

// secretFields returns pointers to every config value allowed to carry a secret reference, keyed
// by the names accepted by WithRequiredSecrets.
func secretFields(cfg *Config) map[string]*string {
	fields := map[string]*string{
		"PSP.StripeAPIKey":       &cfg.PSP.StripeAPIKey,
		"PSP.StateSecret":        &cfg.PSP.StateSecret,
		"Shipping.RedisPassword": &cfg.Shipping.RedisPassword,
	}
	for name := range cfg.Security.HMAC.Secrets {
		value := cfg.Security.HMAC.Secrets[name]
		fields[fmt.Sprintf("Security.HMAC.Secrets[%s]", name)] = &value
	}
	return fields
}

// resolveSecrets replaces references in place and returns the final value of every secret field.
func resolveSecrets(ctx context.Context, cfg *Config, resolver SecretResolver) (map[string]string, error) {
	fields := secretFields(cfg)
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	values := make(map[string]string, len(fields))
	for _, name := range names {
		ptr := fields[name]
		if isSecretReference(*ptr) {
			if resolver == nil {
				return nil, &SecretError{Field: name, Err: errSecretResolverNotConfigured}
			}
			value, err := resolver.ResolveSecret(ctx, normalizeSecretReference(*ptr))
			if err != nil {
				return nil, &SecretError{Field: name, Err: err}
			}
			*ptr = strings.TrimSpace(value)
		}
		values[name] = *ptr
	}

	for name := range cfg.Security.HMAC.Secrets {
		cfg.Security.HMAC.Secrets[name] = values[fmt.Sprintf("Security.HMAC.Secrets[%s]", name)]
	}
	return values, nil
}

func findMissingSecrets(required []string, values map[string]string) error {
	var missing []string
	seen := make(map[string]struct{}, len(required))
	for _, name := range required {
		name = strings.TrimSpace(name)
		if _, dup := seen[name]; name == "" || dup {
			continue
		}
		seen[name] = struct{}{}
		if strings.TrimSpace(values[name]) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &MissingSecretsError{names: missing}
}

func isSecretReference(value string) bool {
	value = strings.TrimSpace(value)
	return strings.HasPrefix(value, "secret://") || strings.HasPrefix(value, "sm://")
}

func normalizeSecretReference(value string) string {
	value = strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(value, "sm://"); ok {
		return "secret://" + rest
	}
	return value
}
