package observability

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vitrine-field/api/internal/platform/requestctx"
)

// NewLogger builds the JSON logger used in every environment. Keys follow the Cloud Logging
// structured payload (severity, message, timestamp). Unknown levels fall back to info.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil || strings.TrimSpace(level) == "" {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Sampling = nil
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.LevelKey = "severity"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg.Build()
}

// WithLogger injects the logger into the provided context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

// EventLogger adapts zap to the event hooks used by the pricing, shipping and service layers.
// The request-scoped logger wins over base when the context carries one. Events ending in
// _failed, _unknown or _error are logged at warn.
func EventLogger(base *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	if base == nil {
		base = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := requestctx.Logger(ctx)
		if logger == requestctx.NoopLogger() {
			logger = base
		}
		level := zapcore.InfoLevel
		if isWarningEvent(event) {
			level = zapcore.WarnLevel
		}
		if ce := logger.Check(level, event); ce != nil {
			ce.Write(eventFields(ctx, fields)...)
		}
	}
}

func eventFields(ctx context.Context, fields map[string]any) []zap.Field {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys)+1)
	if _, ok := fields["tenantId"]; !ok {
		if tenantID := requestctx.TenantID(ctx); tenantID != "" {
			out = append(out, zap.String("tenantId", tenantID))
		}
	}
	for _, key := range keys {
		out = append(out, zap.Any(key, fields[key]))
	}
	return out
}

func isWarningEvent(event string) bool {
	return strings.HasSuffix(event, "_failed") ||
		strings.HasSuffix(event, "_unknown") ||
		strings.HasSuffix(event, "_error")
}
