package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vitrine-field/api/internal/platform/requestctx"
)

func TestEventLoggerMapsLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := EventLogger(zap.New(core))

	log(context.Background(), "shipping.calculated", map[string]any{"tenantId": "tenant-1", "methods": 2})
	log(context.Background(), "shipping.carrier_quote_failed", map[string]any{"methodId": "correios"})

	entries := logs.AllUntimed()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[0].Message != "shipping.calculated" {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if got := entries[0].ContextMap()["tenantId"]; got != "tenant-1" {
		t.Fatalf("expected tenant field, got %v", got)
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Fatalf("expected warning for failure event, got %s", entries[1].Level)
	}
}

func TestEventLoggerPrefersRequestLogger(t *testing.T) {
	baseCore, baseLogs := observer.New(zapcore.DebugLevel)
	reqCore, reqLogs := observer.New(zapcore.DebugLevel)
	log := EventLogger(zap.New(baseCore))

	ctx := requestctx.WithLogger(context.Background(), zap.New(reqCore))
	log(ctx, "checkout.order_placed", nil)

	if baseLogs.Len() != 0 || reqLogs.Len() != 1 {
		t.Fatalf("expected request logger to receive event, base=%d request=%d", baseLogs.Len(), reqLogs.Len())
	}
}

func TestNewLoggerLevels(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":        zapcore.InfoLevel,
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"verbose": zapcore.InfoLevel,
	}
	for raw, want := range cases {
		logger, err := NewLogger(raw)
		if err != nil {
			t.Fatalf("NewLogger(%q): %v", raw, err)
		}
		if !logger.Core().Enabled(want) || (want > zapcore.DebugLevel && logger.Core().Enabled(want-1)) {
			t.Errorf("NewLogger(%q): expected minimum level %s", raw, want)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	if got := sanitizeString("GET\x00\x1b[31m /x\n", 0); got != "GET[31m /x\n" {
		t.Fatalf("unexpected sanitised value %q", got)
	}
	if got := sanitizeString("ação-ação", 4); got != "ação" {
		t.Fatalf("expected rune-aware truncation, got %q", got)
	}
	if SanitizeRoute("") != "/" {
		t.Fatal("empty route should become /")
	}
}
