package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")
	rr := httptest.NewRecorder()

	WriteError(ctx, rr, NewError("stripe_connect_denied", "merchant\ndeclined", http.StatusBadRequest).
		WithDetails(map[string]any{"reason": "access_denied"}))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var body Error
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != "stripe_connect_denied" || body.Message != "merchant declined" || body.RequestID != "req-1" {
		t.Fatalf("unexpected envelope %+v", body)
	}
	if body.Details["reason"] != "access_denied" {
		t.Fatalf("expected details to be preserved, got %+v", body.Details)
	}
}

func TestNewErrorDefaultsAndTruncates(t *testing.T) {
	e := NewError(strings.Repeat("x", 200), "boom", 0)
	if e.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500 default, got %d", e.Status)
	}
	if len(e.Code) != maxCodeLength {
		t.Fatalf("expected code to be clipped to %d, got %d", maxCodeLength, len(e.Code))
	}
}
