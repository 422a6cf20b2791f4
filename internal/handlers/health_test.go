package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/vitrine-field/api/internal/domain"
	"github.com/vitrine-field/api/internal/services"
)

func TestHealthzReportsBuild(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	h := NewHealthHandlers(
		WithHealthBuildInfo(services.BuildInfo{Version: "2.3.1", CommitSHA: "c0ffee", Environment: "prod", StartedAt: start}),
		WithHealthClock(func() time.Time { return start.Add(95 * time.Second) }),
	)

	rr := httptest.NewRecorder()
	h.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var body map[string]any
	decodeBody(t, rr.Body.Bytes(), &body)
	want := map[string]any{"status": "ok", "version": "2.3.1", "commitSha": "c0ffee", "environment": "prod", "uptime": "1m35s"}
	for key, value := range want {
		if body[key] != value {
			t.Errorf("%s: expected %v, got %v", key, value, body[key])
		}
	}
}

func TestReadyzStatusMapping(t *testing.T) {
	checkedAt := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name        string
		svc         services.SystemService
		wantCode    int
		wantStatus  string
		wantDetails []string
	}{
		{
			name:       "no system service",
			wantCode:   http.StatusOK,
			wantStatus: domain.HealthStatusOK,
		},
		{
			name: "all ok",
			svc: &stubSystemService{report: domain.SystemHealthReport{
				Status: domain.HealthStatusOK,
				Checks: map[string]domain.SystemHealthCheck{"firestore": {Status: domain.HealthStatusOK, Latency: 12 * time.Millisecond, CheckedAt: checkedAt}},
			}},
			wantCode:   http.StatusOK,
			wantStatus: domain.HealthStatusOK,
		},
		{
			name: "optional dependency degraded stays in rotation",
			svc: &stubSystemService{report: domain.SystemHealthReport{
				Status: domain.HealthStatusDegraded,
				Checks: map[string]domain.SystemHealthCheck{
					"redis":     {Status: domain.HealthStatusDegraded, Error: "connection refused"},
					"firestore": {Status: domain.HealthStatusOK},
				},
			}},
			wantCode:    http.StatusOK,
			wantStatus:  domain.HealthStatusDegraded,
			wantDetails: []string{"redis: connection refused"},
		},
		{
			name: "critical dependency down",
			svc: &stubSystemService{report: domain.SystemHealthReport{
				Status: domain.HealthStatusError,
				Checks: map[string]domain.SystemHealthCheck{
					"redis":     {Status: domain.HealthStatusError, Error: "timeout"},
					"firestore": {Status: domain.HealthStatusDegraded, Error: "permission denied"},
				},
			}},
			wantCode:    http.StatusServiceUnavailable,
			wantStatus:  domain.HealthStatusError,
			wantDetails: []string{"firestore: permission denied", "redis: timeout"},
		},
		{
			name:        "probes fail",
			svc:         &stubSystemService{err: errors.New("probe pool exhausted")},
			wantCode:    http.StatusServiceUnavailable,
			wantStatus:  domain.HealthStatusError,
			wantDetails: []string{"probe pool exhausted"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := []HealthOption{WithHealthClock(func() time.Time { return checkedAt })}
			if tc.svc != nil {
				opts = append(opts, WithHealthSystemService(tc.svc))
			}
			rr := httptest.NewRecorder()
			NewHealthHandlers(opts...).Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rr.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rr.Code)
			}
			var body struct {
				Status  string                  `json:"status"`
				Checks  map[string]checkPayload `json:"checks"`
				Details []string                `json:"details"`
			}
			decodeBody(t, rr.Body.Bytes(), &body)
			if body.Status != tc.wantStatus {
				t.Fatalf("expected status %s, got %s", tc.wantStatus, body.Status)
			}
			if len(body.Details) != len(tc.wantDetails) {
				t.Fatalf("expected details %v, got %v", tc.wantDetails, body.Details)
			}
			for i := range tc.wantDetails {
				if body.Details[i] != tc.wantDetails[i] {
					t.Fatalf("expected details %v, got %v", tc.wantDetails, body.Details)
				}
			}
			if body.Checks == nil {
				t.Fatal("checks must always be an object")
			}
		})
	}
}

func TestReadyzCheckPayload(t *testing.T) {
	checkedAt := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	h := NewHealthHandlers(WithHealthSystemService(&stubSystemService{report: domain.SystemHealthReport{
		Status: domain.HealthStatusOK,
		Uptime: 61 * time.Second,
		Checks: map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusOK, Detail: "ok", Latency: 12 * time.Millisecond, CheckedAt: checkedAt},
		},
	}}))

	rr := httptest.NewRecorder()
	h.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	var body readinessPayload
	decodeBody(t, rr.Body.Bytes(), &body)
	check := body.Checks["firestore"]
	if check.LatencyMS != 12 || check.Detail != "ok" || check.CheckedAt != "2025-03-01T09:00:00Z" {
		t.Fatalf("unexpected check payload %+v", check)
	}
	if body.Uptime != "1m1s" {
		t.Fatalf("expected rounded uptime, got %s", body.Uptime)
	}
}
