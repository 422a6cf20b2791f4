package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/vitrine-field/api/internal/domain"
	"github.com/vitrine-field/api/internal/repositories"
)

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
}

func (s *stubHealthRepository) Collect(context.Context) (domain.SystemHealthReport, error) {
	return s.report, s.err
}

var _ repositories.HealthRepository = (*stubHealthRepository)(nil)

func TestSystemServiceHealthReport(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	now := start.Add(90 * time.Second)
	build := BuildInfo{Version: "1.4.0", CommitSHA: "f00d", Environment: "prod", StartedAt: start}

	cases := []struct {
		name       string
		collected  domain.SystemHealthReport
		wantStatus string
		wantEnv    string
	}{
		{
			name:       "healthy dependencies",
			collected:  domain.SystemHealthReport{Checks: map[string]domain.SystemHealthCheck{"firestore": {Status: domain.HealthStatusOK}}},
			wantStatus: domain.HealthStatusOK,
			wantEnv:    "prod",
		},
		{
			name: "degraded cache",
			collected: domain.SystemHealthReport{Checks: map[string]domain.SystemHealthCheck{
				"firestore": {Status: domain.HealthStatusOK},
				"redis":     {Status: domain.HealthStatusDegraded},
			}},
			wantStatus: domain.HealthStatusDegraded,
			wantEnv:    "prod",
		},
		{
			name: "collected status and environment win",
			collected: domain.SystemHealthReport{
				Status:      domain.HealthStatusError,
				Environment: "staging",
				Checks:      map[string]domain.SystemHealthCheck{"firestore": {Status: domain.HealthStatusError, Detail: "timeout"}},
			},
			wantStatus: domain.HealthStatusError,
			wantEnv:    "staging",
		},
		{
			name:       "no checks",
			wantStatus: domain.HealthStatusOK,
			wantEnv:    "prod",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, err := NewSystemService(SystemServiceDeps{
				HealthRepository: &stubHealthRepository{report: tc.collected},
				Clock:            func() time.Time { return now },
				Build:            build,
			})
			if err != nil {
				t.Fatalf("NewSystemService: %v", err)
			}
			report, err := svc.HealthReport(context.Background())
			if err != nil {
				t.Fatalf("HealthReport: %v", err)
			}
			if report.Status != tc.wantStatus || report.Environment != tc.wantEnv {
				t.Fatalf("got status=%s env=%s", report.Status, report.Environment)
			}
			if report.Version != "1.4.0" || report.CommitSHA != "f00d" {
				t.Fatalf("expected build metadata, got %+v", report)
			}
			if report.Uptime != 90*time.Second || !report.GeneratedAt.Equal(now) {
				t.Fatalf("unexpected timing uptime=%s generated=%s", report.Uptime, report.GeneratedAt)
			}
			if report.Checks == nil {
				t.Fatal("expected checks map to be non-nil")
			}
		})
	}
}

func TestSystemServicePropagatesCollectError(t *testing.T) {
	want := errors.New("probe pool exhausted")
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: &stubHealthRepository{err: want}})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}
	if _, err := svc.HealthReport(context.Background()); !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestNewSystemServiceRequiresRepository(t *testing.T) {
	if _, err := NewSystemService(SystemServiceDeps{}); err == nil {
		t.Fatal("expected error without health repository")
	}
}
