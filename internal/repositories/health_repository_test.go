package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/vitrine-field/api/internal/domain"
)

func okProbe(context.Context) error { return nil }

func slowProbe(d time.Duration) func(context.Context) error {
	return func(ctx context.Context) error {
		select {
		case <-time.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func TestDependencyHealthCollect(t *testing.T) {
	redisDown := errors.New("dial tcp: connection refused")

	cases := []struct {
		name       string
		checks     []DependencyCheck
		wantStatus string
		wantChecks map[string]string
		wantDetail map[string]string
	}{
		{
			name: "all healthy",
			checks: []DependencyCheck{
				{Name: "firestore", Critical: true, Check: slowProbe(5 * time.Millisecond)},
				{Name: "redis", Check: okProbe},
			},
			wantStatus: domain.HealthStatusOK,
			wantChecks: map[string]string{"firestore": domain.HealthStatusOK, "redis": domain.HealthStatusOK},
			wantDetail: map[string]string{"firestore": "ok"},
		},
		{
			name: "optional failure degrades",
			checks: []DependencyCheck{
				{Name: "firestore", Critical: true, Check: okProbe},
				{Name: "redis", Check: func(context.Context) error { return redisDown }},
			},
			wantStatus: domain.HealthStatusDegraded,
			wantChecks: map[string]string{"redis": domain.HealthStatusDegraded},
			wantDetail: map[string]string{"redis": "unhealthy"},
		},
		{
			name: "critical failure is error even after optional failure",
			checks: []DependencyCheck{
				{Name: "redis", Check: func(context.Context) error { return redisDown }},
				{Name: "firestore", Critical: true, Check: func(context.Context) error { return errors.New("permission denied") }},
			},
			wantStatus: domain.HealthStatusError,
			wantChecks: map[string]string{"firestore": domain.HealthStatusDegraded},
		},
		{
			name: "optional timeout",
			checks: []DependencyCheck{
				{Name: "redis", Timeout: 5 * time.Millisecond, Check: slowProbe(time.Second)},
			},
			wantStatus: domain.HealthStatusDegraded,
			wantChecks: map[string]string{"redis": domain.HealthStatusError},
			wantDetail: map[string]string{"redis": "timeout"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo, err := NewDependencyHealthRepository(tc.checks)
			if err != nil {
				t.Fatalf("NewDependencyHealthRepository: %v", err)
			}
			report, err := repo.Collect(context.Background())
			if err != nil {
				t.Fatalf("Collect: %v", err)
			}
			if report.Status != tc.wantStatus {
				t.Fatalf("expected %s, got %s (%+v)", tc.wantStatus, report.Status, report.Checks)
			}
			if len(report.Checks) != len(tc.checks) {
				t.Fatalf("expected %d checks, got %d", len(tc.checks), len(report.Checks))
			}
			for name, want := range tc.wantChecks {
				if got := report.Checks[name].Status; got != want {
					t.Fatalf("check %s: expected %s, got %s", name, want, got)
				}
			}
			for name, want := range tc.wantDetail {
				if got := report.Checks[name].Detail; got != want {
					t.Fatalf("check %s: expected detail %s, got %s", name, want, got)
				}
			}
		})
	}
}

func TestDependencyHealthStampsClockAndEnvironment(t *testing.T) {
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	now := started
	repo, err := NewDependencyHealthRepository(
		[]DependencyCheck{{Name: "firestore", Critical: true, Check: okProbe}},
		WithDependencyClock(func() time.Time { return now }),
		WithEnvironment(" staging "),
		WithDependencyTimeout(time.Second),
	)
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	now = started.Add(time.Hour)
	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Environment != "staging" || !report.GeneratedAt.Equal(now) || report.Uptime != time.Hour {
		t.Fatalf("unexpected report metadata %+v", report)
	}
	if check := report.Checks["firestore"]; !check.CheckedAt.Equal(now) || check.Error != "" {
		t.Fatalf("unexpected check %+v", check)
	}
}

func TestDependencyHealthCancelledContext(t *testing.T) {
	repo, err := NewDependencyHealthRepository([]DependencyCheck{{Name: "firestore", Critical: true, Check: slowProbe(time.Second)}})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := repo.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusError || report.Checks["firestore"].Detail != "cancelled" {
		t.Fatalf("expected cancelled critical check, got %+v", report)
	}
}

func TestNewDependencyHealthRepositoryValidatesChecks(t *testing.T) {
	invalid := map[string][]DependencyCheck{
		"empty":      nil,
		"no probe":   {{Name: "firestore"}},
		"no name":    {{Check: okProbe}},
		"duplicates": {{Name: "redis", Check: okProbe}, {Name: "redis", Check: okProbe}},
	}
	for name, checks := range invalid {
		if _, err := NewDependencyHealthRepository(checks); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
