package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/vitrine-field/api/internal/domain"
)

// DependencyCheck probes one backing service for /readyz. A failing critical dependency turns
// the report to error; any other failure only degrades it.
type DependencyCheck struct {
	Name     string
	Timeout  time.Duration
	Critical bool
	Check    func(context.Context) error
}

// DependencyHealthOption customises NewDependencyHealthRepository.
type DependencyHealthOption func(*dependencyHealth)

// WithDependencyTimeout is the timeout for checks that do not set their own. Defaults to 1.5s.
func WithDependencyTimeout(timeout time.Duration) DependencyHealthOption {
	return func(h *dependencyHealth) {
		if timeout > 0 {
			h.timeout = timeout
		}
	}
}

// WithDependencyClock injects a clock for tests.
func WithDependencyClock(clock func() time.Time) DependencyHealthOption {
	return func(h *dependencyHealth) {
		if clock != nil {
			h.now = clock
		}
	}
}

// WithEnvironment labels reports with the deployment environment.
func WithEnvironment(env string) DependencyHealthOption {
	return func(h *dependencyHealth) { h.environment = strings.TrimSpace(env) }
}

type dependencyHealth struct {
	checks      []DependencyCheck
	timeout     time.Duration
	environment string
	startedAt   time.Time
	now         func() time.Time
}

// NewDependencyHealthRepository runs every check concurrently on each Collect.
func NewDependencyHealthRepository(checks []DependencyCheck, opts ...DependencyHealthOption) (HealthRepository, error) {
	if len(checks) == 0 {
		return nil, errors.New("health repository: at least one dependency check is required")
	}
	seen := make(map[string]struct{}, len(checks))
	for i, check := range checks {
		name := strings.TrimSpace(check.Name)
		switch {
		case name == "":
			return nil, fmt.Errorf("health repository: check %d has no name", i)
		case check.Check == nil:
			return nil, fmt.Errorf("health repository: check %s has no probe", name)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("health repository: duplicate check %s", name)
		}
		seen[name] = struct{}{}
	}

	h := &dependencyHealth{
		checks:  append([]DependencyCheck(nil), checks...),
		timeout: 1500 * time.Millisecond,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.startedAt = h.now()
	return h, nil
}

func (h *dependencyHealth) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	if ctx == nil {
		return domain.SystemHealthReport{}, errors.New("health repository: context is required")
	}

	results := make([]domain.SystemHealthCheck, len(h.checks))
	var group errgroup.Group
	for i := range h.checks {
		i := i
		group.Go(func() error {
			results[i] = h.run(ctx, h.checks[i])
			return nil
		})
	}
	_ = group.Wait()

	report := domain.SystemHealthReport{
		Status:      domain.HealthStatusOK,
		Checks:      make(map[string]domain.SystemHealthCheck, len(results)),
		Environment: h.environment,
	}
	for i, result := range results {
		report.Checks[h.checks[i].Name] = result
		if result.Status == domain.HealthStatusOK {
			continue
		}
		if h.checks[i].Critical {
			report.Status = domain.HealthStatusError
		} else if report.Status == domain.HealthStatusOK {
			report.Status = domain.HealthStatusDegraded
		}
	}
	report.GeneratedAt = h.now()
	report.Uptime = report.GeneratedAt.Sub(h.startedAt)
	return report, nil
}

func (h *dependencyHealth) run(ctx context.Context, check DependencyCheck) domain.SystemHealthCheck {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = h.timeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := h.now()
	err := check.Check(probeCtx)
	if err == nil {
		err = probeCtx.Err()
	}
	finished := h.now()

	result := domain.SystemHealthCheck{Latency: finished.Sub(started), CheckedAt: finished}
	result.Status, result.Detail = classifyProbe(err)
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// classifyProbe maps a probe error to a check status. Timeouts and cancellations are errors, a
// dependency answering with a failure is degraded.
func classifyProbe(err error) (status, detail string) {
	switch {
	case err == nil:
		return domain.HealthStatusOK, "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return domain.HealthStatusError, "timeout"
	case errors.Is(err, context.Canceled):
		return domain.HealthStatusError, "cancelled"
	default:
		return domain.HealthStatusDegraded, "unhealthy"
	}
}
