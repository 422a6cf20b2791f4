package handlers

import (
	"net/http"
	"sort"
	"time"

	domain "github.com/vitrine-field/api/internal/domain"
	"github.com/vitrine-field/api/internal/services"
)

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	system services.SystemService
	build  services.BuildInfo
	clock  func() time.Time
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// NewHealthHandlers constructs health handlers. Without a system service readiness always succeeds.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

func WithHealthSystemService(svc services.SystemService) HealthOption {
	return func(h *HealthHandlers) { h.system = svc }
}

func WithHealthBuildInfo(info services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) { h.build = info }
}

func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

type buildPayload struct {
	Version     string `json:"version,omitempty"`
	CommitSHA   string `json:"commitSha,omitempty"`
	Environment string `json:"environment,omitempty"`
}

type livenessPayload struct {
	Status string `json:"status"`
	buildPayload
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

type checkPayload struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
	CheckedAt string `json:"checkedAt,omitempty"`
}

type readinessPayload struct {
	Status string `json:"status"`
	buildPayload
	Uptime      string                  `json:"uptime"`
	GeneratedAt string                  `json:"generatedAt"`
	Checks      map[string]checkPayload `json:"checks"`
	// Failures lists "name: error" for every non-ok check, sorted by name.
	Failures []string `json:"details,omitempty"`
}

// Healthz reports that the process is serving requests.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	now := h.clock().UTC()
	writeJSONResponse(w, http.StatusOK, livenessPayload{
		Status:       domain.HealthStatusOK,
		buildPayload: buildPayload{h.build.Version, h.build.CommitSHA, h.build.Environment},
		Uptime:       roundedDuration(now.Sub(h.build.StartedAt)),
		Timestamp:    now.Format(time.RFC3339),
	})
}

// Readyz answers 503 when a critical dependency is down or the probes cannot run. A degraded
// optional dependency, such as the quote cache, keeps the instance in rotation.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	payload := readinessPayload{
		Status:      domain.HealthStatusOK,
		Uptime:      roundedDuration(now.Sub(h.build.StartedAt)),
		GeneratedAt: now.Format(time.RFC3339),
		Checks:      map[string]checkPayload{},
	}
	if h.system == nil {
		writeJSONResponse(w, http.StatusOK, payload)
		return
	}

	report, err := h.system.HealthReport(r.Context())
	if err != nil {
		payload.Status = domain.HealthStatusError
		payload.Failures = []string{err.Error()}
		writeJSONResponse(w, http.StatusServiceUnavailable, payload)
		return
	}

	payload.Status = report.Status
	payload.buildPayload = buildPayload{report.Version, report.CommitSHA, report.Environment}
	payload.Uptime = roundedDuration(report.Uptime)
	if !report.GeneratedAt.IsZero() {
		payload.GeneratedAt = formatTime(report.GeneratedAt)
	}

	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		check := report.Checks[name]
		payload.Checks[name] = checkPayload{
			Status:    check.Status,
			Detail:    check.Detail,
			Error:     check.Error,
			LatencyMS: check.Latency.Milliseconds(),
			CheckedAt: formatTime(check.CheckedAt),
		}
		if check.Status != domain.HealthStatusOK && check.Error != "" {
			payload.Failures = append(payload.Failures, name+": "+check.Error)
		}
	}

	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, payload)
}

func roundedDuration(d time.Duration) string {
	return d.Round(time.Second).String()
}
