package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	domain "github.com/vibek01/ECOM-D1/internal/domain"
	"github.com/vibek01/ECOM-D1/internal/platform/httpx"
	"github.com/vibek01/ECOM-D1/internal/services"
)

const defaultReadinessTimeout = 3 * time.Second

// HealthHandlers serves liveness and readiness checks.
type HealthHandlers struct {
	system  services.SystemService
	build   services.BuildInfo
	clock   func() time.Time
	timeout time.Duration
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// NewHealthHandlers constructs the health handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock:   time.Now,
		timeout: defaultReadinessTimeout,
	}
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

// WithHealthSystemService sets the service used for readiness reports.
func WithHealthSystemService(svc services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = svc
	}
}

// WithHealthBuildInfo sets the build metadata reported by /healthz.
func WithHealthBuildInfo(info services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthClock overrides the clock.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithReadinessTimeout bounds the dependency checks run by /readyz.
func WithReadinessTimeout(timeout time.Duration) HealthOption {
	return func(h *HealthHandlers) {
		if timeout > 0 {
			h.timeout = timeout
		}
	}
}

// Healthz reports process liveness without touching dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	now := h.clock().UTC()
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":      domain.HealthStatusOK,
		"version":     h.build.Version,
		"commitSha":   h.build.CommitSHA,
		"environment": h.build.Environment,
		"uptime":      now.Sub(h.build.StartedAt).Round(time.Second).String(),
		"timestamp":   now.Format(time.RFC3339),
	})
}

// Readyz runs the dependency checks and answers 503 unless every check is healthy.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"status":    domain.HealthStatusOK,
			"checks":    map[string]any{},
			"timestamp": h.clock().UTC().Format(time.RFC3339),
		})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	report, err := h.system.HealthReport(ctx)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("not_ready", "readiness check failed", http.StatusServiceUnavailable))
		return
	}

	checks := make(map[string]any, len(report.Checks))
	details := make([]string, 0)
	for name, check := range report.Checks {
		entry := map[string]any{
			"status":    check.Status,
			"latencyMs": check.Latency.Milliseconds(),
		}
		if check.Detail != "" {
			entry["detail"] = check.Detail
		}
		if !check.CheckedAt.IsZero() {
			entry["checkedAt"] = check.CheckedAt.UTC().Format(time.RFC3339)
		}
		if check.Error != "" {
			entry["error"] = check.Error
			details = append(details, fmt.Sprintf("%s: %s", name, check.Error))
		}
		checks[name] = entry
	}
	sort.Strings(details)

	generatedAt := report.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = h.clock()
	}

	status := http.StatusOK
	if !strings.EqualFold(report.Status, domain.HealthStatusOK) {
		status = http.StatusServiceUnavailable
	}

	httpx.WriteJSON(w, status, map[string]any{
		"status":      report.Status,
		"checks":      checks,
		"details":     details,
		"version":     report.Version,
		"commitSha":   report.CommitSHA,
		"environment": report.Environment,
		"uptime":      report.Uptime.Round(time.Second).String(),
		"timestamp":   generatedAt.UTC().Format(time.RFC3339),
	})
}
