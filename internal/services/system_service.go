package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/vibek01/ECOM-D1/internal/domain"
	"github.com/vibek01/ECOM-D1/internal/repositories"
)

// BuildInfo is the deployment metadata surfaced by /healthz and /readyz.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
}

type systemService struct {
	checks repositories.HealthRepository
	now    func() time.Time
	build  BuildInfo
}

var _ SystemService = (*systemService)(nil)

// NewSystemService builds the readiness reporter over the store and cache checks.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	svc := &systemService{
		checks: deps.HealthRepository,
		now:    func() time.Time { return clock().UTC() },
		build:  deps.Build,
	}
	if svc.build.StartedAt.IsZero() {
		svc.build.StartedAt = svc.now()
	}
	return svc, nil
}

func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	if ctx == nil {
		return SystemHealthReport{}, errors.New("system service: context is required")
	}
	report, err := s.checks.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}

	now := s.now()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	}
	if strings.TrimSpace(report.Version) == "" {
		report.Version = s.build.Version
	}
	if strings.TrimSpace(report.CommitSHA) == "" {
		report.CommitSHA = s.build.CommitSHA
	}
	if strings.TrimSpace(report.Environment) == "" {
		report.Environment = s.build.Environment
	}
	if report.Uptime <= 0 {
		report.Uptime = now.Sub(s.build.StartedAt)
	}
	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}
	if strings.TrimSpace(report.Status) == "" {
		report.Status = worstStatus(report.Checks)
	}
	return report, nil
}

// worstStatus folds check results: any error wins, then any non-ok status degrades.
func worstStatus(checks map[string]domain.SystemHealthCheck) string {
	rank := map[string]int{"": 0, domain.HealthStatusOK: 0, domain.HealthStatusError: 2}
	worst := 0
	for _, check := range checks {
		r, known := rank[check.Status]
		if !known {
			r = 1
		}
		if r > worst {
			worst = r
		}
	}
	switch worst {
	case 2:
		return domain.HealthStatusError
	case 1:
		return domain.HealthStatusDegraded
	default:
		return domain.HealthStatusOK
	}
}
