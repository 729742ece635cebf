package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/matica-life/storefront/internal/domain"
	"github.com/matica-life/storefront/internal/repositories"
)

var errSystemHealthRequired = errors.New("system service: health repository is required")

// BuildInfo is the release metadata echoed by /healthz and /readyz.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps wires the readiness check.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
}

type systemService struct {
	health repositories.HealthRepository
	now    func() time.Time
	build  BuildInfo
}

var _ SystemService = (*systemService)(nil)

// NewSystemService builds the service behind /readyz.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errSystemHealthRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	svc := &systemService{
		health: deps.HealthRepository,
		now:    func() time.Time { return clock().UTC() },
		build:  deps.Build,
	}
	if svc.build.StartedAt.IsZero() {
		svc.build.StartedAt = svc.now()
	}
	return svc, nil
}

// HealthReport collects dependency checks and fills in whatever release metadata the
// repository left blank. Values reported by the repository win.
func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	report, err := s.health.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, fmt.Errorf("system service: collect: %w", err)
	}

	now := s.now()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	} else {
		report.GeneratedAt = report.GeneratedAt.UTC()
	}
	report.Version = cmp.Or(strings.TrimSpace(report.Version), s.build.Version)
	report.CommitSHA = cmp.Or(strings.TrimSpace(report.CommitSHA), s.build.CommitSHA)
	report.Environment = cmp.Or(strings.TrimSpace(report.Environment), s.build.Environment)
	if report.Uptime <= 0 {
		report.Uptime = now.Sub(s.build.StartedAt)
	}
	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}
	if strings.TrimSpace(report.Status) == "" {
		report.Status = rollupStatus(report.Checks)
	}
	return report, nil
}

// rollupStatus is error if any check errored, degraded if any check is neither ok nor error,
// and ok otherwise.
func rollupStatus(checks map[string]domain.SystemHealthCheck) string {
	status := domain.HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusOK, "":
		case domain.HealthStatusError:
			return domain.HealthStatusError
		default:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
