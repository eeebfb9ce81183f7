package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/maison-luxe/storefront/internal/domain"
	"github.com/maison-luxe/storefront/internal/repositories"
)

const walletCheckName = "wallet"

// BuildInfo describes the running binary for /healthz and /readyz.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// BreakerReporter exposes a circuit breaker state ("closed", "half-open", "open").
type BreakerReporter interface {
	BreakerState() string
}

// SystemServiceDeps bundles collaborators required to construct a system service.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	// Wallet, when set, adds the mobile-wallet breaker to the report. An open breaker only
	// degrades readiness because card and cash checkout keep working.
	Wallet BreakerReporter
	Clock  func() time.Time
	Build  BuildInfo
}

type systemService struct {
	health repositories.HealthRepository
	wallet BreakerReporter
	now    func() time.Time
	build  BuildInfo
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the service behind the readiness probe.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	now := func() time.Time { return clock().UTC() }

	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = now()
	}
	return &systemService{
		health: deps.HealthRepository,
		wallet: deps.Wallet,
		now:    now,
		build:  build,
	}, nil
}

func (s *systemService) HealthReport(ctx context.Context) (HealthReport, error) {
	if ctx == nil {
		return HealthReport{}, errors.New("system service: context is required")
	}
	report, err := s.health.Collect(ctx)
	if err != nil {
		return HealthReport{}, err
	}

	now := s.now()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	}
	report.GeneratedAt = report.GeneratedAt.UTC()
	if report.Version == "" {
		report.Version = s.build.Version
	}
	if report.CommitSHA == "" {
		report.CommitSHA = s.build.CommitSHA
	}
	if report.Environment == "" {
		report.Environment = s.build.Environment
	}
	if report.Uptime <= 0 {
		report.Uptime = now.Sub(s.build.StartedAt)
	}
	if report.Checks == nil {
		report.Checks = make(map[string]domain.HealthCheck)
	}

	if s.wallet != nil {
		check := walletCheck(s.wallet.BreakerState(), now)
		report.Checks[walletCheckName] = check
		// the wallet leg never fails readiness on its own
		if check.Status != domain.HealthStatusOK && report.Status == domain.HealthStatusOK {
			report.Status = domain.HealthStatusDegraded
		}
	}
	if strings.TrimSpace(string(report.Status)) == "" {
		report.Status = overallStatus(report.Checks)
	}
	return report, nil
}

func walletCheck(state string, now time.Time) domain.HealthCheck {
	check := domain.HealthCheck{Status: domain.HealthStatusOK, Detail: "ok", CheckedAt: now}
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "open":
		check.Status = domain.HealthStatusDegraded
		check.Detail = "circuit open; mobile wallet payments fail fast"
	case "half-open":
		check.Status = domain.HealthStatusDegraded
		check.Detail = "circuit half-open; probing collaborator"
	}
	return check
}

// overallStatus is error if any check errored, degraded if any is not ok.
func overallStatus(checks map[string]domain.HealthCheck) domain.HealthStatus {
	status := domain.HealthStatusOK
	for name, check := range checks {
		switch check.Status {
		case domain.HealthStatusOK, "":
		case domain.HealthStatusError:
			if name != walletCheckName {
				return domain.HealthStatusError
			}
			status = domain.HealthStatusDegraded
		default:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
