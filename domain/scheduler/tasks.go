package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/bizsuite/server/domain/discovery"
	"github.com/bizsuite/server/pkg/logger"
	"github.com/bizsuite/server/pkg/syshealth"
)

// SupplierDetectionTaskName is the scheduler key for the supplier detection batch.
const SupplierDetectionTaskName = "supplier_detection"

// SupplierDetector is the slice of discovery.Service the task needs.
type SupplierDetector interface {
	DetectSuppliersAllTenants(ctx context.Context) ([]*discovery.Report, error)
}

// SupplierDetectionTask runs supplier detection over every tenant with cost history.
type SupplierDetectionTask struct {
	detector SupplierDetector
	sys      syshealth.Monitor
	log      *slog.Logger
}

// NewSupplierDetectionTask builds the task. sys may be nil, which disables throttling.
func NewSupplierDetectionTask(detector SupplierDetector, sys syshealth.Monitor, log *slog.Logger) *SupplierDetectionTask {
	return &SupplierDetectionTask{
		detector: detector,
		sys:      sys,
		log:      log.With(logger.Scope("scheduler.supplier_detection")),
	}
}

// Run fails only when the tenant listing fails. Per-tenant failures are logged
// and the remaining tenants still run. A run is skipped while the host is critical.
func (t *SupplierDetectionTask) Run(ctx context.Context) error {
	if t.sys != nil {
		if snap := t.sys.Snapshot(); snap.Critical() {
			tasksThrottled.WithLabelValues(SupplierDetectionTaskName).Inc()
			t.log.Warn("supplier detection skipped, system health critical",
				slog.Int("score", snap.Score))
			return nil
		}
	}

	start := time.Now()

	reports, err := t.detector.DetectSuppliersAllTenants(ctx)
	if err != nil {
		t.log.Error("supplier detection failed", logger.Error(err))
		return err
	}

	var created, refreshed, skipped, failed, failedTenants int
	for _, r := range reports {
		if r.Error != "" {
			failedTenants++
			t.log.Warn("supplier detection failed for tenant",
				slog.String("tenant", r.Tenant),
				slog.String("error", r.Error))
			continue
		}
		created += r.Created
		refreshed += r.Refreshed
		skipped += r.Skipped
		failed += r.Failed
	}

	t.log.Info("supplier detection completed",
		slog.Int("tenants", len(reports)),
		slog.Int("failed_tenants", failedTenants),
		slog.Int("created", created),
		slog.Int("refreshed", refreshed),
		slog.Int("skipped", skipped),
		slog.Int("failed", failed),
		slog.Duration("duration", time.Since(start)))
	return nil
}
