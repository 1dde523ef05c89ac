package discovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bizsuite/server/domain/relationships"
	"github.com/bizsuite/server/internal/config"
	"github.com/bizsuite/server/pkg/apperror"
	"github.com/bizsuite/server/pkg/logger"
	"github.com/bizsuite/server/pkg/tenant"
	"github.com/bizsuite/server/pkg/tracing"
)

var supplierOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "supplier_detection_outcomes_total",
	Help: "Supplier detection candidates by outcome.",
}, []string{"outcome"})

var supplierTags = []string{"auto-detected", "supplier"}

// Service runs the supplier detection heuristic.
type Service struct {
	source   CandidateSource
	rel      *relationships.Service
	minLines int
	log      *slog.Logger
	now      func() time.Time
}

func NewService(source CandidateSource, rel *relationships.Service, cfg *config.Config, log *slog.Logger) *Service {
	return &Service{
		source:   source,
		rel:      rel,
		minLines: cfg.Discovery.SupplierMinInteractions,
		log:      log.With(logger.Scope("discovery.svc")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// supplierStrength maps the number of matching cost lines to 1..5.
func supplierStrength(lines int) int {
	return max(relationships.MinStrength, min(relationships.MaxStrength, (lines+1)/2))
}

// DetectSuppliers writes a supplies edge for every contact whose name shows
// up on enough cost lines of a product. Each candidate succeeds or fails on
// its own; only a failing candidate query fails the run.
func (s *Service) DetectSuppliers(ctx context.Context, t tenant.ID) (*Report, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	ctx, span := tracing.Start(ctx, "discovery.detect_suppliers", tracing.Tenant(t.String()))
	defer span.End()

	report := &Report{Tenant: t.String(), Results: []Result{}, StartedAt: s.now()}
	candidates, err := s.source.SupplierCandidates(ctx, t, s.minLines)
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}
	report.Candidates = len(candidates)

	detectedAt := report.StartedAt.Format(time.RFC3339)
	for _, c := range candidates {
		res := s.detectOne(ctx, t, c, detectedAt)
		supplierOutcomes.WithLabelValues(string(res.Outcome)).Inc()
		report.add(res)
	}
	report.FinishedAt = s.now()

	span.SetAttributes(
		attribute.Int("biz.discovery.candidates", report.Candidates),
		attribute.Int("biz.discovery.failed", report.Failed),
	)
	s.log.Info("supplier detection finished",
		slog.String("tenant", t.String()),
		slog.Int("candidates", report.Candidates),
		slog.Int("created", report.Created),
		slog.Int("refreshed", report.Refreshed),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}

func (s *Service) detectOne(ctx context.Context, t tenant.ID, c Candidate, detectedAt string) Result {
	strength := supplierStrength(c.LineCount)
	res := Result{ContactID: c.ContactID, ProductID: c.ProductID, Strength: strength}

	draft := relationships.Draft{
		RelationshipType: relationships.TypeSupplies,
		SourceType:       relationships.KindContact,
		SourceID:         c.ContactID,
		TargetType:       relationships.KindProduct,
		TargetID:         c.ProductID,
		Strength:         &strength,
		Metadata: relationships.Metadata{
			relationships.MetaAutoDetected:     true,
			relationships.MetaTotalValue:       c.TotalValue,
			relationships.MetaInteractionCount: c.LineCount,
			relationships.MetaDetectionDate:    detectedAt,
		},
		Tags: supplierTags,
	}

	existing, err := s.rel.FindByKey(ctx, t, draft.Key())
	if err != nil {
		return s.failed(res, err)
	}
	e, err := s.rel.Create(ctx, t, draft)
	switch {
	case apperror.IsConflict(err):
		res.Outcome = OutcomeSkippedDuplicate
		return res
	case err != nil:
		return s.failed(res, err)
	}

	res.RelationshipID = &e.ID
	res.Outcome = OutcomeCreated
	if existing != nil {
		res.Outcome = OutcomeRefreshed
	}
	return res
}

func (s *Service) failed(res Result, err error) Result {
	s.log.Warn("supplier candidate failed",
		slog.String("contact", res.ContactID),
		slog.String("product", res.ProductID),
		logger.Error(err),
	)
	res.Outcome = OutcomeFailed
	res.Error = err.Error()
	return res
}

// DetectSuppliersAllTenants runs detection for every tenant with cost
// history. A tenant whose run fails is reported and skipped.
func (s *Service) DetectSuppliersAllTenants(ctx context.Context) ([]*Report, error) {
	tenants, err := s.source.TenantsWithCostHistory(ctx)
	if err != nil {
		return nil, err
	}

	reports := make([]*Report, 0, len(tenants))
	for _, t := range tenants {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := s.DetectSuppliers(ctx, t)
		if err != nil {
			s.log.Error("supplier detection failed for tenant", slog.String("tenant", t.String()), logger.Error(err))
			report = &Report{Tenant: t.String(), Results: []Result{}, Error: err.Error()}
		}
		reports = append(reports, report)
	}
	return reports, nil
}
