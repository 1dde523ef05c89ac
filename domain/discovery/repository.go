package discovery

import (
	"context"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/bizsuite/server/pkg/apperror"
	"github.com/bizsuite/server/pkg/logger"
	"github.com/bizsuite/server/pkg/tenant"
)

// CandidateSource finds supplier candidates in transactional history.
type CandidateSource interface {
	SupplierCandidates(ctx context.Context, t tenant.ID, minLines int) ([]Candidate, error)
	TenantsWithCostHistory(ctx context.Context) ([]tenant.ID, error)
}

// Repository reads cost lines, products and contacts from PostgreSQL.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

var _ CandidateSource = (*Repository)(nil)

func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("discovery.repo")),
	}
}

// A cost line matches a contact when its description contains the contact's
// name or company, case-insensitively.
const supplierCandidatesSQL = `
SELECT c.id AS contact_id,
       p.id AS product_id,
       COUNT(*)::int AS line_count,
       COALESCE(SUM(cl.amount), 0)::float8 AS total_value
FROM biz.cost_lines cl
JOIN biz.products p
  ON p.id = cl.product_id AND p.tenant_id = cl.tenant_id
JOIN biz.contacts c
  ON c.tenant_id = cl.tenant_id
 AND ((c.name <> '' AND strpos(lower(cl.description), lower(c.name)) > 0)
      OR (coalesce(c.company, '') <> '' AND strpos(lower(cl.description), lower(c.company)) > 0))
WHERE cl.tenant_id = ?
  AND cl.deleted_at IS NULL
GROUP BY c.id, p.id
HAVING COUNT(*) >= ?
ORDER BY line_count DESC, c.id, p.id`

func (r *Repository) SupplierCandidates(ctx context.Context, t tenant.ID, minLines int) ([]Candidate, error) {
	out := []Candidate{}
	if err := r.db.NewRaw(supplierCandidatesSQL, t.String(), minLines).Scan(ctx, &out); err != nil {
		r.log.Error("failed to query supplier candidates", logger.Error(err), slog.String("tenant", t.String()))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return out, nil
}

func (r *Repository) TenantsWithCostHistory(ctx context.Context) ([]tenant.ID, error) {
	var ids []string
	err := r.db.NewRaw(`
		SELECT DISTINCT tenant_id
		FROM biz.cost_lines
		WHERE deleted_at IS NULL
		ORDER BY tenant_id`).Scan(ctx, &ids)
	if err != nil {
		r.log.Error("failed to list tenants with cost history", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	out := make([]tenant.ID, len(ids))
	for i, id := range ids {
		out[i] = tenant.ID(id)
	}
	return out, nil
}
