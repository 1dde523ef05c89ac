package relationships

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/bizsuite/server/internal/database"
	"github.com/bizsuite/server/pkg/apperror"
	"github.com/bizsuite/server/pkg/logger"
	"github.com/bizsuite/server/pkg/pgutils"
	"github.com/bizsuite/server/pkg/tenant"
)

const orderByRank = "er.priority DESC, er.strength DESC, er.last_interaction_at DESC NULLS LAST, er.id ASC"

// Repository is the PostgreSQL Store.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

var _ Store = (*Repository)(nil)

func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("relationships.repo")),
	}
}

// WithDB returns a Repository bound to db, typically a transaction.
func (r *Repository) WithDB(db bun.IDB) *Repository {
	return &Repository{db: db, log: r.log}
}

func (r *Repository) RunInTx(ctx context.Context, fn func(tx Store) error) error {
	return database.WithTx(ctx, r.db, func(tx bun.IDB) error {
		return fn(r.WithDB(tx))
	})
}

func (r *Repository) writeErr(op string, err error) error {
	if pgutils.IsUniqueViolation(err) {
		return apperror.NewConflict("a live relationship with these endpoints and type already exists").WithInternal(err)
	}
	r.log.Error("failed to "+op+" relationship", logger.Error(err))
	return apperror.ErrDatabase.WithInternal(err)
}

func (r *Repository) Insert(ctx context.Context, e *Edge) error {
	if _, err := r.db.NewInsert().Model(e).Exec(ctx); err != nil {
		return r.writeErr("insert", err)
	}
	return nil
}

// mutableColumns are the attributes Update may rewrite. Interaction counters
// and deletion state have dedicated statements.
var mutableColumns = []string{"strength", "priority", "is_active", "metadata", "tags", "updated_at"}

func (r *Repository) Update(ctx context.Context, e *Edge) error {
	res, err := r.db.NewUpdate().
		Model(e).
		Column(mutableColumns...).
		WherePK().
		Where("er.tenant_id = ?", e.TenantID).
		Where("er.is_deleted = false").
		Exec(ctx)
	if err != nil {
		return r.writeErr("update", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NewNotFound("relationship", e.ID.String())
	}
	return nil
}

func (r *Repository) SoftDelete(ctx context.Context, t tenant.ID, id uuid.UUID, at time.Time) error {
	res, err := r.db.NewUpdate().
		Model((*Edge)(nil)).
		Set("is_deleted = true").
		Set("deleted_at = ?", at).
		Set("updated_at = ?", at).
		Where("er.id = ?", id).
		Where("er.tenant_id = ?", t).
		Where("er.is_deleted = false").
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to soft-delete relationship", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NewNotFound("relationship", id.String())
	}
	return nil
}

func (r *Repository) Revive(ctx context.Context, e *Edge) error {
	e.IsActive = true
	e.IsDeleted = false
	e.DeletedAt = nil
	res, err := r.db.NewUpdate().
		Model(e).
		Column("is_active", "is_deleted", "deleted_at", "metadata", "last_interaction_at", "updated_at").
		WherePK().
		Where("er.tenant_id = ?", e.TenantID).
		Exec(ctx)
	if err != nil {
		return r.writeErr("revive", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NewNotFound("relationship", e.ID.String())
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, t tenant.ID, id uuid.UUID) (*Edge, error) {
	e := new(Edge)
	err := r.db.NewSelect().
		Model(e).
		Where("er.id = ?", id).
		Where("er.tenant_id = ?", t).
		Where("er.is_deleted = false").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("relationship", id.String())
	}
	if err != nil {
		r.log.Error("failed to get relationship", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return e, nil
}

func whereKey(q *bun.SelectQuery, t tenant.ID, key EdgeKey) *bun.SelectQuery {
	return q.
		Where("er.tenant_id = ?", t).
		Where("er.source_type = ?", key.Source.Kind).
		Where("er.source_id = ?", key.Source.ID).
		Where("er.target_type = ?", key.Target.Kind).
		Where("er.target_id = ?", key.Target.ID).
		Where("er.relationship_type = ?", key.Type)
}

func (r *Repository) findOne(ctx context.Context, q *bun.SelectQuery, e *Edge) (*Edge, error) {
	err := q.Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("failed to look up relationship", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return e, nil
}

func (r *Repository) FindLive(ctx context.Context, t tenant.ID, key EdgeKey) (*Edge, error) {
	e := new(Edge)
	q := whereKey(r.db.NewSelect().Model(e), t, key).Where("er.is_deleted = false")
	return r.findOne(ctx, q, e)
}

func (r *Repository) FindLatest(ctx context.Context, t tenant.ID, key EdgeKey) (*Edge, error) {
	e := new(Edge)
	q := whereKey(r.db.NewSelect().Model(e), t, key).
		OrderExpr("er.is_deleted ASC, er.updated_at DESC")
	return r.findOne(ctx, q, e)
}

func applyFilter(q *bun.SelectQuery, t tenant.ID, f Filter) *bun.SelectQuery {
	q = q.Where("er.tenant_id = ?", t).Where("er.is_deleted = false")

	if f.SourceType != "" {
		q = q.Where("er.source_type = ?", f.SourceType)
	}
	if len(f.SourceIDs) > 0 {
		q = q.Where("er.source_id IN (?)", bun.In(f.SourceIDs))
	}
	if f.TargetType != "" {
		q = q.Where("er.target_type = ?", f.TargetType)
	}
	if len(f.TargetIDs) > 0 {
		q = q.Where("er.target_id IN (?)", bun.In(f.TargetIDs))
	}
	if len(f.RelationshipTypes) > 0 {
		q = q.Where("er.relationship_type IN (?)", bun.In(f.RelationshipTypes))
	}
	if f.MinStrength != nil {
		q = q.Where("er.strength >= ?", *f.MinStrength)
	}
	if f.MaxStrength != nil {
		q = q.Where("er.strength <= ?", *f.MaxStrength)
	}
	if len(f.Tags) > 0 {
		q = q.Where("er.tags && ?", pgdialect.Array(f.Tags))
	}
	if f.IsActive != nil {
		q = q.Where("er.is_active = ?", *f.IsActive)
	}
	return q
}

func (r *Repository) List(ctx context.Context, t tenant.ID, f Filter, page PageRequest) ([]Edge, int, error) {
	edges := []Edge{}
	total, err := applyFilter(r.db.NewSelect().Model(&edges), t, f).
		OrderExpr(orderByRank).
		Limit(page.Limit).
		Offset(page.Offset()).
		ScanAndCount(ctx)
	if err != nil {
		r.log.Error("failed to list relationships", logger.Error(err))
		return nil, 0, apperror.ErrDatabase.WithInternal(err)
	}
	return edges, total, nil
}

func (r *Repository) ListAll(ctx context.Context, t tenant.ID, f Filter) ([]Edge, error) {
	edges := []Edge{}
	err := applyFilter(r.db.NewSelect().Model(&edges), t, f).
		OrderExpr(orderByRank).
		Scan(ctx)
	if err != nil {
		r.log.Error("failed to list relationships", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return edges, nil
}

func (r *Repository) ListForEntity(ctx context.Context, t tenant.ID, ref EntityRef) ([]Edge, error) {
	edges := []Edge{}
	err := r.db.NewSelect().
		Model(&edges).
		Where("er.tenant_id = ?", t).
		Where("er.is_deleted = false").
		Where("er.is_active = true").
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				WhereOr("er.source_type = ? AND er.source_id = ?", ref.Kind, ref.ID).
				WhereOr("er.target_type = ? AND er.target_id = ?", ref.Kind, ref.ID)
		}).
		OrderExpr(orderByRank).
		Scan(ctx)
	if err != nil {
		r.log.Error("failed to list relationships for entity", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return edges, nil
}

func (r *Repository) SoftDeleteMatching(ctx context.Context, t tenant.ID, matches []EdgeMatch, at time.Time) (int, error) {
	matches = nonEmpty(matches)
	if len(matches) == 0 {
		return 0, nil
	}

	res, err := r.db.NewUpdate().
		Model((*Edge)(nil)).
		Set("is_deleted = true").
		Set("deleted_at = ?", at).
		Set("updated_at = ?", at).
		Where("er.tenant_id = ?", t).
		Where("er.is_deleted = false").
		WhereGroup(" AND ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
			for _, m := range matches {
				q = q.WhereGroup(" OR ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
					if m.SourceType != "" {
						q = q.Where("er.source_type = ?", m.SourceType)
					}
					if m.SourceID != "" {
						q = q.Where("er.source_id = ?", m.SourceID)
					}
					if m.TargetType != "" {
						q = q.Where("er.target_type = ?", m.TargetType)
					}
					if m.TargetID != "" {
						q = q.Where("er.target_id = ?", m.TargetID)
					}
					if m.RelationshipType != "" {
						q = q.Where("er.relationship_type = ?", m.RelationshipType)
					}
					return q
				})
			}
			return q
		}).
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to soft-delete relationships", logger.Error(err))
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *Repository) IncrementInteraction(ctx context.Context, t tenant.ID, key EdgeKey, at time.Time) (bool, error) {
	res, err := r.db.NewUpdate().
		Model((*Edge)(nil)).
		Set("interaction_count = er.interaction_count + 1").
		Set("last_interaction_at = ?", at).
		Set("updated_at = ?", at).
		Where("er.tenant_id = ?", t).
		Where("er.source_type = ?", key.Source.Kind).
		Where("er.source_id = ?", key.Source.ID).
		Where("er.target_type = ?", key.Target.Kind).
		Where("er.target_id = ?", key.Target.ID).
		Where("er.relationship_type = ?", key.Type).
		Where("er.is_deleted = false").
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to record interaction", logger.Error(err))
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *Repository) SuggestTargets(ctx context.Context, t tenant.ID, entity EntityRef, targetKind EntityKind, limit int) ([]Suggestion, error) {
	out := []Suggestion{}
	err := r.db.NewSelect().
		Model((*Edge)(nil)).
		ColumnExpr("er.target_type, er.target_id").
		ColumnExpr("COUNT(*)::int AS count").
		ColumnExpr("AVG(er.strength)::float8 AS avg_strength").
		Where("er.tenant_id = ?", t).
		Where("er.source_type = ?", entity.Kind).
		Where("er.source_id <> ?", entity.ID).
		Where("er.target_type = ?", targetKind).
		Where("er.is_active = true").
		Where("er.is_deleted = false").
		GroupExpr("er.target_type, er.target_id").
		OrderExpr("count DESC, avg_strength DESC, er.target_id ASC").
		Limit(limit).
		Scan(ctx, &out)
	if err != nil {
		r.log.Error("failed to rank suggestions", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return out, nil
}
