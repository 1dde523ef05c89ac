package tasks

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/bizsuite/server/domain/relationships"
	"github.com/bizsuite/server/internal/database"
	"github.com/bizsuite/server/pkg/apperror"
	"github.com/bizsuite/server/pkg/logger"
	"github.com/bizsuite/server/pkg/tenant"
)

// Repository handles database operations for tasks
type Repository struct {
	db    bun.IDB
	edges *relationships.Repository
	log   *slog.Logger
}

var _ Store = (*Repository)(nil)

// NewRepository creates a new tasks repository
func NewRepository(db bun.IDB, edges *relationships.Repository, log *slog.Logger) *Repository {
	return &Repository{
		db:    db,
		edges: edges,
		log:   log.With(logger.Scope("tasks.repo")),
	}
}

func (r *Repository) Edges() relationships.Store {
	return r.edges
}

func (r *Repository) RunInTx(ctx context.Context, fn func(tx Store) error) error {
	return database.WithTx(ctx, r.db, func(tx bun.IDB) error {
		return fn(&Repository{db: tx, edges: r.edges.WithDB(tx), log: r.log})
	})
}

// List returns one page of tasks, newest first
func (r *Repository) List(ctx context.Context, t tenant.ID, params ListParams) ([]Task, int, error) {
	tasks := []Task{}
	q := r.db.NewSelect().
		Model(&tasks).
		Where("t.tenant_id = ?", t)

	if params.Status != "" {
		q = q.Where("t.status = ?", params.Status)
	}
	if params.ProjectID != "" {
		q = q.Where("t.project_id = ?", params.ProjectID)
	}

	total, err := q.
		Order("t.created_at DESC", "t.id ASC").
		Limit(params.Limit).
		Offset(params.Offset).
		ScanAndCount(ctx)
	if err != nil {
		r.log.Error("failed to list tasks", logger.Error(err))
		return nil, 0, apperror.ErrDatabase.WithInternal(err)
	}
	return tasks, total, nil
}

// Get retrieves a task by ID
func (r *Repository) Get(ctx context.Context, t tenant.ID, id string) (*Task, error) {
	task := new(Task)
	err := r.db.NewSelect().
		Model(task).
		Where("t.id = ?", id).
		Where("t.tenant_id = ?", t).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("task", id)
	}
	if err != nil {
		r.log.Error("failed to get task", logger.Error(err), slog.String("id", id))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return task, nil
}

func (r *Repository) Insert(ctx context.Context, task *Task) error {
	if _, err := r.db.NewInsert().Model(task).Exec(ctx); err != nil {
		r.log.Error("failed to insert task", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

func (r *Repository) SetProject(ctx context.Context, t tenant.ID, id string, projectID *string, at time.Time) error {
	res, err := r.db.NewUpdate().
		Model((*Task)(nil)).
		Set("project_id = ?", projectID).
		Set("updated_at = ?", at).
		Where("t.id = ?", id).
		Where("t.tenant_id = ?", t).
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to update task project", logger.Error(err), slog.String("id", id))
		return apperror.ErrDatabase.WithInternal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NewNotFound("task", id)
	}
	return nil
}

// UsersByIDs loads the listed users in one query. Unknown ids are skipped.
func (r *Repository) UsersByIDs(ctx context.Context, t tenant.ID, ids []string) ([]User, error) {
	users := []User{}
	if len(ids) == 0 {
		return users, nil
	}
	err := r.db.NewSelect().
		Model(&users).
		Where("u.tenant_id = ?", t).
		Where("u.id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		r.log.Error("failed to load users", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return users, nil
}

// ProjectsByIDs loads the listed live projects in one query.
func (r *Repository) ProjectsByIDs(ctx context.Context, t tenant.ID, ids []string) ([]Project, error) {
	projects := []Project{}
	if len(ids) == 0 {
		return projects, nil
	}
	err := r.db.NewSelect().
		Model(&projects).
		Where("p.tenant_id = ?", t).
		Where("p.id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		r.log.Error("failed to load projects", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return projects, nil
}
