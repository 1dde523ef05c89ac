package tasks

import (
	"context"
	"time"

	"github.com/bizsuite/server/domain/relationships"
	"github.com/bizsuite/server/pkg/tenant"
)

// Store persists tasks and reads the user and project rows enrichment needs.
// Every method is tenant-scoped and ignores soft-deleted rows.
type Store interface {
	List(ctx context.Context, t tenant.ID, params ListParams) ([]Task, int, error)
	// Get returns apperror.ErrNotFound for a missing task.
	Get(ctx context.Context, t tenant.ID, id string) (*Task, error)
	Insert(ctx context.Context, task *Task) error
	// SetProject returns apperror.ErrNotFound for a missing task.
	SetProject(ctx context.Context, t tenant.ID, id string, projectID *string, at time.Time) error

	UsersByIDs(ctx context.Context, t tenant.ID, ids []string) ([]User, error)
	ProjectsByIDs(ctx context.Context, t tenant.ID, ids []string) ([]Project, error)

	// Edges is the relationship store sharing this Store's connection or
	// transaction.
	Edges() relationships.Store
	// RunInTx runs fn against a Store whose task and edge writes commit or
	// roll back together.
	RunInTx(ctx context.Context, fn func(tx Store) error) error
}
