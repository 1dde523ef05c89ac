package relationships

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bizsuite/server/pkg/tenant"
)

// Store persists edges. Every method is scoped to one tenant and, except
// FindLatest and Revive, sees live (not soft-deleted) edges only.
//
// Insert, Update and Revive must enforce live-key uniqueness and report a
// violation as apperror.ErrConflict.
type Store interface {
	Insert(ctx context.Context, e *Edge) error
	// Update writes strength, priority, is_active, metadata, tags and
	// updated_at of the live edge e. Interaction counters and deletion state
	// are left as stored. It returns apperror.ErrNotFound once e is deleted.
	Update(ctx context.Context, e *Edge) error
	// SoftDelete tombstones the live edge id, or returns apperror.ErrNotFound.
	SoftDelete(ctx context.Context, t tenant.ID, id uuid.UUID, at time.Time) error
	// Revive makes the edge e live and active again, whether or not it was
	// deleted, writing its metadata and interaction timestamp.
	Revive(ctx context.Context, e *Edge) error

	// Get returns apperror.ErrNotFound when the edge is absent, deleted or
	// owned by another tenant.
	Get(ctx context.Context, t tenant.ID, id uuid.UUID) (*Edge, error)
	// FindLive returns the live edge for key, or nil.
	FindLive(ctx context.Context, t tenant.ID, key EdgeKey) (*Edge, error)
	// FindLatest returns the most recently updated edge for key including
	// tombstones, or nil.
	FindLatest(ctx context.Context, t tenant.ID, key EdgeKey) (*Edge, error)

	List(ctx context.Context, t tenant.ID, f Filter, page PageRequest) ([]Edge, int, error)
	ListAll(ctx context.Context, t tenant.ID, f Filter) ([]Edge, error)
	// ListForEntity returns live, active edges with ref at either end.
	ListForEntity(ctx context.Context, t tenant.ID, ref EntityRef) ([]Edge, error)

	// SoftDeleteMatching tombstones every live edge selected by any match.
	SoftDeleteMatching(ctx context.Context, t tenant.ID, matches []EdgeMatch, at time.Time) (int, error)
	// IncrementInteraction bumps the counters of the live edge for key and
	// reports whether one existed.
	IncrementInteraction(ctx context.Context, t tenant.ID, key EdgeKey, at time.Time) (bool, error)

	SuggestTargets(ctx context.Context, t tenant.ID, entity EntityRef, targetKind EntityKind, limit int) ([]Suggestion, error)

	// RunInTx runs fn against a transaction-scoped Store. fn's writes are
	// discarded if it returns an error.
	RunInTx(ctx context.Context, fn func(tx Store) error) error
}
