package reltypes

import (
	"context"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/bizsuite/server/pkg/apperror"
	"github.com/bizsuite/server/pkg/logger"
)

// Repository reads relationship types from biz.relationship_types.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("reltypes.repo")),
	}
}

// ListAll returns every relationship type ordered by name.
func (r *Repository) ListAll(ctx context.Context) ([]RelationshipType, error) {
	var types []RelationshipType
	if err := r.db.NewSelect().Model(&types).Order("name ASC").Scan(ctx); err != nil {
		r.log.Error("failed to load relationship types", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return types, nil
}
