package relationships

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/bizsuite/server/domain/reltypes"
)

var Module = fx.Module("relationships",
	fx.Provide(
		NewRepository,
		func(r *Repository) Store { return r },
		func(store Store, registry *reltypes.Registry, log *slog.Logger) *Service {
			return NewService(store, registry, log)
		},
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
