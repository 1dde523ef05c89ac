package tasks

import (
	"go.uber.org/fx"
)

// Module provides the tasks domain
var Module = fx.Module("tasks",
	fx.Provide(
		NewRepository,
		func(r *Repository) Store { return r },
		NewService,
	),
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
