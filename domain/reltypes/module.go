package reltypes

import "go.uber.org/fx"

var Module = fx.Module("reltypes",
	fx.Provide(NewRepository),
	fx.Provide(newRegistryFromConfig),
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
