package discovery

import "go.uber.org/fx"

var Module = fx.Module("discovery",
	fx.Provide(
		NewRepository,
		func(r *Repository) CandidateSource { return r },
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
