package settlement

import "go.uber.org/fx"

var Module = fx.Module("settlement.service",
	fx.Provide(NewService),
)

var HTTP = fx.Module("settlement.http",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
