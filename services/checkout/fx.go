package checkout

import "go.uber.org/fx"

var Module = fx.Module("checkout.service",
	fx.Provide(NewService),
)

var HTTP = fx.Module("checkout.http",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
