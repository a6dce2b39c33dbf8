package affiliate

import "go.uber.org/fx"

var Module = fx.Module("affiliate.service",
	fx.Provide(NewService),
)

var HTTP = fx.Module("affiliate.http",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
