package task

import (
	"go.uber.org/fx"
)

var Module = fx.Module("task.service",
	fx.Provide(
		NewService,
	),
)

var HTTP = fx.Module("task.http",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)

var Worker = fx.Module("task.worker",
	fx.Provide(NewScheduler),
	fx.Invoke(RegisterHandlers, StartScheduler),
)
