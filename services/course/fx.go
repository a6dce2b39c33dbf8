package course

import "go.uber.org/fx"

var Module = fx.Module("course.service",
	fx.Provide(
		NewService,
		func(s *Service) Catalog { return s },
	),
)
