package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"examprep-marketplace/pkg/accesscontrol"
	"examprep-marketplace/pkg/config"
	"examprep-marketplace/pkg/db"
	"examprep-marketplace/pkg/gateway"
	"examprep-marketplace/pkg/gen"
	"examprep-marketplace/pkg/hashistack/secretmanager"
	"examprep-marketplace/pkg/health"
	"examprep-marketplace/pkg/httpapi"
	"examprep-marketplace/pkg/logger"
	"examprep-marketplace/pkg/otelcol"
	"examprep-marketplace/pkg/profiling"
	"examprep-marketplace/pkg/redis"
	"examprep-marketplace/pkg/sequence"
	"examprep-marketplace/pkg/server"
	"examprep-marketplace/pkg/task"
	"examprep-marketplace/services/affiliate"
	"examprep-marketplace/services/checkout"
	"examprep-marketplace/services/course"
	"examprep-marketplace/services/leaderboard"
	"examprep-marketplace/services/settlement"
	tasksvc "examprep-marketplace/services/task"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Select(),
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		task.Client,
		sequence.Module,
		gen.Module,
		accesscontrol.Module,
		health.Module,
		httpapi.Module,
		gateway.Module,
		course.Module,
		affiliate.Module,
		affiliate.HTTP,
		checkout.Module,
		checkout.HTTP,
		settlement.Module,
		settlement.HTTP,
		leaderboard.Module,
		leaderboard.HTTP,
		tasksvc.Module,
		tasksvc.HTTP,
		server.ProvideGRPCServer,
		server.ProvideHTTPServer,
		fx.Invoke(health.RegisterGRPC),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "development" {
		return &fxevent.ZapLogger{Logger: logger.Named("fx")}
	}
	return fxevent.NopLogger
})
