package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"examprep-marketplace/pkg/config"
	"examprep-marketplace/pkg/db"
	"examprep-marketplace/pkg/gateway"
	"examprep-marketplace/pkg/gen"
	"examprep-marketplace/pkg/hashistack/secretmanager"
	"examprep-marketplace/pkg/logger"
	"examprep-marketplace/pkg/otelcol"
	"examprep-marketplace/pkg/profiling"
	"examprep-marketplace/pkg/redis"
	"examprep-marketplace/pkg/sequence"
	"examprep-marketplace/pkg/task"
	"examprep-marketplace/services/affiliate"
	"examprep-marketplace/services/checkout"
	"examprep-marketplace/services/course"
	"examprep-marketplace/services/settlement"
	tasksvc "examprep-marketplace/services/task"
)

// The worker runs the asynq server and the nightly reconcile scheduler. It
// shares the settlement stack with the API so reconcile reads the same ledger.
func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Select(),
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		gen.Module,
		sequence.Module,
		gateway.Module,
		task.Client,
		task.Server,
		course.Module,
		affiliate.Module,
		checkout.Module,
		settlement.Module,
		tasksvc.Module,
		tasksvc.Worker,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
