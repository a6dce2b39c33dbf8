package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"examprep-marketplace/pkg/config"
	"examprep-marketplace/pkg/db"
	"examprep-marketplace/pkg/hashistack/secretmanager"
	"examprep-marketplace/pkg/logger"
	"examprep-marketplace/services/account"
	"examprep-marketplace/services/affiliate"
	"examprep-marketplace/services/checkout"
	"examprep-marketplace/services/course"
	"examprep-marketplace/services/settlement"
	"examprep-marketplace/services/task"
)

var models = []any{
	&account.User{},
	&course.Course{},
	&affiliate.AffiliateLink{},
	&affiliate.Click{},
	&checkout.Order{},
	&settlement.Purchase{},
	&task.Job{},
}

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Select(),
		logger.Module,
		db.Module,
		fx.Invoke(migrate),
		fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
}

func migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(models...); err != nil {
		zap.L().Error("[Migrate] auto migrate failed", zap.Error(err))
		return err
	}
	zap.L().Info("[Migrate] schema is up to date", zap.Int("models", len(models)))
	return nil
}
