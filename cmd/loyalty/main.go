package main

import (
	"context"
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"loyalty-engine/internal/httpapi"
	"loyalty-engine/internal/server"
	asynqmod "loyalty-engine/pkg/asynq"
	"loyalty-engine/pkg/config"
	"loyalty-engine/pkg/db"
	"loyalty-engine/pkg/health"
	"loyalty-engine/pkg/logger"
	"loyalty-engine/pkg/redis"
	"loyalty-engine/services/points"
	"loyalty-engine/services/promo"
	"loyalty-engine/services/reconcile"
	"loyalty-engine/services/redemption"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		asynqmod.Client,
		asynqmod.Server,
		fx.Provide(
			provideSnowflakeNode,
		),
		points.Module,
		redemption.Module,
		promo.Module,
		reconcile.Module,
		health.Module,
		httpapi.Module,
		server.Module,
		fx.Invoke(
			registerTelemetry,
			migrate,
		),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func registerTelemetry(cfg *config.Config, gdb *gorm.DB) error {
	if cfg.Tracing.Enable {
		if err := db.Otel(gdb); err != nil {
			return err
		}
	}
	if cfg.Metrics.Enable {
		if err := db.Metric(gdb, cfg.Database.DBName); err != nil {
			return err
		}
	}
	return nil
}

func migrate(lc fx.Lifecycle, gdb *gorm.DB) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := gdb.WithContext(ctx).AutoMigrate(
				&points.Account{},
				&points.Transaction{},
				&points.Tier{},
				&redemption.Redemption{},
				&promo.Code{},
				&promo.Usage{},
			); err != nil {
				zap.L().Error("failed to migrate schema", zap.Error(err))
				return err
			}

			if err := points.SeedTiers(gdb.WithContext(ctx)); err != nil {
				zap.L().Error("failed to seed tier catalog", zap.Error(err))
				return err
			}

			return nil
		},
	})
}
