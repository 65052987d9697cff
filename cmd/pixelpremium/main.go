package main

import (
	"context"
	"time"

	"github.com/ManuelReschke/PixelPremium/internal/pkg/billing"
	"github.com/ManuelReschke/PixelPremium/internal/pkg/cache"
	"github.com/ManuelReschke/PixelPremium/internal/pkg/database"
	"github.com/ManuelReschke/PixelPremium/internal/pkg/env"
	"github.com/ManuelReschke/PixelPremium/internal/pkg/scheduler"
	"github.com/ManuelReschke/PixelPremium/migrations"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func main() {
	env.SetupEnvFile()
	if env.IsDev() {
		log.SetLevel(log.LevelDebug)
	}

	app := fx.New(
		fx.Provide(
			database.ConfigFromEnv,
			scheduler.ConfigFromEnv,
			ProvideDatabase,
			ProvideCache,
			ProvideLocker,
			ProvideBillingOptions,
			ProvideCatalog,
			ProvideSweeper,
			ProvideManager,
		),
		fx.Invoke(
			ValidateSchema,
			SeedPlans,
			StartScheduler,
		),
	)

	app.Run()
}

func ProvideDatabase(lc fx.Lifecycle, cfg database.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("[Database] Closing connection pool")
			return database.Close(db)
		},
	})
	return db, nil
}

func ProvideCache(lc fx.Lifecycle) *redis.Client {
	client := cache.GetClient()
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return cache.Close()
		},
	})
	return client
}

func ProvideLocker(client *redis.Client) scheduler.Locker {
	return cache.NewLocker(client)
}

func ProvideBillingOptions(cfg database.Config) []billing.Option {
	return []billing.Option{
		billing.WithTimeout(cfg.OpTimeout),
		billing.WithSweepBatchSize(env.GetEnvInt("SWEEP_BATCH_SIZE", 500)),
		billing.WithSweepConcurrency(env.GetEnvInt("SWEEP_CONCURRENCY", 4)),
	}
}

func ProvideCatalog(db *gorm.DB, opts []billing.Option) *billing.Catalog {
	return billing.NewCatalog(db, opts...)
}

func ProvideSweeper(db *gorm.DB, opts []billing.Option) *billing.Sweeper {
	return billing.NewSweeper(db, opts...)
}

func ProvideManager(sweeper *billing.Sweeper, locker scheduler.Locker, cfg scheduler.Config) *scheduler.Manager {
	return scheduler.NewManager(sweeper, locker, cfg)
}

// ValidateSchema stops startup when migrations are missing or dirty.
func ValidateSchema(cfg database.Config) error {
	return database.ValidateSchema(cfg, migrations.RequiredVersion)
}

func SeedPlans(catalog *billing.Catalog) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	created, err := catalog.SeedPlans(ctx, defaultPlans())
	if err != nil {
		return err
	}
	log.Infof("[Billing] Plan catalog ready (%d seeded)", created)
	return nil
}

func StartScheduler(lc fx.Lifecycle, manager *scheduler.Manager) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			manager.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			manager.Stop()
			return nil
		},
	})
}
