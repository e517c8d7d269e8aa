package main

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/rfqmarket-backend/internal/app"
	"github.com/angelmondragon/rfqmarket-backend/internal/cron"
	"github.com/angelmondragon/rfqmarket-backend/pkg/config"
	"github.com/angelmondragon/rfqmarket-backend/pkg/db"
	"github.com/angelmondragon/rfqmarket-backend/pkg/logger"
	"github.com/angelmondragon/rfqmarket-backend/pkg/metrics"
)

const serviceName = "cron-worker"

func main() {
	boot := context.Background()
	rt, err := app.Boot(boot, serviceName)
	if err != nil {
		app.ExitBoot(serviceName, err)
	}
	defer rt.Close()
	cfg, logg := rt.Config, rt.Logger

	redisClient, err := rt.OpenRedis(boot)
	if err != nil {
		rt.Exit(boot, "failed to open redis", err)
	}
	domain, err := app.NewDomain(cfg, logg, rt.DB, prometheus.DefaultRegisterer)
	if err != nil {
		rt.Exit(boot, "failed to build domain services", err)
	}
	registry, err := buildRegistry(cfg, logg, rt.DB, domain)
	if err != nil {
		rt.Exit(boot, "failed to register cron jobs", err)
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		rt.Exit(boot, "failed to create cron lock", err)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		rt.Exit(boot, "failed to create cron service", err)
	}

	ctx, stop := rt.SignalContext(map[string]any{"jobs": registry.Names()})
	defer stop()
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		rt.Exit(ctx, "cron worker stopped unexpectedly", err)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, domain *app.Domain) (*cron.Registry, error) {
	sweeper, err := cron.NewNegotiationSweeper(cron.NegotiationSweeperParams{
		Logger:    logg,
		Deals:     domain.Deals,
		Metrics:   metrics.NewSweepMetrics(prometheus.DefaultRegisterer),
		BatchSize: cfg.Cron.SweepBatchSize,
	})
	if err != nil {
		return nil, err
	}
	outboxRetention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:           logg,
		DB:               dbClient,
		Repository:       domain.OutboxRepo,
		Retention:        cfg.Cron.OutboxRetention,
		TerminalAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	notificationCleanup, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: domain.NotificationRepo,
		Retention:  cfg.Cron.NotificationRetention,
	})
	if err != nil {
		return nil, err
	}
	registry, err := cron.NewRegistry(sweeper, outboxRetention, notificationCleanup)
	if err != nil {
		return nil, err
	}
	return registry.Select(cfg.Cron.Jobs)
}
