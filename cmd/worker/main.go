package main

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/rfqmarket-backend/internal/app"
	"github.com/angelmondragon/rfqmarket-backend/internal/invoices"
	"github.com/angelmondragon/rfqmarket-backend/pkg/idempotency"
)

const serviceName = "worker"

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
	pubsubClient, err := rt.OpenPubSub(boot)
	if err != nil {
		rt.Exit(boot, "failed to open pubsub", err)
	}

	domain, err := app.NewDomain(cfg, logg, rt.DB, prometheus.DefaultRegisterer)
	if err != nil {
		rt.Exit(boot, "failed to build domain services", err)
	}
	guard, err := idempotency.ForConsumer(redisClient, cfg.Eventing.OutboxIdempotencyTTL, invoices.BackfillConsumer)
	if err != nil {
		rt.Exit(boot, "failed to create idempotency guard", err)
	}
	consumer, err := invoices.NewConsumer(domain.Invoices, pubsubClient.DomainSubscription(), guard, logg)
	if err != nil {
		rt.Exit(boot, "failed to create invoice consumer", err)
	}

	service, err := NewService(ServiceParams{
		Logger:          logg,
		DB:              rt.DB,
		Redis:           redisClient,
		PubSub:          pubsubClient,
		InvoiceConsumer: consumer,
	})
	if err != nil {
		rt.Exit(boot, "failed to create worker service", err)
	}

	ctx, stop := rt.SignalContext(nil)
	defer stop()
	logg.Info(ctx, "starting worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		rt.Exit(ctx, "worker stopped unexpectedly", err)
	}
	logg.Info(ctx, "worker shutting down gracefully")
}
