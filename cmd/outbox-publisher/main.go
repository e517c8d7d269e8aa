package main

import (
	"context"
	"errors"

	"github.com/angelmondragon/rfqmarket-backend/internal/app"
	"github.com/angelmondragon/rfqmarket-backend/pkg/outbox"
	"github.com/angelmondragon/rfqmarket-backend/pkg/outbox/registry"
)

const serviceName = "outbox-publisher"

func main() {
	boot := context.Background()
	rt, err := app.Boot(boot, serviceName)
	if err != nil {
		app.ExitBoot(serviceName, err)
	}
	defer rt.Close()
	cfg, logg := rt.Config, rt.Logger

	pubsubClient, err := rt.OpenPubSub(boot)
	if err != nil {
		rt.Exit(boot, "failed to open pubsub", err)
	}
	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		rt.Exit(boot, "failed to build event registry", err)
	}
	publisher, err := newGCPPublisher(pubsubClient.DomainPublisher())
	if err != nil {
		rt.Exit(boot, "failed to create domain publisher", err)
	}
	defer publisher.Stop()

	conn := rt.DB.DB()
	relay, err := NewRelay(RelayParams{
		Config:        cfg.Outbox,
		Logger:        logg,
		DB:            rt.DB,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(conn),
		Registry:      eventRegistry,
		Publisher:     publisher,
		DLQRepository: outbox.NewDLQRepository(conn),
	})
	if err != nil {
		rt.Exit(boot, "failed to create outbox relay", err)
	}

	ctx, stop := rt.SignalContext(map[string]any{"topic": cfg.PubSub.DomainTopic})
	defer stop()
	logg.Info(ctx, "starting outbox publisher")

	if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		rt.Exit(ctx, "outbox publisher stopped unexpectedly", err)
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
}
