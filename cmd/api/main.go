package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/rfqmarket-backend/api/routes"
	"github.com/angelmondragon/rfqmarket-backend/internal/app"
	"github.com/angelmondragon/rfqmarket-backend/internal/cron"
	"github.com/angelmondragon/rfqmarket-backend/internal/payments"
	"github.com/angelmondragon/rfqmarket-backend/pkg/gateway"
	"github.com/angelmondragon/rfqmarket-backend/pkg/idempotency"
	"github.com/angelmondragon/rfqmarket-backend/pkg/metrics"
)

const (
	serviceName       = "api"
	webhookGuardScope = "payment-webhook"
	shutdownTimeout   = 15 * time.Second
)

func main() {
	boot := context.Background()
	rt, err := app.Boot(boot, serviceName)
	if err != nil {
		app.ExitBoot(serviceName, err)
	}
	defer rt.Close()
	cfg, logg, dbClient := rt.Config, rt.Logger, rt.DB

	redisClient, err := rt.OpenRedis(boot)
	if err != nil {
		rt.Exit(boot, "failed to open redis", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if dbStats, err := dbClient.StatsCollector("rfqmarket"); err == nil {
		registry.MustRegister(dbStats)
	}

	domain, err := app.NewDomain(cfg, logg, dbClient, registry)
	if err != nil {
		rt.Exit(boot, "failed to build domain services", err)
	}

	gatewayClient, err := gateway.NewClient(cfg.Payments, logg)
	if err != nil {
		rt.Exit(boot, "failed to create payment gateway client", err)
	}
	guard, err := idempotency.NewGuard(redisClient, cfg.Payments.IdempotencyTTL, webhookGuardScope)
	if err != nil {
		rt.Exit(boot, "failed to create webhook guard", err)
	}
	replay, err := payments.NewReplayCache(redisClient, cfg.Payments.IdempotencyTTL)
	if err != nil {
		rt.Exit(boot, "failed to create idempotency replay cache", err)
	}
	paymentMetrics := metrics.NewPaymentMetrics(registry)
	paymentSvc, err := payments.NewService(payments.ServiceParams{
		Gateway:       gatewayClient,
		Orders:        domain.Deals,
		Guard:         guard,
		WebhookSecret: cfg.Payments.WebhookSecret,
		Metrics:       paymentMetrics,
		Logger:        logg,
	})
	if err != nil {
		rt.Exit(boot, "failed to create payment service", err)
	}

	sweeper, err := cron.NewNegotiationSweeper(cron.NegotiationSweeperParams{
		Logger:    logg,
		Deals:     domain.Deals,
		Metrics:   metrics.NewSweepMetrics(registry),
		BatchSize: cfg.Cron.SweepBatchSize,
	})
	if err != nil {
		rt.Exit(boot, "failed to create negotiation sweeper", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}

	ctx, stop := rt.SignalContext(map[string]any{"addr": addr, "instance": id})
	defer stop()
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Probes{DB: dbClient, Redis: redisClient}, registry, routes.Services{
			Deals:          domain.Deals,
			Credits:        domain.Credits,
			Payments:       paymentSvc,
			Invoices:       domain.Invoices,
			Notifications:  domain.Notifications,
			Sweeper:        sweeper,
			ReplayCache:    replay,
			PaymentMetrics: paymentMetrics,
			HTTPMetrics:    metrics.NewHTTPMetrics(registry),
			DeadLetters:    domain.DeadLetters,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.Exit(ctx, "api server stopped unexpectedly", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
		logg.Info(shutdownCtx, "api server shut down gracefully")
	}
}
