package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/rfqmarket-backend/pkg/config"
	"github.com/angelmondragon/rfqmarket-backend/pkg/db"
	"github.com/angelmondragon/rfqmarket-backend/pkg/logger"
	"github.com/angelmondragon/rfqmarket-backend/pkg/migrate"
	"github.com/angelmondragon/rfqmarket-backend/pkg/pubsub"
	"github.com/angelmondragon/rfqmarket-backend/pkg/redis"
)

// Runtime is what every long-running binary boots before building its own
// services: config, logger, database and, on request, redis and pub/sub.
// Close releases them in reverse order of opening.
type Runtime struct {
	Service string
	Config  *config.Config
	Logger  *logger.Logger
	DB      *db.Client

	closers []closer
}

type closer struct {
	name  string
	close func() error
}

// Boot loads .env and config, opens the database and runs dev migrations.
func Boot(ctx context.Context, service string) (*Runtime, error) {
	bootLog := logger.New(logger.Options{ServiceName: service})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = service

	rt := &Runtime{Service: service, Config: cfg, Logger: logger.ForService(service, cfg.App)}

	rt.DB, err = db.New(ctx, cfg.DB, rt.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap database: %w", err)
	}
	rt.onClose("database", rt.DB.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, rt.Logger, rt.DB); err != nil {
		rt.Close()
		return nil, fmt.Errorf("dev migrations: %w", err)
	}
	return rt, nil
}

// OpenRedis connects to redis and ties the client to Close.
func (rt *Runtime) OpenRedis(ctx context.Context) (*redis.Client, error) {
	client, err := redis.New(ctx, rt.Config.Redis, rt.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}
	rt.onClose("redis", client.Close)
	return client, nil
}

// OpenPubSub connects to pub/sub and ties the client to Close.
func (rt *Runtime) OpenPubSub(ctx context.Context) (*pubsub.Client, error) {
	client, err := pubsub.NewClient(ctx, rt.Config.GCP, rt.Config.PubSub, rt.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap pubsub: %w", err)
	}
	rt.onClose("pubsub", client.Close)
	return client, nil
}

func (rt *Runtime) onClose(name string, fn func() error) {
	rt.closers = append(rt.closers, closer{name: name, close: fn})
}

func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		c := rt.closers[i]
		if err := c.close(); err != nil && rt.Logger != nil {
			rt.Logger.Error(context.Background(), "error closing "+c.name, err)
		}
	}
	rt.closers = nil
}

// SignalContext is cancelled on SIGINT or SIGTERM and carries the
// service's base log fields plus extra.
func (rt *Runtime) SignalContext(extra map[string]any) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	fields := map[string]any{
		"env":         rt.Config.App.Env,
		"serviceKind": rt.Service,
	}
	for k, v := range extra {
		fields[k] = v
	}
	return rt.Logger.WithFields(ctx, fields), stop
}

// Exit logs err, releases everything opened so far and exits non-zero.
func (rt *Runtime) Exit(ctx context.Context, msg string, err error) {
	rt.Logger.Error(ctx, msg, err)
	rt.Close()
	os.Exit(1)
}

// ExitBoot reports a Boot failure before a configured logger exists.
func ExitBoot(service string, err error) {
	logger.New(logger.Options{ServiceName: service}).Error(context.Background(), "failed to boot", err)
	os.Exit(1)
}
