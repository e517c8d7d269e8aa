package main

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/rfqmarket-backend/pkg/logger"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type runFunc func(ctx context.Context) error

func (f runFunc) Run(ctx context.Context) error { return f(ctx) }

func healthy() pinger { return pingFunc(func(context.Context) error { return nil }) }

func testParams(consumer runner) ServiceParams {
	return ServiceParams{
		Logger:          logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard}),
		DB:              healthy(),
		Redis:           healthy(),
		PubSub:          healthy(),
		InvoiceConsumer: consumer,
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	params := testParams(runFunc(func(context.Context) error { return nil }))
	params.PubSub = nil
	_, err := NewService(params)
	require.Error(t, err)

	params = testParams(nil)
	_, err = NewService(params)
	require.Error(t, err)
}

func TestRunStopsOnFailedProbe(t *testing.T) {
	ran := false
	params := testParams(runFunc(func(context.Context) error {
		ran = true
		return nil
	}))
	params.Redis = pingFunc(func(context.Context) error { return errors.New("connection refused") })
	svc, err := NewService(params)
	require.NoError(t, err)

	err = svc.Run(context.Background())
	require.ErrorContains(t, err, "redis ping failed")
	assert.False(t, ran)
}

func TestRunReturnsConsumerFailure(t *testing.T) {
	boom := errors.New("subscription deleted")
	svc, err := NewService(testParams(runFunc(func(context.Context) error { return boom })))
	require.NoError(t, err)

	require.ErrorIs(t, svc.Run(context.Background()), boom)
}

func TestRunReportsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc, err := NewService(testParams(runFunc(func(ctx context.Context) error {
		cancel()
		<-ctx.Done()
		return nil
	})))
	require.NoError(t, err)

	require.ErrorIs(t, svc.Run(ctx), context.Canceled)
}
