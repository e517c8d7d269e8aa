package app

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/rfqmarket-backend/pkg/config"
	"github.com/angelmondragon/rfqmarket-backend/pkg/logger"
)

func TestRuntimeClosesInReverseOrder(t *testing.T) {
	var buf bytes.Buffer
	rt := &Runtime{Logger: logger.New(logger.Options{ServiceName: "app-test", Output: &buf})}

	var order []string
	rt.onClose("database", func() error { order = append(order, "database"); return nil })
	rt.onClose("redis", func() error { order = append(order, "redis"); return errors.New("already closed") })
	rt.onClose("pubsub", func() error { order = append(order, "pubsub"); return nil })

	rt.Close()
	assert.Equal(t, []string{"pubsub", "redis", "database"}, order)
	assert.Contains(t, buf.String(), "error closing redis")

	rt.Close()
	assert.Len(t, order, 3, "second Close is a no-op")
}

func TestSignalContextCarriesServiceFields(t *testing.T) {
	var buf bytes.Buffer
	rt := &Runtime{
		Service: "cron-worker",
		Config:  &config.Config{App: config.AppConfig{Env: "dev"}},
		Logger:  logger.New(logger.Options{ServiceName: "app-test", Output: &buf}),
	}

	ctx, stop := rt.SignalContext(map[string]any{"jobs": []string{"negotiation-sweep"}})
	defer stop()
	rt.Logger.Info(ctx, "starting")

	for _, want := range []string{`"env":"dev"`, `"serviceKind":"cron-worker"`, `"negotiation-sweep"`} {
		assert.Contains(t, buf.String(), want)
	}
	assert.NoError(t, ctx.Err())
	stop()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
