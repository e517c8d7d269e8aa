package redis

import (
	"context"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/rfqmarket-backend/pkg/logger"
)

const defaultSlowCommand = 50 * time.Millisecond

// slowCommandHook warns about commands and pipelines slower than threshold
// and about failures other than a missing key.
type slowCommandHook struct {
	logg      *logger.Logger
	threshold time.Duration
	now       func() time.Time
}

func newSlowCommandHook(logg *logger.Logger, threshold time.Duration) *slowCommandHook {
	if threshold <= 0 {
		threshold = defaultSlowCommand
	}
	return &slowCommandHook{logg: logg, threshold: threshold, now: time.Now}
}

func (h *slowCommandHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.logg.Warn(h.logg.WithField(ctx, "addr", addr), "redis.dial_failed")
		}
		return conn, err
	}
}

func (h *slowCommandHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := h.now()
		err := next(ctx, cmd)
		h.observe(ctx, cmd.Name(), 1, h.now().Sub(start), err)
		return err
	}
}

func (h *slowCommandHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := h.now()
		err := next(ctx, cmds)
		h.observe(ctx, "pipeline", len(cmds), h.now().Sub(start), err)
		return err
	}
}

func (h *slowCommandHook) observe(ctx context.Context, name string, count int, elapsed time.Duration, err error) {
	failed := err != nil && !IsNil(err)
	if !failed && elapsed < h.threshold {
		return
	}
	ctx = h.logg.WithFields(ctx, map[string]any{
		"command":     name,
		"commands":    count,
		"duration_ms": elapsed.Milliseconds(),
	})
	if failed {
		h.logg.Error(ctx, "redis.command_failed", err)
		return
	}
	h.logg.Warn(ctx, "redis.slow_command")
}
