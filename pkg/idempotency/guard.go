// Package idempotency remembers which messages a handler has already
// processed so that at-least-once deliveries are acted on once.
//
// A Guard owns one key scope. Consumers of the domain topic use
// ForConsumer, which keys marks as
// rfq:idempotency:evt:processed:<consumer>:<id>; the payment webhook uses its
// own scope.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/rfqmarket-backend/pkg/redis"
)

var errEmptyID = errors.New("message id is required")

// Guard marks ids as processed for ttl. A zero ttl keeps marks forever.
type Guard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
	now   func() time.Time
}

func NewGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &Guard{store: store, ttl: ttl, scope: scope, now: time.Now}, nil
}

// ForConsumer scopes a guard to one event consumer so consumers sharing a
// subscription stream never see each other's marks.
func ForConsumer(store redis.IdempotencyStore, ttl time.Duration, consumer string) (*Guard, error) {
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return nil, errors.New("consumer name is required")
	}
	return NewGuard(store, ttl, "evt:processed:"+consumer)
}

// CheckAndMark reports whether id was already marked. When it was not, the
// mark is written atomically with the time of first processing.
func (g *Guard) CheckAndMark(ctx context.Context, id string) (bool, error) {
	key, err := g.key(id)
	if err != nil {
		return false, err
	}
	set, err := g.store.SetNX(ctx, key, g.now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, fmt.Errorf("mark %s: %w", key, err)
	}
	return !set, nil
}

// Forget drops the mark so a redelivery is handled again. Callers use it when
// processing failed after CheckAndMark.
func (g *Guard) Forget(ctx context.Context, id string) error {
	key, err := g.key(id)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) key(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errEmptyID
	}
	return g.store.IdempotencyKey(g.scope, id), nil
}
