package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/rfqmarket-backend/pkg/redis"
)

type memoryStore struct {
	mu     sync.Mutex
	data   map[string]string
	ttls   map[string]time.Duration
	setErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", errors.New("redis: nil")
	}
	return v, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return false, m.setErr
	}
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return (&redis.Client{}).IdempotencyKey(scope, id)
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func TestNewGuardValidates(t *testing.T) {
	_, err := NewGuard(nil, time.Hour, "payment-webhook")
	require.Error(t, err)
	_, err = NewGuard(newMemoryStore(), -time.Second, "payment-webhook")
	require.Error(t, err)
	_, err = NewGuard(newMemoryStore(), time.Hour, " ")
	require.Error(t, err)
	_, err = ForConsumer(newMemoryStore(), time.Hour, "")
	require.Error(t, err)
}

func TestCheckAndMarkOncePerScope(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()
	backfill, err := ForConsumer(store, 720*time.Hour, "invoice-backfill")
	require.NoError(t, err)
	webhook, err := NewGuard(store, 24*time.Hour, "payment-webhook")
	require.NoError(t, err)
	backfill.now = func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.FixedZone("KST", 9*3600)) }

	seen, err := backfill.CheckAndMark(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = backfill.CheckAndMark(ctx, " evt-1 ")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = webhook.CheckAndMark(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen, "scopes are isolated")

	key := "rfq:idempotency:evt:processed:invoice-backfill:evt-1"
	assert.Equal(t, "2026-03-14T01:00:00Z", store.data[key])
	assert.Equal(t, 720*time.Hour, store.ttls[key])
}

func TestForgetAllowsRedelivery(t *testing.T) {
	guard, err := ForConsumer(newMemoryStore(), time.Hour, "invoice-backfill")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = guard.CheckAndMark(ctx, "evt-2")
	require.NoError(t, err)
	require.NoError(t, guard.Forget(ctx, "evt-2"))

	seen, err := guard.CheckAndMark(ctx, "evt-2")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestGuardErrors(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewGuard(store, time.Hour, "payment-webhook")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = guard.CheckAndMark(ctx, "")
	require.ErrorIs(t, err, errEmptyID)
	require.ErrorIs(t, guard.Forget(ctx, ""), errEmptyID)

	store.setErr = errors.New("connection refused")
	_, err = guard.CheckAndMark(ctx, "evt-3")
	require.ErrorIs(t, err, store.setErr)
}
