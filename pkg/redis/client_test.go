package redis

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/rfqmarket-backend/pkg/config"
	"github.com/angelmondragon/rfqmarket-backend/pkg/logger"
)

func TestSetNXOnlyOnce(t *testing.T) {
	ctx := context.Background()
	client := NewWithCmdable(newMockCmdable())

	ok, err := client.SetNX(ctx, "k", "first", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first SetNX to win, ok=%v err=%v", ok, err)
	}
	ok, err = client.SetNX(ctx, "k", "second", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected second SetNX to lose, ok=%v err=%v", ok, err)
	}
	value, err := client.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if value != "first" {
		t.Fatalf("expected first value to stick, got %q", value)
	}
}

func TestGetMissingIsNil(t *testing.T) {
	client := NewWithCmdable(newMockCmdable())
	_, err := client.Get(context.Background(), "absent")
	if !IsNil(err) {
		t.Fatalf("expected redis.Nil, got %v", err)
	}
}

func TestDelRemovesKey(t *testing.T) {
	ctx := context.Background()
	client := NewWithCmdable(newMockCmdable())
	if err := client.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := client.Del(ctx, "k"); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, "k"); !IsNil(err) {
		t.Fatalf("expected key removed, got %v", err)
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatalf("expected error from uninitialized client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on uninitialized client should be a no-op: %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("payments:confirm", "abc"); got != "rfq:idempotency:payments:confirm:abc" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.LockKey("cron:prod"); got != "rfq:lock:cron:prod" {
		t.Fatalf("unexpected lock key %s", got)
	}
	if got := client.IdempotencyKey("", "abc"); got != "rfq:idempotency:abc" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{
		URL:         "redis://localhost:6379/2",
		PoolSize:    7,
		DialTimeout: 3 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.DB != 2 || opts.PoolSize != 7 || opts.DialTimeout != 3*time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatalf("expected missing url error")
	}
}

func TestCompareAndDeleteChecksOwner(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := NewWithCmdable(mock)
	if _, err := client.SetNX(ctx, "rfq:lock:cron", "owner-a", time.Minute); err != nil {
		t.Fatalf("setnx: %v", err)
	}

	deleted, err := client.CompareAndDelete(ctx, "rfq:lock:cron", "owner-b")
	if err != nil || deleted {
		t.Fatalf("foreign owner must not delete, deleted=%v err=%v", deleted, err)
	}
	extended, err := client.CompareAndExpire(ctx, "rfq:lock:cron", "owner-a", 2*time.Minute)
	if err != nil || !extended {
		t.Fatalf("owner should extend, extended=%v err=%v", extended, err)
	}
	if mock.ttl["rfq:lock:cron"] != 2*time.Minute {
		t.Fatalf("expected ttl reset, got %s", mock.ttl["rfq:lock:cron"])
	}
	deleted, err = client.CompareAndDelete(ctx, "rfq:lock:cron", "owner-a")
	if err != nil || !deleted {
		t.Fatalf("owner should delete, deleted=%v err=%v", deleted, err)
	}
	if _, err := client.Get(ctx, "rfq:lock:cron"); !IsNil(err) {
		t.Fatalf("expected key removed, got %v", err)
	}
	if mock.shaCalls != 3 {
		t.Fatalf("expected scripts to run by sha, got %d sha calls", mock.shaCalls)
	}
}

func TestKeyspaceSkipsBlankParts(t *testing.T) {
	if got := Keyspace("rfq").Key(" ", "a", "", "b "); got != "rfq:a:b" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestSlowCommandHook(t *testing.T) {
	buf := &bytes.Buffer{}
	hook := newSlowCommandHook(logger.New(logger.Options{ServiceName: "test", Output: buf}), 10*time.Millisecond)
	clock := time.Unix(0, 0)
	hook.now = func() time.Time { return clock }

	fast := hook.ProcessHook(func(context.Context, redis.Cmder) error { return nil })
	if err := fast(context.Background(), redis.NewStringCmd(context.Background(), "get", "k")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("fast command should not log: %s", buf.String())
	}

	slow := hook.ProcessHook(func(context.Context, redis.Cmder) error {
		clock = clock.Add(25 * time.Millisecond)
		return nil
	})
	_ = slow(context.Background(), redis.NewStringCmd(context.Background(), "get", "k"))
	if !bytes.Contains(buf.Bytes(), []byte("redis.slow_command")) || !bytes.Contains(buf.Bytes(), []byte(`"command":"get"`)) {
		t.Fatalf("expected slow command entry: %s", buf.String())
	}

	buf.Reset()
	missing := hook.ProcessHook(func(context.Context, redis.Cmder) error { return redis.Nil })
	_ = missing(context.Background(), redis.NewStringCmd(context.Background(), "get", "k"))
	if buf.Len() != 0 {
		t.Fatalf("missing keys are not failures: %s", buf.String())
	}
}

type mockCmdable struct {
	data     map[string]string
	ttl      map[string]time.Duration
	shaCalls int
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: make(map[string]string), ttl: make(map[string]time.Duration)}
}

// Eval understands the two owner-checked scripts used by Client.
func (m *mockCmdable) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	key := keys[0]
	if m.data[key] != fmt.Sprint(args[0]) {
		return redis.NewCmdResult(int64(0), nil)
	}
	switch script {
	case compareAndDeleteSrc:
		delete(m.data, key)
	case compareAndExpireSrc:
		m.ttl[key] = time.Duration(args[1].(int64)) * time.Millisecond
	}
	return redis.NewCmdResult(int64(1), nil)
}

func (m *mockCmdable) EvalSha(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	for _, src := range []string{compareAndDeleteSrc, compareAndExpireSrc} {
		sum := sha1.Sum([]byte(src))
		if hex.EncodeToString(sum[:]) == sha {
			m.shaCalls++
			return m.Eval(ctx, src, keys, args...)
		}
	}
	return redis.NewCmdResult(nil, errors.New("unknown script"))
}

func (m *mockCmdable) EvalRO(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return m.Eval(ctx, script, keys, args...)
}

func (m *mockCmdable) EvalShaRO(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return m.EvalSha(ctx, sha, keys, args...)
}

func (m *mockCmdable) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (m *mockCmdable) ScriptLoad(_ context.Context, script string) *redis.StringCmd {
	sum := sha1.Sum([]byte(script))
	return redis.NewStringResult(hex.EncodeToString(sum[:]), nil)
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	m.ttl[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
