package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/qrseal/qrseal-backend/pkg/config"
)

// fakeCmd implements the handful of Cmdable methods Client calls; anything
// else panics on the nil embedded interface.
type fakeCmd struct {
	redis.Cmdable
	vals map[string]string
	ttls map[string]time.Duration
}

func newFakeCmd() *fakeCmd {
	return &fakeCmd{vals: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeCmd) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeCmd) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := f.vals[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeCmd) SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	if _, ok := f.vals[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.vals[key] = fmt.Sprint(value)
	f.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCmd) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.vals[k]; ok {
			delete(f.vals, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestIdempotencyStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCmd()
	var store IdempotencyStore = &Client{cmd: fake}

	k := store.IdempotencyKey("stripe-event", "evt_1")
	if ok, err := store.SetNX(ctx, k, "1", time.Hour); err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	if ok, _ := store.SetNX(ctx, k, "1", time.Hour); ok {
		t.Fatal("second claim should lose")
	}
	if fake.ttls[k] != time.Hour {
		t.Fatalf("ttl %v", fake.ttls[k])
	}
	if v, err := store.Get(ctx, k); err != nil || v != "1" {
		t.Fatalf("get: %q %v", v, err)
	}
	if err := store.Del(ctx, k); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := store.Get(ctx, k); err != Nil {
		t.Fatalf("expected Nil after delete, got %v", err)
	}
}

func TestDisconnectedClient(t *testing.T) {
	c := &Client{}
	ctx := context.Background()
	if err := c.Ping(ctx); err != errNotConnected {
		t.Fatalf("ping: %v", err)
	}
	if _, err := c.Get(ctx, "k"); err != errNotConnected {
		t.Fatalf("get: %v", err)
	}
	if c.Locker() != nil {
		t.Fatal("locker without a connection")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestKeys(t *testing.T) {
	c := &Client{}
	cases := map[string]string{
		c.IdempotencyKey("u1|c1|POST|/api/v1/orders", "abc"): "qrs:idempotency:u1|c1|POST|/api/v1/orders:abc",
		c.LockKey("payment", "MO-1"):                         "qrs:lock:payment:MO-1",
		c.LockKey("cron-worker", " prod "):                   "qrs:lock:cron-worker:prod",
		c.IdempotencyKey("scope", ""):                        "qrs:idempotency:scope",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("got %s want %s", got, want)
		}
	}
}

func TestOptionsFromConfig(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected error without url or address")
	}

	opts, err := optionsFromConfig(config.RedisConfig{Address: "localhost:6379", PoolSize: 7, DB: 2, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.PoolSize != 7 || opts.DB != 2 || opts.DialTimeout != time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}

	opts, err = optionsFromConfig(config.RedisConfig{URL: "redis://:pw@cache:6380/3", DB: 9, PoolSize: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.DB != 3 || opts.Password != "pw" || opts.PoolSize != 4 {
		t.Fatalf("url settings should win, got %+v", opts)
	}
}
