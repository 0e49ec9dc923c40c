package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/pkg/config"
)

// fakeRedis runs the client scripts against maps.
type fakeRedis struct {
	values   map[string]string
	counters map[string]int64
	expiry   map[string]time.Duration
	armed    int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		values:   map[string]string{},
		counters: map[string]int64{},
		expiry:   map[string]time.Duration{},
	}
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if v, ok := f.values[key]; ok {
		return redis.NewStringResult(v, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	if _, taken := f.values[key]; taken {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = fmt.Sprint(value)
	f.expiry[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.values, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeRedis) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	k := keys[0]
	owned := func() bool {
		v, ok := f.values[k]
		return ok && v == args[0]
	}
	switch script {
	case counterScript:
		f.counters[k]++
		if f.counters[k] == 1 {
			f.expiry[k] = time.Duration(args[0].(int64)) * time.Millisecond
			f.armed++
		}
		cmd.SetVal(f.counters[k])
	case releaseScript:
		if !owned() {
			cmd.SetVal(int64(0))
			break
		}
		delete(f.values, k)
		cmd.SetVal(int64(1))
	case swapScript:
		if !owned() {
			cmd.SetVal(int64(0))
			break
		}
		f.values[k] = args[1].(string)
		f.expiry[k] = time.Duration(args[2].(int64)) * time.Millisecond
		cmd.SetVal(int64(1))
	default:
		cmd.SetErr(fmt.Errorf("unknown script"))
	}
	return cmd
}

func newTestClient() (*Client, *fakeRedis) {
	fake := newFakeRedis()
	return &Client{cmds: fake}, fake
}

func TestIncrWithTTLArmsExpiryOnce(t *testing.T) {
	client, fake := newTestClient()
	ctx := context.Background()
	key := client.RateLimitKey("checkout:user:u1")

	for want := int64(1); want <= 3; want++ {
		n, err := client.IncrWithTTL(ctx, key, time.Minute)
		require.NoError(t, err)
		require.Equal(t, want, n)
	}
	require.Equal(t, time.Minute, fake.expiry[key])
	require.Equal(t, 1, fake.armed)
}

func TestCompareAndDeleteHonorsOwner(t *testing.T) {
	client, _ := newTestClient()
	ctx := context.Background()
	key := client.LockKey("cron:scheduler")

	won, err := client.SetNX(ctx, key, "worker-a", time.Minute)
	require.NoError(t, err)
	require.True(t, won)
	won, err = client.SetNX(ctx, key, "worker-b", time.Minute)
	require.NoError(t, err)
	require.False(t, won)

	deleted, err := client.CompareAndDelete(ctx, key, "worker-b")
	require.NoError(t, err)
	require.False(t, deleted)

	deleted, err = client.CompareAndDelete(ctx, key, "worker-a")
	require.NoError(t, err)
	require.True(t, deleted)

	_, err = client.Get(ctx, key)
	require.ErrorIs(t, err, redis.Nil)
}

func TestCompareAndSwapRefreshesTTL(t *testing.T) {
	client, fake := newTestClient()
	ctx := context.Background()
	key := client.IdempotencyKey("u1|/api/v1/checkout", "k1")

	_, err := client.SetNX(ctx, key, "pending", 2*time.Minute)
	require.NoError(t, err)

	swapped, err := client.CompareAndSwap(ctx, key, "stale", "done", time.Hour)
	require.NoError(t, err)
	require.False(t, swapped)

	swapped, err = client.CompareAndSwap(ctx, key, "pending", "done", time.Hour)
	require.NoError(t, err)
	require.True(t, swapped)

	got, err := client.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "done", got)
	require.Equal(t, time.Hour, fake.expiry[key])
}

func TestZeroClientReportsNotInitialized(t *testing.T) {
	ctx := context.Background()
	for _, client := range []*Client{nil, {}} {
		_, err := client.IncrWithTTL(ctx, "k", time.Second)
		require.ErrorIs(t, err, errNotInitialized)
		_, err = client.CompareAndDelete(ctx, "k", "v")
		require.ErrorIs(t, err, errNotInitialized)
		require.ErrorIs(t, client.Ping(ctx), errNotInitialized)
		require.NoError(t, client.Close())
	}
}

func TestKeys(t *testing.T) {
	client := &Client{}
	cases := map[string]string{
		client.IdempotencyKey("u1|/api/v1/checkout", "k1"): "of:idempotency:u1|/api/v1/checkout:k1",
		client.IdempotencyKey(" ", "k1"):                   "of:idempotency:k1",
		client.RateLimitKey("payouts:ip:203.0.113.7"):     "of:rate_limit:payouts:ip:203.0.113.7",
		client.LockKey("cron:scheduler"):                  "of:lock:cron:scheduler",
	}
	for got, want := range cases {
		require.Equal(t, want, got)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	_, err = optionsFromConfig(config.RedisConfig{URL: "http://%zz"})
	require.ErrorContains(t, err, "invalid redis url")

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/2", DB: 5, PoolSize: 7, DialTimeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, 2, opts.DB)
	require.Equal(t, 7, opts.PoolSize)
	require.Equal(t, time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", Password: "pw", DB: 3})
	require.NoError(t, err)
	require.Equal(t, "cache:6379", opts.Addr)
	require.Equal(t, "pw", opts.Password)
	require.Equal(t, 3, opts.DB)
}
