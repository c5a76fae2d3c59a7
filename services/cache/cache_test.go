package cachesvc

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/learninghub/core"
	"github.com/trezcool/learninghub/core/identity"
	testutil "github.com/trezcool/learninghub/tests"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), core.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestNewRedisClient(t *testing.T) {
	client, err := NewRedisClient(context.Background(), core.RedisConfig{})
	assert.NoError(t, err)
	assert.Nil(t, client, "no address disables redis")

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err = NewRedisClient(context.Background(), core.RedisConfig{Addr: addr})
	assert.Error(t, err)
}

func TestPrincipalCache(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	cache := NewPrincipalCache(client, "lh", 5*time.Minute, testutil.NopLogger{})
	p := identity.Principal{Sub: "sub-1", Email: "jane@test.cd", RoleID: identity.RoleTeacher, LocalUserID: "u1"}

	_, ok := cache.Get(ctx, "sub-1")
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "sub-1", p))
	assert.True(t, mr.Exists("lh:principal:sub-1"))
	assert.Equal(t, 5*time.Minute, mr.TTL("lh:principal:sub-1"))

	got, ok := cache.Get(ctx, "sub-1")
	require.True(t, ok)
	assert.Equal(t, p, got)

	mr.FastForward(6 * time.Minute)
	_, ok = cache.Get(ctx, "sub-1")
	assert.False(t, ok, "expired")

	require.NoError(t, cache.Set(ctx, "sub-1", p))
	require.NoError(t, cache.Set(ctx, "sub-2", p))
	require.NoError(t, cache.Delete(ctx, "sub-1", "sub-2"))
	assert.False(t, mr.Exists("lh:principal:sub-1"))
	assert.False(t, mr.Exists("lh:principal:sub-2"))

	require.NoError(t, mr.Set("lh:principal:bad", "{not json"))
	_, ok = cache.Get(ctx, "bad")
	assert.False(t, ok)
}

func TestPrincipalCache_redisDown(t *testing.T) {
	mr, client := newRedis(t)
	cache := NewPrincipalCache(client, "lh", time.Minute, testutil.NopLogger{})
	mr.Close()

	_, ok := cache.Get(context.Background(), "sub-1")
	assert.False(t, ok)
	assert.Error(t, cache.Set(context.Background(), "sub-1", identity.Principal{}))
}

func TestCodeStore(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	codes := NewCodeStore(client, "lh")

	_, ok, err := codes.GetCode(ctx, "confirm:jane@test.cd")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, codes.SaveCode(ctx, "confirm:jane@test.cd", "123456", time.Hour))
	code, ok, err := codes.GetCode(ctx, "confirm:jane@test.cd")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "123456", code)

	mr.FastForward(2 * time.Hour)
	_, ok, err = codes.GetCode(ctx, "confirm:jane@test.cd")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, codes.SaveCode(ctx, "reset:jane@test.cd", "654321", time.Hour))
	require.NoError(t, codes.DeleteCode(ctx, "reset:jane@test.cd"))
	assert.False(t, mr.Exists("lh:code:reset:jane@test.cd"))
}

func TestMemoryStores(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return start }
	defer func() { nowFunc = time.Now }()

	codes := NewMemoryCodeStore()
	require.NoError(t, codes.SaveCode(ctx, "k", "111111", time.Minute))
	code, ok, err := codes.GetCode(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "111111", code)

	cache := NewMemoryPrincipalCache(time.Minute)
	require.NoError(t, cache.Set(ctx, "sub", identity.Principal{Email: "jane@test.cd"}))
	p, ok := cache.Get(ctx, "sub")
	assert.True(t, ok)
	assert.Equal(t, "jane@test.cd", p.Email)

	nowFunc = func() time.Time { return start.Add(time.Minute) }
	_, ok, _ = codes.GetCode(ctx, "k")
	assert.False(t, ok, "expired code")
	_, ok = cache.Get(ctx, "sub")
	assert.False(t, ok, "expired principal")

	require.NoError(t, codes.SaveCode(ctx, "k", "222222", time.Minute))
	require.NoError(t, codes.DeleteCode(ctx, "k"))
	_, ok, _ = codes.GetCode(ctx, "k")
	assert.False(t, ok)
}
