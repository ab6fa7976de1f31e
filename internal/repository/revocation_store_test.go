package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedisTest starts a miniredis instance and returns a connected client.
func setupRedisTest(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		mr.Close()
		t.Fatalf("failed to create redis client: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestRevocationStore_RefreshLifecycle(t *testing.T) {
	client, mr := setupRedisTest(t)
	store := NewRevocationStore(client, time.Second)
	ctx := context.Background()

	_, ok, err := store.GetRefresh(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetRefresh(ctx, "alice", "first", time.Hour))
	require.NoError(t, store.SetRefresh(ctx, "alice", "second", time.Hour))

	token, ok, err := store.GetRefresh(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "second", token)
	assert.Equal(t, time.Hour, mr.TTL("refresh:alice"))

	require.NoError(t, store.DeleteRefresh(ctx, "alice"))
	_, ok, err = store.GetRefresh(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRevocationStore_RefreshExpires(t *testing.T) {
	client, mr := setupRedisTest(t)
	store := NewRevocationStore(client, time.Second)
	ctx := context.Background()

	require.NoError(t, store.SetRefresh(ctx, "bob", "tok", time.Minute))
	mr.FastForward(time.Minute)

	_, ok, err := store.GetRefresh(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRevocationStore_SetRefreshRejectsNonPositiveTTL(t *testing.T) {
	client, _ := setupRedisTest(t)
	store := NewRevocationStore(client, time.Second)

	assert.Error(t, store.SetRefresh(context.Background(), "bob", "tok", 0))
}

func TestRevocationStore_BlacklistExactMatch(t *testing.T) {
	client, mr := setupRedisTest(t)
	store := NewRevocationStore(client, time.Second)
	ctx := context.Background()

	require.NoError(t, store.BlacklistAccess(ctx, "alice", "old-token", 30*time.Second))

	hit, err := store.IsBlacklisted(ctx, "alice", "old-token")
	require.NoError(t, err)
	assert.True(t, hit)

	hit, err = store.IsBlacklisted(ctx, "alice", "new-token")
	require.NoError(t, err)
	assert.False(t, hit)

	hit, err = store.IsBlacklisted(ctx, "carol", "old-token")
	require.NoError(t, err)
	assert.False(t, hit)

	mr.FastForward(30 * time.Second)
	hit, err = store.IsBlacklisted(ctx, "alice", "old-token")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRevocationStore_BlacklistSkipsNonPositiveTTL(t *testing.T) {
	client, mr := setupRedisTest(t)
	store := NewRevocationStore(client, time.Second)

	require.NoError(t, store.BlacklistAccess(context.Background(), "alice", "tok", 0))
	assert.False(t, mr.Exists("access:alice"))
}

func TestRevocationStore_UnavailableStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	store := NewRevocationStore(client, 200*time.Millisecond)
	mr.Close()

	_, _, err = store.GetRefresh(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = store.IsBlacklisted(context.Background(), "alice", "tok")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestFilterCounter(t *testing.T) {
	client, _ := setupRedisTest(t)
	counter := NewFilterCounter(client, time.Second)
	ctx := context.Background()

	n, err := counter.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	for i := 0; i < 3; i++ {
		_, err := counter.Incr(ctx)
		require.NoError(t, err)
	}

	n, err = counter.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
