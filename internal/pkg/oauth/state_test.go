package oauth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return client, mr
}

func TestStateStore_GenerateState(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	store := NewStateStore(rdb)

	state, err := store.GenerateState(context.Background(), ProviderGithub, "http://localhost:3000")
	require.NoError(t, err)
	assert.Len(t, state, 64)
}

func TestStateStore_ValidateState_Success(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	store := NewStateStore(rdb)
	ctx := context.Background()

	state, err := store.GenerateState(ctx, ProviderGoogle, "http://localhost:3000/cb")
	require.NoError(t, err)

	data, err := store.ValidateState(ctx, state, ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/cb", data.RedirectURI)
	assert.Equal(t, ProviderGoogle, data.Provider)
}

func TestStateStore_ValidateState_Consumed(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	store := NewStateStore(rdb)
	ctx := context.Background()

	state, err := store.GenerateState(ctx, ProviderGithub, "http://localhost:3000")
	require.NoError(t, err)

	_, err = store.ValidateState(ctx, state, ProviderGithub)
	require.NoError(t, err)

	_, err = store.ValidateState(ctx, state, ProviderGithub)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateStore_ValidateState_ProviderMismatch(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	store := NewStateStore(rdb)
	ctx := context.Background()

	state, err := store.GenerateState(ctx, ProviderGithub, "http://localhost:3000")
	require.NoError(t, err)

	_, err = store.ValidateState(ctx, state, ProviderApple)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateStore_ValidateState_Expired(t *testing.T) {
	rdb, mr := setupTestRedis(t)
	store := NewStateStore(rdb)
	ctx := context.Background()

	state, err := store.GenerateState(ctx, ProviderGithub, "")
	require.NoError(t, err)

	mr.FastForward(stateTTL + time.Second)

	_, err = store.ValidateState(ctx, state, ProviderGithub)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateStore_ValidateState_Empty(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	store := NewStateStore(rdb)

	_, err := store.ValidateState(context.Background(), "", ProviderGithub)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateStore_GenerateState_Unique(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	store := NewStateStore(rdb)
	ctx := context.Background()

	states := make(map[string]bool)
	for i := 0; i < 50; i++ {
		state, err := store.GenerateState(ctx, ProviderGithub, "http://localhost:3000")
		require.NoError(t, err)
		assert.False(t, states[state], "duplicate state generated")
		states[state] = true
	}
}
