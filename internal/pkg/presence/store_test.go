package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStoreExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewStore(client, time.Minute)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	st, err := s.Set(ctx, "u1", true, at)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01T10:00:00Z", st.LastSeenAt)

	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, got.IsOnline)

	many, err := s.GetMany(ctx, []string{"u1", "u2"})
	require.NoError(t, err)
	assert.Len(t, many, 1)

	mr.FastForward(2 * time.Minute)
	got, err = s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, got.IsOnline)
}

func TestRedisStoreOffline(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewStore(client, time.Minute)
	ctx := context.Background()
	_, err := s.Set(ctx, "u1", true, time.Now())
	require.NoError(t, err)
	_, err = s.Set(ctx, "u1", false, time.Now())
	require.NoError(t, err)

	assert.False(t, mr.Exists(keyPrefix+"u1"))
}

func TestLocalStore(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	s := NewStore(nil, 10*time.Second)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := s.Set(ctx, "u1", true, now)
	require.NoError(t, err)
	got, _ := s.Get(ctx, "u1")
	assert.True(t, got.IsOnline)

	now = now.Add(11 * time.Second)
	got, _ = s.Get(ctx, "u1")
	assert.False(t, got.IsOnline)
}
