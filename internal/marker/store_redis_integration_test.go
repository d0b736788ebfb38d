//go:build integration

package marker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veil/internal/platform/config"
	platformredis "veil/internal/platform/redis"
	"veil/pkg/platform/sentinel"
	"veil/pkg/testutil/containers"
)

func TestRedisStore(t *testing.T) {
	rc := containers.NewRedisContainer(t)

	client, err := platformredis.New(config.RedisConfig{
		URL:          rc.Addr,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	require.NoError(t, err)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	store := NewRedisStore(client.Client)
	at := time.Now().UTC().Truncate(time.Nanosecond)

	t.Run("unmarked record", func(t *testing.T) {
		marked, err := store.IsMarked(ctx, "person", "1")
		require.NoError(t, err)
		assert.False(t, marked)

		_, err = store.MarkedAt(ctx, "person", "1")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("mark and read back", func(t *testing.T) {
		require.NoError(t, store.Mark(ctx, "person", "1", at))

		marked, err := store.IsMarked(ctx, "person", "1")
		require.NoError(t, err)
		assert.True(t, marked)

		got, err := store.MarkedAt(ctx, "person", "1")
		require.NoError(t, err)
		assert.True(t, got.Equal(at))
	})

	t.Run("re-mark upserts", func(t *testing.T) {
		later := at.Add(time.Hour)
		require.NoError(t, store.Mark(ctx, "person", "1", later))

		got, err := store.MarkedAt(ctx, "person", "1")
		require.NoError(t, err)
		assert.True(t, got.Equal(later))
	})
}
