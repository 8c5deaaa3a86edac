package session

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"denoise-bench/internal/models"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(client, ttl, "test:session:")
	t.Cleanup(store.Shutdown)
	return store, mr
}

func TestRedisStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, time.Hour)
	require.NoError(t, store.Ping(ctx))

	original := testImage(t, 120)
	id, err := store.Create(ctx, original, "baboon.jpg")
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:session:"+id))

	sess, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, sess.ID)
	assert.Equal(t, models.StateUploaded, sess.State())
	assert.Equal(t, "baboon.jpg", sess.Filename)
	assert.True(t, original.Equal(sess.Original))

	results := testResults(t, "Mean 3x3", "Median 3x3")
	results.Results[0].PSNR = math.Inf(1)
	results.Failures = []models.FilterFailure{{Name: "Mode 7x7", Error: "too small", Kind: "ImageTooSmall"}}
	require.NoError(t, store.Update(ctx, id, models.SaltPepper(0.05, 0.01), testImage(t, 7), results))

	sess, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateProcessed, sess.State())
	assert.Equal(t, []string{"Mean 3x3", "Median 3x3"}, sess.Results.Names())
	assert.True(t, math.IsInf(sess.Results.Results[0].PSNR, 1))
	assert.Len(t, sess.Results.Failures, 1)
	assert.Equal(t, 0.05, sess.Noise.SaltProb)
	assert.Equal(t, "baboon.jpg", sess.Filename)

	got, err := store.GetOriginal(ctx, id)
	require.NoError(t, err)
	assert.True(t, original.Equal(got))

	require.NoError(t, store.Delete(ctx, id))
	_, err = store.Get(ctx, id)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestRedisStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, 10*time.Minute)

	id, err := store.Create(ctx, testImage(t, 1), "")
	require.NoError(t, err)

	mr.FastForward(8 * time.Minute)
	require.NoError(t, store.Update(ctx, id, models.Gaussian(3), testImage(t, 2), testResults(t, "A")))

	// update resets the retention window
	mr.FastForward(8 * time.Minute)
	_, err = store.Get(ctx, id)
	require.NoError(t, err)

	mr.FastForward(3 * time.Minute)
	_, err = store.Get(ctx, id)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)

	err = store.Update(ctx, id, models.Gaussian(3), testImage(t, 2), testResults(t, "A"))
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestRedisStoreUnknownSession(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t, time.Hour)

	_, err := store.Get(ctx, "nope")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestRedisStoreUpdateRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, time.Hour)

	id, err := store.Create(ctx, testImage(t, 1), "")
	require.NoError(t, err)

	writer := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = writer.Close() })

	attempts := 0
	store.beforeCommit = func(key string) {
		attempts++
		if attempts == 1 {
			data, err := writer.Get(ctx, key).Bytes()
			require.NoError(t, err)
			require.NoError(t, writer.Set(ctx, key, data, time.Hour).Err())
		}
	}

	require.NoError(t, store.Update(ctx, id, models.Gaussian(5), testImage(t, 2), testResults(t, "Mean 3x3")))
	assert.Equal(t, 2, attempts)

	sess, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateProcessed, sess.State())
}

func TestRedisStoreUpdateGivesUpUnderContention(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, time.Hour)

	id, err := store.Create(ctx, testImage(t, 1), "")
	require.NoError(t, err)

	writer := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = writer.Close() })

	attempts := 0
	store.beforeCommit = func(key string) {
		attempts++
		data, err := writer.Get(ctx, key).Bytes()
		require.NoError(t, err)
		require.NoError(t, writer.Set(ctx, key, data, time.Hour).Err())
	}

	err = store.Update(ctx, id, models.Gaussian(5), testImage(t, 2), testResults(t, "Mean 3x3"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concurrent modification")
	assert.Equal(t, maxUpdateAttempts, attempts)

	store.beforeCommit = nil
	sess, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateUploaded, sess.State())
}
