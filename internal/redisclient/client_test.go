package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return New(redis.NewClient(&redis.Options{Addr: mr.Addr()})), mr
}

type cached struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func TestCacheRoundTripAndInvalidate(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	var out cached
	hit, err := c.GetJSON(ctx, "quotations:agency:1", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.SetJSON(ctx, "quotations", "quotations:agency:1", cached{ID: 1, Name: "a"}, time.Minute))
	require.NoError(t, c.SetJSON(ctx, "quotations", "quotations:createby:9", cached{ID: 2, Name: "b"}, time.Minute))
	require.NoError(t, c.SetJSON(ctx, "promotions", "promotions:all", cached{ID: 3}, time.Minute))

	hit, err = c.GetJSON(ctx, "quotations:agency:1", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, cached{ID: 1, Name: "a"}, out)

	require.NoError(t, c.InvalidateGroups(ctx, "quotations"))

	hit, _ = c.GetJSON(ctx, "quotations:agency:1", &out)
	assert.False(t, hit)
	hit, _ = c.GetJSON(ctx, "quotations:createby:9", &out)
	assert.False(t, hit)
	hit, _ = c.GetJSON(ctx, "promotions:all", &out)
	assert.True(t, hit, "other groups are untouched")
}

func TestLockIsExclusiveAndOwnerChecked(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	token, ok, err := c.AcquireLock(ctx, "quotation:1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = c.AcquireLock(ctx, "quotation:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.ReleaseLock(ctx, "quotation:1", "someone-else"))
	assert.True(t, mr.Exists("lock:quotation:1"), "foreign token must not release")

	require.NoError(t, c.ReleaseLock(ctx, "quotation:1", token))
	assert.False(t, mr.Exists("lock:quotation:1"))

	_, ok, err = c.AcquireLock(ctx, "quotation:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStepLedger(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	done, err := c.IsStepDone(ctx, "allocation:7:100")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, c.MarkStepDone(ctx, "allocation:7:100", time.Hour))
	done, err = c.IsStepDone(ctx, "allocation:7:100")
	require.NoError(t, err)
	assert.True(t, done)

	mr.FastForward(2 * time.Hour)
	done, err = c.IsStepDone(ctx, "allocation:7:100")
	require.NoError(t, err)
	assert.False(t, done)
}
