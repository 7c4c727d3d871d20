package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

//go:embed scripts/invalidate_prefix.lua
var invalidateScript string

type Client struct {
	rdb              *redis.Client
	releaseScript    *redis.Script
	invalidateScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return New(rdb), nil
}

// New wraps an existing connection
func New(rdb *redis.Client) *Client {
	return &Client{
		rdb:              rdb,
		releaseScript:    redis.NewScript(releaseLockScript),
		invalidateScript: redis.NewScript(invalidateScript),
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func cacheKey(key string) string        { return fmt.Sprintf("cache:%s", key) }
func groupIndexKey(group string) string { return fmt.Sprintf("cacheidx:%s", group) }

// GetJSON loads a cached value into out. It reports false on a miss.
func (c *Client) GetJSON(ctx context.Context, key string, out interface{}) (bool, error) {
	raw, err := c.rdb.Get(ctx, cacheKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

// SetJSON caches value under key and registers the key in group's index so
// the whole group can be dropped at once.
func (c *Client) SetJSON(ctx context.Context, group, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value %s: %w", key, err)
	}

	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, cacheKey(key), raw, ttl)
	pipe.SAdd(ctx, groupIndexKey(group), cacheKey(key))
	pipe.Expire(ctx, groupIndexKey(group), 2*ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// InvalidateGroups drops every cached key registered under the groups
func (c *Client) InvalidateGroups(ctx context.Context, groups ...string) error {
	for _, g := range groups {
		if _, err := c.invalidateScript.Run(ctx, c.rdb, []string{groupIndexKey(g)}).Result(); err != nil {
			return fmt.Errorf("invalidate cache group %s: %w", g, err)
		}
	}
	return nil
}

// AcquireLock acquires a distributed lock. The returned token must be
// passed to ReleaseLock so a lock that expired and was re-taken by another
// holder is never released by the previous one.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// ReleaseLock releases a distributed lock held with token
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

// MarkStepDone records that a side-effecting step has completed
func (c *Client) MarkStepDone(ctx context.Context, key string, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("step:%s", key), time.Now().Unix(), ttl).Err()
}

// IsStepDone checks whether a step was recorded as completed
func (c *Client) IsStepDone(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, fmt.Sprintf("step:%s", key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
