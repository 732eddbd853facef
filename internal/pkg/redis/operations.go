package redis

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Set stores a key with an optional expiration
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	err := c.rdb.Set(ctx, key, value, expiration).Err()
	if err != nil {
		c.logger.Error("redis set failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return err
}

// Get reads a key; callers use IsNil to detect missing keys
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil && !IsNil(err) {
		c.logger.Error("redis get failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return val, err
}

// Del removes keys
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		c.logger.Error("redis del failed",
			zap.Strings("keys", keys),
			zap.Error(err),
		)
	}
	return n, err
}

// SetNX stores a key only if it does not exist
func (c *Client) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, key, value, expiration).Result()
	if err != nil {
		c.logger.Error("redis setnx failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return ok, err
}

// Exists reports how many of the keys exist
func (c *Client) Exists(ctx context.Context, keys ...string) (int64, error) {
	n, err := c.rdb.Exists(ctx, keys...).Result()
	if err != nil {
		c.logger.Error("redis exists failed",
			zap.Strings("keys", keys),
			zap.Error(err),
		)
	}
	return n, err
}

// Incr increments a counter key
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		c.logger.Error("redis incr failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return n, err
}

// Expire sets a TTL on a key
func (c *Client) Expire(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	ok, err := c.rdb.Expire(ctx, key, expiration).Result()
	if err != nil {
		c.logger.Error("redis expire failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return ok, err
}

// TTL reads the remaining TTL of a key
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := c.rdb.TTL(ctx, key).Result()
	if err != nil {
		c.logger.Error("redis ttl failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return d, err
}
