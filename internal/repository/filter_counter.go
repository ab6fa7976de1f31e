package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const filterCountKey = "filter:count"

// FilterCounter tracks how many texts went through moderation.
type FilterCounter struct {
	client  *redis.Client
	timeout time.Duration
}

func NewFilterCounter(client *redis.Client, timeout time.Duration) *FilterCounter {
	return &FilterCounter{client: client, timeout: timeout}
}

func (c *FilterCounter) Incr(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	n, err := c.client.Incr(ctx, filterCountKey).Result()
	if err != nil {
		return 0, redisErr("incr filter count", err)
	}
	return n, nil
}

func (c *FilterCounter) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.client.Get(ctx, filterCountKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, redisErr("get filter count", err)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return n, nil
}
