package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ ProcessMarker = (*RedisMarker)(nil)

type RedisMarker struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func markerKey(msgID string) string {
	return "viewcounter-processed:" + msgID
}

func (c *RedisMarker) Acquire(ctx context.Context, msgID string) (bool, error) {
	return c.client.SetNX(ctx, markerKey(msgID), "v", c.ttl).Result()
}

func (c *RedisMarker) Release(ctx context.Context, msgID string) error {
	return c.client.Del(ctx, markerKey(msgID)).Err()
}
