package main

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// ProcessMarker guards against counting a redelivered message twice.
type ProcessMarker interface {
	// Acquire is true when the caller obtained the right to process msgID.
	Acquire(ctx context.Context, msgID string) (bool, error)
	// Release gives the right back so that a redelivery can be processed.
	Release(ctx context.Context, msgID string) error
}

var _ ProcessMarker = (*LocalMarker)(nil)

type LocalMarker struct {
	cache *cache.Cache
}

func NewLocalMarker(ttl time.Duration) *LocalMarker {
	return &LocalMarker{cache: cache.New(ttl, ttl)}
}

func (c *LocalMarker) Acquire(ctx context.Context, msgID string) (bool, error) {
	err := c.cache.Add(msgID, struct{}{}, 0)
	return err == nil, nil
}

func (c *LocalMarker) Release(ctx context.Context, msgID string) error {
	c.cache.Delete(msgID)
	return nil
}
