// Package store opens the counter store selected by configuration.
package store

import (
	"context"
	"fmt"

	"github.com/tckz/viewcounter/internal/config"
	"github.com/tckz/viewcounter/internal/counter"
	"github.com/tckz/viewcounter/internal/store/dsstore"
	"github.com/tckz/viewcounter/internal/store/dynamostore"
	"github.com/tckz/viewcounter/internal/store/memstore"
	"github.com/tckz/viewcounter/internal/store/pgstore"
	"github.com/tckz/viewcounter/internal/store/redisstore"
)

// Open returns the store and a function releasing its client.
func Open(ctx context.Context, cfg config.Config) (counter.Store, func() error, error) {
	nop := func() error { return nil }

	switch sc := cfg.Store; sc.Type {
	case config.StoreMemory:
		return memstore.New(), nop, nil

	case config.StoreRedis:
		cl := redisstore.NewClient(redisstore.Config{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
			Timeout:  cfg.Counter.Timeout,
		})
		if err := cl.Ping(ctx).Err(); err != nil {
			cl.Close()
			return nil, nil, fmt.Errorf("redis ping failed: %w", err)
		}
		s := redisstore.New(cl, sc.Redis.KeyPrefix)
		return s, s.Close, nil

	case config.StoreDatastore:
		dc := dsstore.Config{
			ProjectID:       sc.Datastore.ProjectID,
			Kind:            sc.Datastore.Kind,
			Namespace:       sc.Datastore.Namespace,
			CredentialsFile: sc.Datastore.CredentialsFile,
			MaxAttempts:     cfg.Counter.MaxAttempts,
		}
		cl, err := dsstore.NewClient(ctx, dc)
		if err != nil {
			return nil, nil, err
		}
		s := dsstore.New(cl, dc)
		return s, s.Close, nil

	case config.StoreDynamoDB:
		cl, err := dynamostore.NewClient(ctx, dynamostore.Config{
			Table:    sc.DynamoDB.Table,
			Endpoint: sc.DynamoDB.Endpoint,
			Region:   sc.DynamoDB.Region,
		})
		if err != nil {
			return nil, nil, err
		}
		return dynamostore.New(cl, sc.DynamoDB.Table), nop, nil

	case config.StorePostgres:
		pool, err := pgstore.NewPool(ctx, sc.Postgres.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		s, err := pgstore.New(pool, sc.Postgres.Table)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, s.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store type: %s", sc.Type)
	}
}

// OpenCounter opens the store and builds a ViewCounter from the counter configuration.
func OpenCounter(ctx context.Context, cfg config.Config, opts ...counter.Option) (*counter.ViewCounter, func() error, error) {
	s, closeFn, err := Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	opts = append([]counter.Option{
		counter.WithPolicy(cfg.Counter.Policy),
		counter.WithMaxAttempts(cfg.Counter.MaxAttempts),
	}, opts...)
	c, err := counter.New(s, opts...)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return c, closeFn, nil
}
