// Package redisstore keeps each counter record as a Redis hash: <prefix><key> -> {views: N}.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tckz/viewcounter/internal/counter"
)

var (
	_ counter.Store       = (*Store)(nil)
	_ counter.Incrementer = (*Store)(nil)
)

const corruptReply = "CORRUPT"

// incrScript refuses to increment a record whose views is missing or not a non-negative integer.
var incrScript = redis.NewScript(`
local v = redis.call('HGET', KEYS[1], ARGV[1])
if v == false then
  if redis.call('EXISTS', KEYS[1]) == 1 then
    return redis.error_reply('` + corruptReply + ` views is missing')
  end
elseif not string.match(v, '^%d+$') then
  return redis.error_reply('` + corruptReply + ` views=' .. v)
end
return redis.call('HINCRBY', KEYS[1], ARGV[1], 1)
`)

var errMismatch = errors.New("record changed")

type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	Timeout   time.Duration
}

type Store struct {
	client redis.UniversalClient
	prefix string
}

// NewClient builds a client the way every binary here does.
func NewClient(cfg Config) redis.UniversalClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{cfg.Addr},
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		PoolSize:     200,
		PoolTimeout:  time.Second * 5,
	})
}

func New(client redis.UniversalClient, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) redisKey(key string) string {
	return s.prefix + key
}

func (s *Store) Increment(ctx context.Context, key string) (int64, error) {
	n, err := incrScript.Run(ctx, s.client, []string{s.redisKey(key)}, counter.FieldViews).Int64()
	if err != nil {
		return 0, classify(key, "redis.EvalSha", err)
	}
	return n, nil
}

func (s *Store) Get(ctx context.Context, key string) (counter.Lookup, error) {
	rk := s.redisKey(key)
	vals, err := s.client.HGetAll(ctx, rk).Result()
	if err != nil {
		return counter.Lookup{}, classify(key, "redis.HGetAll", err)
	}
	return decode(key, vals)
}

func (s *Store) CompareAndSwap(ctx context.Context, prior counter.Lookup, next counter.Record) (bool, error) {
	rk := s.redisKey(next.Key)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		vals, err := tx.HGetAll(ctx, rk).Result()
		if err != nil {
			return err
		}
		cur, err := decode(next.Key, vals)
		if err != nil {
			return err
		}
		if cur.Found != prior.Found || cur.Views() != prior.Views() {
			return errMismatch
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, rk, counter.FieldViews, next.Views)
			return nil
		})
		return err
	}, rk)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errMismatch), errors.Is(err, redis.TxFailedErr):
		return false, nil
	case errors.Is(err, counter.ErrDataCorruption):
		return false, err
	default:
		return false, classify(next.Key, "redis.Watch", err)
	}
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// HGETALL of a missing key is an empty map.
func decode(key string, vals map[string]string) (counter.Lookup, error) {
	if len(vals) == 0 {
		return counter.NotFound(key), nil
	}
	v, ok := vals[counter.FieldViews]
	if !ok {
		return counter.Lookup{}, fmt.Errorf("%w: key=%s, %s is missing", counter.ErrDataCorruption, key, counter.FieldViews)
	}
	n, err := counter.ParseViewsString(key, v)
	if err != nil {
		return counter.Lookup{}, err
	}
	return counter.Found(key, n), nil
}

func classify(key, op string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, corruptReply),
		strings.Contains(msg, "WRONGTYPE"),
		strings.Contains(msg, "not an integer"),
		strings.Contains(msg, "would overflow"):
		return fmt.Errorf("%w: key=%s, %s: %w", counter.ErrDataCorruption, key, op, err)
	default:
		return fmt.Errorf("%w: %s: %w", counter.ErrStoreUnavailable, op, err)
	}
}
