// Package dsstore keeps counter records as Cloud Datastore entities named by the counter key.
package dsstore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/datastore"
	"github.com/tckz/viewcounter/internal/counter"
	"google.golang.org/api/option"
)

var (
	_ counter.Store       = (*Store)(nil)
	_ counter.Incrementer = (*Store)(nil)
)

var errMismatch = errors.New("record changed")

type Config struct {
	ProjectID       string
	Kind            string
	Namespace       string
	CredentialsFile string
	// MaxAttempts bounds the retries of the transactional increment on contention.
	MaxAttempts int
}

type Store struct {
	client      *datastore.Client
	kind        string
	namespace   string
	maxAttempts int
}

func NewClient(ctx context.Context, cfg Config) (*datastore.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	cl, err := datastore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("datastore.NewClient: %w", err)
	}
	return cl, nil
}

func New(client *datastore.Client, cfg Config) *Store {
	kind := cfg.Kind
	if kind == "" {
		kind = "ViewCounter"
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = counter.DefaultMaxAttempts
	}
	return &Store{
		client:      client,
		kind:        kind,
		namespace:   cfg.Namespace,
		maxAttempts: maxAttempts,
	}
}

func (s *Store) datastoreKey(key string) *datastore.Key {
	k := datastore.NameKey(s.kind, key, nil)
	k.Namespace = s.namespace
	return k
}

// Increment reads and writes the entity inside one transaction.
// The function passed to RunInTransaction may run more than once.
func (s *Store) Increment(ctx context.Context, key string) (int64, error) {
	dk := s.datastoreKey(key)

	var views int64
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var props datastore.PropertyList
		cur, err := lookup(key, tx.Get(dk, &props), props)
		if err != nil {
			return err
		}

		views = cur.Views() + 1
		_, err = tx.Put(dk, encode(views))
		return err
	}, datastore.MaxAttempts(s.maxAttempts))
	if err != nil {
		return 0, classify(key, "datastore.RunInTransaction", err)
	}
	return views, nil
}

func (s *Store) Get(ctx context.Context, key string) (counter.Lookup, error) {
	var props datastore.PropertyList
	cur, err := lookup(key, s.client.Get(ctx, s.datastoreKey(key), &props), props)
	if err != nil {
		return counter.Lookup{}, classify(key, "datastore.Get", err)
	}
	return cur, nil
}

func (s *Store) CompareAndSwap(ctx context.Context, prior counter.Lookup, next counter.Record) (bool, error) {
	dk := s.datastoreKey(next.Key)

	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var props datastore.PropertyList
		cur, err := lookup(next.Key, tx.Get(dk, &props), props)
		if err != nil {
			return err
		}
		if cur.Found != prior.Found || cur.Views() != prior.Views() {
			return errMismatch
		}
		_, err = tx.Put(dk, encode(next.Views))
		return err
	}, datastore.MaxAttempts(1))

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errMismatch), errors.Is(err, datastore.ErrConcurrentTransaction):
		return false, nil
	default:
		return false, classify(next.Key, "datastore.RunInTransaction", err)
	}
}

func (s *Store) Close() error {
	return s.client.Close()
}

// lookup turns the result of a Get into a Lookup.
func lookup(key string, getErr error, props datastore.PropertyList) (counter.Lookup, error) {
	if errors.Is(getErr, datastore.ErrNoSuchEntity) {
		return counter.NotFound(key), nil
	}
	if getErr != nil {
		return counter.Lookup{}, getErr
	}
	return decode(key, props)
}

func decode(key string, props datastore.PropertyList) (counter.Lookup, error) {
	var raw interface{}
	for _, p := range props {
		if p.Name == counter.FieldViews {
			raw = p.Value
			break
		}
	}
	views, err := counter.ParseViews(key, raw)
	if err != nil {
		return counter.Lookup{}, err
	}
	return counter.Found(key, views), nil
}

func encode(views int64) *datastore.PropertyList {
	return &datastore.PropertyList{
		{Name: counter.FieldViews, Value: views, NoIndex: true},
	}
}

func classify(key, op string, err error) error {
	switch {
	case errors.Is(err, counter.ErrDataCorruption):
		return err
	case errors.Is(err, datastore.ErrConcurrentTransaction):
		return fmt.Errorf("%w: key=%s, %s: %w", counter.ErrConflict, key, op, err)
	default:
		return fmt.Errorf("%w: %s: %w", counter.ErrStoreUnavailable, op, err)
	}
}
