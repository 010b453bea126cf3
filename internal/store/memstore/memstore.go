// Package memstore keeps counter records in process memory.
// It is meant for tests and single-process runs.
package memstore

import (
	"context"
	"sync"

	"github.com/patrickmn/go-cache"
	"github.com/tckz/viewcounter/internal/counter"
)

var _ counter.Store = (*Store)(nil)

// Store holds each record as a document of attributes so that malformed data can be represented.
type Store struct {
	mu    sync.Mutex
	cache *cache.Cache
}

func New() *Store {
	return &Store{cache: cache.New(cache.NoExpiration, 0)}
}

func (s *Store) Get(ctx context.Context, key string) (counter.Lookup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupLocked(key)
}

func (s *Store) CompareAndSwap(ctx context.Context, prior counter.Lookup, next counter.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.lookupLocked(next.Key)
	if err != nil {
		return false, err
	}
	if cur.Found != prior.Found || cur.Views() != prior.Views() {
		return false, nil
	}

	s.cache.Set(next.Key, map[string]interface{}{counter.FieldViews: next.Views}, cache.NoExpiration)
	return true, nil
}

// Put overwrites the raw attributes of key.
func (s *Store) Put(key string, attrs map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		cp[k] = v
	}
	s.cache.Set(key, cp, cache.NoExpiration)
}

func (s *Store) Len() int {
	return s.cache.ItemCount()
}

func (s *Store) lookupLocked(key string) (counter.Lookup, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return counter.NotFound(key), nil
	}
	attrs, _ := v.(map[string]interface{})
	views, err := counter.ParseViews(key, attrs[counter.FieldViews])
	if err != nil {
		return counter.Lookup{}, err
	}
	return counter.Found(key, views), nil
}
