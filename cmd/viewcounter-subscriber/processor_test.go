package main

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tckz/viewcounter/internal/counter"
	"github.com/tckz/viewcounter/internal/handler"
	"github.com/tckz/viewcounter/internal/store/memstore"
	"go.uber.org/zap"
)

func newTestProcessor(t *testing.T, c handler.Counter, marker ProcessMarker) *Processor {
	t.Helper()
	return &Processor{
		handler: handler.New(c),
		marker:  marker,
		logger:  zap.NewNop().Sugar(),
	}
}

func TestProcess_Redelivery(t *testing.T) {
	s := memstore.New()
	vc, err := counter.New(s)
	require.NoError(t, err)
	p := newTestProcessor(t, vc, NewLocalMarker(time.Minute))

	assert.True(t, p.Process(context.Background(), "m1", "page-42"))
	// same message delivered again
	assert.True(t, p.Process(context.Background(), "m1", "page-42"))
	assert.True(t, p.Process(context.Background(), "m2", "page-42"))

	got, err := s.Get(context.Background(), "page-42")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Views())
}

func TestProcess_Failures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantAck bool
	}{
		{name: "invalid", err: fmt.Errorf("%w: key is required", counter.ErrInvalidInput), wantAck: true},
		{name: "corrupt", err: fmt.Errorf("%w: views=x", counter.ErrDataCorruption), wantAck: true},
		{name: "unavailable", err: fmt.Errorf("%w: timeout", counter.ErrStoreUnavailable), wantAck: false},
		{name: "conflict", err: fmt.Errorf("%w: gave up", counter.ErrConflict), wantAck: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			marker := NewLocalMarker(time.Minute)
			p := newTestProcessor(t, errCounter{err: tt.err}, marker)

			assert.Equal(t, tt.wantAck, p.Process(context.Background(), "m1", "k"))

			// a nacked message must be processable on redelivery
			got, err := marker.Acquire(context.Background(), "m1")
			require.NoError(t, err)
			assert.Equal(t, !tt.wantAck, got)
		})
	}
}

func TestRedisMarker(t *testing.T) {
	mr := miniredis.RunT(t)
	cl := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	defer cl.Close()
	m := &RedisMarker{client: cl, ttl: time.Minute}
	ctx := context.Background()

	got, err := m.Acquire(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, got)

	got, err = m.Acquire(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, got)
	assert.Equal(t, time.Minute, mr.TTL(markerKey("m1")))

	require.NoError(t, m.Release(ctx, "m1"))
	got, err = m.Acquire(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, got)
}

type errCounter struct {
	err error
}

func (e errCounter) Increment(context.Context, string) (int64, error) {
	return 0, e.err
}
