package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tckz/viewcounter/internal/counter"
)

func TestStore_GetMissing(t *testing.T) {
	s := New()

	got, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, got.Found)
	assert.Equal(t, int64(0), got.Views())
}

func TestStore_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := New()

	ok, err := s.CompareAndSwap(ctx, counter.NotFound("k"), counter.Record{Key: "k", Views: 1})
	require.NoError(t, err)
	require.True(t, ok)

	// absent expected, but the record now exists
	ok, err = s.CompareAndSwap(ctx, counter.NotFound("k"), counter.Record{Key: "k", Views: 1})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CompareAndSwap(ctx, counter.Found("k", 7), counter.Record{Key: "k", Views: 8})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CompareAndSwap(ctx, counter.Found("k", 1), counter.Record{Key: "k", Views: 2})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, counter.Found("k", 2), got)
	assert.Equal(t, 1, s.Len())
}

func TestStore_Corrupted(t *testing.T) {
	tests := []struct {
		name  string
		attrs map[string]interface{}
	}{
		{name: "string", attrs: map[string]interface{}{"views": "not-a-number"}},
		{name: "negative", attrs: map[string]interface{}{"views": -3}},
		{name: "missing", attrs: map[string]interface{}{"other": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			s.Put("k", tt.attrs)

			_, err := s.Get(context.Background(), "k")
			assert.ErrorIs(t, err, counter.ErrDataCorruption)

			_, err = s.CompareAndSwap(context.Background(), counter.NotFound("k"), counter.Record{Key: "k", Views: 1})
			assert.ErrorIs(t, err, counter.ErrDataCorruption)
		})
	}
}
