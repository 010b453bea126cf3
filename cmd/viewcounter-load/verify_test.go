package main

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySequence(t *testing.T) {
	tests := []struct {
		name    string
		values  []int64
		final   int64
		wantErr string
	}{
		{name: "empty", values: nil, final: 0},
		{name: "exact", values: []int64{3, 1, 2}, final: 3},
		{name: "failed increments applied", values: []int64{1, 3}, final: 3},
		{name: "duplicate", values: []int64{1, 2, 2}, final: 3, wantErr: "duplicate counts returned: 2 of 3 unique"},
		{name: "beyond final", values: []int64{1, 5}, final: 3, wantErr: "returned count 5 exceeds final count 3"},
		{name: "zero", values: []int64{0, 1}, final: 2, wantErr: "returned count below 1: 0"},
		{name: "final too small", values: []int64{1, 2}, final: 1, wantErr: "returned count 2 exceeds final count 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verifySequence(tt.values, tt.final)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.EqualError(t, err, tt.wantErr)
			}
		})
	}
}

func TestObserved(t *testing.T) {
	var o observed
	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			o.add(n)
		}(int64(i))
	}
	wg.Wait()

	got := o.snapshot()
	assert.Len(t, got, 100)
	assert.NoError(t, verifySequence(got, 100))
}
