package main

import (
	"fmt"
	"sync"

	"github.com/samber/lo"
)

// observed collects the counts returned by concurrent increments of one key.
type observed struct {
	mu     sync.Mutex
	values []int64
}

func (o *observed) add(n int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.values = append(o.values, n)
}

func (o *observed) snapshot() []int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]int64(nil), o.values...)
}

// verifySequence checks that n successful increments of a fresh key returned exactly 1..n.
// final is the count read back after the run; failed increments may still have been applied, so final >= n.
func verifySequence(values []int64, final int64) error {
	if len(values) == 0 {
		return nil
	}

	if uniq := lo.Uniq(values); len(uniq) != len(values) {
		return fmt.Errorf("duplicate counts returned: %d of %d unique", len(uniq), len(values))
	}

	if m := lo.Max(values); m > final {
		return fmt.Errorf("returned count %d exceeds final count %d", m, final)
	}

	if lo.Min(values) < 1 {
		return fmt.Errorf("returned count below 1: %d", lo.Min(values))
	}

	if final < int64(len(values)) {
		return fmt.Errorf("final count %d is less than successful increments %d", final, len(values))
	}
	return nil
}
