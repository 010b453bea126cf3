package counter

import (
	"context"
	"fmt"
	"math"
	"strconv"
)

// FieldViews is the attribute name used by every store for the count.
const FieldViews = "views"

type Record struct {
	Key   string
	Views int64
}

// Lookup is the result of Store.Get. A missing record is Found=false, not an error.
type Lookup struct {
	Record Record
	Found  bool
}

func NotFound(key string) Lookup {
	return Lookup{Record: Record{Key: key}}
}

func Found(key string, views int64) Lookup {
	return Lookup{Record: Record{Key: key, Views: views}, Found: true}
}

// Views returns the prior count, 0 for a missing record.
func (l Lookup) Views() int64 {
	if !l.Found {
		return 0
	}
	return l.Record.Views
}

// Store is a key-value store that can read a record and write it conditionally.
type Store interface {
	Get(ctx context.Context, key string) (Lookup, error)
	// CompareAndSwap writes next only if the stored record still matches prior.
	// prior.Found=false means "only if absent". A mismatch is (false, nil).
	CompareAndSwap(ctx context.Context, prior Lookup, next Record) (bool, error)
}

// Incrementer is a store with a native atomic increment.
type Incrementer interface {
	Increment(ctx context.Context, key string) (int64, error)
}

// ParseViews validates a raw views attribute as read from a document-like store.
// Integral numeric types are accepted, anything else (including numeric strings) is corruption.
func ParseViews(key string, v interface{}) (int64, error) {
	var n int64
	switch v := v.(type) {
	case nil:
		return 0, fmt.Errorf("%w: key=%s, %s is missing", ErrDataCorruption, key, FieldViews)
	case int:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case uint32:
		n = int64(v)
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("%w: key=%s, %s=%d out of range", ErrDataCorruption, key, FieldViews, v)
		}
		n = int64(v)
	case float64:
		if v != math.Trunc(v) || v >= math.MaxInt64 || v < math.MinInt64 {
			return 0, fmt.Errorf("%w: key=%s, %s=%v is not an integer", ErrDataCorruption, key, FieldViews, v)
		}
		n = int64(v)
	default:
		return 0, fmt.Errorf("%w: key=%s, %s=%v (%T) is not an integer", ErrDataCorruption, key, FieldViews, v, v)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: key=%s, %s=%d is negative", ErrDataCorruption, key, FieldViews, n)
	}
	return n, nil
}

// ParseViewsString validates views kept as decimal text (Redis, DynamoDB numbers).
func ParseViewsString(key, s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: key=%s, %s=%q is not an integer", ErrDataCorruption, key, FieldViews, s)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: key=%s, %s=%d is negative", ErrDataCorruption, key, FieldViews, n)
	}
	return n, nil
}
