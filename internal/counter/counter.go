// Package counter increments per-resource view counts kept in an external key-value store.
package counter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts = 5
	MaxKeyLength       = 1024
)

type Policy string

const (
	// PolicyAuto uses the store's atomic increment when it has one, compare-and-swap otherwise.
	PolicyAuto           Policy = "auto"
	PolicyAtomic         Policy = "atomic"
	PolicyCompareAndSwap Policy = "cas"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyAuto, nil
	case PolicyAuto, PolicyAtomic, PolicyCompareAndSwap:
		return p, nil
	default:
		return "", fmt.Errorf("unknown policy: %s", s)
	}
}

type options struct {
	policy      Policy
	maxAttempts int
	logger      *zap.SugaredLogger
}

type Option func(o *options)

func WithPolicy(p Policy) Option {
	return Option(func(o *options) {
		o.policy = p
	})
}

// WithMaxAttempts bounds the read-increment-write cycles of the compare-and-swap policy.
func WithMaxAttempts(n int) Option {
	return Option(func(o *options) {
		o.maxAttempts = n
	})
}

func WithLogger(l *zap.SugaredLogger) Option {
	return Option(func(o *options) {
		o.logger = l
	})
}

// ViewCounter performs one read-modify-write of a counter record per call.
// It keeps no state between calls; the store is the only synchronization point.
type ViewCounter struct {
	store       Store
	incrementer Incrementer
	maxAttempts int
	logger      *zap.SugaredLogger
}

func New(store Store, opts ...Option) (*ViewCounter, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}

	o := options{
		policy:      PolicyAuto,
		maxAttempts: DefaultMaxAttempts,
		logger:      zap.NewNop().Sugar(),
	}
	for _, e := range opts {
		e(&o)
	}

	if o.maxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be positive: %d", o.maxAttempts)
	}

	c := &ViewCounter{
		store:       store,
		maxAttempts: o.maxAttempts,
		logger:      o.logger,
	}

	inc, atomicOK := store.(Incrementer)
	switch o.policy {
	case PolicyAuto:
		if atomicOK {
			c.incrementer = inc
		}
	case PolicyAtomic:
		if !atomicOK {
			return nil, fmt.Errorf("store %T has no atomic increment", store)
		}
		c.incrementer = inc
	case PolicyCompareAndSwap:
	default:
		return nil, fmt.Errorf("unknown policy: %s", o.policy)
	}

	return c, nil
}

// Policy reports the concurrency policy in effect.
func (c *ViewCounter) Policy() Policy {
	if c.incrementer != nil {
		return PolicyAtomic
	}
	return PolicyCompareAndSwap
}

// Increment adds one view to key and returns the stored count.
func (c *ViewCounter) Increment(ctx context.Context, key string) (int64, error) {
	if err := ValidateKey(key); err != nil {
		return 0, err
	}

	if c.incrementer != nil {
		return c.incrementer.Increment(ctx, key)
	}
	return c.compareAndSwap(ctx, key)
}

// Get reads the current record without modifying it.
func (c *ViewCounter) Get(ctx context.Context, key string) (Lookup, error) {
	if err := ValidateKey(key); err != nil {
		return Lookup{}, err
	}
	return c.store.Get(ctx, key)
}

func (c *ViewCounter) compareAndSwap(ctx context.Context, key string) (int64, error) {
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		prior, err := c.store.Get(ctx, key)
		if err != nil {
			return 0, err
		}

		views := prior.Views()
		if views == math.MaxInt64 {
			return 0, fmt.Errorf("%w: key=%s, %s would overflow", ErrDataCorruption, key, FieldViews)
		}
		next := Record{Key: key, Views: views + 1}

		swapped, err := c.store.CompareAndSwap(ctx, prior, next)
		if err != nil {
			return 0, err
		}
		if swapped {
			return next.Views, nil
		}
		c.logger.Debugf("compare-and-swap lost: key=%s, prior=%d, attempt=%d/%d", key, views, attempt, c.maxAttempts)
	}
	return 0, fmt.Errorf("%w: key=%s, gave up after %d attempts", ErrConflict, key, c.maxAttempts)
}

func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: key is required", ErrInvalidInput)
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: key is longer than %d bytes", ErrInvalidInput, MaxKeyLength)
	}
	return nil
}
