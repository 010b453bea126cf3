// Package handler is the single invocation entry point: one event in, the new view count out.
package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/tckz/viewcounter/internal/counter"
	"github.com/tckz/viewcounter/internal/metrics"
	"go.uber.org/zap"
)

// Event identifies the resource whose view is being counted.
type Event struct {
	Key string `json:"key"`
}

// Counter is satisfied by *counter.ViewCounter.
type Counter interface {
	Increment(ctx context.Context, key string) (int64, error)
}

// InvocationError is returned for every failed invocation. Kind tells the caller what to do with it.
type InvocationError struct {
	Kind string `json:"kind"`
	Key  string `json:"key"`
	// Retryable is true when redelivering the same event may succeed.
	Retryable bool  `json:"retryable"`
	Err       error `json:"-"`
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

type Handler struct {
	counter Counter
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
	timeout time.Duration
}

type Option func(h *Handler)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(h *Handler) {
		h.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithTimeout bounds each invocation; an expired deadline surfaces as a store failure.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.timeout = d
	}
}

func New(c Counter, opts ...Option) *Handler {
	h := &Handler{
		counter: c,
		logger:  zap.NewNop().Sugar(),
	}
	for _, e := range opts {
		e(h)
	}
	return h
}

// Handle increments the counter named by ev.Key.
// ctx is the execution context; only its request id (when running on Lambda) is used, for logging.
func (h *Handler) Handle(ctx context.Context, ev Event) (int64, error) {
	start := time.Now()

	logger := h.logger.With(zap.String("key", ev.Key))
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		logger = logger.With(zap.String("requestID", lc.AwsRequestID))
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	n, err := h.counter.Increment(ctx, ev.Key)
	kind := counter.KindOf(err)
	if kind == counter.KindNone {
		h.metrics.Observe("ok", time.Since(start))
		logger.Debugf("views=%d", n)
		return n, nil
	}

	h.metrics.Observe(kind.String(), time.Since(start))
	switch kind {
	case counter.KindDataCorruption, counter.KindUnknown:
		logger.With(zap.String("kind", kind.String())).Errorf("Increment: %v", err)
	default:
		logger.With(zap.String("kind", kind.String())).Warnf("Increment: %v", err)
	}

	return 0, &InvocationError{
		Kind:      kind.String(),
		Key:       ev.Key,
		Retryable: kind.Retryable(),
		Err:       err,
	}
}
