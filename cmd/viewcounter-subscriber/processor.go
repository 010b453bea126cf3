package main

import (
	"context"
	"errors"

	"github.com/tckz/viewcounter/internal/handler"
	"go.uber.org/zap"
)

// Processor turns one delivered message into one invocation.
type Processor struct {
	handler *handler.Handler
	marker  ProcessMarker
	logger  *zap.SugaredLogger
}

// Process reports whether the message should be acked.
// Retryable failures release the marker and nack so the message is redelivered.
func (p *Processor) Process(ctx context.Context, msgID, key string) bool {
	if got, err := p.marker.Acquire(ctx, msgID); err != nil {
		p.logger.Errorf("Acquire: %v", err)
		return false
	} else if !got {
		p.logger.Infof("msgID=%s already marked to be processed by other", msgID)
		return true
	}

	n, err := p.handler.Handle(ctx, handler.Event{Key: key})
	if err == nil {
		if n%1000 == 0 {
			p.logger.Infof("key=%s, views=%d", key, n)
		}
		return true
	}

	var ie *handler.InvocationError
	if errors.As(err, &ie) && !ie.Retryable {
		// redelivery would fail the same way
		return true
	}

	if err := p.marker.Release(ctx, msgID); err != nil {
		p.logger.Errorf("Release: %v", err)
	}
	return false
}
