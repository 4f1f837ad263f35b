package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/pithecene-io/docbroker/log"
	"github.com/pithecene-io/docbroker/metrics"
)

// DefaultPublishTimeout bounds one background publish including retries.
const DefaultPublishTimeout = 30 * time.Second

// Dispatcher publishes events in the background so that a slow or
// unreachable downstream never delays a broker response. Failures are
// logged and counted only.
type Dispatcher struct {
	adapter Adapter
	timeout time.Duration
	logger  *log.Logger
	metrics *metrics.Collector

	wg sync.WaitGroup
}

// NewDispatcher wraps a. A nil a yields a Dispatcher that drops events.
func NewDispatcher(a Adapter, logger *log.Logger, m *metrics.Collector) *Dispatcher {
	if logger == nil {
		logger = log.Nop()
	}
	return &Dispatcher{adapter: a, timeout: DefaultPublishTimeout, logger: logger, metrics: m}
}

// Dispatch publishes event asynchronously. Safe on a nil receiver.
func (d *Dispatcher) Dispatch(ctx context.Context, event *ConversionCompletedEvent) {
	if d == nil || d.adapter == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	d.wg.Go(func() {
		pubCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		if err := d.adapter.Publish(pubCtx, event); err != nil {
			d.metrics.IncEventPublishFailure()
			d.logger.Warn("failed to publish completion event", map[string]any{
				"operation": event.Operation,
				"error":     err.Error(),
			})
			return
		}
		d.metrics.IncEventPublished()
	})
}

// Close waits for in-flight publishes and closes the adapter.
func (d *Dispatcher) Close() error {
	if d == nil || d.adapter == nil {
		return nil
	}
	d.wg.Wait()
	return d.adapter.Close()
}
