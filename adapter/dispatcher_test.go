package adapter

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pithecene-io/docbroker/metrics"
)

type recordingAdapter struct {
	mu     sync.Mutex
	events []*ConversionCompletedEvent
	err    error
	closed bool
}

func (r *recordingAdapter) Publish(ctx context.Context, event *ConversionCompletedEvent) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingAdapter) Close() error {
	r.closed = true
	return nil
}

func TestDispatcher_PublishesInBackground(t *testing.T) {
	rec := &recordingAdapter{}
	mc := metrics.NewCollector("test", "")
	d := NewDispatcher(rec, nil, mc)

	// Cancellation of the request context does not drop the event.
	ctx, cancel := context.WithCancel(t.Context())
	d.Dispatch(ctx, &ConversionCompletedEvent{Operation: "convert"})
	cancel()
	d.Dispatch(t.Context(), &ConversionCompletedEvent{Operation: "join"})

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(rec.events) != 2 {
		t.Fatalf("published %d events, want 2", len(rec.events))
	}
	if !rec.closed {
		t.Error("adapter not closed")
	}
	if got := mc.Snapshot().EventsPublished; got != 2 {
		t.Errorf("EventsPublished = %d, want 2", got)
	}
}

func TestDispatcher_FailureCounted(t *testing.T) {
	rec := &recordingAdapter{err: errors.New("downstream unavailable")}
	mc := metrics.NewCollector("test", "")
	d := NewDispatcher(rec, nil, mc)

	d.Dispatch(t.Context(), &ConversionCompletedEvent{Operation: "upload"})
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	snap := mc.Snapshot()
	if snap.EventPublishFailure != 1 || snap.EventsPublished != 0 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestDispatcher_NilSafe(t *testing.T) {
	var d *Dispatcher
	d.Dispatch(t.Context(), &ConversionCompletedEvent{})
	if err := d.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	d = NewDispatcher(nil, nil, nil)
	d.Dispatch(t.Context(), &ConversionCompletedEvent{})
	if err := d.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
