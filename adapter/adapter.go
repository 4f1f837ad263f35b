// Package adapter defines the event-bus adapter boundary.
//
// Adapters publish conversion completion notifications to downstream
// systems. The broker owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// EventTypeConversionCompleted is the only event type published.
const EventTypeConversionCompleted = "conversion_completed"

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// ConversionCompletedEvent is the payload published when a public
// operation finishes.
type ConversionCompletedEvent struct {
	ContractVersion string   `json:"contract_version"`
	EventType       string   `json:"event_type"` // always "conversion_completed"
	RequestID       string   `json:"request_id,omitempty"`
	InstanceID      string   `json:"instance_id"`
	Operation       string   `json:"operation"` // get_file, convert, upload, join
	Outcome         string   `json:"outcome"`   // success, failure
	ErrorKind       string   `json:"error_kind,omitempty"`
	Identifiers     []string `json:"identifiers,omitempty"`
	InFormat        string   `json:"in_format,omitempty"`
	OutFormat       string   `json:"out_format,omitempty"`
	OutputBytes     int      `json:"output_bytes"`
	Timestamp       string   `json:"timestamp"` // ISO 8601
	DurationMs      int64    `json:"duration_ms"`
}

// Adapter publishes completion events to a downstream system.
type Adapter interface {
	// Publish sends a completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *ConversionCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// RetryPolicy returns the backoff shared by adapters: exponential from
// 500ms, at most retries retries, bounded by ctx.
func RetryPolicy(ctx context.Context, retries int) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 500 * time.Millisecond
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}
