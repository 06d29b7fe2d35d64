package events

import (
	"context"
	"errors"
	"time"
)

// Type identifies a lifecycle event.
type Type string

const (
	// TypeMessageDispatched marks a request handed to a provider.
	TypeMessageDispatched Type = "message.dispatched"

	// TypeResponseReceived marks a provider response (success or
	// failure) with real usage attached.
	TypeResponseReceived Type = "response.received"

	// TypeCostCalculated marks a usage event merged into the ledger.
	TypeCostCalculated Type = "cost.calculated"

	// TypeThresholdReached marks a budget severity tier crossing.
	TypeThresholdReached Type = "budget.threshold_reached"

	// TypeCostTrackingFailed marks a usage record that could not be
	// priced or recorded normally and needs reconciliation.
	TypeCostTrackingFailed Type = "cost.tracking_failed"
)

// Envelope wraps an event payload for delivery.
type Envelope struct {
	// ID uniquely identifies this envelope.
	ID string

	// Type is the event type.
	Type Type

	// Key selects the delivery lane. Events with the same key are
	// delivered in publish order; there is no ordering guarantee across
	// keys. The request id is the key for the lifecycle sequence.
	Key string

	// Attempt is the current delivery attempt, starting at 1.
	Attempt int

	// Timestamp is when the envelope was published.
	Timestamp time.Time

	// Payload is the event payload.
	Payload any
}

// Handler processes a delivered envelope. A non-nil error triggers
// redelivery with backoff; handlers must therefore be idempotent.
type Handler func(ctx context.Context, env Envelope) error

// DeadLetter is an envelope that exhausted its delivery attempts.
type DeadLetter struct {
	Envelope Envelope

	// Consumer is the subscriber that failed, or "publish" when the
	// envelope could not be enqueued at all.
	Consumer string

	// Reason is the final error.
	Reason string

	FailedAt time.Time
}

// Errors returned by the bus.
var (
	// ErrBusClosed means the bus is shut down.
	ErrBusClosed = errors.New("event bus closed")

	// ErrQueueFull means a shard buffer stayed full past the enqueue
	// timeout; the envelope was dead-lettered instead of delivered.
	ErrQueueFull = errors.New("event queue full")
)

// Observer receives bus health signals. It is satisfied by the
// telemetry metrics type; a nil observer disables reporting.
type Observer interface {
	UpdateBusDepth(shard string, depth int)
	RecordBusRetry()
	RecordDeadLetter()
}
