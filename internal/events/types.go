// internal/events/types.go
package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
)

// EventType represents the type of event.
type EventType string

const (
	// Detection events
	LaunchDetected EventType = "launch.detected"
	AssetAcquired  EventType = "asset.acquired" // a watched asset source bought a token

	// Target lifecycle events
	TargetCreated   EventType = "target.created"
	TargetExecuted  EventType = "target.executed"
	TargetFailed    EventType = "target.failed"
	TargetRetrying  EventType = "target.retrying"
	TargetRejected  EventType = "target.rejected"
	TargetCancelled EventType = "target.cancelled"

	// Position events
	PositionClosed       EventType = "position.closed"
	PositionSellFailed   EventType = "position.sell_failed"
	PositionInconsistent EventType = "position.inconsistent"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// NewBase stamps an event of type t with the current time.
func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Now()}
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// LaunchDetectedEvent carries a classified transaction. It is published as
// LaunchDetected or AssetAcquired.
type LaunchDetectedEvent struct {
	BaseEvent
	Detection domain.Detection
}

// TargetEvent reports a target lifecycle change.
type TargetEvent struct {
	BaseEvent
	Target   *domain.Target
	Record   *domain.ExecutionRecord
	Category domain.ErrorCategory
	Reason   string
}

// PositionEvent reports an auto-close outcome.
type PositionEvent struct {
	BaseEvent
	Target       *domain.Target
	Record       *domain.ExecutionRecord
	CurrentPrice decimal.Decimal
	ChangePct    decimal.Decimal
	Category     domain.ErrorCategory
	Reason       string
}
