package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DomainEvent is something that happened to a billing aggregate, like
// an invoice being issued or a payment being applied.
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	AggregateID() uuid.UUID
	AggregateType() string
}

// BaseDomainEvent carries the identity fields every event shares.
// Concrete events embed it and add their own payload.
type BaseDomainEvent struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	AggID     uuid.UUID `json:"aggregate_id"`
	AggType   string    `json:"aggregate_type"`
}

func (e *BaseDomainEvent) EventID() uuid.UUID {
	return e.ID
}

func (e *BaseDomainEvent) EventType() string {
	return e.Type
}

func (e *BaseDomainEvent) OccurredAt() time.Time {
	return e.Timestamp
}

func (e *BaseDomainEvent) AggregateID() uuid.UUID {
	return e.AggID
}

func (e *BaseDomainEvent) AggregateType() string {
	return e.AggType
}

// NewBaseDomainEvent stamps a fresh event with an ID and the current
// time.
func NewBaseDomainEvent(eventType, aggType string, aggID uuid.UUID) BaseDomainEvent {
	return BaseDomainEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now(),
		AggID:     aggID,
		AggType:   aggType,
	}
}

// EventHandler reacts to published events, for example the scheduler
// marking invoices overdue or the cache invalidating a document.
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes names the events the handler wants. Empty means all.
	EventTypes() []string
}

// EventPublisher hands events to whoever is listening.
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventSubscriber registers handlers, optionally narrowed to the given
// event types.
type EventSubscriber interface {
	Subscribe(handler EventHandler, eventTypes ...string)
}

// EventBus is both ends of the pipe. The in-process bus implements it;
// aggregates only ever see EventPublisher.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
