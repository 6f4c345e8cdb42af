// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each event represents a state transition in the
// gamification engine that the chat layer may want to surface to the user.
const (
	// Progress events
	EventXPEarned EventType = "xp:earned"
	EventLevelUp  EventType = "level:up"

	// Quest events
	EventQuestStarted   EventType = "quest:started"
	EventQuestCompleted EventType = "quest:completed"
	EventQuestExpired   EventType = "quest:expired"

	// Achievement events
	EventAchievementUnlocked EventType = "achievement:unlocked"

	// Streak events
	EventStreakUpdated EventType = "streak:updated"
	EventStreakBroken  EventType = "streak:broken"

	// Evolution events
	EventEvolutionStageChanged EventType = "evolution:stage_changed"

	// Data lifecycle events
	EventUserDataDeleted    EventType = "user:data_deleted"
	EventUserDataAnonymized EventType = "user:data_anonymized"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// UserID returns the user the event belongs to.
	UserID() int64

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	User      int64     `json:"user_id"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// UserID implements Event interface.
func (e BaseEvent) UserID() int64 {
	return e.User
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, userID int64) BaseEvent {
	return BaseEvent{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		User:      userID,
	}
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
