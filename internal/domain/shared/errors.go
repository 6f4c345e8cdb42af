// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrStateTransition  = errors.New("invalid state transition")
	ErrAlreadyProcessed = errors.New("already processed")
	ErrExpired          = errors.New("expired")
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "gamification", "quest", "streak"
	Op      string // Operation that failed, e.g., "AddXP", "StartQuest"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Gamification domain errors
var (
	ErrStateNotFound      = NewDomainError("gamification", "GetState", ErrNotFound, "gamification state not found")
	ErrInvalidUserID      = NewDomainError("gamification", "Validate", ErrInvalidID, "invalid user ID")
	ErrNonPositiveXP      = NewDomainError("gamification", "AddXP", ErrInvalidInput, "XP amount must be positive")
	ErrProgressOutOfRange = NewDomainError("gamification", "UpdateProgress", ErrValueOutOfRange, "progress must be between 0 and 100")
)

// Quest domain errors
var (
	ErrQuestNotFound       = NewDomainError("quest", "Find", ErrNotFound, "quest not found")
	ErrQuestCapacity       = NewDomainError("quest", "Start", ErrCapacityExceeded, "active quest limit reached")
	ErrQuestAlreadyStarted = NewDomainError("quest", "Start", ErrAlreadyExists, "quest already started")
	ErrQuestTerminal       = NewDomainError("quest", "Transition", ErrStateTransition, "quest is already in a terminal state")
)

// Streak domain errors
var (
	ErrStreakNotFound    = NewDomainError("streak", "Find", ErrNotFound, "streak not found")
	ErrInvalidStreakType = NewDomainError("streak", "Validate", ErrInvalidInput, "invalid streak type")
)

// Session tracking errors
var (
	ErrSessionNotFound    = NewDomainError("session", "Find", ErrNotFound, "session not found")
	ErrSessionAlreadyOpen = NewDomainError("session", "Start", ErrAlreadyExists, "a session is already open")
	ErrNoOpenSession      = NewDomainError("session", "End", ErrNotFound, "no open session")
)

// Inventory errors
var (
	ErrItemNotFound    = NewDomainError("inventory", "Find", ErrNotFound, "inventory item not found")
	ErrInvalidQuantity = NewDomainError("inventory", "Validate", ErrNegativeValue, "quantity must be positive")
	ErrItemNotOwned    = NewDomainError("inventory", "Equip", ErrNotFound, "item is not in the user's inventory")
)

// External service errors
var (
	ErrTelegramAPIFailed = NewDomainError("telegram", "Send", ErrExternalService, "Telegram API request failed")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsCapacityExceeded checks if the error indicates a capacity limit.
func IsCapacityExceeded(err error) bool {
	return errors.Is(err, ErrCapacityExceeded)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}
