package event

import "errors"

// Sentinel errors for the event bus.
var (
	// ErrBusClosed is returned when publishing to or subscribing on a closed bus.
	ErrBusClosed = errors.New("event bus is closed")

	// ErrInvalidEvent is returned when a published message is not an event.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrInvalidTopic is returned when a topic or pattern is empty or malformed.
	ErrInvalidTopic = errors.New("invalid topic")

	// ErrSubscriptionClosed is returned by Next after the subscription was
	// cancelled and its queue drained.
	ErrSubscriptionClosed = errors.New("subscription closed")

	// ErrSubscriptionNotFound is returned when unsubscribing an unknown subscription.
	ErrSubscriptionNotFound = errors.New("subscription not found")
)
