package realtime

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by operations that require an established
// connection. Wrapped by the operation-specific error types below.
var ErrNotConnected = errors.New("not connected")

// ConnectionError reports a failed or timed-out connection attempt, or a
// transport-reported failure such as an auth rejection.
type ConnectionError struct {
	Reason string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connection %s: %v", e.Reason, e.Err)
	}
	return "connection " + e.Reason
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SubscriptionError reports an attach failure or timeout for one channel.
type SubscriptionError struct {
	Channel string
	Err     error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscribe %s: %v", e.Channel, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// PresenceError reports a failed presence enter or leave for one channel.
// Snapshot-fetch failures are downgraded to warnings, never a PresenceError.
type PresenceError struct {
	Channel string
	Err     error
}

func (e *PresenceError) Error() string {
	return fmt.Sprintf("presence %s: %v", e.Channel, e.Err)
}

func (e *PresenceError) Unwrap() error { return e.Err }

// PublishError reports a rejected or not-connected publish.
type PublishError struct {
	Channel string
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s: %v", e.Channel, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
