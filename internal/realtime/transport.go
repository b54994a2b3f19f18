// Package realtime owns the console's realtime connection: the connection
// state machine, per-channel subscription lifecycles, presence membership
// reconciliation, and the bounded event log fed by inbound notifications.
//
// The package is transport-agnostic: it consumes the Transport interface
// below, implemented over websockets in ws.go and by an in-memory fake in
// the tests.
package realtime

import (
	"context"
	"time"
)

// ConnState is the lifecycle state of the realtime connection.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateFailed       ConnState = "failed"
)

// ConnStateChange describes a connection state transition reported by the
// transport.
type ConnStateChange struct {
	Previous ConnState
	Current  ConnState
	Reason   error // set for failure transitions
}

// AuthCallback supplies the current token-request object on demand. The
// transport must call it rather than hold a static credential, because
// tokens expire and can be rotated mid-session.
type AuthCallback func(ctx context.Context) (map[string]any, error)

// ChannelState is the attach lifecycle state of a single channel.
type ChannelState string

const (
	ChannelAttaching ChannelState = "attaching"
	ChannelAttached  ChannelState = "attached"
	ChannelDetached  ChannelState = "detached"
	ChannelFailed    ChannelState = "failed"
)

// ChannelStateChange describes a channel attach-state transition.
type ChannelStateChange struct {
	Previous ChannelState
	Current  ChannelState
	Reason   error
}

// InboundMessage is a message delivered on a subscribed channel.
type InboundMessage struct {
	Name      string
	Data      any
	Timestamp time.Time
}

// MessageHandler receives inbound channel messages.
type MessageHandler func(msg InboundMessage)

// PresenceAction is the kind of a presence transition.
type PresenceAction string

const (
	PresenceEnter   PresenceAction = "enter"
	PresencePresent PresenceAction = "present"
	PresenceLeave   PresenceAction = "leave"
	PresenceUpdate  PresenceAction = "update"
)

// PresenceMessage is a presence transition or snapshot entry for one member.
type PresenceMessage struct {
	ClientID  string
	Action    PresenceAction
	Data      any
	Timestamp time.Time
}

// PresenceHandler receives presence messages.
type PresenceHandler func(msg PresenceMessage)

// Channel is the per-channel surface the core consumes from a transport.
type Channel interface {
	// Subscribe registers a message handler, optionally filtered to one
	// event name ("" subscribes to all), and requests the attach.
	Subscribe(eventName string, fn MessageHandler) error

	// Unsubscribe detaches the channel and drops all handlers.
	Unsubscribe() error

	// State returns the current attach state.
	State() ChannelState

	// OnStateChange registers an attach-state listener and returns an
	// unsubscribe function.
	OnStateChange(fn func(ChannelStateChange)) (off func())

	// Publish sends a message on the channel.
	Publish(ctx context.Context, eventName string, data any) error

	// PresenceEnter announces this client as present with the given data.
	PresenceEnter(ctx context.Context, data any) error

	// PresenceLeave withdraws this client's presence.
	PresenceLeave(ctx context.Context) error

	// PresenceGet fetches a point-in-time membership snapshot.
	PresenceGet(ctx context.Context) ([]PresenceMessage, error)

	// PresenceSubscribe registers a presence listener for one action, or
	// for all actions when action is "". Returns an unsubscribe function.
	PresenceSubscribe(action PresenceAction, fn PresenceHandler) (off func())
}

// Transport is a single realtime connection to the messaging backend.
// Implementations report connection state transitions asynchronously via
// OnStateChange; Connect starts the attempt and returns without waiting
// for the connected state.
type Transport interface {
	Connect(ctx context.Context, clientID string, auth AuthCallback) error
	OnStateChange(fn func(ConnStateChange)) (off func())
	ConnectionID() string
	Channel(name string) Channel
	Close() error
}

// TransportFactory produces a fresh Transport for each connection attempt.
type TransportFactory func() Transport
