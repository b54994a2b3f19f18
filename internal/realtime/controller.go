package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/janw/rtscope/internal/eventlog"
	"github.com/janw/rtscope/internal/log"
	"github.com/janw/rtscope/internal/token"
)

// DefaultConnectTimeout is how long Connect waits for the transport to
// reach the connected state.
const DefaultConnectTimeout = 30 * time.Second

// Config holds controller tunables. Zero values select the defaults.
type Config struct {
	ConnectTimeout time.Duration
	AttachTimeout  time.Duration
	LogCapacity    int
}

// Controller owns one realtime connection and orchestrates the channel
// subscription set, the presence registry, and the event log. All mutations
// of shared state are serialized through the owning component's lock;
// external consumers only ever receive snapshots.
//
// State machine: disconnected -> connecting -> {connected | failed};
// connected -> disconnected (explicit) or -> failed (transport-reported).
// failed is terminal for the session; the controller never auto-retries.
type Controller struct {
	dial        TransportFactory
	connectWait time.Duration

	events   *eventlog.Log
	subs     *Subscriptions
	presence *Presence

	mu        sync.Mutex
	state     ConnState
	lastErr   error
	transport Transport
	offConn   func()
	clientID  string
	caps      *token.Capabilities
}

// NewController creates a controller that dials transports from the given
// factory. The controller starts disconnected.
func NewController(dial TransportFactory, cfg Config) *Controller {
	connectWait := cfg.ConnectTimeout
	if connectWait <= 0 {
		connectWait = DefaultConnectTimeout
	}

	c := &Controller{
		dial:        dial,
		connectWait: connectWait,
		events:      eventlog.New(cfg.LogCapacity),
		subs:        NewSubscriptions(cfg.AttachTimeout),
		state:       StateDisconnected,
	}
	c.presence = NewPresence(func(channel, eventName string, data any, ts time.Time) {
		if ts.IsZero() {
			ts = time.Now()
		}
		c.events.AppendAt(ts, channel, eventName, data)
	})
	return c
}

// Connect opens a realtime connection authenticated by the given token
// payload (messaging-token envelope or raw token request). If a connection
// is already open it is implicitly torn down first via the full Disconnect
// path; see DESIGN.md for the policy choice. Connect blocks until the
// transport reports connected or failed, or the connect timeout elapses.
func (c *Controller) Connect(ctx context.Context, payload map[string]any, clientID string) error {
	caps := token.ParseObject(payload)
	if caps == nil || len(caps.Raw) == 0 {
		err := &ConnectionError{Reason: "rejected", Err: errors.New("token payload is empty or malformed")}
		c.events.Append(eventlog.SystemChannel, "Connection failed", map[string]any{"error": err.Error()})
		return err
	}

	c.mu.Lock()
	if c.transport != nil {
		c.mu.Unlock()
		c.Disconnect()
		c.mu.Lock()
	}

	if clientID == "" {
		clientID = caps.ClientID
	}
	if clientID == "" {
		clientID = "anonymous"
	}
	c.clientID = clientID
	c.caps = caps
	c.setStateLocked(StateConnecting, nil)

	t := c.dial()
	c.transport = t

	// Buffered so the transport callback never blocks on a slow waiter.
	stateCh := make(chan ConnStateChange, 8)
	c.offConn = t.OnStateChange(func(change ConnStateChange) {
		c.onTransportState(change)
		select {
		case stateCh <- change:
		default:
		}
	})
	c.mu.Unlock()

	auth := func(ctx context.Context) (map[string]any, error) {
		return caps.Raw, nil
	}
	if err := t.Connect(ctx, clientID, auth); err != nil {
		return c.failConnect(&ConnectionError{Reason: "rejected", Err: err})
	}

	timer := time.NewTimer(c.connectWait)
	defer timer.Stop()

	for {
		select {
		case change := <-stateCh:
			switch change.Current {
			case StateConnected:
				c.events.Append(eventlog.SystemChannel, "Connection established", map[string]any{
					"clientId":     clientID,
					"connectionId": t.ConnectionID(),
				})
				return nil
			case StateFailed:
				reason := change.Reason
				if reason == nil {
					reason = errors.New("transport reported failure")
				}
				return &ConnectionError{Reason: "failed", Err: reason}
			}
		case <-timer.C:
			return c.failConnect(&ConnectionError{Reason: "timeout"})
		case <-ctx.Done():
			return c.failConnect(&ConnectionError{Reason: "canceled", Err: ctx.Err()})
		}
	}
}

// failConnect records a locally detected connect failure (dial rejection,
// timeout, cancellation) that the transport will not report itself. The
// state listener is detached so a late transport transition cannot pull the
// controller out of the failed state; failed is terminal until the caller
// reconnects.
func (c *Controller) failConnect(err *ConnectionError) error {
	c.mu.Lock()
	off := c.offConn
	c.offConn = nil
	c.setStateLocked(StateFailed, err)
	c.mu.Unlock()
	if off != nil {
		off()
	}
	c.events.Append(eventlog.SystemChannel, "Connection failed", map[string]any{"error": err.Error()})
	return err
}

// onTransportState applies a transport-reported transition. The transport
// is the sole driver of the connected and failed states.
func (c *Controller) onTransportState(change ConnStateChange) {
	c.mu.Lock()
	c.setStateLocked(change.Current, change.Reason)
	c.mu.Unlock()

	if change.Current == StateFailed {
		reason := "transport reported failure"
		if change.Reason != nil {
			reason = change.Reason.Error()
		}
		c.events.Append(eventlog.SystemChannel, "Connection failed", map[string]any{"error": reason})
	}
}

func (c *Controller) setStateLocked(state ConnState, reason error) {
	if c.state == state {
		return
	}
	log.Debug("realtime: connection state", "previous", string(c.state), "current", string(state))
	c.state = state
	if state == StateFailed {
		c.lastErr = reason
	} else if state == StateConnected {
		c.lastErr = nil
	}
}

// Disconnect tears the connection down: presence listeners are removed,
// all channel subscriptions are cleared fire-and-forget, the transport is
// closed, and local state is reset. Idempotent; every failure along the
// way is logged and the remaining steps still run, so the controller
// always ends up disconnected.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	t := c.transport
	off := c.offConn
	c.transport = nil
	c.offConn = nil
	c.mu.Unlock()

	if off != nil {
		off()
	}

	c.presence.Teardown()
	c.subs.Clear(func(name string) Channel {
		if t == nil {
			return nil
		}
		return t.Channel(name)
	})

	if t != nil {
		if err := t.Close(); err != nil {
			log.Warn("realtime: transport close failed", "error", err.Error())
		}
	}

	c.events.ClearCounters()

	c.mu.Lock()
	c.setStateLocked(StateDisconnected, nil)
	c.clientID = ""
	c.caps = nil
	c.mu.Unlock()

	c.events.Append(eventlog.SystemChannel, "Disconnected", map[string]any{})
}

// SubscribeToChannel subscribes to a channel, optionally filtered to one
// event name, and waits for the attach confirmation. Requires connected;
// otherwise no transport call is made and no subscription entry is created.
func (c *Controller) SubscribeToChannel(ctx context.Context, name, eventFilter string) error {
	t, err := c.connectedTransport()
	if err != nil {
		subErr := &SubscriptionError{Channel: name, Err: err}
		c.logFailure("Failed to subscribe to "+name, name, subErr)
		return subErr
	}

	ch := t.Channel(name)
	onMessage := func(msg InboundMessage) {
		ts := msg.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		c.events.AppendAt(ts, name, msg.Name, msg.Data)
	}

	if err := c.subs.Subscribe(ctx, ch, name, eventFilter, onMessage); err != nil {
		c.logFailure("Failed to subscribe to "+name, name, err)
		return err
	}

	c.events.Append(eventlog.SystemChannel, "Subscribed to "+name, map[string]any{
		"eventFilter":  eventFilter,
		"channelState": string(ch.State()),
	})
	return nil
}

// UnsubscribeFromChannel detaches a channel and forgets its subscription
// and per-channel counter. Best effort; never fails.
func (c *Controller) UnsubscribeFromChannel(name string) {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()

	var ch Channel
	if t != nil {
		ch = t.Channel(name)
	}
	c.subs.Unsubscribe(ch, name)
	c.events.ResetCount(name)
	c.events.Append(eventlog.SystemChannel, "Unsubscribed from "+name, map[string]any{})
}

// EnterPresence enters presence on a channel with the given data.
// Requires connected.
func (c *Controller) EnterPresence(ctx context.Context, name string, data any) error {
	t, err := c.connectedTransport()
	if err != nil {
		presErr := &PresenceError{Channel: name, Err: err}
		c.logFailure("Failed to enter presence on "+name, name, presErr)
		return presErr
	}

	if err := c.presence.Enter(ctx, t.Channel(name), name, data); err != nil {
		c.logFailure("Failed to enter presence on "+name, name, err)
		return err
	}

	c.events.Append(eventlog.SystemChannel, "Entered presence on "+name, data)
	return nil
}

// LeavePresence withdraws presence on a channel and stops monitoring it.
// Best effort; never fails.
func (c *Controller) LeavePresence(ctx context.Context, name string) {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()

	var ch Channel
	if t != nil {
		ch = t.Channel(name)
	}
	c.presence.Leave(ctx, ch, name)
	c.events.Append(eventlog.SystemChannel, "Left presence on "+name, map[string]any{})
}

// PublishMessage publishes an event on a channel. Requires connected.
func (c *Controller) PublishMessage(ctx context.Context, name, eventName string, data any) error {
	t, err := c.connectedTransport()
	if err != nil {
		pubErr := &PublishError{Channel: name, Err: err}
		c.logFailure("Failed to publish to "+name, name, pubErr)
		return pubErr
	}

	if err := t.Channel(name).Publish(ctx, eventName, data); err != nil {
		pubErr := &PublishError{Channel: name, Err: err}
		c.logFailure("Failed to publish to "+name, name, pubErr)
		return pubErr
	}

	c.events.Append(eventlog.SystemChannel, "Published to "+name, map[string]any{
		"eventName": eventName,
		"data":      data,
	})
	return nil
}

// ClearEvents empties the event log.
func (c *Controller) ClearEvents() {
	c.events.Clear()
}

func (c *Controller) connectedTransport() (Transport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected || c.transport == nil {
		return nil, ErrNotConnected
	}
	return c.transport, nil
}

func (c *Controller) logFailure(label, channel string, err error) {
	log.Warn("realtime: "+label, "channel", channel, "error", err.Error())
	c.events.Append(eventlog.SystemChannel, label, map[string]any{"error": err.Error()})
}

// State returns the current connection state.
func (c *Controller) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the error behind the failed state, if any.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// ClientID returns the client id the connection resolved to.
func (c *Controller) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

// ConnectionID returns the transport's opaque connection identifier, or ""
// when disconnected.
func (c *Controller) ConnectionID() string {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	if t == nil {
		return ""
	}
	return t.ConnectionID()
}

// Capabilities returns the parsed view of the token the connection was
// opened with, or nil when disconnected.
func (c *Controller) Capabilities() *token.Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caps
}

// Subscriptions returns a snapshot of the channel subscription list.
func (c *Controller) Subscriptions() []Subscription {
	return c.subs.List()
}

// PresenceMembers returns a snapshot of the deduplicated presence
// membership across all monitored channels.
func (c *Controller) PresenceMembers() []Member {
	return c.presence.Members()
}

// Events returns the log entries matching the filter.
func (c *Controller) Events(f eventlog.Filter) []eventlog.Entry {
	return c.events.Filtered(f)
}

// EventLog exposes the underlying log for the console's feed and export.
func (c *Controller) EventLog() *eventlog.Log {
	return c.events
}
