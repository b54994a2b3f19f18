package realtime

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeTransport is an in-memory Transport for tests. By default Connect
// reports connected immediately; behavior flags steer failure paths.
type fakeTransport struct {
	mu        sync.Mutex
	id        string
	state     ConnState
	stateSubs map[int]func(ConnStateChange)
	nextSub   int
	channels  map[string]*fakeChannel
	closed    bool

	connectErr    error // returned from Connect itself
	failOnConnect error // reported asynchronously as the failed state
	hangOnConnect bool  // never report an outcome
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		id:        "conn-1",
		state:     StateDisconnected,
		stateSubs: make(map[int]func(ConnStateChange)),
		channels:  make(map[string]*fakeChannel),
	}
}

// fakeFactory returns a factory handing out the given transports in order,
// and a counter of how many were dialed.
func fakeFactory(transports ...*fakeTransport) (TransportFactory, *int) {
	dialed := 0
	return func() Transport {
		t := transports[dialed]
		dialed++
		return t
	}, &dialed
}

func (t *fakeTransport) Connect(ctx context.Context, clientID string, auth AuthCallback) error {
	if t.connectErr != nil {
		return t.connectErr
	}
	if t.hangOnConnect {
		t.setState(StateConnecting, nil)
		return nil
	}
	if t.failOnConnect != nil {
		t.setState(StateFailed, t.failOnConnect)
		return nil
	}
	t.setState(StateConnected, nil)
	return nil
}

func (t *fakeTransport) OnStateChange(fn func(ConnStateChange)) (off func()) {
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.stateSubs[id] = fn
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.stateSubs, id)
		t.mu.Unlock()
	}
}

func (t *fakeTransport) ConnectionID() string { return t.id }

func (t *fakeTransport) Channel(name string) Channel {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.channels[name]
	if !ok {
		ch = newFakeChannel(name)
		t.channels[name] = ch
	}
	return ch
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.setState(StateDisconnected, nil)
	return nil
}

func (t *fakeTransport) setState(state ConnState, reason error) {
	t.mu.Lock()
	change := ConnStateChange{Previous: t.state, Current: state, Reason: reason}
	t.state = state
	subs := make([]func(ConnStateChange), 0, len(t.stateSubs))
	for _, fn := range t.stateSubs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()
	for _, fn := range subs {
		fn(change)
	}
}

// fakeChannel attaches immediately on Subscribe unless steered otherwise.
type fakeChannel struct {
	mu        sync.Mutex
	name      string
	state     ChannelState
	stateSubs map[int]func(ChannelStateChange)
	presSubs  map[int]presenceSub
	nextSub   int
	msgFilter string
	msgFn     MessageHandler

	attachErr    error // report failed instead of attached
	hangOnAttach bool  // never resolve the attach
	publishErr   error
	enterErr     error
	leaveErr     error
	snapshotErr  error
	snapshot     []PresenceMessage
	onEnter      func() // runs during PresenceEnter, before it returns

	subscribeCalls   int
	unsubscribeCalls int
	publishCalls     int
	enterCalls       int
	leaveCalls       int
}

func newFakeChannel(name string) *fakeChannel {
	return &fakeChannel{
		name:      name,
		state:     ChannelDetached,
		stateSubs: make(map[int]func(ChannelStateChange)),
		presSubs:  make(map[int]presenceSub),
	}
}

func (c *fakeChannel) Subscribe(eventName string, fn MessageHandler) error {
	c.mu.Lock()
	c.subscribeCalls++
	c.msgFilter = eventName
	c.msgFn = fn
	c.mu.Unlock()

	if c.hangOnAttach {
		c.setState(ChannelAttaching, nil)
		return nil
	}
	if c.attachErr != nil {
		c.setState(ChannelFailed, c.attachErr)
		return nil
	}
	c.setState(ChannelAttached, nil)
	return nil
}

func (c *fakeChannel) Unsubscribe() error {
	c.mu.Lock()
	c.unsubscribeCalls++
	c.msgFn = nil
	c.mu.Unlock()
	c.setState(ChannelDetached, nil)
	return nil
}

func (c *fakeChannel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeChannel) OnStateChange(fn func(ChannelStateChange)) (off func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.stateSubs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.stateSubs, id)
		c.mu.Unlock()
	}
}

func (c *fakeChannel) Publish(ctx context.Context, eventName string, data any) error {
	c.mu.Lock()
	c.publishCalls++
	c.mu.Unlock()
	return c.publishErr
}

func (c *fakeChannel) PresenceEnter(ctx context.Context, data any) error {
	c.mu.Lock()
	c.enterCalls++
	hook := c.onEnter
	c.mu.Unlock()
	if c.enterErr != nil {
		return c.enterErr
	}
	if hook != nil {
		hook()
	}
	return nil
}

func (c *fakeChannel) PresenceLeave(ctx context.Context) error {
	c.mu.Lock()
	c.leaveCalls++
	c.mu.Unlock()
	return c.leaveErr
}

func (c *fakeChannel) PresenceGet(ctx context.Context) ([]PresenceMessage, error) {
	if c.snapshotErr != nil {
		return nil, c.snapshotErr
	}
	out := make([]PresenceMessage, len(c.snapshot))
	copy(out, c.snapshot)
	return out, nil
}

func (c *fakeChannel) PresenceSubscribe(action PresenceAction, fn PresenceHandler) (off func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.presSubs[id] = presenceSub{action: action, fn: fn}
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.presSubs, id)
		c.mu.Unlock()
	}
}

// deliver pushes an inbound message through the subscribed handler.
func (c *fakeChannel) deliver(eventName string, data any) {
	c.mu.Lock()
	fn := c.msgFn
	filter := c.msgFilter
	c.mu.Unlock()
	if fn == nil {
		return
	}
	if filter != "" && filter != eventName {
		return
	}
	fn(InboundMessage{Name: eventName, Data: data, Timestamp: time.Now()})
}

// emitPresence pushes a presence transition to the subscribed listeners.
func (c *fakeChannel) emitPresence(msg PresenceMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	c.mu.Lock()
	subs := make([]presenceSub, 0, len(c.presSubs))
	for _, s := range c.presSubs {
		subs = append(subs, s)
	}
	c.mu.Unlock()
	for _, s := range subs {
		if s.action == "" || s.action == msg.Action {
			s.fn(msg)
		}
	}
}

func (c *fakeChannel) presenceListeners() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.presSubs)
}

func (c *fakeChannel) setState(state ChannelState, reason error) {
	c.mu.Lock()
	change := ChannelStateChange{Previous: c.state, Current: state, Reason: reason}
	c.state = state
	subs := make([]func(ChannelStateChange), 0, len(c.stateSubs))
	for _, fn := range c.stateSubs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(change)
	}
}

var errAttachRejected = errors.New("attach rejected")
