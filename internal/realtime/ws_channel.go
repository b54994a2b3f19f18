package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/janw/rtscope/internal/log"
)

type presenceSub struct {
	action PresenceAction
	fn     PresenceHandler
}

// wsChannel is one joined topic on a WSTransport. Attach outcomes are
// reported via OnStateChange; message and presence frames are dispatched
// from the transport's read pump.
type wsChannel struct {
	t     *WSTransport
	topic string

	mu           sync.Mutex
	state        ChannelState
	joinRef      string
	msgFilter    string
	msgFn        MessageHandler
	stateSubs    map[int]func(ChannelStateChange)
	nextStateSub int
	presSubs     map[int]presenceSub
	nextPresSub  int
	known        map[string]bool // members seen since attach, for enter vs update
}

// Subscribe installs the message handler and requests the join. The channel
// holds a single handler; subscribing again replaces the event filter
// without rejoining an attached channel.
func (c *wsChannel) Subscribe(eventName string, fn MessageHandler) error {
	c.mu.Lock()
	c.msgFilter = eventName
	c.msgFn = fn
	if c.state == ChannelAttached {
		c.mu.Unlock()
		return nil
	}
	c.joinRef = nextRef()
	joinRef := c.joinRef
	c.mu.Unlock()

	c.setState(ChannelAttaching, nil)

	go c.join(joinRef)
	return nil
}

func (c *wsChannel) join(joinRef string) {
	ctx, cancel := context.WithTimeout(context.Background(), wsReplyWait)
	defer cancel()

	tokenObj, err := c.t.auth(ctx)
	if err != nil {
		c.setState(ChannelFailed, fmt.Errorf("auth callback: %w", err))
		return
	}

	reply, err := c.t.request(ctx, &wireMessage{
		Event:   wireEventJoin,
		Topic:   c.topic,
		Ref:     joinRef,
		JoinRef: joinRef,
		Payload: map[string]any{
			"access_token": tokenObj,
			"client_id":    c.t.clientID,
		},
	})
	if err != nil {
		c.setState(ChannelFailed, fmt.Errorf("join %s: %w", c.topic, err))
		return
	}

	if status, _ := replyStatus(reply.Payload); status != "ok" {
		c.setState(ChannelFailed, replyError(reply.Payload))
		return
	}
	c.setState(ChannelAttached, nil)
}

// Unsubscribe leaves the topic and drops the handlers. The leave frame is
// fire and forget.
func (c *wsChannel) Unsubscribe() error {
	c.mu.Lock()
	joinRef := c.joinRef
	c.msgFn = nil
	c.msgFilter = ""
	c.known = make(map[string]bool)
	c.mu.Unlock()

	err := c.t.enqueue(&wireMessage{
		Event:   wireEventLeave,
		Topic:   c.topic,
		Ref:     nextRef(),
		JoinRef: joinRef,
		Payload: map[string]any{},
	})
	if err != nil {
		log.Debug("realtime: leave not sent", "topic", c.topic, "error", err.Error())
	}

	c.setState(ChannelDetached, nil)
	return nil
}

func (c *wsChannel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *wsChannel) OnStateChange(fn func(ChannelStateChange)) (off func()) {
	c.mu.Lock()
	id := c.nextStateSub
	c.nextStateSub++
	c.stateSubs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.stateSubs, id)
		c.mu.Unlock()
	}
}

// Publish sends a broadcast frame and waits for the ack.
func (c *wsChannel) Publish(ctx context.Context, eventName string, data any) error {
	reply, err := c.t.request(ctx, &wireMessage{
		Event:   wireEventBroadcast,
		Topic:   c.topic,
		JoinRef: c.currentJoinRef(),
		Payload: map[string]any{
			"event":   eventName,
			"payload": data,
		},
	})
	if err != nil {
		return err
	}
	if status, _ := replyStatus(reply.Payload); status != "ok" {
		return replyError(reply.Payload)
	}
	return nil
}

// PresenceEnter announces this client on the topic.
func (c *wsChannel) PresenceEnter(ctx context.Context, data any) error {
	return c.presenceOp(ctx, "track", data)
}

// PresenceLeave withdraws this client from the topic.
func (c *wsChannel) PresenceLeave(ctx context.Context) error {
	return c.presenceOp(ctx, "untrack", nil)
}

func (c *wsChannel) presenceOp(ctx context.Context, op string, data any) error {
	payload := map[string]any{"event": op}
	if data != nil {
		payload["payload"] = data
	}
	reply, err := c.t.request(ctx, &wireMessage{
		Event:   wireEventPresence,
		Topic:   c.topic,
		JoinRef: c.currentJoinRef(),
		Payload: payload,
	})
	if err != nil {
		return err
	}
	if status, _ := replyStatus(reply.Payload); status != "ok" {
		return replyError(reply.Payload)
	}
	return nil
}

// PresenceGet asks the server for the current membership of the topic.
func (c *wsChannel) PresenceGet(ctx context.Context) ([]PresenceMessage, error) {
	reply, err := c.t.request(ctx, &wireMessage{
		Event:   wireEventPresence,
		Topic:   c.topic,
		JoinRef: c.currentJoinRef(),
		Payload: map[string]any{"event": "state"},
	})
	if err != nil {
		return nil, err
	}
	status, response := replyStatus(reply.Payload)
	if status != "ok" {
		return nil, replyError(reply.Payload)
	}
	return presenceMembers(response, PresencePresent), nil
}

func (c *wsChannel) PresenceSubscribe(action PresenceAction, fn PresenceHandler) (off func()) {
	c.mu.Lock()
	id := c.nextPresSub
	c.nextPresSub++
	c.presSubs[id] = presenceSub{action: action, fn: fn}
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.presSubs, id)
		c.mu.Unlock()
	}
}

func (c *wsChannel) currentJoinRef() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joinRef
}

// handleBroadcast delivers an inbound broadcast frame to the handler,
// honoring its event filter.
func (c *wsChannel) handleBroadcast(msg *wireMessage) {
	name, _ := msg.Payload["event"].(string)
	data := msg.Payload["payload"]

	c.mu.Lock()
	fn := c.msgFn
	filter := c.msgFilter
	c.mu.Unlock()

	if fn == nil {
		return
	}
	if filter != "" && filter != name {
		return
	}
	fn(InboundMessage{Name: name, Data: data, Timestamp: time.Now()})
}

// handlePresenceState replays a full membership snapshot as present events.
func (c *wsChannel) handlePresenceState(msg *wireMessage) {
	for _, m := range presenceMembers(msg.Payload, PresencePresent) {
		c.markKnown(m.ClientID)
		c.dispatchPresence(m)
	}
}

// handlePresenceDiff reports joins and leaves. A join for a member already
// seen on this channel is an update, not a fresh enter.
func (c *wsChannel) handlePresenceDiff(msg *wireMessage) {
	joins, _ := msg.Payload["joins"].(map[string]any)
	leaves, _ := msg.Payload["leaves"].(map[string]any)

	for _, m := range presenceMembers(joins, PresenceEnter) {
		if c.markKnown(m.ClientID) {
			m.Action = PresenceUpdate
		}
		c.dispatchPresence(m)
	}
	for _, m := range presenceMembers(leaves, PresenceLeave) {
		c.mu.Lock()
		delete(c.known, m.ClientID)
		c.mu.Unlock()
		c.dispatchPresence(m)
	}
}

// markKnown records the member and reports whether it was already known.
func (c *wsChannel) markKnown(clientID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := c.known[clientID]
	c.known[clientID] = true
	return seen
}

func (c *wsChannel) dispatchPresence(m PresenceMessage) {
	c.mu.Lock()
	subs := make([]presenceSub, 0, len(c.presSubs))
	for _, s := range c.presSubs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		if s.action == "" || s.action == m.Action {
			s.fn(m)
		}
	}
}

func (c *wsChannel) setState(state ChannelState, reason error) {
	c.mu.Lock()
	if c.state == state {
		c.mu.Unlock()
		return
	}
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

// presenceMembers flattens a clientID-keyed membership map into presence
// messages. Each value is the member's presence data, wrapped in a
// {"data": ...} object by the server.
func presenceMembers(members map[string]any, action PresenceAction) []PresenceMessage {
	out := make([]PresenceMessage, 0, len(members))
	for clientID, v := range members {
		data := v
		if obj, ok := v.(map[string]any); ok {
			if d, ok := obj["data"]; ok {
				data = d
			}
		}
		out = append(out, PresenceMessage{
			ClientID:  clientID,
			Action:    action,
			Data:      data,
			Timestamp: time.Now(),
		})
	}
	return out
}
