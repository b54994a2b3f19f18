package realtime

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/janw/rtscope/internal/log"
)

// DefaultAttachTimeout is how long a subscribe waits for the attach
// confirmation before reporting failure.
const DefaultAttachTimeout = 10 * time.Second

// Subscription is the tracked state of one channel subscription.
type Subscription struct {
	Name        string       `json:"name"`
	Status      ChannelState `json:"status"` // attaching, attached, failed
	EventFilter string       `json:"eventFilter,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Subscriptions tracks the attach/detach lifecycle of every subscribed
// channel. At most one entry exists per channel name; re-subscribing
// updates the entry in place. Safe for concurrent use.
type Subscriptions struct {
	mu         sync.RWMutex
	byName     map[string]*Subscription
	attachWait time.Duration
}

// NewSubscriptions creates an empty subscription set. A non-positive
// attachWait selects DefaultAttachTimeout.
func NewSubscriptions(attachWait time.Duration) *Subscriptions {
	if attachWait <= 0 {
		attachWait = DefaultAttachTimeout
	}
	return &Subscriptions{
		byName:     make(map[string]*Subscription),
		attachWait: attachWait,
	}
}

// Subscribe registers intent for the channel, requests the transport
// subscription, and waits for the attach confirmation, racing it against
// the attach timeout. The returned error is always a *SubscriptionError.
func (s *Subscriptions) Subscribe(ctx context.Context, ch Channel, name, eventFilter string, onMessage MessageHandler) error {
	s.mu.Lock()
	sub, ok := s.byName[name]
	if !ok {
		sub = &Subscription{Name: name}
		s.byName[name] = sub
	}
	sub.Status = ChannelAttaching
	sub.EventFilter = eventFilter
	sub.Error = ""
	s.mu.Unlock()

	// Watch attach-state transitions before requesting the subscribe so a
	// fast confirmation is not missed.
	attached := make(chan ChannelStateChange, 8)
	off := ch.OnStateChange(func(change ChannelStateChange) {
		select {
		case attached <- change:
		default:
		}
	})
	defer off()

	if err := ch.Subscribe(eventFilter, onMessage); err != nil {
		s.markFailed(name, err)
		return &SubscriptionError{Channel: name, Err: err}
	}

	if err := s.waitAttached(ctx, ch, attached); err != nil {
		s.markFailed(name, err)
		return &SubscriptionError{Channel: name, Err: err}
	}

	s.mu.Lock()
	sub.Status = ChannelAttached
	s.mu.Unlock()
	return nil
}

func (s *Subscriptions) waitAttached(ctx context.Context, ch Channel, changes <-chan ChannelStateChange) error {
	if ch.State() == ChannelAttached {
		return nil
	}

	timer := time.NewTimer(s.attachWait)
	defer timer.Stop()

	for {
		select {
		case change := <-changes:
			switch change.Current {
			case ChannelAttached:
				return nil
			case ChannelFailed:
				if change.Reason != nil {
					return change.Reason
				}
				return errors.New("channel attach failed")
			}
		case <-timer.C:
			return errors.New("channel attach timeout")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Subscriptions) markFailed(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.byName[name]; ok {
		sub.Status = ChannelFailed
		sub.Error = err.Error()
	}
}

// Unsubscribe requests a detach and removes the subscription from the set
// unconditionally. Detach failures are logged, not propagated.
func (s *Subscriptions) Unsubscribe(ch Channel, name string) {
	if ch != nil {
		if err := ch.Unsubscribe(); err != nil {
			log.Warn("realtime: unsubscribe failed", "channel", name, "error", err.Error())
		}
	}

	s.mu.Lock()
	delete(s.byName, name)
	s.mu.Unlock()
}

// Clear drops every tracked subscription without waiting for detach
// acknowledgements. Used on full disconnect; detach errors are swallowed.
func (s *Subscriptions) Clear(channels func(name string) Channel) {
	s.mu.Lock()
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	s.byName = make(map[string]*Subscription)
	s.mu.Unlock()

	for _, name := range names {
		if channels == nil {
			continue
		}
		if ch := channels(name); ch != nil {
			if err := ch.Unsubscribe(); err != nil {
				log.Debug("realtime: unsubscribe during teardown", "channel", name, "error", err.Error())
			}
		}
	}
}

// Has reports whether a subscription entry exists for the channel name.
func (s *Subscriptions) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byName[name]
	return ok
}

// List returns a copy of all subscriptions, sorted by channel name.
func (s *Subscriptions) List() []Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Subscription, 0, len(s.byName))
	for _, sub := range s.byName {
		out = append(out, *sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
