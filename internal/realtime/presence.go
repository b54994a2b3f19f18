package realtime

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/janw/rtscope/internal/log"
)

// Member is one entry in a channel's presence membership set.
type Member struct {
	ClientID  string         `json:"clientId"`
	Data      any            `json:"data"`
	Action    PresenceAction `json:"action"`
	Timestamp time.Time      `json:"timestamp"`
}

// PresenceEventSink receives presence transitions for the event log.
type PresenceEventSink func(channel, eventName string, data any, ts time.Time)

// Presence reconciles presence membership per monitored channel from a live
// event stream plus a point-in-time snapshot fetch. Membership is keyed by
// clientId: enter/present insert-if-absent, update replaces data, leave
// removes. Safe for concurrent use.
type Presence struct {
	mu       sync.Mutex
	channels map[string]*channelPresence
	sink     PresenceEventSink
}

type channelPresence struct {
	members map[string]Member
	order   []string // clientIds in first-seen order
	off     func()   // presence event unsubscribe
}

// NewPresence creates an empty presence registry. sink may be nil.
func NewPresence(sink PresenceEventSink) *Presence {
	return &Presence{
		channels: make(map[string]*channelPresence),
		sink:     sink,
	}
}

// Enter joins the channel's presence set. The presence event stream is
// subscribed before the enter call so no membership transition is missed;
// afterwards a snapshot is fetched and merged additively, skipping any
// clientId already seen live (a member who left between enter and snapshot
// must not be resurrected). Enter failure is fatal for the operation;
// snapshot failure is downgraded to a warning.
func (p *Presence) Enter(ctx context.Context, ch Channel, name string, data any) error {
	p.mu.Lock()
	cp, ok := p.channels[name]
	if !ok {
		cp = &channelPresence{members: make(map[string]Member)}
		p.channels[name] = cp
	}
	if cp.off == nil {
		cp.off = ch.PresenceSubscribe("", func(msg PresenceMessage) {
			p.handleEvent(name, msg)
		})
	}
	p.mu.Unlock()

	if err := ch.PresenceEnter(ctx, data); err != nil {
		return &PresenceError{Channel: name, Err: err}
	}

	snapshot, err := ch.PresenceGet(ctx)
	if err != nil {
		log.Warn("realtime: presence snapshot fetch failed", "channel", name, "error", err.Error())
		return nil
	}
	p.merge(name, snapshot)
	return nil
}

// handleEvent applies one live presence transition.
func (p *Presence) handleEvent(name string, msg PresenceMessage) {
	p.mu.Lock()
	cp, ok := p.channels[name]
	if ok {
		switch msg.Action {
		case PresenceEnter, PresencePresent:
			cp.insertIfAbsent(msg)
		case PresenceUpdate:
			cp.replaceOrInsert(msg)
		case PresenceLeave:
			cp.remove(msg.ClientID)
		}
	}
	p.mu.Unlock()

	if p.sink != nil {
		p.sink(name, "presence."+string(msg.Action), map[string]any{
			"clientId":     msg.ClientID,
			"presenceData": msg.Data,
		}, msg.Timestamp)
	}
}

// merge adds snapshot members that are not already known. Known clientIds
// are skipped, including ones removed by a live leave event.
func (p *Presence) merge(name string, snapshot []PresenceMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cp, ok := p.channels[name]
	if !ok {
		return
	}
	for _, msg := range snapshot {
		msg.Action = PresencePresent
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now()
		}
		cp.insertIfAbsent(msg)
	}
}

// Leave withdraws presence on the channel, tears down the presence event
// subscription, and discards tracked state. Underlying leave failures are
// logged, not propagated.
func (p *Presence) Leave(ctx context.Context, ch Channel, name string) {
	if ch != nil {
		if err := ch.PresenceLeave(ctx); err != nil {
			log.Warn("realtime: presence leave failed", "channel", name, "error", err.Error())
		}
	}
	p.drop(name)
}

// Teardown unsubscribes every presence listener and discards all state
// without issuing leave calls. Used on full disconnect, where closing the
// connection withdraws presence implicitly.
func (p *Presence) Teardown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, cp := range p.channels {
		if cp.off != nil {
			cp.off()
		}
	}
	p.channels = make(map[string]*channelPresence)
}

func (p *Presence) drop(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cp, ok := p.channels[name]; ok {
		if cp.off != nil {
			cp.off()
		}
		delete(p.channels, name)
	}
}

// Monitors reports whether the channel's presence stream is being tracked.
func (p *Presence) Monitors(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.channels[name]
	return ok
}

// MembersOn returns a copy of one channel's membership, in first-seen order.
func (p *Presence) MembersOn(name string) []Member {
	p.mu.Lock()
	defer p.mu.Unlock()

	cp, ok := p.channels[name]
	if !ok {
		return []Member{}
	}
	return cp.snapshot()
}

// Members returns a copy of the membership of every monitored channel,
// channels in name order, members in first-seen order.
func (p *Presence) Members() []Member {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(p.channels))
	for name := range p.channels {
		names = append(names, name)
	}
	sort.Strings(names)

	out := []Member{}
	for _, name := range names {
		out = append(out, p.channels[name].snapshot()...)
	}
	return out
}

func (cp *channelPresence) insertIfAbsent(msg PresenceMessage) {
	if _, ok := cp.members[msg.ClientID]; ok {
		return
	}
	cp.members[msg.ClientID] = Member{
		ClientID:  msg.ClientID,
		Data:      msg.Data,
		Action:    msg.Action,
		Timestamp: msg.Timestamp,
	}
	cp.order = append(cp.order, msg.ClientID)
}

func (cp *channelPresence) replaceOrInsert(msg PresenceMessage) {
	if _, ok := cp.members[msg.ClientID]; !ok {
		cp.insertIfAbsent(msg)
		return
	}
	cp.members[msg.ClientID] = Member{
		ClientID:  msg.ClientID,
		Data:      msg.Data,
		Action:    msg.Action,
		Timestamp: msg.Timestamp,
	}
}

func (cp *channelPresence) remove(clientID string) {
	if _, ok := cp.members[clientID]; !ok {
		return
	}
	delete(cp.members, clientID)
	for i, id := range cp.order {
		if id == clientID {
			cp.order = append(cp.order[:i], cp.order[i+1:]...)
			break
		}
	}
}

func (cp *channelPresence) snapshot() []Member {
	out := make([]Member, 0, len(cp.order))
	for _, id := range cp.order {
		out = append(out, cp.members[id])
	}
	return out
}
