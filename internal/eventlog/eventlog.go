// Package eventlog keeps a bounded, append-only log of inbound realtime
// notifications. Appends evict from the head once the cap is exceeded;
// queries are pure and return copies.
package eventlog

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SystemChannel is the sentinel channel for internally generated entries
// (connection lifecycle, operation results, errors).
const SystemChannel = "system"

// Capacity bounds. DefaultCapacity matches the original console's cap.
const (
	DefaultCapacity = 500
	MinCapacity     = 100
	MaxCapacity     = 10000
)

// Entry is one logged notification.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Channel   string    `json:"channel"`
	EventName string    `json:"eventName"`
	Data      any       `json:"data"`

	seq uint64
}

// Filter selects entries. Zero values mean "no constraint"; the populated
// fields compose with logical AND.
type Filter struct {
	Channel   string
	EventName string
	Window    time.Duration // sliding window ending now; 0 = unbounded
	Search    string        // case-insensitive substring over serialized data
}

// Log is a bounded append-only event log. Safe for concurrent use.
type Log struct {
	mu        sync.RWMutex
	entries   []Entry
	capacity  int
	seq       uint64
	counters  map[string]int // per-channel appended-event counts
	watchers  map[int]func(Entry)
	nextWatch int
}

// New creates a log with the given capacity, clamped to [MinCapacity,
// MaxCapacity]. A non-positive capacity selects DefaultCapacity.
func New(capacity int) *Log {
	switch {
	case capacity <= 0:
		capacity = DefaultCapacity
	case capacity < MinCapacity:
		capacity = MinCapacity
	case capacity > MaxCapacity:
		capacity = MaxCapacity
	}
	return &Log{
		capacity: capacity,
		counters: make(map[string]int),
		watchers: make(map[int]func(Entry)),
	}
}

// Append adds an entry timestamped now.
func (l *Log) Append(channel, eventName string, data any) Entry {
	return l.AppendAt(time.Now(), channel, eventName, data)
}

// AppendAt adds an entry with a transport-supplied timestamp. Entries keep
// insertion order regardless of timestamp; the oldest entry is evicted once
// the log exceeds its capacity.
func (l *Log) AppendAt(ts time.Time, channel, eventName string, data any) Entry {
	l.mu.Lock()

	l.seq++
	e := Entry{
		ID:        strconv.FormatUint(l.seq, 10) + "-" + uuid.NewString()[:8],
		Timestamp: ts,
		Channel:   channel,
		EventName: eventName,
		Data:      data,
		seq:       l.seq,
	}

	l.entries = append(l.entries, e)
	if len(l.entries) > l.capacity {
		overflow := len(l.entries) - l.capacity
		l.entries = append(l.entries[:0:0], l.entries[overflow:]...)
	}

	l.counters[channel]++

	watchers := make([]func(Entry), 0, len(l.watchers))
	for _, fn := range l.watchers {
		watchers = append(watchers, fn)
	}
	l.mu.Unlock()

	// Watchers run outside the lock so they may call back into the log.
	for _, fn := range watchers {
		fn(e)
	}
	return e
}

// Watch registers a callback invoked for every appended entry. Callbacks
// run on the appending goroutine and must not block. Returns an
// unsubscribe function.
func (l *Log) Watch(fn func(Entry)) (off func()) {
	l.mu.Lock()
	id := l.nextWatch
	l.nextWatch++
	l.watchers[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.watchers, id)
		l.mu.Unlock()
	}
}

// Entries returns a copy of all entries in insertion order.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Entry(nil), l.entries...)
}

// Filtered returns the entries matching the filter, in insertion order.
// The time window is evaluated against the current instant.
func (l *Log) Filtered(f Filter) []Entry {
	return l.FilteredAt(time.Now(), f)
}

// FilteredAt is Filtered with an explicit "now" for the window cutoff.
func (l *Log) FilteredAt(now time.Time, f Filter) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var cutoff time.Time
	if f.Window > 0 {
		cutoff = now.Add(-f.Window)
	}
	search := strings.ToLower(f.Search)

	out := []Entry{}
	for _, e := range l.entries {
		if f.Channel != "" && e.Channel != f.Channel {
			continue
		}
		if f.EventName != "" && e.EventName != f.EventName {
			continue
		}
		if !cutoff.IsZero() && e.Timestamp.Before(cutoff) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(serialize(e.Data)), search) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Len returns the number of entries currently held.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Capacity returns the configured cap.
func (l *Log) Capacity() int {
	return l.capacity
}

// Count returns how many entries have been appended for a channel since the
// last Clear, including evicted ones.
func (l *Log) Count(channel string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.counters[channel]
}

// ResetCount discards the per-channel counter, e.g. after an unsubscribe.
func (l *Log) ResetCount(channel string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.counters, channel)
}

// ClearCounters resets all per-channel counters without touching entries.
// Used by disconnect housekeeping, which keeps the timeline visible.
func (l *Log) ClearCounters() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counters = make(map[string]int)
}

// Clear empties the log and resets all per-channel counters.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.counters = make(map[string]int)
}

func serialize(data any) string {
	if data == nil {
		return ""
	}
	if s, ok := data.(string); ok {
		return s
	}
	b, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	return string(b)
}
