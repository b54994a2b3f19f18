// Package token parses messaging-token payloads returned by the session
// backend and exposes a typed view of their capabilities and expiry.
package token

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/janw/rtscope/internal/log"
)

// Status classifies a token's remaining lifetime.
type Status string

const (
	StatusValid        Status = "Valid"
	StatusExpiringSoon Status = "ExpiringSoon"
	StatusExpired      Status = "Expired"
)

// ExpiryWarning is how close to expiry a token is reported as ExpiringSoon.
const ExpiryWarning = 5 * time.Minute

// Capabilities is the parsed, read-only view of a token payload.
// It is recomputed from the raw payload each time one is presented.
type Capabilities struct {
	ClientID  string
	Channels  map[string][]string // channel name -> sorted operation set
	ExpiresAt time.Time

	// Raw is the token-request object itself (unwrapped from any envelope),
	// suitable for handing to the transport's auth callback.
	Raw map[string]any
}

// Parse accepts either a messaging-token envelope
// {tokenData: {...}, expiresAt, clientId} or a raw token-request object at
// the top level, and returns the typed view. It never fails hard: unusable
// input returns nil, and malformed embedded capability JSON degrades to an
// empty capability map.
func Parse(data []byte) *Capabilities {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Warn("token: payload is not a JSON object", "error", err.Error())
		return nil
	}
	return ParseObject(payload)
}

// ParseObject is Parse for an already-decoded payload.
func ParseObject(payload map[string]any) *Capabilities {
	if payload == nil {
		return nil
	}

	// Unwrap the envelope if present.
	raw := payload
	if inner, ok := payload["tokenData"].(map[string]any); ok {
		raw = inner
	}

	caps := &Capabilities{
		Channels: parseCapabilityMap(raw["capability"]),
		Raw:      raw,
	}

	// clientId can live on the envelope or on the token request itself.
	if id, ok := payload["clientId"].(string); ok && id != "" {
		caps.ClientID = id
	} else if id, ok := raw["clientId"].(string); ok {
		caps.ClientID = id
	}

	// Expiry: envelope carries expiresAt; a raw token request carries
	// timestamp+ttl in milliseconds.
	if at, ok := parseInstant(payload["expiresAt"]); ok {
		caps.ExpiresAt = at
	} else if ts, ok := payload["timestamp"].(float64); ok {
		if ttl, ok := payload["ttl"].(float64); ok {
			caps.ExpiresAt = time.UnixMilli(int64(ts + ttl))
		}
	}

	return caps
}

// parseCapabilityMap normalizes the capability field, which may be a JSON
// string (possibly double-encoded) or an object whose values are a single
// operation or a list. Parse failures are logged and yield an empty map.
func parseCapabilityMap(v any) map[string][]string {
	out := make(map[string][]string)

	var m map[string]any
	switch cap := v.(type) {
	case nil:
		return out
	case string:
		if err := json.Unmarshal([]byte(cap), &m); err != nil {
			log.Warn("token: failed to parse capability JSON", "error", err.Error())
			return out
		}
	case map[string]any:
		m = cap
	default:
		log.Warn("token: unexpected capability type")
		return out
	}

	for channel, ops := range m {
		out[channel] = normalizeOps(ops)
	}
	return out
}

func normalizeOps(v any) []string {
	var ops []string
	switch val := v.(type) {
	case string:
		ops = []string{val}
	case []any:
		for _, item := range val {
			if s, ok := item.(string); ok {
				ops = append(ops, s)
			}
		}
	case []string:
		ops = append(ops, val...)
	}
	sort.Strings(ops)
	return ops
}

func parseInstant(v any) (time.Time, bool) {
	switch val := v.(type) {
	case string:
		if at, err := time.Parse(time.RFC3339, val); err == nil {
			return at, true
		}
	case float64:
		return time.UnixMilli(int64(val)), true
	}
	return time.Time{}, false
}

// StatusAt classifies the token's expiry relative to now.
func (c *Capabilities) StatusAt(now time.Time) Status {
	remaining := c.ExpiresAt.Sub(now)
	switch {
	case remaining <= 0:
		return StatusExpired
	case remaining < ExpiryWarning:
		return StatusExpiringSoon
	default:
		return StatusValid
	}
}

// Status classifies the token's expiry relative to the current instant.
func (c *Capabilities) Status() Status {
	return c.StatusAt(time.Now())
}

// Has reports whether the token grants the given operation on the channel.
func (c *Capabilities) Has(channel, op string) bool {
	for _, granted := range c.Channels[channel] {
		if granted == op {
			return true
		}
	}
	return false
}

// ChannelNames returns the channel names in the capability map, sorted.
func (c *Capabilities) ChannelNames() []string {
	names := make([]string, 0, len(c.Channels))
	for name := range c.Channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Diff is the channel-level difference between two capability snapshots.
type Diff struct {
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	Unchanged []string `json:"unchanged"`
}

// Compare computes which channel names were added, removed, or kept between
// two capability snapshots. Used to detect token refreshes. Either side may
// be nil (treated as empty).
func Compare(old, new *Capabilities) Diff {
	oldCh := map[string]bool{}
	newCh := map[string]bool{}
	if old != nil {
		for name := range old.Channels {
			oldCh[name] = true
		}
	}
	if new != nil {
		for name := range new.Channels {
			newCh[name] = true
		}
	}

	d := Diff{Added: []string{}, Removed: []string{}, Unchanged: []string{}}
	for name := range newCh {
		if !oldCh[name] {
			d.Added = append(d.Added, name)
		}
	}
	for name := range oldCh {
		if newCh[name] {
			d.Unchanged = append(d.Unchanged, name)
		} else {
			d.Removed = append(d.Removed, name)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Strings(d.Unchanged)
	return d
}

// FormatExpiry renders the remaining lifetime as a short human label.
func FormatExpiry(expiresAt, now time.Time) string {
	minutes := int(expiresAt.Sub(now).Minutes())
	switch {
	case expiresAt.Before(now) || expiresAt.Equal(now):
		return "Expired"
	case minutes == 0:
		return "Expires in < 1 minute"
	case minutes == 1:
		return "Expires in 1 minute"
	case minutes < 60:
		return "Expires in " + strconv.Itoa(minutes) + " minutes"
	}

	hours := minutes / 60
	mins := minutes % 60
	switch {
	case hours == 1 && mins == 0:
		return "Expires in 1 hour"
	case hours == 1:
		return "Expires in 1 hour " + strconv.Itoa(mins) + " minutes"
	case mins == 0:
		return "Expires in " + strconv.Itoa(hours) + " hours"
	default:
		return "Expires in " + strconv.Itoa(hours) + " hours " + strconv.Itoa(mins) + " minutes"
	}
}

