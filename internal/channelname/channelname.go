// Package channelname parses and formats the colon-delimited channel names
// used by the session backend, e.g. "1:42:session" or "7:100:room:5".
package channelname

import (
	"regexp"
	"strconv"
	"strings"
)

// Scope identifies which part of the tenant hierarchy a channel belongs to.
type Scope string

const (
	ScopeTenantWide Scope = "tenant-wide"
	ScopeSession    Scope = "session"
)

// Resource kinds that appear as the third segment of a channel name.
const (
	ResourceSession           = "session"
	ResourceUser              = "user"
	ResourceRoom              = "room"
	ResourceManagers          = "managers"
	ResourceStageAvailability = "stage_availability"
)

// Parsed holds the components extracted from a channel name.
// Numeric fields are -1 when absent or non-numeric. A name with fewer than
// two segments yields a Parsed carrying only Raw.
type Parsed struct {
	Raw               string
	Scope             Scope
	Resource          string
	TenantID          int
	SessionInstanceID int
	UserID            int
	RoomID            int
	StageID           int
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

// Parse extracts the structured components of a channel name. It never
// fails: malformed input returns a Parsed with only Raw set.
func Parse(name string) Parsed {
	p := Parsed{
		Raw:               name,
		TenantID:          -1,
		SessionInstanceID: -1,
		UserID:            -1,
		RoomID:            -1,
		StageID:           -1,
	}

	parts := strings.Split(name, ":")
	if name == "" || len(parts) < 2 {
		return p
	}

	p.TenantID = atoiOr(parts[0], -1)

	// Tenant-wide user channel: {tenant}:user:{userId}
	if len(parts) == 3 && parts[1] == ResourceUser {
		p.Scope = ScopeTenantWide
		p.Resource = ResourceUser
		p.UserID = atoiOr(parts[2], -1)
		return p
	}

	// Session-scoped channels: {tenant}:{sessionInstance}:{resource}...
	if len(parts) >= 3 {
		p.Scope = ScopeSession
		p.SessionInstanceID = atoiOr(parts[1], -1)
		p.Resource = parts[2]

		switch {
		case len(parts) == 4 && parts[2] != "*":
			id := atoiOr(parts[3], -1)
			switch parts[2] {
			case ResourceRoom:
				p.RoomID = id
			case ResourceUser:
				p.UserID = id
			case ResourceStageAvailability:
				p.StageID = id
			}
		case len(parts) >= 5 && parts[2] == ResourceStageAvailability:
			p.StageID = atoiOr(parts[3], -1)
		}
	}

	return p
}

// Format renders a channel name as a short human-readable label.
// Unrecognized names are returned unchanged.
func Format(name string) string {
	p := Parse(name)

	switch p.Scope {
	case ScopeTenantWide:
		return strconv.Itoa(p.TenantID) + " · User " + strconv.Itoa(p.UserID)
	case ScopeSession:
		label := strconv.Itoa(p.TenantID) + " · Session " + strconv.Itoa(p.SessionInstanceID)
		switch p.Resource {
		case ResourceSession:
			label += " · Session Channel"
		case ResourceUser:
			label += " · User " + strconv.Itoa(p.UserID)
		case ResourceRoom:
			label += " · Room " + strconv.Itoa(p.RoomID)
		case ResourceManagers:
			label += " · Managers"
		case ResourceStageAvailability:
			label += " · Stage Availability (Stage " + strconv.Itoa(p.StageID) + ")"
		default:
			label += " · " + p.Resource
		}
		return label
	}

	return name
}

// MatchesWildcard reports whether a channel name matches a pattern where "*"
// stands for any run of non-colon characters, e.g. "1:42:room:101" matches
// "1:42:room:*". A pattern without "*" must match exactly.
func MatchesWildcard(name, pattern string) bool {
	if !strings.Contains(pattern, "*") {
		return name == pattern
	}

	var b strings.Builder
	b.WriteString("^")
	for i, seg := range strings.Split(pattern, "*") {
		if i > 0 {
			b.WriteString("[^:]*")
		}
		b.WriteString(regexp.QuoteMeta(seg))
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	return re.MatchString(name)
}

// ResourceType returns the resource kind of a channel name, or "unknown".
func ResourceType(name string) string {
	p := Parse(name)
	if p.Resource == "" {
		return "unknown"
	}
	return p.Resource
}

// SupportsPresence reports whether a channel carries presence.
// Only session channels do.
func SupportsPresence(name string) bool {
	return Parse(name).Resource == ResourceSession
}

// IsWildcard reports whether a channel name contains a wildcard segment.
func IsWildcard(name string) bool {
	return strings.Contains(name, "*")
}
