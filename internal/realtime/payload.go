package realtime

import (
	"strings"
	"unicode"
)

// Field looks up a key in an event payload, tolerating the PascalCase and
// camelCase variants different backend versions emit for the same field
// (e.g. "RoomId" vs "roomId"). Exactly one normalization point; callers
// must not scatter dual lookups.
func Field(payload map[string]any, key string) (any, bool) {
	if payload == nil || key == "" {
		return nil, false
	}
	if v, ok := payload[key]; ok {
		return v, true
	}

	r := []rune(key)
	if unicode.IsUpper(r[0]) {
		r[0] = unicode.ToLower(r[0])
	} else {
		r[0] = unicode.ToUpper(r[0])
	}
	if v, ok := payload[string(r)]; ok {
		return v, true
	}
	return nil, false
}

// FieldString is Field for string-valued fields; non-strings report absent.
func FieldString(payload map[string]any, key string) (string, bool) {
	v, ok := Field(payload, key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// FieldNumber is Field for numeric fields decoded from JSON.
func FieldNumber(payload map[string]any, key string) (float64, bool) {
	v, ok := Field(payload, key)
	if !ok {
		return 0, false
	}
	n, ok := v.(float64)
	return n, ok
}

// EventNamespace returns the portion of a dotted event name before the
// first dot, e.g. "student" for "student.joined_room".
func EventNamespace(eventName string) string {
	if i := strings.Index(eventName, "."); i >= 0 {
		return eventName[:i]
	}
	return eventName
}
