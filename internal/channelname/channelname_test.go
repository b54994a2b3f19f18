package channelname

import (
	"strings"
	"testing"
)

func TestParseRoomChannel(t *testing.T) {
	p := Parse("7:100:room:5")

	if p.TenantID != 7 {
		t.Errorf("tenant id: got %d, want 7", p.TenantID)
	}
	if p.SessionInstanceID != 100 {
		t.Errorf("session instance id: got %d, want 100", p.SessionInstanceID)
	}
	if p.Resource != ResourceRoom {
		t.Errorf("resource: got %q, want room", p.Resource)
	}
	if p.RoomID != 5 {
		t.Errorf("room id: got %d, want 5", p.RoomID)
	}
	if p.Scope != ScopeSession {
		t.Errorf("scope: got %q, want session", p.Scope)
	}
}

func TestParseTenantWideUser(t *testing.T) {
	p := Parse("3:user:17")

	if p.Scope != ScopeTenantWide {
		t.Errorf("scope: got %q, want tenant-wide", p.Scope)
	}
	if p.TenantID != 3 {
		t.Errorf("tenant id: got %d, want 3", p.TenantID)
	}
	if p.UserID != 17 {
		t.Errorf("user id: got %d, want 17", p.UserID)
	}
}

func TestParseSessionChannel(t *testing.T) {
	p := Parse("1:42:session")

	if p.Scope != ScopeSession || p.Resource != ResourceSession {
		t.Errorf("got scope=%q resource=%q", p.Scope, p.Resource)
	}
	if p.SessionInstanceID != 42 {
		t.Errorf("session instance id: got %d, want 42", p.SessionInstanceID)
	}
}

func TestParseStageAvailability(t *testing.T) {
	p := Parse("1:42:stage_availability:9")
	if p.StageID != 9 {
		t.Errorf("stage id (4 segments): got %d, want 9", p.StageID)
	}

	p = Parse("1:42:stage_availability:9:extra")
	if p.StageID != 9 {
		t.Errorf("stage id (5 segments): got %d, want 9", p.StageID)
	}
}

func TestParseMalformed(t *testing.T) {
	for _, name := range []string{"", "solo"} {
		p := Parse(name)
		if p.Raw != name {
			t.Errorf("raw: got %q, want %q", p.Raw, name)
		}
		if p.Scope != "" {
			t.Errorf("%q: expected empty scope, got %q", name, p.Scope)
		}
	}
}

func TestFormatRoundTrip(t *testing.T) {
	label := Format("7:100:room:5")

	for _, want := range []string{"7", "100", "Room 5"} {
		if !strings.Contains(label, want) {
			t.Errorf("label %q missing %q", label, want)
		}
	}
}

func TestFormatUnknownResource(t *testing.T) {
	label := Format("1:42:widget")
	if !strings.Contains(label, "widget") {
		t.Errorf("label %q should fall back to raw resource token", label)
	}
}

func TestFormatUnparseable(t *testing.T) {
	if got := Format("just-a-name"); got != "just-a-name" {
		t.Errorf("got %q, want raw name back", got)
	}
}

func TestMatchesWildcard(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		want    bool
	}{
		{"1:42:room:101", "1:42:room:*", true},
		{"1:42:room:101", "1:42:*", false}, // * does not cross colons
		{"1:42:room", "1:42:*", true},
		{"1:42:session", "1:42:session", true},
		{"1:42:session", "1:43:session", false},
		{"1:42:room:101", "*:*:room:*", true},
	}

	for _, tt := range tests {
		if got := MatchesWildcard(tt.name, tt.pattern); got != tt.want {
			t.Errorf("MatchesWildcard(%q, %q) = %v, want %v", tt.name, tt.pattern, got, tt.want)
		}
	}
}

func TestSupportsPresence(t *testing.T) {
	if !SupportsPresence("1:42:session") {
		t.Error("session channels support presence")
	}
	if SupportsPresence("1:42:room:5") {
		t.Error("room channels do not support presence")
	}
}

func TestResourceType(t *testing.T) {
	if got := ResourceType("1:42:managers"); got != "managers" {
		t.Errorf("got %q, want managers", got)
	}
	if got := ResourceType("nope"); got != "unknown" {
		t.Errorf("got %q, want unknown", got)
	}
}
