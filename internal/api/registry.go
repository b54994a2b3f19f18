// Package api calls the session backend: a typed registry of its endpoints
// and a client that executes them with bearer auth.
package api

import "sort"

// Endpoint describes one backend operation: how to call it and which field
// of its response carries a token, if any.
type Endpoint struct {
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Method      string   `json:"method"`
	Path        string   `json:"path"`
	PathParams  []string `json:"pathParams"`
	BodyParams  []string `json:"bodyParams"`
	TokenField  string   `json:"tokenField,omitempty"`
	Description string   `json:"description"`
}

// Roles the console can act as.
const (
	RoleStudent  = "student"
	RoleAssessor = "assessor"
	RoleManager  = "manager"
	RoleVideo    = "video"
	RoleWebhook  = "webhook"
)

// endpoints is the registry of known backend operations, keyed by role.
var endpoints = map[string][]Endpoint{
	RoleStudent: {
		{
			Name:        "JOIN_SESSION",
			Role:        RoleStudent,
			Method:      "POST",
			Path:        "/student-session/{sessionId}/join",
			PathParams:  []string{"sessionId"},
			TokenField:  "messagingTokenRequest",
			Description: "Join session as student and receive messaging token",
		},
		{
			Name:        "JOIN_ROOM",
			Role:        RoleStudent,
			Method:      "POST",
			Path:        "/student-session/{sessionInstanceId}/join-room",
			PathParams:  []string{"sessionInstanceId"},
			TokenField:  "messagingTokenRequest",
			Description: "Join room as student and receive updated token with room channel",
		},
	},
	RoleAssessor: {
		{
			Name:        "JOIN_SESSION",
			Role:        RoleAssessor,
			Method:      "POST",
			Path:        "/assessor-session/{sessionId}/join",
			PathParams:  []string{"sessionId"},
			TokenField:  "messagingTokenRequest",
			Description: "Join session as assessor and receive messaging token",
		},
		{
			Name:        "START_LOOKING",
			Role:        RoleAssessor,
			Method:      "POST",
			Path:        "/assessor-session/{sessionInstanceId}/start-looking",
			PathParams:  []string{"sessionInstanceId"},
			TokenField:  "tokenRequest",
			Description: "Start looking for students and receive stage availability token",
		},
	},
	RoleManager: {
		{
			Name:        "JOIN_SESSION",
			Role:        RoleManager,
			Method:      "POST",
			Path:        "/manager-session/{sessionId}/join",
			PathParams:  []string{"sessionId"},
			TokenField:  "messagingTokenRequest",
			Description: "Join session as manager and receive token with wildcard access",
		},
		{
			Name:        "GET_OBSERVER_TOKENS",
			Role:        RoleManager,
			Method:      "GET",
			Path:        "/session-instance/{sessionInstanceId}/room/{roomId}/observer-tokens",
			PathParams:  []string{"sessionInstanceId", "roomId"},
			TokenField:  "videoToken",
			Description: "Get video token for observing a specific room",
		},
	},
	RoleVideo: {
		{
			Name:        "GET_HOST_TOKEN",
			Role:        RoleVideo,
			Method:      "GET",
			Path:        "/room/host-video-token",
			TokenField:  "videoToken",
			Description: "Get video token for the host assessor assigned to a room",
		},
		{
			Name:        "GET_OBSERVER_TOKENS",
			Role:        RoleVideo,
			Method:      "GET",
			Path:        "/session-instance/{sessionInstanceId}/room/{roomId}/observer-tokens",
			PathParams:  []string{"sessionInstanceId", "roomId"},
			TokenField:  "videoToken",
			Description: "Get video token for observing a specific room",
		},
		{
			Name:        "ASSESSOR_JOIN",
			Role:        RoleVideo,
			Method:      "POST",
			Path:        "/assessor-session/{sessionId}/join",
			PathParams:  []string{"sessionId"},
			TokenField:  "videoToken",
			Description: "Join session as assessor, extracting the video token",
		},
		{
			Name:        "STUDENT_JOIN",
			Role:        RoleVideo,
			Method:      "POST",
			Path:        "/student-session/{sessionId}/join",
			PathParams:  []string{"sessionId"},
			TokenField:  "videoToken",
			Description: "Join session as student, extracting the video token",
		},
	},
	RoleWebhook: {
		{
			Name:        "PRESENCE_EVENT",
			Role:        RoleWebhook,
			Method:      "POST",
			Path:        "/realtime/presence-events",
			BodyParams:  []string{"items"},
			Description: "Send a presence webhook batch to the backend",
		},
	},
}

// Roles lists the registered roles in sorted order.
func Roles() []string {
	out := make([]string, 0, len(endpoints))
	for role := range endpoints {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}

// EndpointsFor returns the endpoints registered for a role.
func EndpointsFor(role string) []Endpoint {
	out := make([]Endpoint, len(endpoints[role]))
	copy(out, endpoints[role])
	return out
}

// Lookup finds one endpoint by role and name.
func Lookup(role, name string) (Endpoint, bool) {
	for _, ep := range endpoints[role] {
		if ep.Name == name {
			return ep, true
		}
	}
	return Endpoint{}, false
}
