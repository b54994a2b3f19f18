package realtime

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
)

// Phoenix-style wire frame used by the websocket transport.
type wireMessage struct {
	Event   string         `json:"event"`
	Topic   string         `json:"topic"`
	Payload map[string]any `json:"payload"`
	Ref     string         `json:"ref"`
	JoinRef string         `json:"join_ref,omitempty"`
}

// Frames the client sends.
const (
	wireEventJoin        = "phx_join"
	wireEventLeave       = "phx_leave"
	wireEventHeartbeat   = "heartbeat"
	wireEventAccessToken = "access_token"
	wireEventBroadcast   = "broadcast"
	wireEventPresence    = "presence"
)

// Frames the server sends.
const (
	wireEventReply         = "phx_reply"
	wireEventClose         = "phx_close"
	wireEventError         = "phx_error"
	wireEventPresenceState = "presence_state"
	wireEventPresenceDiff  = "presence_diff"
)

// Heartbeats travel on a reserved topic.
const wireTopicPhoenix = "phoenix"

func (m *wireMessage) encode() ([]byte, error) {
	return json.Marshal(m)
}

func decodeWireMessage(data []byte) (*wireMessage, error) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid message format: %w", err)
	}
	return &msg, nil
}

// replyStatus extracts the status and response of a phx_reply payload.
func replyStatus(payload map[string]any) (status string, response map[string]any) {
	status, _ = payload["status"].(string)
	response, _ = payload["response"].(map[string]any)
	return status, response
}

// replyError renders an error phx_reply as a readable error.
func replyError(payload map[string]any) error {
	_, response := replyStatus(payload)
	code, _ := response["code"].(string)
	message, _ := response["message"].(string)
	switch {
	case code != "" && message != "":
		return fmt.Errorf("%s: %s", code, message)
	case message != "":
		return fmt.Errorf("%s", message)
	case code != "":
		return fmt.Errorf("%s", code)
	default:
		return fmt.Errorf("request rejected")
	}
}

var refCounter atomic.Uint64

func nextRef() string {
	return strconv.FormatUint(refCounter.Add(1), 10)
}
