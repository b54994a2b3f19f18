package console

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/janw/rtscope/internal/archive"
	"github.com/janw/rtscope/internal/channelname"
	"github.com/janw/rtscope/internal/eventlog"
	"github.com/janw/rtscope/internal/log"
	"github.com/janw/rtscope/internal/realtime"
	"github.com/janw/rtscope/internal/token"
)

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	state := map[string]any{
		"connectionState": s.ctrl.State(),
		"clientId":        s.ctrl.ClientID(),
		"connectionId":    s.ctrl.ConnectionID(),
	}
	if err := s.ctrl.LastError(); err != nil {
		state["lastError"] = err.Error()
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    map[string]any `json:"token"`
		ClientID string         `json:"clientId"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.ctrl.Connect(r.Context(), req.Token, req.ClientID); err != nil {
		writeError(w, connectStatus(err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"connectionState": s.ctrl.State(),
		"clientId":        s.ctrl.ClientID(),
		"connectionId":    s.ctrl.ConnectionID(),
	})
}

func connectStatus(err error) int {
	var connErr *realtime.ConnectionError
	if errors.As(err, &connErr) {
		switch connErr.Reason {
		case "rejected":
			return http.StatusBadRequest
		case "timeout":
			return http.StatusGatewayTimeout
		}
	}
	return http.StatusBadGateway
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Disconnect()
	writeJSON(w, http.StatusOK, map[string]any{
		"connectionState": s.ctrl.State(),
	})
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Subscriptions())
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Channel     string `json:"channel"`
		EventFilter string `json:"eventFilter"`
	}
	if err := decodeBody(r, &req); err != nil || req.Channel == "" {
		writeError(w, http.StatusBadRequest, errors.New("channel is required"))
		return
	}

	if err := s.ctrl.SubscribeToChannel(r.Context(), req.Channel, req.EventFilter); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Subscriptions())
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("channel")
	if name == "" {
		writeError(w, http.StatusBadRequest, errors.New("channel query parameter is required"))
		return
	}
	s.ctrl.UnsubscribeFromChannel(name)
	writeJSON(w, http.StatusOK, s.ctrl.Subscriptions())
}

func (s *Server) handleListPresence(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.PresenceMembers())
}

func (s *Server) handlePresenceEnter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Channel string `json:"channel"`
		Data    any    `json:"data"`
	}
	if err := decodeBody(r, &req); err != nil || req.Channel == "" {
		writeError(w, http.StatusBadRequest, errors.New("channel is required"))
		return
	}

	if err := s.ctrl.EnterPresence(r.Context(), req.Channel, req.Data); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.PresenceMembers())
}

func (s *Server) handlePresenceLeave(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Channel string `json:"channel"`
	}
	if err := decodeBody(r, &req); err != nil || req.Channel == "" {
		writeError(w, http.StatusBadRequest, errors.New("channel is required"))
		return
	}
	s.ctrl.LeavePresence(r.Context(), req.Channel)
	writeJSON(w, http.StatusOK, s.ctrl.PresenceMembers())
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Channel   string `json:"channel"`
		EventName string `json:"eventName"`
		Data      any    `json:"data"`
	}
	if err := decodeBody(r, &req); err != nil || req.Channel == "" || req.EventName == "" {
		writeError(w, http.StatusBadRequest, errors.New("channel and eventName are required"))
		return
	}

	if err := s.ctrl.PublishMessage(r.Context(), req.Channel, req.EventName, req.Data); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := eventlog.Filter{
		Channel:   q.Get("channel"),
		EventName: q.Get("event"),
		Search:    q.Get("search"),
	}
	if window := q.Get("window"); window != "" {
		d, err := time.ParseDuration(window)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		filter.Window = d
	}
	writeJSON(w, http.StatusOK, s.ctrl.Events(filter))
}

func (s *Server) handleClearEvents(w http.ResponseWriter, r *http.Request) {
	s.ctrl.ClearEvents()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exports == nil {
		writeError(w, http.StatusNotImplemented, errors.New("export is not configured"))
		return
	}

	var req struct {
		Key string `json:"key"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if req.Key == "" {
		req.Key = archive.DefaultKey(time.Now())
	}

	entries := s.ctrl.EventLog().Entries()
	if err := archive.Export(r.Context(), s.exports, req.Key, entries); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": req.Key, "entries": len(entries)})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	caps := s.ctrl.Capabilities()
	if caps == nil {
		writeError(w, http.StatusNotFound, errors.New("no active token"))
		return
	}

	now := time.Now()
	writeJSON(w, http.StatusOK, map[string]any{
		"clientId":  caps.ClientID,
		"channels":  caps.Channels,
		"expiresAt": caps.ExpiresAt,
		"status":    caps.StatusAt(now),
		"expiresIn": token.FormatExpiry(caps.ExpiresAt, now),
	})
}

// handleTokenInspect decodes a token without connecting: a bearer JWT when
// given a string, a messaging-token payload when given an object. When the
// request carries a previous payload too, the capability diff is included.
func (s *Server) handleTokenInspect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    any            `json:"token"`
		Previous map[string]any `json:"previous"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	switch tok := req.Token.(type) {
	case string:
		info, err := token.InspectBearer(tok)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, info)

	case map[string]any:
		caps := token.ParseObject(tok)
		if caps == nil {
			writeError(w, http.StatusBadRequest, errors.New("token payload is empty or malformed"))
			return
		}
		now := time.Now()
		resp := map[string]any{
			"clientId":  caps.ClientID,
			"channels":  caps.Channels,
			"expiresAt": caps.ExpiresAt,
			"status":    caps.StatusAt(now),
			"expiresIn": token.FormatExpiry(caps.ExpiresAt, now),
		}
		if req.Previous != nil {
			resp["diff"] = token.Compare(token.ParseObject(req.Previous), caps)
		}
		writeJSON(w, http.StatusOK, resp)

	default:
		writeError(w, http.StatusBadRequest, errors.New("token must be a string or an object"))
	}
}

func (s *Server) handleDescribeChannel(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, errors.New("name query parameter is required"))
		return
	}

	parsed := channelname.Parse(name)
	writeJSON(w, http.StatusOK, map[string]any{
		"parsed":           parsed,
		"label":            channelname.Format(name),
		"resourceType":     channelname.ResourceType(name),
		"supportsPresence": channelname.SupportsPresence(name),
		"wildcard":         channelname.IsWildcard(name),
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	n := 100
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, errors.New("n must be a positive integer"))
			return
		}
		n = parsed
	}
	writeJSON(w, http.StatusOK, log.BufferedLines(n))
}
