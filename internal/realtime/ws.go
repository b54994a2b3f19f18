package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/janw/rtscope/internal/log"
)

const (
	// Send buffer size for outbound frames
	wsSendBufferSize = 64

	// Time allowed to write a frame
	wsWriteWait = 10 * time.Second

	// Read deadline; refreshed on every inbound frame and ping
	wsReadWait = 60 * time.Second

	// Heartbeat frame period (must be less than the server's idle cutoff)
	wsHeartbeatPeriod = 25 * time.Second

	// Maximum inbound frame size
	wsMaxMessageSize = 512 * 1024 // 512KB

	// How long a request/reply exchange (publish, presence ops) may take
	wsReplyWait = 10 * time.Second
)

// WSConfig configures the websocket transport.
type WSConfig struct {
	// URL of the realtime websocket endpoint, e.g. "wss://host/realtime/ws".
	URL string
}

// WSTransport is a Transport over a single websocket connection speaking
// Phoenix-style frames: channels are joined with phx_join carrying the
// current auth token, messages arrive as broadcast frames, and presence is
// tracked via presence_state/presence_diff frames.
type WSTransport struct {
	cfg WSConfig
	id  string

	mu           sync.Mutex
	ws           *websocket.Conn
	state        ConnState
	stateSubs    map[int]func(ConnStateChange)
	nextStateSub int
	channels     map[string]*wsChannel
	pending      map[string]chan *wireMessage
	clientID     string
	auth         AuthCallback
	send         chan []byte
	done         chan struct{}
	closing      bool
	closeOnce    sync.Once
}

// NewWSTransport creates an unconnected websocket transport.
func NewWSTransport(cfg WSConfig) *WSTransport {
	return &WSTransport{
		cfg:       cfg,
		id:        uuid.New().String(),
		state:     StateDisconnected,
		stateSubs: make(map[int]func(ConnStateChange)),
		channels:  make(map[string]*wsChannel),
		pending:   make(map[string]chan *wireMessage),
		send:      make(chan []byte, wsSendBufferSize),
		done:      make(chan struct{}),
	}
}

// WSFactory returns a TransportFactory dialing the given endpoint. Each
// connection attempt gets a fresh transport.
func WSFactory(cfg WSConfig) TransportFactory {
	return func() Transport {
		return NewWSTransport(cfg)
	}
}

// Connect starts the connection attempt: the auth callback is invoked for
// the current token, the websocket is dialed, and the token is presented in
// an access_token frame. The attempt runs asynchronously; the outcome is
// reported via OnStateChange.
func (t *WSTransport) Connect(ctx context.Context, clientID string, auth AuthCallback) error {
	if t.cfg.URL == "" {
		return errors.New("websocket url is required")
	}

	t.mu.Lock()
	t.clientID = clientID
	t.auth = auth
	t.mu.Unlock()

	t.setState(StateConnecting, nil)

	go t.dial(ctx)
	return nil
}

func (t *WSTransport) dial(ctx context.Context) {
	tokenObj, err := t.auth(ctx)
	if err != nil {
		t.setState(StateFailed, fmt.Errorf("auth callback: %w", err))
		return
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, t.cfg.URL, nil)
	if err != nil {
		t.setState(StateFailed, fmt.Errorf("dial %s: %w", t.cfg.URL, err))
		return
	}

	t.mu.Lock()
	t.ws = ws
	t.mu.Unlock()

	go t.readPump()
	go t.writePump()

	hello := &wireMessage{
		Event: wireEventAccessToken,
		Topic: wireTopicPhoenix,
		Ref:   nextRef(),
		Payload: map[string]any{
			"access_token": tokenObj,
			"client_id":    t.clientID,
		},
	}
	if err := t.enqueue(hello); err != nil {
		t.setState(StateFailed, err)
		return
	}

	t.setState(StateConnected, nil)
}

// OnStateChange registers a connection-state listener.
func (t *WSTransport) OnStateChange(fn func(ConnStateChange)) (off func()) {
	t.mu.Lock()
	id := t.nextStateSub
	t.nextStateSub++
	t.stateSubs[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.stateSubs, id)
		t.mu.Unlock()
	}
}

// ConnectionID returns the transport's opaque connection identifier.
func (t *WSTransport) ConnectionID() string {
	return t.id
}

// Channel returns the handle for a named channel, creating it on first use.
func (t *WSTransport) Channel(name string) Channel {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, ok := t.channels[name]
	if !ok {
		ch = &wsChannel{
			t:         t,
			topic:     name,
			state:     ChannelDetached,
			stateSubs: make(map[int]func(ChannelStateChange)),
			presSubs:  make(map[int]presenceSub),
			known:     make(map[string]bool),
		}
		t.channels[name] = ch
	}
	return ch
}

// Close shuts the connection down and reports the disconnected state.
func (t *WSTransport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closing = true
		ws := t.ws
		t.mu.Unlock()

		close(t.done)
		if ws != nil {
			ws.Close()
		}
		t.setState(StateDisconnected, nil)
	})
	return nil
}

func (t *WSTransport) setState(state ConnState, reason error) {
	t.mu.Lock()
	if t.state == state {
		t.mu.Unlock()
		return
	}
	change := ConnStateChange{Previous: t.state, Current: state, Reason: reason}
	t.state = state
	subs := make([]func(ConnStateChange), 0, len(t.stateSubs))
	for _, fn := range t.stateSubs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	for _, fn := range subs {
		fn(change)
	}
}

func (t *WSTransport) enqueue(msg *wireMessage) error {
	data, err := msg.encode()
	if err != nil {
		return err
	}
	select {
	case t.send <- data:
		return nil
	case <-t.done:
		return errors.New("connection closed")
	default:
		// Buffer full, drop frame
		log.Warn("realtime: send buffer full, dropping frame", "conn_id", t.id, "event", msg.Event)
		return errors.New("send buffer full")
	}
}

// request sends a frame and waits for its phx_reply.
func (t *WSTransport) request(ctx context.Context, msg *wireMessage) (*wireMessage, error) {
	if msg.Ref == "" {
		msg.Ref = nextRef()
	}

	reply := make(chan *wireMessage, 1)
	t.mu.Lock()
	t.pending[msg.Ref] = reply
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, msg.Ref)
		t.mu.Unlock()
	}()

	if err := t.enqueue(msg); err != nil {
		return nil, err
	}

	timer := time.NewTimer(wsReplyWait)
	defer timer.Stop()

	select {
	case r := <-reply:
		return r, nil
	case <-timer.C:
		return nil, errors.New("reply timeout")
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return nil, errors.New("connection closed")
	}
}

func (t *WSTransport) readPump() {
	defer func() {
		t.mu.Lock()
		closing := t.closing
		t.mu.Unlock()
		if closing {
			return
		}
		// The server went away without an explicit close from our side.
		t.setState(StateFailed, errors.New("connection lost"))
		t.Close()
	}()

	t.ws.SetReadLimit(wsMaxMessageSize)
	t.ws.SetReadDeadline(time.Now().Add(wsReadWait))
	t.ws.SetPingHandler(func(appData string) error {
		t.ws.SetReadDeadline(time.Now().Add(wsReadWait))
		return t.ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(wsWriteWait))
	})

	for {
		_, data, err := t.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("realtime: read error", "conn_id", t.id, "error", err.Error())
			}
			return
		}
		t.ws.SetReadDeadline(time.Now().Add(wsReadWait))

		msg, err := decodeWireMessage(data)
		if err != nil {
			log.Debug("realtime: invalid frame", "conn_id", t.id, "error", err.Error())
			continue
		}

		t.routeMessage(msg)
	}
}

func (t *WSTransport) writePump() {
	ticker := time.NewTicker(wsHeartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-t.send:
			t.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := t.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			beat := &wireMessage{
				Event:   wireEventHeartbeat,
				Topic:   wireTopicPhoenix,
				Ref:     nextRef(),
				Payload: map[string]any{},
			}
			data, err := beat.encode()
			if err != nil {
				continue
			}
			t.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := t.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-t.done:
			return
		}
	}
}

// routeMessage dispatches an inbound frame to the pending-reply map or the
// owning channel.
func (t *WSTransport) routeMessage(msg *wireMessage) {
	if msg.Event == wireEventReply {
		t.mu.Lock()
		reply, ok := t.pending[msg.Ref]
		t.mu.Unlock()
		if ok {
			select {
			case reply <- msg:
			default:
			}
		}
		return
	}

	if msg.Topic == wireTopicPhoenix {
		return
	}

	t.mu.Lock()
	ch := t.channels[msg.Topic]
	t.mu.Unlock()
	if ch == nil {
		log.Debug("realtime: frame for unknown channel", "topic", msg.Topic, "event", msg.Event)
		return
	}

	switch msg.Event {
	case wireEventBroadcast:
		ch.handleBroadcast(msg)
	case wireEventPresenceState:
		ch.handlePresenceState(msg)
	case wireEventPresenceDiff:
		ch.handlePresenceDiff(msg)
	case wireEventError:
		ch.setState(ChannelFailed, replyError(msg.Payload))
	case wireEventClose:
		ch.setState(ChannelDetached, nil)
	default:
		log.Debug("realtime: unknown frame", "topic", msg.Topic, "event", msg.Event)
	}
}
