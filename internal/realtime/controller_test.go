package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janw/rtscope/internal/eventlog"
)

func testTokenPayload() map[string]any {
	return map[string]any{
		"clientId": "5",
		"capability": map[string]any{
			"1:42:session": []any{"subscribe", "presence"},
		},
		"timestamp": float64(time.Now().UnixMilli()),
		"ttl":       float64(3600000),
	}
}

func systemEntries(c *Controller, eventName string) []eventlog.Entry {
	return c.Events(eventlog.Filter{Channel: eventlog.SystemChannel, EventName: eventName})
}

func TestControllerConnect(t *testing.T) {
	ft := newFakeTransport()
	dial, dialed := fakeFactory(ft)
	c := NewController(dial, Config{})

	err := c.Connect(context.Background(), testTokenPayload(), "")
	require.NoError(t, err)

	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, "5", c.ClientID())
	assert.Equal(t, "conn-1", c.ConnectionID())
	assert.Equal(t, 1, *dialed)

	require.NotNil(t, c.Capabilities())
	assert.Equal(t, []string{"presence", "subscribe"}, c.Capabilities().Channels["1:42:session"])

	entries := systemEntries(c, "Connection established")
	require.Len(t, entries, 1)
	data := entries[0].Data.(map[string]any)
	assert.Equal(t, "5", data["clientId"])
	assert.Equal(t, "conn-1", data["connectionId"])
}

func TestControllerConnectExplicitClientID(t *testing.T) {
	ft := newFakeTransport()
	dial, _ := fakeFactory(ft)
	c := NewController(dial, Config{})

	require.NoError(t, c.Connect(context.Background(), testTokenPayload(), "observer"))
	assert.Equal(t, "observer", c.ClientID())
}

func TestControllerConnectEmptyPayload(t *testing.T) {
	dial, dialed := fakeFactory(newFakeTransport())
	c := NewController(dial, Config{})

	err := c.Connect(context.Background(), nil, "")
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "rejected", connErr.Reason)

	// No transport is dialed for an unusable token.
	assert.Equal(t, 0, *dialed)
	assert.Equal(t, StateDisconnected, c.State())
	assert.Len(t, systemEntries(c, "Connection failed"), 1)
}

func TestControllerConnectTransportFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.failOnConnect = errors.New("handshake refused")
	dial, _ := fakeFactory(ft)
	c := NewController(dial, Config{})

	err := c.Connect(context.Background(), testTokenPayload(), "")
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "failed", connErr.Reason)

	assert.Equal(t, StateFailed, c.State())
	require.Error(t, c.LastError())
	assert.Len(t, systemEntries(c, "Connection failed"), 1)
}

func TestControllerConnectTimeout(t *testing.T) {
	ft := newFakeTransport()
	ft.hangOnConnect = true
	dial, _ := fakeFactory(ft)
	c := NewController(dial, Config{ConnectTimeout: 20 * time.Millisecond})

	err := c.Connect(context.Background(), testTokenPayload(), "")
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "timeout", connErr.Reason)
	assert.Equal(t, StateFailed, c.State())

	// A late transport transition must not pull the session out of failed.
	ft.setState(StateConnected, nil)
	assert.Equal(t, StateFailed, c.State())
}

func TestControllerConnectCanceled(t *testing.T) {
	ft := newFakeTransport()
	ft.hangOnConnect = true
	dial, _ := fakeFactory(ft)
	c := NewController(dial, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Connect(ctx, testTokenPayload(), "")
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "canceled", connErr.Reason)
	assert.Equal(t, StateFailed, c.State())
}

func TestControllerConnectWhileConnected(t *testing.T) {
	first := newFakeTransport()
	second := newFakeTransport()
	second.id = "conn-2"
	dial, dialed := fakeFactory(first, second)
	c := NewController(dial, Config{})

	require.NoError(t, c.Connect(context.Background(), testTokenPayload(), ""))
	require.NoError(t, c.SubscribeToChannel(context.Background(), "1:42:session", ""))

	// A second connect tears the live session down first.
	require.NoError(t, c.Connect(context.Background(), testTokenPayload(), ""))

	assert.True(t, first.closed)
	assert.Equal(t, 2, *dialed)
	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, "conn-2", c.ConnectionID())
	assert.Empty(t, c.Subscriptions())
	assert.Len(t, systemEntries(c, "Disconnected"), 1)
}

func TestControllerDisconnectIdempotent(t *testing.T) {
	ft := newFakeTransport()
	dial, _ := fakeFactory(ft)
	c := NewController(dial, Config{})

	require.NoError(t, c.Connect(context.Background(), testTokenPayload(), ""))
	require.NoError(t, c.SubscribeToChannel(context.Background(), "1:42:session", ""))

	c.Disconnect()
	c.Disconnect()

	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, "", c.ClientID())
	assert.Nil(t, c.Capabilities())
	assert.Empty(t, c.Subscriptions())
	assert.True(t, ft.closed)

	// One entry per call, even when already disconnected.
	assert.Len(t, systemEntries(c, "Disconnected"), 2)
}

func TestControllerSubscribeWhileDisconnected(t *testing.T) {
	ft := newFakeTransport()
	dial, dialed := fakeFactory(ft)
	c := NewController(dial, Config{})

	err := c.SubscribeToChannel(context.Background(), "1:42:session", "")
	var subErr *SubscriptionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, "1:42:session", subErr.Channel)
	assert.ErrorIs(t, err, ErrNotConnected)

	// No subscription entry and no transport activity.
	assert.Empty(t, c.Subscriptions())
	assert.Equal(t, 0, *dialed)
}

func TestControllerSubscribeAndReceive(t *testing.T) {
	ft := newFakeTransport()
	dial, _ := fakeFactory(ft)
	c := NewController(dial, Config{})

	require.NoError(t, c.Connect(context.Background(), testTokenPayload(), ""))
	require.NoError(t, c.SubscribeToChannel(context.Background(), "1:42:session", ""))

	subs := c.Subscriptions()
	require.Len(t, subs, 1)
	assert.Equal(t, "1:42:session", subs[0].Name)
	assert.Equal(t, ChannelAttached, subs[0].Status)
	assert.Len(t, systemEntries(c, "Subscribed to 1:42:session"), 1)

	ch := ft.Channel("1:42:session").(*fakeChannel)
	ch.deliver("student.joined_room", map[string]any{"roomId": float64(3)})

	entries := c.Events(eventlog.Filter{Channel: "1:42:session"})
	require.Len(t, entries, 1)
	assert.Equal(t, "student.joined_room", entries[0].EventName)
	assert.Equal(t, 1, c.EventLog().Count("1:42:session"))
}

func TestControllerSubscribeEventFilter(t *testing.T) {
	ft := newFakeTransport()
	dial, _ := fakeFactory(ft)
	c := NewController(dial, Config{})

	require.NoError(t, c.Connect(context.Background(), testTokenPayload(), ""))
	require.NoError(t, c.SubscribeToChannel(context.Background(), "1:42:session", "stage.update"))

	ch := ft.Channel("1:42:session").(*fakeChannel)
	ch.deliver("student.joined_room", map[string]any{})
	ch.deliver("stage.update", map[string]any{"stage": "waiting"})

	entries := c.Events(eventlog.Filter{Channel: "1:42:session"})
	require.Len(t, entries, 1)
	assert.Equal(t, "stage.update", entries[0].EventName)
}

func TestControllerUnsubscribe(t *testing.T) {
	ft := newFakeTransport()
	dial, _ := fakeFactory(ft)
	c := NewController(dial, Config{})

	require.NoError(t, c.Connect(context.Background(), testTokenPayload(), ""))
	require.NoError(t, c.SubscribeToChannel(context.Background(), "1:42:session", ""))

	ch := ft.Channel("1:42:session").(*fakeChannel)
	ch.deliver("student.joined_room", nil)
	require.Equal(t, 1, c.EventLog().Count("1:42:session"))

	c.UnsubscribeFromChannel("1:42:session")

	assert.Empty(t, c.Subscriptions())
	assert.Equal(t, 1, ch.unsubscribeCalls)
	assert.Equal(t, 0, c.EventLog().Count("1:42:session"))
	assert.Len(t, systemEntries(c, "Unsubscribed from 1:42:session"), 1)
}

func TestControllerPublish(t *testing.T) {
	ft := newFakeTransport()
	dial, _ := fakeFactory(ft)
	c := NewController(dial, Config{})

	require.NoError(t, c.Connect(context.Background(), testTokenPayload(), ""))

	err := c.PublishMessage(context.Background(), "1:42:session", "manager.message", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Len(t, systemEntries(c, "Published to 1:42:session"), 1)

	ch := ft.Channel("1:42:session").(*fakeChannel)
	ch.publishErr = errors.New("not permitted")
	err = c.PublishMessage(context.Background(), "1:42:session", "manager.message", nil)
	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Len(t, systemEntries(c, "Failed to publish to 1:42:session"), 1)
}

func TestControllerPublishWhileDisconnected(t *testing.T) {
	dial, dialed := fakeFactory(newFakeTransport())
	c := NewController(dial, Config{})

	err := c.PublishMessage(context.Background(), "1:42:session", "manager.message", nil)
	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, 0, *dialed)
}

func TestControllerPresenceLifecycle(t *testing.T) {
	ft := newFakeTransport()
	dial, _ := fakeFactory(ft)
	c := NewController(dial, Config{})

	require.NoError(t, c.Connect(context.Background(), testTokenPayload(), ""))

	err := c.EnterPresence(context.Background(), "1:42:session", map[string]any{"role": "manager"})
	require.NoError(t, err)
	assert.Len(t, systemEntries(c, "Entered presence on 1:42:session"), 1)

	ch := ft.Channel("1:42:session").(*fakeChannel)
	ch.emitPresence(PresenceMessage{ClientID: "9", Action: PresenceEnter, Data: map[string]any{"role": "student"}})

	members := c.PresenceMembers()
	require.Len(t, members, 1)
	assert.Equal(t, "9", members[0].ClientID)

	// Presence transitions land in the event log on the channel itself.
	entries := c.Events(eventlog.Filter{Channel: "1:42:session", EventName: "presence.enter"})
	require.Len(t, entries, 1)

	c.LeavePresence(context.Background(), "1:42:session")
	assert.Equal(t, 1, ch.leaveCalls)
	assert.Empty(t, c.PresenceMembers())
	assert.Len(t, systemEntries(c, "Left presence on 1:42:session"), 1)
}

func TestControllerPresenceWhileDisconnected(t *testing.T) {
	dial, dialed := fakeFactory(newFakeTransport())
	c := NewController(dial, Config{})

	err := c.EnterPresence(context.Background(), "1:42:session", nil)
	var presErr *PresenceError
	require.ErrorAs(t, err, &presErr)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, 0, *dialed)
}

func TestControllerDisconnectStopsPresence(t *testing.T) {
	ft := newFakeTransport()
	dial, _ := fakeFactory(ft)
	c := NewController(dial, Config{})

	require.NoError(t, c.Connect(context.Background(), testTokenPayload(), ""))
	require.NoError(t, c.EnterPresence(context.Background(), "1:42:session", nil))

	ch := ft.Channel("1:42:session").(*fakeChannel)
	require.Equal(t, 1, ch.presenceListeners())

	c.Disconnect()

	assert.Equal(t, 0, ch.presenceListeners())
	assert.Empty(t, c.PresenceMembers())
	// Closing the connection withdraws presence server-side; no explicit
	// leave call is issued.
	assert.Equal(t, 0, ch.leaveCalls)
}

func TestControllerClearEvents(t *testing.T) {
	ft := newFakeTransport()
	dial, _ := fakeFactory(ft)
	c := NewController(dial, Config{})

	require.NoError(t, c.Connect(context.Background(), testTokenPayload(), ""))
	require.NotEmpty(t, c.Events(eventlog.Filter{}))

	c.ClearEvents()
	assert.Empty(t, c.Events(eventlog.Filter{}))
}
