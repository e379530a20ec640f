package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujalbistaa/classhub/internal/identity"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func connect(t *testing.T, hub *Hub) *Client {
	t.Helper()
	client := newClient(hub, nil, nil, identity.Resolved{Type: identity.TypeAnonymous})
	hub.register <- client
	return client
}

func receive(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case raw, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var env Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Envelope{}
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.send:
		t.Fatalf("unexpected event: %s", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGlobalBroadcastReachesAllClients(t *testing.T) {
	hub := startHub(t)
	a := connect(t, hub)
	b := connect(t, hub)
	require.Equal(t, 2, hub.ClientCount())

	hub.EmitGlobal(EventNew, map[string]string{"id": "ann-1"})

	for _, c := range []*Client{a, b} {
		env := receive(t, c)
		assert.Equal(t, EventNew, env.Type)
	}
}

func TestRoomBroadcastReachesOnlyMembers(t *testing.T) {
	hub := startHub(t)
	member := connect(t, hub)
	outsider := connect(t, hub)

	hub.join <- subscription{client: member, room: roomFor("ann-1")}

	hub.EmitRoom("ann-1", EventUpdate, map[string]string{"id": "ann-1"})

	env := receive(t, member)
	assert.Equal(t, EventUpdate, env.Type)
	assertSilent(t, outsider)
}

func TestLeaveRoomStopsDelivery(t *testing.T) {
	hub := startHub(t)
	client := connect(t, hub)

	hub.join <- subscription{client: client, room: roomFor("ann-1")}
	hub.leave <- subscription{client: client, room: roomFor("ann-1")}

	hub.EmitRoom("ann-1", EventUpdate, map[string]string{"id": "ann-1"})
	assertSilent(t, client)
}

func TestEmitReactionFansOutToGlobalAndRoom(t *testing.T) {
	hub := startHub(t)
	member := connect(t, hub)
	hub.join <- subscription{client: member, room: roomFor("ann-1")}

	hub.EmitReaction(ReactionEvent{AnnouncementID: "ann-1", Action: "add", ReactionType: "love"})

	// once from the global fan-out, once from the room
	first := receive(t, member)
	second := receive(t, member)
	assert.Equal(t, EventReaction, first.Type)
	assert.Equal(t, EventReaction, second.Type)
}

func TestUnregisterClosesSendChannel(t *testing.T) {
	hub := startHub(t)
	client := connect(t, hub)

	hub.unregister <- client

	select {
	case _, ok := <-client.send:
		assert.False(t, ok, "send channel should be closed on unregister")
	case <-time.After(time.Second):
		t.Fatal("send channel was not closed")
	}
	assert.Equal(t, 0, hub.ClientCount())
}

func TestSlowClientIsDropped(t *testing.T) {
	hub := startHub(t)
	client := connect(t, hub)

	// Jam the client's outbound buffer so the next delivery cannot queue.
	for range cap(client.send) {
		client.send <- []byte("{}")
	}
	hub.EmitGlobal(EventView, ViewEvent{AnnouncementID: "ann-1", ViewCount: 3})

	assert.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, time.Second, 10*time.Millisecond, "slow client should be disconnected")
}

func TestJoinIgnoredForUnknownClient(t *testing.T) {
	hub := startHub(t)
	stranger := newClient(hub, nil, nil, identity.Resolved{})

	hub.join <- subscription{client: stranger, room: roomFor("ann-1")}
	hub.EmitRoom("ann-1", EventUpdate, map[string]string{"id": "ann-1"})

	assertSilent(t, stranger)
}

func TestStopDisconnectsEveryone(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	client := connect(t, hub)

	hub.Stop()

	select {
	case _, ok := <-client.send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send channel was not closed on shutdown")
	}
	assert.Equal(t, 0, hub.ClientCount())
}
