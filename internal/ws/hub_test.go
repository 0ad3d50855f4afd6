package ws

import (
	"encoding/json"
	"testing"
	"time"
)

func newTestClient(userID string, hub *Hub) *Client {
	return NewClient(userID, nil, hub)
}

func recvEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		if !ok {
			t.Fatal("send channel closed")
		}
		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			t.Fatalf("bad event frame: %v", err)
		}
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func recvNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected frame: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRegisterBroadcastsOnlineUsers(t *testing.T) {
	hub := NewHub(nil)

	a := newTestClient("alice", hub)
	hub.registerClient(a)
	evt := recvEvent(t, a)
	if evt.Type != EventOnlineUsers {
		t.Fatalf("got %s, want %s", evt.Type, EventOnlineUsers)
	}

	b := newTestClient("bob", hub)
	hub.registerClient(b)

	// Both connections receive the refreshed roster.
	for _, c := range []*Client{a, b} {
		evt := recvEvent(t, c)
		if evt.Type != EventOnlineUsers {
			t.Fatalf("got %s, want %s", evt.Type, EventOnlineUsers)
		}
		ids, ok := evt.Payload.([]interface{})
		if !ok || len(ids) != 2 {
			t.Fatalf("roster payload: %v", evt.Payload)
		}
	}

	if !hub.IsUserOnline("alice") || !hub.IsUserOnline("bob") {
		t.Fatal("registered users not reported online")
	}
	if hub.OnlineCount() != 2 {
		t.Fatalf("OnlineCount = %d, want 2", hub.OnlineCount())
	}
}

func TestUnregisterRemovesAndBroadcasts(t *testing.T) {
	hub := NewHub(nil)
	a := newTestClient("alice", hub)
	b := newTestClient("bob", hub)
	hub.registerClient(a)
	recvEvent(t, a)
	hub.registerClient(b)
	recvEvent(t, a)
	recvEvent(t, b)

	hub.unregisterClient(b)
	if hub.IsUserOnline("bob") {
		t.Fatal("bob still online after unregister")
	}

	evt := recvEvent(t, a)
	if evt.Type != EventOnlineUsers {
		t.Fatalf("got %s, want %s", evt.Type, EventOnlineUsers)
	}
	ids, _ := evt.Payload.([]interface{})
	if len(ids) != 1 || ids[0] != "alice" {
		t.Fatalf("roster after disconnect: %v", evt.Payload)
	}
}

func TestReRegisterReplacesConnection(t *testing.T) {
	hub := NewHub(nil)
	old := newTestClient("alice", hub)
	hub.registerClient(old)
	recvEvent(t, old)

	replacement := newTestClient("alice", hub)
	hub.registerClient(replacement)

	// The superseded connection's channel is closed.
	drained := false
	for !drained {
		select {
		case _, ok := <-old.Send:
			if !ok {
				drained = true
			}
		case <-time.After(time.Second):
			t.Fatal("old send channel never closed")
		}
	}

	if hub.OnlineCount() != 1 {
		t.Fatalf("OnlineCount = %d, want 1", hub.OnlineCount())
	}

	// Unregistering the stale client must not evict the replacement.
	hub.unregisterClient(old)
	if !hub.IsUserOnline("alice") {
		t.Fatal("stale unregister evicted the live connection")
	}
}

func TestEmitToUser(t *testing.T) {
	hub := NewHub(nil)
	a := newTestClient("alice", hub)
	hub.registerClient(a)
	recvEvent(t, a)

	hub.EmitToUser("alice", Event{Type: EventNewMessage, Payload: map[string]string{"id": "m1"}})
	evt := recvEvent(t, a)
	if evt.Type != EventNewMessage {
		t.Fatalf("got %s, want %s", evt.Type, EventNewMessage)
	}

	// Offline receivers are skipped without blocking.
	done := make(chan struct{})
	go func() {
		hub.EmitToUser("nobody", Event{Type: EventNewMessage})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit to offline user blocked")
	}
	recvNothing(t, a)
}

func TestEmitDropsSlowClient(t *testing.T) {
	hub := NewHub(nil)
	a := newTestClient("alice", hub)
	hub.registerClient(a)

	// Fill the buffer; the next emit must drop rather than block.
	for i := 0; i < cap(a.Send); i++ {
		select {
		case a.Send <- []byte("x"):
		default:
			t.Fatal("buffer filled early")
		}
	}

	done := make(chan struct{})
	go func() {
		hub.EmitToUser("alice", Event{Type: EventNewMessage})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit to slow client blocked")
	}
}

func TestTypingRelay(t *testing.T) {
	hub := NewHub(nil)
	a := newTestClient("alice", hub)
	b := newTestClient("bob", hub)
	hub.registerClient(a)
	recvEvent(t, a)
	hub.registerClient(b)
	recvEvent(t, a)
	recvEvent(t, b)

	var incoming IncomingEvent
	incoming.Type = EventTyping
	incoming.Payload.ReceiverID = "bob"
	a.handleIncoming(incoming)

	evt := recvEvent(t, b)
	if evt.Type != EventTyping {
		t.Fatalf("got %s, want %s", evt.Type, EventTyping)
	}
	payload, _ := evt.Payload.(map[string]interface{})
	if payload["userId"] != "alice" {
		t.Fatalf("typing payload: %v", evt.Payload)
	}
	// The sender gets nothing back.
	recvNothing(t, a)

	incoming.Type = EventStopTyping
	a.handleIncoming(incoming)
	if evt := recvEvent(t, b); evt.Type != EventStopTyping {
		t.Fatalf("got %s, want %s", evt.Type, EventStopTyping)
	}

	// A relay without a receiver goes nowhere.
	incoming.Payload.ReceiverID = ""
	a.handleIncoming(incoming)
	recvNothing(t, b)
}
