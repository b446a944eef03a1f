package services

import (
	"encoding/json"
	"testing"
	"time"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	go hub.Run()
	return hub
}

func recvPayload(t *testing.T, c *Client) ChangeEvent {
	t.Helper()
	select {
	case payload := <-c.Send:
		var event ChangeEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			t.Fatalf("Failed to unmarshal event: %v", err)
		}
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return ChangeEvent{}
	}
}

func TestHub_PublishFiltersByOwner(t *testing.T) {
	hub := startHub(t)

	alice := &Client{Hub: hub, Send: make(chan []byte, 8), UserID: "alice"}
	bob := &Client{Hub: hub, Send: make(chan []byte, 8), UserID: "bob"}
	hub.Register(alice)
	hub.Register(bob)

	hub.Publish("alice", ChangeEvent{
		Table:     "projects",
		EventType: EventInsert,
		New:       json.RawMessage(`{"id":"p1"}`),
	})

	event := recvPayload(t, alice)
	if event.Table != "projects" || event.EventType != EventInsert {
		t.Errorf("unexpected event: %+v", event)
	}

	select {
	case payload := <-bob.Send:
		t.Errorf("bob should not receive alice's event, got %s", payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_PublishFansOutToAllOwnerSessions(t *testing.T) {
	hub := startHub(t)

	tab1 := &Client{Hub: hub, Send: make(chan []byte, 8), UserID: "alice"}
	tab2 := &Client{Hub: hub, Send: make(chan []byte, 8), UserID: "alice"}
	hub.Register(tab1)
	hub.Register(tab2)

	hub.Publish("alice", ChangeEvent{Table: "tasks", EventType: EventDelete, Old: json.RawMessage(`{"id":"t1"}`)})

	for _, c := range []*Client{tab1, tab2} {
		event := recvPayload(t, c)
		if event.EventType != EventDelete {
			t.Errorf("expected DELETE on every session, got %+v", event)
		}
	}
}

func TestHub_DropsClientWithFullBuffer(t *testing.T) {
	hub := startHub(t)

	// Full buffer and no reader: delivery fails and the hub evicts the client
	stuck := &Client{Hub: hub, Send: make(chan []byte, 1), UserID: "alice"}
	stuck.Send <- []byte("backlog")
	healthy := &Client{Hub: hub, Send: make(chan []byte, 8), UserID: "alice"}
	hub.Register(stuck)
	hub.Register(healthy)

	hub.Publish("alice", ChangeEvent{Table: "projects", EventType: EventUpdate})

	// Once the healthy sibling got the event, the hub has finished
	// handling it, including evicting the stuck client
	recvPayload(t, healthy)

	if payload := <-stuck.Send; string(payload) != "backlog" {
		t.Fatalf("expected buffered backlog first, got %q", payload)
	}
	select {
	case _, ok := <-stuck.Send:
		if ok {
			t.Error("expected send channel closed, got a delivery")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected hub to close the stuck client's channel")
	}
}

func TestHub_EventsNotReplayedToLateSubscribers(t *testing.T) {
	hub := startHub(t)

	early := &Client{Hub: hub, Send: make(chan []byte, 8), UserID: "alice"}
	hub.Register(early)
	hub.Publish("alice", ChangeEvent{Table: "projects", EventType: EventInsert})
	recvPayload(t, early)

	late := &Client{Hub: hub, Send: make(chan []byte, 8), UserID: "alice"}
	hub.Register(late)

	select {
	case payload := <-late.Send:
		t.Errorf("late subscriber should see nothing, got %s", payload)
	case <-time.After(100 * time.Millisecond):
	}
}
