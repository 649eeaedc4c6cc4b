package core

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/wiremsg/internal/signals"
	"github.com/vovakirdan/wiremsg/internal/store"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)

	hub := NewHub(nil)
	go hub.Run(ctx)
	return hub
}

func TestHubNotifiesEveryConnectionOfReceiver(t *testing.T) {
	hub := startHub(t)

	bobPhone := NewClient("b1", 2, "bob")
	bobLaptop := NewClient("b2", 2, "bob")
	alice := NewClient("a", 1, "alice")
	hub.RegisterClient(bobPhone)
	hub.RegisterClient(bobLaptop)
	hub.RegisterClient(alice)
	waitConnections(t, hub, 0, 3)

	hub.HandleEvent(signals.Event{
		Kind:         signals.MessageCreated,
		Message:      &store.Message{ID: 10, SenderID: 1, ReceiverID: 2, Content: "hi"},
		Notification: &store.Notification{ID: 5, UserID: 2, MessageID: 10},
	})

	for _, c := range []*Client{bobPhone, bobLaptop} {
		ev := mustEvent(t, c.Events, EventNotification)
		if ev.Message == nil || ev.Message.Content != "hi" || ev.Notification == nil || ev.Notification.ID != 5 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	}

	select {
	case ev := <-alice.Events:
		t.Fatalf("sender should not be notified, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubEditWithoutHistoryIsSilent(t *testing.T) {
	hub := startHub(t)
	bob := NewClient("b", 2, "bob")
	hub.RegisterClient(bob)
	waitConnections(t, hub, 2, 1)

	msg := &store.Message{ID: 1, SenderID: 1, ReceiverID: 2, Content: "same"}
	hub.HandleEvent(signals.Event{Kind: signals.MessageEdited, Message: msg})
	hub.HandleEvent(signals.Event{Kind: signals.MessageEdited, Message: msg, History: &store.MessageHistory{OldContent: "old"}})

	ev := mustEvent(t, bob.Events, EventMessageEdited)
	if ev.Message.Content != "same" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if len(bob.Events) != 0 {
		t.Fatalf("expected exactly one edit event, %d more queued", len(bob.Events))
	}
}

func TestHubDeletedMessagesReachAffectedUsers(t *testing.T) {
	hub := startHub(t)
	alice := NewClient("a", 1, "alice")
	bob := NewClient("b", 2, "bob")
	hub.RegisterClient(alice)
	hub.RegisterClient(bob)
	waitConnections(t, hub, 0, 2)

	hub.HandleEvent(signals.Event{Kind: signals.MessagesDeleted, MessageIDs: []int64{3, 4}, Affected: []int64{1, 2}})

	for _, c := range []*Client{alice, bob} {
		ev := mustEvent(t, c.Events, EventMessagesDeleted)
		if len(ev.MessageIDs) != 2 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	}
}

func TestHubUserDeletionClosesConnections(t *testing.T) {
	hub := startHub(t)
	gone := NewClient("g", 7, "gone")
	hub.RegisterClient(gone)
	waitConnections(t, hub, 7, 1)

	hub.HandleEvent(signals.Event{Kind: signals.UserDeleted, UserID: 7})
	waitConnections(t, hub, 7, 0)

	if _, ok := <-gone.Events; ok {
		t.Fatalf("expected closed events channel")
	}
}

func TestHubUnregisterClosesEvents(t *testing.T) {
	hub := startHub(t)
	c := NewClient("c", 1, "")
	if c.Name != "c" {
		t.Fatalf("expected name to default to id, got %q", c.Name)
	}
	hub.RegisterClient(c)
	hub.UnregisterClient(c)
	// Unregistering twice is harmless.
	hub.UnregisterClient(c)

	if _, ok := <-c.Events; ok {
		t.Fatalf("expected closed events channel")
	}
	if n := hub.Connections(0); n != 0 {
		t.Fatalf("expected no connections, got %d", n)
	}
}

func TestHubStopClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil)
	go hub.Run(ctx)

	c := NewClient("c", 1, "")
	hub.RegisterClient(c)
	waitConnections(t, hub, 1, 1)
	cancel()

	if _, ok := <-c.Events; ok {
		t.Fatalf("expected closed events channel")
	}
	// Calls after shutdown return instead of blocking.
	hub.RegisterClient(NewClient("late", 1, ""))
	if n := hub.Connections(0); n != 0 {
		t.Fatalf("expected 0 after stop, got %d", n)
	}
}
