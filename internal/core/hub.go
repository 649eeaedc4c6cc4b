package core

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiremsg/internal/signals"
)

type delivery struct {
	userID int64
	event  *Event
}

type countQuery struct {
	userID int64
	reply  chan int
}

// Hub fans events out to the websocket clients of each user. All state is
// owned by the Run goroutine.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	deliver    chan delivery
	disconnect chan int64
	count      chan countQuery
	done       chan struct{}

	clients map[int64]map[*Client]struct{}
	log     *zerolog.Logger
}

// NewHub creates a hub. Call Run to start it.
func NewHub(logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan delivery, 256),
		disconnect: make(chan int64, 16),
		count:      make(chan countQuery),
		done:       make(chan struct{}),
		clients:    make(map[int64]map[*Client]struct{}),
		log:        logger,
	}
}

// Run processes hub traffic until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			set, ok := h.clients[c.UserID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[c.UserID] = set
			}
			set[c] = struct{}{}
			h.log.Debug().Str("client_id", c.ID).Int64("user_id", c.UserID).Msg("client registered")

		case c := <-h.unregister:
			h.remove(c)

		case d := <-h.deliver:
			for c := range h.clients[d.userID] {
				if !c.send(d.event) {
					h.log.Warn().Str("client_id", c.ID).Str("event", d.event.Kind.String()).Msg("dropping event for slow client")
				}
			}

		case userID := <-h.disconnect:
			for c := range h.clients[userID] {
				h.remove(c)
			}

		case q := <-h.count:
			if q.userID == 0 {
				n := 0
				for _, set := range h.clients {
					n += len(set)
				}
				q.reply <- n
			} else {
				q.reply <- len(h.clients[q.userID])
			}

		case <-ctx.Done():
			for _, set := range h.clients {
				for c := range set {
					close(c.Events)
				}
			}
			h.clients = map[int64]map[*Client]struct{}{}
			return
		}
	}
}

func (h *Hub) remove(c *Client) {
	set, ok := h.clients[c.UserID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.Events)
	if len(set) == 0 {
		delete(h.clients, c.UserID)
	}
	h.log.Debug().Str("client_id", c.ID).Int64("user_id", c.UserID).Msg("client unregistered")
}

// RegisterClient adds a client. No-op once the hub stopped.
func (h *Hub) RegisterClient(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// UnregisterClient removes a client and closes its event channel.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Notify queues ev for every client of userID. It never blocks: when the
// queue is full the event is dropped.
func (h *Hub) Notify(userID int64, ev *Event) {
	select {
	case h.deliver <- delivery{userID: userID, event: ev}:
	default:
		h.log.Warn().Int64("user_id", userID).Str("event", ev.Kind.String()).Msg("hub queue full, dropping event")
	}
}

// DisconnectUser closes every connection of the user.
func (h *Hub) DisconnectUser(userID int64) {
	select {
	case h.disconnect <- userID:
	default:
		h.log.Warn().Int64("user_id", userID).Msg("hub disconnect queue full")
	}
}

// Connections returns the number of clients of userID, or of everyone when
// userID is 0.
func (h *Hub) Connections(userID int64) int {
	reply := make(chan int, 1)
	select {
	case h.count <- countQuery{userID: userID, reply: reply}:
		return <-reply
	case <-h.done:
		return 0
	}
}

// HandleEvent pushes committed dispatcher events to connected users.
func (h *Hub) HandleEvent(e signals.Event) {
	switch e.Kind {
	case signals.MessageCreated:
		msg := MessageFromStore(e.Message)
		ev := &Event{Kind: EventNotification, Message: &msg}
		if e.Notification != nil {
			ev.Notification = &Notification{
				ID:        e.Notification.ID,
				MessageID: e.Notification.MessageID,
				CreatedAt: e.Notification.CreatedAt,
			}
		}
		h.Notify(e.Message.ReceiverID, ev)

	case signals.MessageEdited:
		if e.History == nil {
			return
		}
		msg := MessageFromStore(e.Message)
		h.Notify(e.Message.ReceiverID, &Event{Kind: EventMessageEdited, Message: &msg})

	case signals.MessagesDeleted:
		for _, uid := range e.Affected {
			h.Notify(uid, &Event{Kind: EventMessagesDeleted, MessageIDs: e.MessageIDs})
		}

	case signals.UserDeleted:
		h.DisconnectUser(e.UserID)
	}
}
