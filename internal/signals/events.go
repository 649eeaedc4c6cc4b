package signals

import (
	"github.com/vovakirdan/wiremsg/internal/store"
)

// EventKind identifies what a committed dispatcher operation did.
type EventKind int

const (
	// MessageCreated carries the new message and its notification.
	MessageCreated EventKind = iota
	// MessageEdited carries the saved message and, when content changed,
	// the history row.
	MessageEdited
	// MessagesDeleted carries the ids of a message and its removed replies.
	MessagesDeleted
	// UserDeleted carries the removed user and cleanup counts.
	UserDeleted
)

func (k EventKind) String() string {
	switch k {
	case MessageCreated:
		return "message_created"
	case MessageEdited:
		return "message_edited"
	case MessagesDeleted:
		return "messages_deleted"
	case UserDeleted:
		return "user_deleted"
	default:
		return "unknown"
	}
}

// Event is delivered to listeners after the transaction commits.
type Event struct {
	Kind         EventKind
	Message      *store.Message
	Notification *store.Notification
	History      *store.MessageHistory
	MessageIDs   []int64
	UserID       int64
	Cleanup      Cleanup
	// Affected lists users whose received messages changed.
	Affected []int64
}

// Listener reacts to committed events. Implementations must not block.
type Listener interface {
	HandleEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

// HandleEvent implements Listener.
func (f ListenerFunc) HandleEvent(e Event) { f(e) }
