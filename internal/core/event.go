package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventNotification tells the receiver a new message arrived.
	EventNotification EventKind = iota
	// EventMessageEdited tells the receiver a message changed.
	EventMessageEdited
	// EventMessagesDeleted tells a participant messages were removed.
	EventMessagesDeleted
	// EventError notifies clients about a domain error.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventNotification:
		return "notification"
	case EventMessageEdited:
		return "message_edited"
	case EventMessagesDeleted:
		return "messages_deleted"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind         EventKind
	Message      *Message
	Notification *Notification
	MessageIDs   []int64
	Error        *CoreError
}
