package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	ProtocolVersion = 1

	InboundTypePing = "ping"

	OutboundTypeHello = "hello"
	OutboundTypePong  = "pong"
	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventNotification    = "notification"
	EventMessageEdited   = "message_edited"
	EventMessagesDeleted = "messages_deleted"
)

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// HelloData greets a freshly connected client.
type HelloData struct {
	Protocol int    `json:"protocol"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// Message is the wire form of a message inside events.
type Message struct {
	ID             int64  `json:"id"`
	ConversationID *int64 `json:"conversation_id,omitempty"`
	SenderID       int64  `json:"sender_id"`
	ReceiverID     int64  `json:"receiver_id"`
	ParentID       *int64 `json:"parent_id,omitempty"`
	Content        string `json:"content"`
	Edited         bool   `json:"edited"`
	TS             int64  `json:"ts"`
}

// EventNotificationData is pushed when a message arrives for the user.
type EventNotificationData struct {
	NotificationID int64   `json:"notification_id,omitempty"`
	Message        Message `json:"message"`
}

// EventMessageEditedData is pushed when a received message changes.
type EventMessageEditedData struct {
	Message Message `json:"message"`
}

// EventMessagesDeletedData lists removed message ids.
type EventMessagesDeletedData struct {
	MessageIDs []int64 `json:"message_ids"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
