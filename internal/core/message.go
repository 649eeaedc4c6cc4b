package core

import (
	"time"

	"github.com/vovakirdan/wiremsg/internal/store"
)

// Message is the message payload pushed to clients.
type Message struct {
	ID             int64
	ConversationID *int64
	SenderID       int64
	ReceiverID     int64
	ParentID       *int64
	Content        string
	Edited         bool
	CreatedAt      time.Time
}

// Notification tells a client a message arrived for them.
type Notification struct {
	ID        int64
	MessageID int64
	CreatedAt time.Time
}

// MessageFromStore copies the fields clients see.
func MessageFromStore(m *store.Message) Message {
	return Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		ParentID:       m.ParentID,
		Content:        m.Content,
		Edited:         m.Edited,
		CreatedAt:      m.CreatedAt,
	}
}
