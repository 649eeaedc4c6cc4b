package http

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vovakirdan/wiremsg/internal/core"
	"github.com/vovakirdan/wiremsg/internal/proto"
	"github.com/vovakirdan/wiremsg/internal/store"
)

const timeFormat = time.RFC3339

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// ConversationResponse represents a conversation in API responses.
type ConversationResponse struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Participants []int64 `json:"participants"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID             int64   `json:"id"`
	ConversationID *int64  `json:"conversation_id"`
	SenderID       int64   `json:"sender_id"`
	ReceiverID     int64   `json:"receiver_id"`
	ParentID       *int64  `json:"parent_id"`
	Content        string  `json:"content"`
	IsRead         bool    `json:"is_read"`
	Edited         bool    `json:"edited"`
	CreatedAt      string  `json:"created_at"`
	EditedAt       *string `json:"edited_at"`
}

// HistoryResponse represents one edit of a message.
type HistoryResponse struct {
	ID         int64  `json:"id"`
	MessageID  int64  `json:"message_id"`
	OldContent string `json:"old_content"`
	EditedBy   int64  `json:"edited_by"`
	EditedAt   string `json:"edited_at"`
}

// NotificationResponse represents a notification in API responses.
type NotificationResponse struct {
	ID        int64  `json:"id"`
	MessageID int64  `json:"message_id"`
	CreatedAt string `json:"created_at"`
}

func toUserResponse(u *store.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

func toConversationResponse(c *store.Conversation) ConversationResponse {
	participants := c.Participants
	if participants == nil {
		participants = []int64{}
	}
	return ConversationResponse{
		ID:           c.ID,
		Title:        c.Title,
		Participants: participants,
		CreatedAt:    c.CreatedAt.Format(timeFormat),
		UpdatedAt:    c.UpdatedAt.Format(timeFormat),
	}
}

func toMessageResponse(m *store.Message) MessageResponse {
	resp := MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		ParentID:       m.ParentID,
		Content:        m.Content,
		IsRead:         m.IsRead,
		Edited:         m.Edited,
		CreatedAt:      m.CreatedAt.Format(timeFormat),
	}
	if m.EditedAt != nil {
		s := m.EditedAt.Format(timeFormat)
		resp.EditedAt = &s
	}
	return resp
}

func toMessageResponses(msgs []*store.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	return out
}

func toHistoryResponses(rows []*store.MessageHistory) []HistoryResponse {
	out := make([]HistoryResponse, 0, len(rows))
	for _, h := range rows {
		out = append(out, HistoryResponse{
			ID:         h.ID,
			MessageID:  h.MessageID,
			OldContent: h.OldContent,
			EditedBy:   h.EditedBy,
			EditedAt:   h.EditedAt.Format(timeFormat),
		})
	}
	return out
}

func toNotificationResponses(rows []*store.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(rows))
	for _, n := range rows {
		out = append(out, NotificationResponse{
			ID:        n.ID,
			MessageID: n.MessageID,
			CreatedAt: n.CreatedAt.Format(timeFormat),
		})
	}
	return out
}

func outboundFromEvent(ev *core.Event) proto.Outbound {
	switch ev.Kind {
	case core.EventNotification:
		data := proto.EventNotificationData{Message: protoMessage(ev.Message)}
		if ev.Notification != nil {
			data.NotificationID = ev.Notification.ID
		}
		return proto.Outbound{Type: proto.OutboundTypeEvent, Event: proto.EventNotification, Data: data}
	case core.EventMessageEdited:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessageEdited,
			Data:  proto.EventMessageEditedData{Message: protoMessage(ev.Message)},
		}
	case core.EventMessagesDeleted:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessagesDeleted,
			Data:  proto.EventMessagesDeletedData{MessageIDs: ev.MessageIDs},
		}
	case core.EventError:
		if ev.Error != nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: ev.Error.Code, Msg: ev.Error.Message}}
		}
	}
	return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: core.ErrCodeUnsupported, Msg: "unknown event"}}
}

func protoMessage(m *core.Message) proto.Message {
	if m == nil {
		return proto.Message{}
	}
	return proto.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		ParentID:       m.ParentID,
		Content:        m.Content,
		Edited:         m.Edited,
		TS:             m.CreatedAt.Unix(),
	}
}

// pathID parses the :id route parameter.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
