package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint would be violated.
	ErrConflict = errors.New("already exists")
)

// User represents a user in the system.
type User struct {
	ID           int64     `db:"id"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	FirstName    string    `db:"first_name"`
	LastName     string    `db:"last_name"`
	PasswordHash string    `db:"password_hash"`
	IsStaff      bool      `db:"is_staff"`
	IsSuperuser  bool      `db:"is_superuser"`
	CreatedAt    time.Time `db:"created_at"`
}

// Conversation groups messages between a set of participants.
type Conversation struct {
	ID           int64     `db:"id"`
	Title        string    `db:"title"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	Participants []int64   `db:"-"`
}

// Message is a direct message from sender to receiver. ParentID links a reply
// to the message it answers.
type Message struct {
	ID             int64      `db:"id"`
	ConversationID *int64     `db:"conversation_id"`
	SenderID       int64      `db:"sender_id"`
	ReceiverID     int64      `db:"receiver_id"`
	ParentID       *int64     `db:"parent_id"`
	Content        string     `db:"content"`
	IsRead         bool       `db:"is_read"`
	Edited         bool       `db:"edited"`
	CreatedAt      time.Time  `db:"created_at"`
	EditedAt       *time.Time `db:"edited_at"`
}

// Notification tells a user that a message was delivered to them.
type Notification struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	MessageID int64     `db:"message_id"`
	CreatedAt time.Time `db:"created_at"`
}

// MessageHistory keeps the content a message had before an edit.
type MessageHistory struct {
	ID         int64     `db:"id"`
	MessageID  int64     `db:"message_id"`
	OldContent string    `db:"old_content"`
	EditedBy   int64     `db:"edited_by"`
	EditedAt   time.Time `db:"edited_at"`
}

// MessageFilter narrows ListMessages. ParticipantID restricts results to
// messages sent or received by that user.
type MessageFilter struct {
	ParticipantID  int64
	ConversationID *int64
	SenderID       *int64
	// MemberID keeps messages of conversations the user takes part in.
	MemberID *int64
	// CreatedAfter and CreatedBefore bound created_at, both inclusive.
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	// Search is a case-insensitive content substring.
	Search     string
	Descending bool
	Limit      int
	Offset     int
}

// ConversationFilter narrows ListConversations. UserID restricts results to
// conversations the user takes part in.
type ConversationFilter struct {
	UserID int64
	// MemberID additionally requires that user among the participants.
	MemberID *int64
	// Search is a case-insensitive title substring.
	Search    string
	Ascending bool
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser inserts u and fills in ID and CreatedAt.
	CreateUser(ctx context.Context, u *User) error

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// ListUsers returns one page of users ordered by ID.
	ListUsers(ctx context.Context, limit, offset int) ([]*User, error)

	// CountUsers returns the number of users.
	CountUsers(ctx context.Context) (int64, error)

	// DeleteUser removes the user row and its memberships.
	DeleteUser(ctx context.Context, id int64) error

	// ListUserGroups returns the names of groups the user belongs to.
	ListUserGroups(ctx context.Context, userID int64) ([]string, error)

	// AddUserToGroup adds the user to the named group, creating the group if needed.
	AddUserToGroup(ctx context.Context, userID int64, group string) error
}

// ConversationStore handles conversation persistence.
type ConversationStore interface {
	// CreateConversation creates a conversation with the given participants.
	CreateConversation(ctx context.Context, title string, participantIDs []int64) (*Conversation, error)

	// GetConversation retrieves a conversation and its participant IDs.
	GetConversation(ctx context.Context, id int64) (*Conversation, error)

	// ListConversations lists conversations matching f, newest first unless
	// f.Ascending is set.
	ListConversations(ctx context.Context, f ConversationFilter) ([]*Conversation, error)

	// IsParticipant reports whether the user participates in the conversation.
	IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// InsertMessage inserts msg and fills in ID and CreatedAt.
	InsertMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// UpdateMessage persists content, read and edit state of msg.
	UpdateMessage(ctx context.Context, msg *Message) error

	// UpdateMessageContent persists content and edit state of msg only.
	UpdateMessageContent(ctx context.Context, msg *Message) error

	// DeleteMessages removes the messages with the given IDs.
	DeleteMessages(ctx context.Context, ids []int64) (int64, error)

	// ListMessages returns a page of messages matching f and the total match count.
	ListMessages(ctx context.Context, f MessageFilter) ([]*Message, int64, error)

	// ListReplies returns direct replies to any of the parent IDs, oldest first.
	ListReplies(ctx context.Context, parentIDs []int64) ([]*Message, error)

	// ListMessageIDsByUser returns IDs of messages the user sent or received.
	ListMessageIDsByUser(ctx context.Context, userID int64) ([]int64, error)

	// ListReceived returns messages received by the user, newest first.
	ListReceived(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*Message, error)

	// MarkRead flags a received message as read.
	MarkRead(ctx context.Context, messageID, receiverID int64) error

	// CountMessages returns the number of messages, optionally only unread ones.
	CountMessages(ctx context.Context, unreadOnly bool) (int64, error)
}

// NotificationStore handles notification persistence.
type NotificationStore interface {
	// InsertNotification inserts n and fills in ID and CreatedAt.
	InsertNotification(ctx context.Context, n *Notification) error

	// ListNotifications returns the user's notifications, newest first.
	ListNotifications(ctx context.Context, userID int64, limit int) ([]*Notification, error)

	// CountNotifications counts notifications; userID 0 counts all.
	CountNotifications(ctx context.Context, userID int64) (int64, error)

	// DeleteNotificationsByUser removes notifications owned by the user.
	DeleteNotificationsByUser(ctx context.Context, userID int64) (int64, error)

	// DeleteNotificationsByMessages removes notifications pointing at the messages.
	DeleteNotificationsByMessages(ctx context.Context, messageIDs []int64) (int64, error)
}

// HistoryStore handles message edit history persistence.
type HistoryStore interface {
	// InsertHistory inserts h and fills in ID.
	InsertHistory(ctx context.Context, h *MessageHistory) error

	// ListHistory returns edits of a message, oldest first.
	ListHistory(ctx context.Context, messageID int64) ([]*MessageHistory, error)

	// CountHistory counts history rows; editorID 0 counts all.
	CountHistory(ctx context.Context, editorID int64) (int64, error)

	// DeleteHistoryByEditor removes history rows attributed to the editor.
	DeleteHistoryByEditor(ctx context.Context, editorID int64) (int64, error)

	// DeleteHistoryByMessages removes history rows of the messages.
	DeleteHistoryByMessages(ctx context.Context, messageIDs []int64) (int64, error)
}

// Queries is the set of operations available both on the store and inside a transaction.
type Queries interface {
	UserStore
	ConversationStore
	MessageStore
	NotificationStore
	HistoryStore
}

// Store aggregates all storage interfaces.
type Store interface {
	Queries

	// InTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(q Queries) error) error

	// Close closes the underlying database connection.
	Close() error
}
