package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vovakirdan/wiremsg/internal/store"
)

const messageColumns = `id, conversation_id, sender_id, receiver_id, parent_id, content, is_read, edited, created_at, edited_at`

// InsertMessage persists a message to storage.
func (q *queries) InsertMessage(ctx context.Context, msg *store.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO messages (conversation_id, sender_id, receiver_id, parent_id, content, is_read, edited, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := q.exec(ctx, query,
		msg.ConversationID, msg.SenderID, msg.ReceiverID, msg.ParentID,
		msg.Content, msg.IsRead, msg.Edited, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	msg.ID = id
	return nil
}

// GetMessage retrieves a message by ID.
func (q *queries) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	var msg store.Message
	if err := q.get(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id); err != nil {
		return nil, notFound(err, "message")
	}
	return &msg, nil
}

// UpdateMessage persists content, read and edit state of msg.
func (q *queries) UpdateMessage(ctx context.Context, msg *store.Message) error {
	query := `
		UPDATE messages
		SET content = ?, is_read = ?, edited = ?, edited_at = ?
		WHERE id = ?
	`
	res, err := q.exec(ctx, query, msg.Content, msg.IsRead, msg.Edited, msg.EditedAt, msg.ID)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if rowsAffected(res) == 0 {
		return fmt.Errorf("update message %d: %w", msg.ID, store.ErrNotFound)
	}
	return nil
}

// UpdateMessageContent persists content and edit state of msg, leaving the
// read flag alone.
func (q *queries) UpdateMessageContent(ctx context.Context, msg *store.Message) error {
	res, err := q.exec(ctx,
		`UPDATE messages SET content = ?, edited = ?, edited_at = ? WHERE id = ?`,
		msg.Content, msg.Edited, msg.EditedAt, msg.ID,
	)
	if err != nil {
		return fmt.Errorf("update message content: %w", err)
	}
	if rowsAffected(res) == 0 {
		return fmt.Errorf("update message content %d: %w", msg.ID, store.ErrNotFound)
	}
	return nil
}

// DeleteMessages removes the messages with the given IDs.
func (q *queries) DeleteMessages(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	// Replies reference their parent, so unlink them before the delete.
	query, args, err := q.in(`UPDATE messages SET parent_id = NULL WHERE parent_id IN (?)`, ids)
	if err != nil {
		return 0, err
	}
	if _, err := q.exec(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("unlink replies: %w", err)
	}

	query, args, err = q.in(`DELETE FROM messages WHERE id IN (?)`, ids)
	if err != nil {
		return 0, err
	}
	res, err := q.exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	return rowsAffected(res), nil
}

// ListMessages returns a page of messages matching f and the total match count.
func (q *queries) ListMessages(ctx context.Context, f store.MessageFilter) ([]*store.Message, int64, error) {
	var (
		where []string
		args  []any
	)
	if f.ParticipantID != 0 {
		where = append(where, "(sender_id = ? OR receiver_id = ?)")
		args = append(args, f.ParticipantID, f.ParticipantID)
	}
	if f.ConversationID != nil {
		where = append(where, "conversation_id = ?")
		args = append(args, *f.ConversationID)
	}
	if f.SenderID != nil {
		where = append(where, "sender_id = ?")
		args = append(args, *f.SenderID)
	}
	if f.MemberID != nil {
		where = append(where, "conversation_id IN (SELECT conversation_id FROM conversation_participants WHERE user_id = ?)")
		args = append(args, *f.MemberID)
	}
	if f.CreatedAfter != nil {
		where = append(where, "created_at >= ?")
		args = append(args, f.CreatedAfter.UTC())
	}
	if f.CreatedBefore != nil {
		where = append(where, "created_at <= ?")
		args = append(args, f.CreatedBefore.UTC())
	}
	if f.Search != "" {
		where = append(where, `content LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(f.Search))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := q.get(ctx, &total, `SELECT COUNT(*) FROM messages`+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	order := ` ORDER BY created_at, id`
	if f.Descending {
		order = ` ORDER BY created_at DESC, id DESC`
	}
	query := `SELECT ` + messageColumns + ` FROM messages` + clause + order + ` LIMIT ? OFFSET ?`
	var messages []*store.Message
	if err := q.selectAll(ctx, &messages, query, append(args, limit, f.Offset)...); err != nil {
		return nil, 0, fmt.Errorf("query messages: %w", err)
	}
	return messages, total, nil
}

// ListReplies returns direct replies to any of the parent IDs, oldest first.
func (q *queries) ListReplies(ctx context.Context, parentIDs []int64) ([]*store.Message, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	query, args, err := q.in(`SELECT `+messageColumns+` FROM messages WHERE parent_id IN (?) ORDER BY created_at, id`, parentIDs)
	if err != nil {
		return nil, err
	}
	var replies []*store.Message
	if err := q.selectAll(ctx, &replies, query, args...); err != nil {
		return nil, fmt.Errorf("query replies: %w", err)
	}
	return replies, nil
}

// ListMessageIDsByUser returns IDs of messages the user sent or received.
func (q *queries) ListMessageIDsByUser(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	query := `SELECT id FROM messages WHERE sender_id = ? OR receiver_id = ? ORDER BY id`
	if err := q.selectAll(ctx, &ids, query, userID, userID); err != nil {
		return nil, fmt.Errorf("query message ids: %w", err)
	}
	return ids, nil
}

// ListReceived returns messages received by the user, newest first.
func (q *queries) ListReceived(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*store.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE receiver_id = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	if limit <= 0 {
		limit = -1
	}

	var messages []*store.Message
	if err := q.selectAll(ctx, &messages, query, userID, limit); err != nil {
		return nil, fmt.Errorf("query received messages: %w", err)
	}
	return messages, nil
}

// MarkRead flags a received message as read.
func (q *queries) MarkRead(ctx context.Context, messageID, receiverID int64) error {
	res, err := q.exec(ctx, `UPDATE messages SET is_read = 1 WHERE id = ? AND receiver_id = ?`, messageID, receiverID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if rowsAffected(res) == 0 {
		return fmt.Errorf("mark read %d: %w", messageID, store.ErrNotFound)
	}
	return nil
}

// CountMessages returns the number of messages, optionally only unread ones.
func (q *queries) CountMessages(ctx context.Context, unreadOnly bool) (int64, error) {
	query := `SELECT COUNT(*) FROM messages`
	if unreadOnly {
		query += ` WHERE is_read = 0`
	}
	var n int64
	if err := q.get(ctx, &n, query); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}
