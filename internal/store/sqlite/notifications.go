package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/vovakirdan/wiremsg/internal/store"
)

// ==== NotificationStore implementation ====

// InsertNotification inserts n and fills in ID and CreatedAt.
func (q *queries) InsertNotification(ctx context.Context, n *store.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	res, err := q.exec(ctx,
		`INSERT INTO notifications (user_id, message_id, created_at) VALUES (?, ?, ?)`,
		n.UserID, n.MessageID, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	n.ID = id
	return nil
}

// ListNotifications returns the user's notifications, newest first.
func (q *queries) ListNotifications(ctx context.Context, userID int64, limit int) ([]*store.Notification, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT id, user_id, message_id, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	var out []*store.Notification
	if err := q.selectAll(ctx, &out, query, userID, limit); err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	return out, nil
}

// CountNotifications counts notifications; userID 0 counts all.
func (q *queries) CountNotifications(ctx context.Context, userID int64) (int64, error) {
	var (
		n   int64
		err error
	)
	if userID == 0 {
		err = q.get(ctx, &n, `SELECT COUNT(*) FROM notifications`)
	} else {
		err = q.get(ctx, &n, `SELECT COUNT(*) FROM notifications WHERE user_id = ?`, userID)
	}
	if err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return n, nil
}

// DeleteNotificationsByUser removes notifications owned by the user.
func (q *queries) DeleteNotificationsByUser(ctx context.Context, userID int64) (int64, error) {
	res, err := q.exec(ctx, `DELETE FROM notifications WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete notifications: %w", err)
	}
	return rowsAffected(res), nil
}

// DeleteNotificationsByMessages removes notifications pointing at the messages.
func (q *queries) DeleteNotificationsByMessages(ctx context.Context, messageIDs []int64) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	query, args, err := q.in(`DELETE FROM notifications WHERE message_id IN (?)`, messageIDs)
	if err != nil {
		return 0, err
	}
	res, err := q.exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete notifications: %w", err)
	}
	return rowsAffected(res), nil
}

// ==== HistoryStore implementation ====

// InsertHistory inserts h and fills in ID.
func (q *queries) InsertHistory(ctx context.Context, h *store.MessageHistory) error {
	if h.EditedAt.IsZero() {
		h.EditedAt = time.Now().UTC()
	}
	res, err := q.exec(ctx,
		`INSERT INTO message_history (message_id, old_content, edited_by, edited_at) VALUES (?, ?, ?, ?)`,
		h.MessageID, h.OldContent, h.EditedBy, h.EditedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message history: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	h.ID = id
	return nil
}

// ListHistory returns edits of a message, oldest first.
func (q *queries) ListHistory(ctx context.Context, messageID int64) ([]*store.MessageHistory, error) {
	query := `
		SELECT id, message_id, old_content, edited_by, edited_at
		FROM message_history
		WHERE message_id = ?
		ORDER BY edited_at, id
	`
	var out []*store.MessageHistory
	if err := q.selectAll(ctx, &out, query, messageID); err != nil {
		return nil, fmt.Errorf("query message history: %w", err)
	}
	return out, nil
}

// CountHistory counts history rows; editorID 0 counts all.
func (q *queries) CountHistory(ctx context.Context, editorID int64) (int64, error) {
	var (
		n   int64
		err error
	)
	if editorID == 0 {
		err = q.get(ctx, &n, `SELECT COUNT(*) FROM message_history`)
	} else {
		err = q.get(ctx, &n, `SELECT COUNT(*) FROM message_history WHERE edited_by = ?`, editorID)
	}
	if err != nil {
		return 0, fmt.Errorf("count message history: %w", err)
	}
	return n, nil
}

// DeleteHistoryByEditor removes history rows attributed to the editor.
func (q *queries) DeleteHistoryByEditor(ctx context.Context, editorID int64) (int64, error) {
	res, err := q.exec(ctx, `DELETE FROM message_history WHERE edited_by = ?`, editorID)
	if err != nil {
		return 0, fmt.Errorf("delete message history: %w", err)
	}
	return rowsAffected(res), nil
}

// DeleteHistoryByMessages removes history rows of the messages.
func (q *queries) DeleteHistoryByMessages(ctx context.Context, messageIDs []int64) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	query, args, err := q.in(`DELETE FROM message_history WHERE message_id IN (?)`, messageIDs)
	if err != nil {
		return 0, err
	}
	res, err := q.exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete message history: %w", err)
	}
	return rowsAffected(res), nil
}
