package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/vovakirdan/wiremsg/internal/store"
)

// CreateConversation creates a conversation with the given participants.
// Callers that need atomicity run it inside InTx.
func (q *queries) CreateConversation(ctx context.Context, title string, participantIDs []int64) (*store.Conversation, error) {
	now := time.Now().UTC()
	res, err := q.exec(ctx,
		`INSERT INTO conversations (title, created_at, updated_at) VALUES (?, ?, ?)`,
		title, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	for _, uid := range participantIDs {
		if _, err := q.exec(ctx,
			`INSERT OR IGNORE INTO conversation_participants (conversation_id, user_id, joined_at) VALUES (?, ?, ?)`,
			id, uid, now,
		); err != nil {
			return nil, fmt.Errorf("add participant %d: %w", uid, err)
		}
	}

	return q.GetConversation(ctx, id)
}

// GetConversation retrieves a conversation and its participant IDs.
func (q *queries) GetConversation(ctx context.Context, id int64) (*store.Conversation, error) {
	var c store.Conversation
	if err := q.get(ctx, &c, `SELECT id, title, created_at, updated_at FROM conversations WHERE id = ?`, id); err != nil {
		return nil, notFound(err, "conversation")
	}
	if err := q.selectAll(ctx, &c.Participants,
		`SELECT user_id FROM conversation_participants WHERE conversation_id = ? ORDER BY joined_at, user_id`, id,
	); err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	return &c, nil
}

// ListConversations lists conversations matching f.
func (q *queries) ListConversations(ctx context.Context, f store.ConversationFilter) ([]*store.Conversation, error) {
	query := `
		SELECT c.id, c.title, c.created_at, c.updated_at
		FROM conversations c
		JOIN conversation_participants cp ON cp.conversation_id = c.id
		WHERE cp.user_id = ?
	`
	args := []any{f.UserID}
	if f.MemberID != nil {
		query += ` AND EXISTS (SELECT 1 FROM conversation_participants m WHERE m.conversation_id = c.id AND m.user_id = ?)`
		args = append(args, *f.MemberID)
	}
	if f.Search != "" {
		// LIKE is case-insensitive for ASCII in SQLite.
		query += ` AND c.title LIKE ? ESCAPE '\'`
		args = append(args, likePattern(f.Search))
	}
	if f.Ascending {
		query += ` ORDER BY c.created_at, c.id`
	} else {
		query += ` ORDER BY c.created_at DESC, c.id DESC`
	}

	var out []*store.Conversation
	if err := q.selectAll(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	for _, c := range out {
		if err := q.selectAll(ctx, &c.Participants,
			`SELECT user_id FROM conversation_participants WHERE conversation_id = ? ORDER BY joined_at, user_id`, c.ID,
		); err != nil {
			return nil, fmt.Errorf("query participants: %w", err)
		}
	}
	return out, nil
}

// IsParticipant reports whether the user participates in the conversation.
func (q *queries) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	var n int
	err := q.get(ctx, &n,
		`SELECT COUNT(*) FROM conversation_participants WHERE conversation_id = ? AND user_id = ?`,
		conversationID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("query membership: %w", err)
	}
	return n > 0, nil
}
