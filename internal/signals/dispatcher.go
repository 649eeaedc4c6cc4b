// Package signals applies message lifecycle side effects (notifications, edit
// history, cascade cleanup) inside the same transaction as the triggering
// write, then tells listeners about the committed result.
package signals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiremsg/internal/store"
)

var (
	ErrEmptyContent         = errors.New("content must not be empty")
	ErrReceiverNotFound     = errors.New("receiver not found")
	ErrParentNotFound       = errors.New("parent message not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("sender is not a participant of the conversation")
	ErrMessageNotFound      = errors.New("message not found")
	ErrUserNotFound         = errors.New("user not found")
	// ErrUnknownCaller is returned when the acting sender or editor no longer exists.
	ErrUnknownCaller = errors.New("acting user does not exist")
)

// NewMessage is the input of CreateMessage.
type NewMessage struct {
	SenderID       int64
	ReceiverID     int64
	Content        string
	ParentID       *int64
	ConversationID *int64
}

// Cleanup reports what DeleteUser removed.
type Cleanup struct {
	Messages      int64 `json:"messages"`
	Notifications int64 `json:"notifications"`
	History       int64 `json:"history"`
}

// Dispatcher owns every write that has derived records.
type Dispatcher struct {
	store store.Store
	log   *zerolog.Logger
	now   func() time.Time

	mu        sync.RWMutex
	listeners []Listener
}

// New creates a dispatcher over st.
func New(st store.Store, logger *zerolog.Logger) *Dispatcher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Dispatcher{store: st, log: logger, now: time.Now}
}

// Subscribe registers l for events of committed operations.
func (d *Dispatcher) Subscribe(l Listener) {
	d.mu.Lock()
	d.listeners = append(d.listeners, l)
	d.mu.Unlock()
}

// CreateMessage stores a message and exactly one notification for its
// receiver in one transaction.
func (d *Dispatcher) CreateMessage(ctx context.Context, in NewMessage) (*store.Message, *store.Notification, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, nil, ErrEmptyContent
	}

	var (
		msg   *store.Message
		notif *store.Notification
	)
	err := d.store.InTx(ctx, func(q store.Queries) error {
		if _, err := q.GetUserByID(ctx, in.SenderID); err != nil {
			return mapNotFound(err, ErrUnknownCaller)
		}
		if _, err := q.GetUserByID(ctx, in.ReceiverID); err != nil {
			return mapNotFound(err, ErrReceiverNotFound)
		}
		if in.ParentID != nil {
			if _, err := q.GetMessage(ctx, *in.ParentID); err != nil {
				return mapNotFound(err, ErrParentNotFound)
			}
		}
		if in.ConversationID != nil {
			if _, err := q.GetConversation(ctx, *in.ConversationID); err != nil {
				return mapNotFound(err, ErrConversationNotFound)
			}
			ok, err := q.IsParticipant(ctx, *in.ConversationID, in.SenderID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrNotParticipant
			}
		}

		now := d.now().UTC()
		msg = &store.Message{
			ConversationID: in.ConversationID,
			SenderID:       in.SenderID,
			ReceiverID:     in.ReceiverID,
			ParentID:       in.ParentID,
			Content:        in.Content,
			CreatedAt:      now,
		}
		if err := q.InsertMessage(ctx, msg); err != nil {
			return err
		}

		notif = &store.Notification{UserID: msg.ReceiverID, MessageID: msg.ID, CreatedAt: now}
		return q.InsertNotification(ctx, notif)
	})
	if err != nil {
		return nil, nil, err
	}

	d.log.Debug().Int64("message_id", msg.ID).Int64("receiver_id", msg.ReceiverID).Msg("message created")
	d.emit(Event{
		Kind:         MessageCreated,
		Message:      msg,
		Notification: notif,
		Affected:     []int64{msg.ReceiverID},
	})
	return msg, notif, nil
}

// SaveMessage persists msg. Before the update the stored row is compared
// with msg: differing content produces one history row with the old content
// and marks msg edited. A failed lookup of the stored row skips history.
func (d *Dispatcher) SaveMessage(ctx context.Context, msg *store.Message, editorID int64) (*store.MessageHistory, error) {
	if strings.TrimSpace(msg.Content) == "" {
		return nil, ErrEmptyContent
	}

	var hist *store.MessageHistory
	err := d.store.InTx(ctx, func(q store.Queries) error {
		hist = nil
		orig, err := q.GetMessage(ctx, msg.ID)
		if err != nil {
			d.log.Debug().Err(err).Int64("message_id", msg.ID).Msg("original message unavailable, skipping history")
		} else if hist, err = d.recordEdit(ctx, q, msg, orig.Content, editorID); err != nil {
			return err
		}

		if err := q.UpdateMessage(ctx, msg); err != nil {
			return mapNotFound(err, ErrMessageNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.emitEdited(msg, hist)
	return hist, nil
}

// EditMessage replaces the content of a message. The row is read and written
// in one transaction and only content and edit state are updated, so a
// concurrent read receipt is kept.
func (d *Dispatcher) EditMessage(ctx context.Context, id, editorID int64, content string) (*store.Message, *store.MessageHistory, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil, ErrEmptyContent
	}

	var (
		msg  *store.Message
		hist *store.MessageHistory
	)
	err := d.store.InTx(ctx, func(q store.Queries) error {
		var err error
		if msg, err = q.GetMessage(ctx, id); err != nil {
			return mapNotFound(err, ErrMessageNotFound)
		}
		old := msg.Content
		msg.Content = content
		if hist, err = d.recordEdit(ctx, q, msg, old, editorID); err != nil {
			return err
		}
		if hist == nil {
			return nil
		}
		if err := q.UpdateMessageContent(ctx, msg); err != nil {
			return mapNotFound(err, ErrMessageNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	d.emitEdited(msg, hist)
	return msg, hist, nil
}

// recordEdit inserts one history row with oldContent and marks msg edited
// when its content differs. Identical content records nothing.
func (d *Dispatcher) recordEdit(ctx context.Context, q store.Queries, msg *store.Message, oldContent string, editorID int64) (*store.MessageHistory, error) {
	if oldContent == msg.Content {
		return nil, nil
	}
	if _, err := q.GetUserByID(ctx, editorID); err != nil {
		return nil, mapNotFound(err, ErrUnknownCaller)
	}

	now := d.now().UTC()
	hist := &store.MessageHistory{
		MessageID:  msg.ID,
		OldContent: oldContent,
		EditedBy:   editorID,
		EditedAt:   now,
	}
	if err := q.InsertHistory(ctx, hist); err != nil {
		return nil, err
	}
	msg.Edited = true
	msg.EditedAt = &now
	return hist, nil
}

func (d *Dispatcher) emitEdited(msg *store.Message, hist *store.MessageHistory) {
	d.emit(Event{
		Kind:     MessageEdited,
		Message:  msg,
		History:  hist,
		Affected: []int64{msg.ReceiverID},
	})
}

// DeleteMessage removes a message, all replies below it and their
// notifications and history. It returns the removed ids.
func (d *Dispatcher) DeleteMessage(ctx context.Context, id int64) ([]int64, error) {
	var (
		ids      []int64
		affected []int64
	)
	err := d.store.InTx(ctx, func(q store.Queries) error {
		root, err := q.GetMessage(ctx, id)
		if err != nil {
			return mapNotFound(err, ErrMessageNotFound)
		}
		replies, err := descendants(ctx, q, []int64{root.ID})
		if err != nil {
			return err
		}

		ids = []int64{root.ID}
		affected = []int64{root.ReceiverID}
		for _, r := range replies {
			ids = append(ids, r.ID)
			affected = append(affected, r.ReceiverID)
		}

		if _, err := q.DeleteHistoryByMessages(ctx, ids); err != nil {
			return err
		}
		if _, err := q.DeleteNotificationsByMessages(ctx, ids); err != nil {
			return err
		}
		_, err = q.DeleteMessages(ctx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}

	d.emit(Event{Kind: MessagesDeleted, MessageIDs: ids, Affected: uniq(affected)})
	return ids, nil
}

// DeleteUser removes a user together with every message they sent or
// received (and replies to those), every notification they own or that
// points at a removed message, and every history row they edited or that
// belongs to a removed message. Nothing is removed if any step fails.
func (d *Dispatcher) DeleteUser(ctx context.Context, userID int64) (Cleanup, error) {
	var (
		c   Cleanup
		ids []int64
	)
	err := d.store.InTx(ctx, func(q store.Queries) error {
		c = Cleanup{}
		if _, err := q.GetUserByID(ctx, userID); err != nil {
			return mapNotFound(err, ErrUserNotFound)
		}

		own, err := q.ListMessageIDsByUser(ctx, userID)
		if err != nil {
			return err
		}
		replies, err := descendants(ctx, q, own)
		if err != nil {
			return err
		}
		ids = own
		for _, r := range replies {
			ids = append(ids, r.ID)
		}
		ids = uniq(ids)

		n, err := q.DeleteHistoryByEditor(ctx, userID)
		if err != nil {
			return err
		}
		c.History += n
		if n, err = q.DeleteHistoryByMessages(ctx, ids); err != nil {
			return err
		}
		c.History += n

		if n, err = q.DeleteNotificationsByUser(ctx, userID); err != nil {
			return err
		}
		c.Notifications += n
		if n, err = q.DeleteNotificationsByMessages(ctx, ids); err != nil {
			return err
		}
		c.Notifications += n

		if c.Messages, err = q.DeleteMessages(ctx, ids); err != nil {
			return err
		}
		return q.DeleteUser(ctx, userID)
	})
	if err != nil {
		return Cleanup{}, err
	}

	d.log.Info().
		Int64("user_id", userID).
		Int64("messages", c.Messages).
		Int64("notifications", c.Notifications).
		Int64("history", c.History).
		Msg("user deleted")
	d.emit(Event{Kind: UserDeleted, UserID: userID, MessageIDs: ids, Cleanup: c})
	return c, nil
}

func (d *Dispatcher) emit(e Event) {
	d.mu.RLock()
	listeners := d.listeners
	d.mu.RUnlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.log.Error().Interface("panic", r).Str("event", e.Kind.String()).Msg("listener panicked")
				}
			}()
			l.HandleEvent(e)
		}()
	}
}

func mapNotFound(err, target error) error {
	if errors.Is(err, store.ErrNotFound) {
		return target
	}
	return fmt.Errorf("%w: %w", target, err)
}

func uniq(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
