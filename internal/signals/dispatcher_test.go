package signals

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wiremsg/internal/store"
	"github.com/vovakirdan/wiremsg/internal/store/sqlite"
)

type fixture struct {
	st     *sqlite.SQLiteStore
	d      *Dispatcher
	events []Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := sqlite.New(filepath.Join(t.TempDir(), "signals.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	f := &fixture{st: st, d: New(st, nil)}
	f.d.Subscribe(ListenerFunc(func(e Event) { f.events = append(f.events, e) }))
	return f
}

func (f *fixture) user(t *testing.T, name string) int64 {
	t.Helper()
	u := &store.User{Username: name, PasswordHash: "x"}
	require.NoError(t, f.st.CreateUser(context.Background(), u))
	return u.ID
}

func (f *fixture) send(t *testing.T, from, to int64, content string, parent *int64) *store.Message {
	t.Helper()
	msg, _, err := f.d.CreateMessage(context.Background(), NewMessage{SenderID: from, ReceiverID: to, Content: content, ParentID: parent})
	require.NoError(t, err)
	return msg
}

func (f *fixture) count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, f.st.DB().Get(&n, query, args...))
	return n
}

func TestCreateMessageYieldsExactlyOneNotification(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")

	msg, notif, err := f.d.CreateMessage(context.Background(), NewMessage{SenderID: alice, ReceiverID: bob, Content: "Hello!"})
	require.NoError(t, err)
	assert.Equal(t, bob, notif.UserID)
	assert.Equal(t, msg.ID, notif.MessageID)

	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM notifications`))
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM notifications WHERE user_id = ? AND message_id = ?`, bob, msg.ID))

	require.Len(t, f.events, 1)
	assert.Equal(t, MessageCreated, f.events[0].Kind)
	assert.Equal(t, []int64{bob}, f.events[0].Affected)

	for i := 0; i < 4; i++ {
		f.send(t, bob, alice, "again", nil)
	}
	assert.Equal(t, 5, f.count(t, `SELECT COUNT(*) FROM notifications`))
	assert.Equal(t, f.count(t, `SELECT COUNT(*) FROM messages`), f.count(t, `SELECT COUNT(*) FROM notifications`))
}

func TestCreateMessageValidation(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	ctx := context.Background()

	_, _, err := f.d.CreateMessage(ctx, NewMessage{SenderID: alice, ReceiverID: bob, Content: "   "})
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, _, err = f.d.CreateMessage(ctx, NewMessage{SenderID: alice, ReceiverID: 999, Content: "hi"})
	assert.ErrorIs(t, err, ErrReceiverNotFound)

	missing := int64(12345)
	_, _, err = f.d.CreateMessage(ctx, NewMessage{SenderID: alice, ReceiverID: bob, Content: "hi", ParentID: &missing})
	assert.ErrorIs(t, err, ErrParentNotFound)

	_, _, err = f.d.CreateMessage(ctx, NewMessage{SenderID: alice, ReceiverID: bob, Content: "hi", ConversationID: &missing})
	assert.ErrorIs(t, err, ErrConversationNotFound)

	conv, err := f.st.CreateConversation(ctx, "pair", []int64{alice, bob})
	require.NoError(t, err)
	_, _, err = f.d.CreateMessage(ctx, NewMessage{SenderID: carol, ReceiverID: bob, Content: "hi", ConversationID: &conv.ID})
	assert.ErrorIs(t, err, ErrNotParticipant)

	msg, _, err := f.d.CreateMessage(ctx, NewMessage{SenderID: alice, ReceiverID: bob, Content: "hi", ConversationID: &conv.ID})
	require.NoError(t, err)
	require.NotNil(t, msg.ConversationID)
	assert.Equal(t, conv.ID, *msg.ConversationID)

	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM messages`))
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM notifications`))
}

func TestEditMessageHistory(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	msg := f.send(t, alice, bob, "Original", nil)
	ctx := context.Background()

	edited, hist, err := f.d.EditMessage(ctx, msg.ID, alice, "Edited content")
	require.NoError(t, err)
	require.NotNil(t, hist)
	assert.Equal(t, "Original", hist.OldContent)
	assert.Equal(t, alice, hist.EditedBy)
	assert.True(t, edited.Edited)
	require.NotNil(t, edited.EditedAt)

	stored, err := f.st.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "Edited content", stored.Content)
	assert.True(t, stored.Edited)

	rows, err := f.st.ListHistory(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Original", rows[0].OldContent)

	// Same content again: no new history.
	_, hist, err = f.d.EditMessage(ctx, msg.ID, alice, "Edited content")
	require.NoError(t, err)
	assert.Nil(t, hist)
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM message_history`))
}

func TestEditIdenticalContentYieldsNoHistory(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	msg := f.send(t, alice, bob, "same", nil)

	edited, hist, err := f.d.EditMessage(context.Background(), msg.ID, alice, "same")
	require.NoError(t, err)
	assert.Nil(t, hist)
	assert.False(t, edited.Edited)
	assert.Zero(t, f.count(t, `SELECT COUNT(*) FROM message_history`))
}

func TestSaveMessageReadFlagKeepsHistoryEmpty(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	msg := f.send(t, alice, bob, "hello", nil)

	msg.IsRead = true
	hist, err := f.d.SaveMessage(context.Background(), msg, bob)
	require.NoError(t, err)
	assert.Nil(t, hist)

	stored, err := f.st.GetMessage(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsRead)
	assert.False(t, stored.Edited)
}

func TestEditMissingMessage(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.d.EditMessage(context.Background(), 77, 1, "x")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

// lookupFailingStore makes GetMessage fail inside transactions.
type lookupFailingStore struct {
	*sqlite.SQLiteStore
}

type lookupFailingQueries struct {
	store.Queries
}

func (lookupFailingQueries) GetMessage(context.Context, int64) (*store.Message, error) {
	return nil, errors.New("lookup failed")
}

func (s lookupFailingStore) InTx(ctx context.Context, fn func(q store.Queries) error) error {
	return s.SQLiteStore.InTx(ctx, func(q store.Queries) error {
		return fn(lookupFailingQueries{q})
	})
}

func TestOriginalLookupFailureSkipsHistory(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	msg := f.send(t, alice, bob, "before", nil)

	d := New(lookupFailingStore{f.st}, nil)
	msg.Content = "after"
	hist, err := d.SaveMessage(context.Background(), msg, alice)
	require.NoError(t, err)
	assert.Nil(t, hist)

	stored, err := f.st.GetMessage(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", stored.Content)
	assert.Zero(t, f.count(t, `SELECT COUNT(*) FROM message_history`))
}

// notificationFailingStore makes InsertNotification fail inside transactions.
type notificationFailingStore struct {
	*sqlite.SQLiteStore
}

type notificationFailingQueries struct {
	store.Queries
}

var errNotify = errors.New("notification insert failed")

func (notificationFailingQueries) InsertNotification(context.Context, *store.Notification) error {
	return errNotify
}

func (s notificationFailingStore) InTx(ctx context.Context, fn func(q store.Queries) error) error {
	return s.SQLiteStore.InTx(ctx, func(q store.Queries) error {
		return fn(notificationFailingQueries{q})
	})
}

func TestNotificationFailureRollsBackMessage(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")

	d := New(notificationFailingStore{f.st}, nil)
	var emitted int
	d.Subscribe(ListenerFunc(func(Event) { emitted++ }))

	_, _, err := d.CreateMessage(context.Background(), NewMessage{SenderID: alice, ReceiverID: bob, Content: "hi"})
	assert.ErrorIs(t, err, errNotify)
	assert.Zero(t, f.count(t, `SELECT COUNT(*) FROM messages`))
	assert.Zero(t, emitted)
}

func TestDeleteUserLeavesNothingBehind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gone, bob, carol := f.user(t, "gone"), f.user(t, "bob"), f.user(t, "carol")

	root := f.send(t, gone, bob, "hi bob", nil)
	reply := f.send(t, bob, gone, "hi back", &root.ID)
	// carol replies to bob's reply; it hangs under gone's thread.
	nested := f.send(t, carol, bob, "joining in", &reply.ID)
	unrelated := f.send(t, bob, carol, "unrelated", nil)

	// gone edits a message they do not own the thread of.
	_, _, err := f.d.EditMessage(ctx, unrelated.ID, gone, "unrelated (edited)")
	require.NoError(t, err)
	_, _, err = f.d.EditMessage(ctx, root.ID, bob, "hi bob!")
	require.NoError(t, err)

	c, err := f.d.DeleteUser(ctx, gone)
	require.NoError(t, err)
	assert.EqualValues(t, 3, c.Messages)
	assert.EqualValues(t, 3, c.Notifications)
	assert.EqualValues(t, 2, c.History)

	assert.Zero(t, f.count(t, `SELECT COUNT(*) FROM messages WHERE sender_id = ? OR receiver_id = ?`, gone, gone))
	assert.Zero(t, f.count(t, `SELECT COUNT(*) FROM notifications WHERE user_id = ?`, gone))
	assert.Zero(t, f.count(t, `SELECT COUNT(*) FROM message_history WHERE edited_by = ?`, gone))
	assert.Zero(t, f.count(t, `SELECT COUNT(*) FROM users WHERE id = ?`, gone))
	assert.Zero(t, f.count(t, `SELECT COUNT(*) FROM messages WHERE id = ?`, nested.ID))

	// The unrelated message survives.
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM messages`))
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM notifications`))

	last := f.events[len(f.events)-1]
	assert.Equal(t, UserDeleted, last.Kind)
	assert.Equal(t, gone, last.UserID)

	_, err = f.d.DeleteUser(ctx, gone)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

// userDeleteFailingStore fails the final user delete.
type userDeleteFailingStore struct {
	*sqlite.SQLiteStore
}

type userDeleteFailingQueries struct {
	store.Queries
}

func (userDeleteFailingQueries) DeleteUser(context.Context, int64) error {
	return errors.New("locked")
}

func (s userDeleteFailingStore) InTx(ctx context.Context, fn func(q store.Queries) error) error {
	return s.SQLiteStore.InTx(ctx, func(q store.Queries) error {
		return fn(userDeleteFailingQueries{q})
	})
}

func TestDeleteUserIsAtomic(t *testing.T) {
	f := newFixture(t)
	gone, bob := f.user(t, "gone"), f.user(t, "bob")
	f.send(t, gone, bob, "one", nil)
	f.send(t, bob, gone, "two", nil)

	d := New(userDeleteFailingStore{f.st}, nil)
	_, err := d.DeleteUser(context.Background(), gone)
	require.Error(t, err)

	assert.Equal(t, 2, f.count(t, `SELECT COUNT(*) FROM messages`))
	assert.Equal(t, 2, f.count(t, `SELECT COUNT(*) FROM notifications`))
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM users WHERE id = ?`, gone))
}

func TestDeleteMessageRemovesReplies(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	root := f.send(t, alice, bob, "root", nil)
	r1 := f.send(t, bob, alice, "r1", &root.ID)
	f.send(t, alice, bob, "r2", &r1.ID)
	keep := f.send(t, alice, bob, "keep", nil)
	_, _, err := f.d.EditMessage(context.Background(), r1.ID, bob, "r1 edited")
	require.NoError(t, err)

	ids, err := f.d.DeleteMessage(context.Background(), root.ID)
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM messages`))
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM notifications WHERE message_id = ?`, keep.ID))
	assert.Zero(t, f.count(t, `SELECT COUNT(*) FROM message_history`))

	last := f.events[len(f.events)-1]
	assert.Equal(t, MessagesDeleted, last.Kind)
	assert.ElementsMatch(t, []int64{alice, bob}, last.Affected)

	_, err = f.d.DeleteMessage(context.Background(), root.ID)
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestListenerPanicDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	f.d.Subscribe(ListenerFunc(func(Event) { panic("boom") }))

	_, _, err := f.d.CreateMessage(context.Background(), NewMessage{SenderID: alice, ReceiverID: bob, Content: "hi"})
	assert.NoError(t, err)
}

func TestCreatedAtUsesClock(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	f.d.now = func() time.Time { return fixed }

	msg := f.send(t, alice, bob, "hi", nil)
	assert.True(t, fixed.Equal(msg.CreatedAt))
}

func TestDeletedCallerCannotWrite(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	ctx := context.Background()

	_, err := f.d.DeleteUser(ctx, bob)
	require.NoError(t, err)
	carol := f.user(t, "carol")

	_, _, err = f.d.CreateMessage(ctx, NewMessage{SenderID: bob, ReceiverID: carol, Content: "ghost"})
	assert.ErrorIs(t, err, ErrUnknownCaller)

	msg := f.send(t, alice, carol, "before", nil)
	_, _, err = f.d.EditMessage(ctx, msg.ID, bob, "after")
	assert.ErrorIs(t, err, ErrUnknownCaller)

	stored, err := f.st.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "before", stored.Content)
	assert.Zero(t, f.count(t, `SELECT COUNT(*) FROM message_history`))
}

func TestEditKeepsConcurrentReadReceipt(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	msg := f.send(t, alice, bob, "hello", nil)
	ctx := context.Background()

	// The receiver reads the message after the editor loaded it.
	require.NoError(t, f.st.MarkRead(ctx, msg.ID, bob))

	edited, hist, err := f.d.EditMessage(ctx, msg.ID, alice, "hello there")
	require.NoError(t, err)
	require.NotNil(t, hist)
	assert.True(t, edited.IsRead)

	stored, err := f.st.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsRead)
	assert.True(t, stored.Edited)
	assert.Equal(t, "hello there", stored.Content)
}
