package inbox

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wiremsg/internal/signals"
	"github.com/vovakirdan/wiremsg/internal/store"
	"github.com/vovakirdan/wiremsg/internal/store/sqlite"
)

func setup(t *testing.T, size int, ttl time.Duration) (*Service, *signals.Dispatcher, int64, int64) {
	t.Helper()
	st, err := sqlite.New(filepath.Join(t.TempDir(), "inbox.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	alice := &store.User{Username: "alice", PasswordHash: "x"}
	bob := &store.User{Username: "bob", PasswordHash: "x"}
	require.NoError(t, st.CreateUser(ctx, alice))
	require.NoError(t, st.CreateUser(ctx, bob))

	svc := New(st, size, ttl)
	d := signals.New(st, nil)
	d.Subscribe(svc)
	return svc, d, alice.ID, bob.ID
}

func TestReceivedIsCachedUntilNewMessage(t *testing.T) {
	svc, d, alice, bob := setup(t, 16, time.Minute)
	ctx := context.Background()

	_, _, err := d.CreateMessage(ctx, signals.NewMessage{SenderID: alice, ReceiverID: bob, Content: "one"})
	require.NoError(t, err)

	msgs, cached, err := svc.Received(ctx, bob)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Len(t, msgs, 1)

	msgs, cached, err = svc.Received(ctx, bob)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Len(t, msgs, 1)

	_, _, err = d.CreateMessage(ctx, signals.NewMessage{SenderID: alice, ReceiverID: bob, Content: "two"})
	require.NoError(t, err)

	msgs, cached, err = svc.Received(ctx, bob)
	require.NoError(t, err)
	assert.False(t, cached)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Content)

	hits, misses := svc.Stats()
	assert.EqualValues(t, 1, hits)
	assert.EqualValues(t, 2, misses)
}

func TestCacheExpires(t *testing.T) {
	svc, _, _, bob := setup(t, 16, 30*time.Millisecond)
	ctx := context.Background()

	_, _, err := svc.Received(ctx, bob)
	require.NoError(t, err)
	_, cached, err := svc.Received(ctx, bob)
	require.NoError(t, err)
	assert.True(t, cached)

	time.Sleep(60 * time.Millisecond)
	_, cached, err = svc.Received(ctx, bob)
	require.NoError(t, err)
	assert.False(t, cached)
}

func TestMarkReadAndUnread(t *testing.T) {
	svc, d, alice, bob := setup(t, 16, time.Minute)
	ctx := context.Background()

	m1, _, err := d.CreateMessage(ctx, signals.NewMessage{SenderID: alice, ReceiverID: bob, Content: "Hello!"})
	require.NoError(t, err)
	_, _, err = d.CreateMessage(ctx, signals.NewMessage{SenderID: alice, ReceiverID: bob, Content: "Read msg"})
	require.NoError(t, err)
	_, _, err = svc.Received(ctx, bob)
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(ctx, m1.ID, bob))
	assert.ErrorIs(t, svc.MarkRead(ctx, m1.ID, alice), store.ErrNotFound)

	unread, err := svc.Unread(ctx, bob)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "Read msg", unread[0].Content)

	msgs, cached, err := svc.Received(ctx, bob)
	require.NoError(t, err)
	assert.False(t, cached)
	for _, m := range msgs {
		if m.ID == m1.ID {
			assert.True(t, m.IsRead)
		}
	}
}

func TestUserDeletionPurgesCache(t *testing.T) {
	svc, d, alice, bob := setup(t, 16, time.Minute)
	ctx := context.Background()

	_, _, err := d.CreateMessage(ctx, signals.NewMessage{SenderID: alice, ReceiverID: bob, Content: "bye"})
	require.NoError(t, err)
	_, _, err = svc.Received(ctx, bob)
	require.NoError(t, err)

	_, err = d.DeleteUser(ctx, alice)
	require.NoError(t, err)

	msgs, cached, err := svc.Received(ctx, bob)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Empty(t, msgs)
}

func TestDisabledCache(t *testing.T) {
	svc, _, _, bob := setup(t, 0, time.Minute)
	for i := 0; i < 2; i++ {
		_, cached, err := svc.Received(context.Background(), bob)
		require.NoError(t, err)
		assert.False(t, cached)
	}
	svc.Invalidate(bob)
	svc.HandleEvent(signals.Event{Kind: signals.UserDeleted})
}
