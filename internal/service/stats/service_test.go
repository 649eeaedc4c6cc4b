package stats

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wiremsg/internal/signals"
	"github.com/vovakirdan/wiremsg/internal/store"
	"github.com/vovakirdan/wiremsg/internal/store/sqlite"
)

func TestSnapshot(t *testing.T) {
	st, err := sqlite.New(filepath.Join(t.TempDir(), "stats.db"), nil)
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	a := &store.User{Username: "a", PasswordHash: "x"}
	b := &store.User{Username: "b", PasswordHash: "x"}
	require.NoError(t, st.CreateUser(ctx, a))
	require.NoError(t, st.CreateUser(ctx, b))

	d := signals.New(st, nil)
	m, _, err := d.CreateMessage(ctx, signals.NewMessage{SenderID: a.ID, ReceiverID: b.ID, Content: "one"})
	require.NoError(t, err)
	_, _, err = d.CreateMessage(ctx, signals.NewMessage{SenderID: b.ID, ReceiverID: a.ID, Content: "two"})
	require.NoError(t, err)
	_, _, err = d.EditMessage(ctx, m.ID, a.ID, "one!")
	require.NoError(t, err)
	require.NoError(t, st.MarkRead(ctx, m.ID, b.ID))

	snap, err := New(st, func() int { return 3 }).Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, Snapshot{
		Users:          2,
		Messages:       2,
		UnreadMessages: 1,
		Notifications:  2,
		EditHistory:    1,
		Connections:    3,
	}, snap)
}

type brokenCounts struct {
	store.Queries
}

func (brokenCounts) CountUsers(context.Context) (int64, error)         { return 0, errors.New("db gone") }
func (brokenCounts) CountMessages(context.Context, bool) (int64, error) { return 1, nil }
func (brokenCounts) CountNotifications(context.Context, int64) (int64, error) {
	return 1, nil
}
func (brokenCounts) CountHistory(context.Context, int64) (int64, error) { return 1, nil }

func TestSnapshotPropagatesErrors(t *testing.T) {
	_, err := New(brokenCounts{}, nil).Snapshot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count users")
}
