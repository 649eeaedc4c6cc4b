package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wiremsg/internal/store"
	"github.com/vovakirdan/wiremsg/internal/store/sqlite"
)

func newStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()
	st, err := sqlite.New(filepath.Join(t.TempDir(), "cli.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestExportUsersInBatches(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		require.NoError(t, st.CreateUser(ctx, &store.User{Username: fmt.Sprintf("user%d", i), PasswordHash: "x"}))
	}
	require.NoError(t, grantGroup(ctx, st, "user3", "moderator"))

	var buf bytes.Buffer
	n, err := exportUsers(ctx, st, &buf, 3)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	var lines []exportedUser
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var u exportedUser
		require.NoError(t, json.Unmarshal(sc.Bytes(), &u))
		lines = append(lines, u)
	}
	require.Len(t, lines, 7)
	assert.Equal(t, "user0", lines[0].Username)
	assert.Equal(t, []string{"moderator"}, lines[3].Groups)
	assert.Equal(t, []string{}, lines[4].Groups)
}

func TestExportEmpty(t *testing.T) {
	st := newStore(t)
	var buf bytes.Buffer
	n, err := exportUsers(context.Background(), st, &buf, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, buf.Len())
}

func TestGrantUnknownUser(t *testing.T) {
	st := newStore(t)
	err := grantGroup(context.Background(), st, "ghost", "admin")
	assert.ErrorContains(t, err, `user "ghost" not found`)
}
