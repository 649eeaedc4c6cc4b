// Package stats gathers instance-wide counters for administrators.
package stats

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/wiremsg/internal/store"
)

// Snapshot is a point-in-time view of the instance.
type Snapshot struct {
	Users          int64 `json:"users"`
	Messages       int64 `json:"messages"`
	UnreadMessages int64 `json:"unread_messages"`
	Notifications  int64 `json:"notifications"`
	EditHistory    int64 `json:"edit_history"`
	Connections    int   `json:"connections"`
}

// Service computes snapshots.
type Service struct {
	store       store.Queries
	connections func() int
}

// New creates the service. connections may be nil.
func New(st store.Queries, connections func() int) *Service {
	return &Service{store: st, connections: connections}
}

// Snapshot runs the counting queries concurrently.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		snap.Users, err = s.store.CountUsers(gCtx)
		return wrap("users", err)
	})
	g.Go(func() (err error) {
		snap.Messages, err = s.store.CountMessages(gCtx, false)
		return wrap("messages", err)
	})
	g.Go(func() (err error) {
		snap.UnreadMessages, err = s.store.CountMessages(gCtx, true)
		return wrap("unread messages", err)
	})
	g.Go(func() (err error) {
		snap.Notifications, err = s.store.CountNotifications(gCtx, 0)
		return wrap("notifications", err)
	})
	g.Go(func() (err error) {
		snap.EditHistory, err = s.store.CountHistory(gCtx, 0)
		return wrap("history", err)
	})

	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	if s.connections != nil {
		snap.Connections = s.connections()
	}
	return snap, nil
}

func wrap(what string, err error) error {
	if err != nil {
		return fmt.Errorf("count %s: %w", what, err)
	}
	return nil
}
