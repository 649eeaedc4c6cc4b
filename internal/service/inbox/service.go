// Package inbox serves the messages a user received, with a short-lived
// per-user cache.
package inbox

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/vovakirdan/wiremsg/internal/signals"
	"github.com/vovakirdan/wiremsg/internal/store"
)

// DefaultLimit caps how many received messages a listing returns.
const DefaultLimit = 100

// Service lists received messages. Listings are cached per user until the
// TTL passes or a dispatcher event touches the user.
type Service struct {
	store store.MessageStore
	cache *lru.LRU[int64, []*store.Message]
	limit int

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates the service. size 0 disables caching.
func New(st store.MessageStore, size int, ttl time.Duration) *Service {
	s := &Service{store: st, limit: DefaultLimit}
	if size > 0 {
		s.cache = lru.NewLRU[int64, []*store.Message](size, nil, ttl)
	}
	return s
}

// Received returns the newest messages received by userID and whether the
// result came from cache.
func (s *Service) Received(ctx context.Context, userID int64) ([]*store.Message, bool, error) {
	if s.cache != nil {
		if msgs, ok := s.cache.Get(userID); ok {
			s.hits.Add(1)
			return msgs, true, nil
		}
		s.misses.Add(1)
	}

	msgs, err := s.store.ListReceived(ctx, userID, false, s.limit)
	if err != nil {
		return nil, false, err
	}
	if s.cache != nil {
		s.cache.Add(userID, msgs)
	}
	return msgs, false, nil
}

// Unread returns unread received messages, always from storage.
func (s *Service) Unread(ctx context.Context, userID int64) ([]*store.Message, error) {
	return s.store.ListReceived(ctx, userID, true, s.limit)
}

// MarkRead flags a message received by userID as read.
func (s *Service) MarkRead(ctx context.Context, messageID, userID int64) error {
	if err := s.store.MarkRead(ctx, messageID, userID); err != nil {
		return err
	}
	s.Invalidate(userID)
	return nil
}

// Invalidate drops the cached listing of a user.
func (s *Service) Invalidate(userID int64) {
	if s.cache != nil {
		s.cache.Remove(userID)
	}
}

// HandleEvent keeps the cache in line with committed writes.
func (s *Service) HandleEvent(e signals.Event) {
	if s.cache == nil {
		return
	}
	if e.Kind == signals.UserDeleted {
		// Receivers of the removed messages are not known here.
		s.cache.Purge()
		return
	}
	for _, uid := range e.Affected {
		s.cache.Remove(uid)
	}
}

// Stats returns cache hit and miss counters.
func (s *Service) Stats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}
