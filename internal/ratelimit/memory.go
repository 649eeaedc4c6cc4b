package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store. Every client owns a ring buffer sized to the
// limit, so memory is bounded by clients*limit and stale clients are removed
// by Sweep.
type Memory struct {
	policy Policy

	mu      sync.RWMutex
	buckets map[string]*bucket
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory(p Policy) *Memory {
	return &Memory{
		policy:  p,
		buckets: make(map[string]*bucket),
	}
}

// Hit implements Store.
func (m *Memory) Hit(_ context.Context, key string, now time.Time) (Decision, error) {
	if m.policy.Limit <= 0 {
		return Decision{Allowed: true}, nil
	}
	cutoff := now.Add(-m.policy.Window)

	for {
		b := m.bucket(key)
		b.mu.Lock()
		if b.dead {
			// removed by Sweep between lookup and lock
			b.mu.Unlock()
			continue
		}
		b.evict(cutoff)
		if b.n >= m.policy.Limit {
			d := Decision{
				Count:      b.n,
				Limit:      m.policy.Limit,
				RetryAfter: b.oldest().Add(m.policy.Window).Sub(now),
			}
			b.mu.Unlock()
			return d, nil
		}
		b.push(now)
		d := Decision{Allowed: true, Count: b.n, Limit: m.policy.Limit}
		b.mu.Unlock()
		return d, nil
	}
}

// Sweep implements Store.
func (m *Memory) Sweep(_ context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-m.policy.Window)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, b := range m.buckets {
		b.mu.Lock()
		b.evict(cutoff)
		if b.n == 0 {
			b.dead = true
			delete(m.buckets, key)
			removed++
		}
		b.mu.Unlock()
	}
	return removed, nil
}

// Len returns the number of tracked clients.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.buckets)
}

func (m *Memory) bucket(key string) *bucket {
	m.mu.RLock()
	b, ok := m.buckets[key]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok = m.buckets[key]; ok {
		return b
	}
	b = &bucket{times: make([]time.Time, m.policy.Limit)}
	m.buckets[key] = b
	return b
}

// bucket is a fixed-capacity ring of timestamps in arrival order.
type bucket struct {
	mu    sync.Mutex
	times []time.Time
	head  int
	n     int
	dead  bool
}

func (b *bucket) oldest() time.Time { return b.times[b.head] }

// evict drops timestamps strictly before cutoff.
func (b *bucket) evict(cutoff time.Time) {
	for b.n > 0 && b.times[b.head].Before(cutoff) {
		b.times[b.head] = time.Time{}
		b.head = (b.head + 1) % len(b.times)
		b.n--
	}
}

func (b *bucket) push(t time.Time) {
	b.times[(b.head+b.n)%len(b.times)] = t
	b.n++
}
