// Package ratelimit keeps per-client submission timestamps inside a trailing window.
package ratelimit

import (
	"context"
	"time"
)

// Policy is the quota enforced by a store.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Decision is the outcome of a single Hit.
type Decision struct {
	Allowed bool
	// Count is the number of submissions inside the window after this hit.
	Count int
	Limit int
	// RetryAfter is how long until the oldest retained submission leaves the
	// window. Zero when allowed.
	RetryAfter time.Duration
}

// Store records submissions per client key.
//
// Hit evicts timestamps older than now-window, rejects when the remaining count
// has reached the limit and otherwise records now. The three steps are atomic
// per key. When Hit returns an error the Decision carries no meaning and
// callers decide on their own whether to admit the request.
//
// Sweep drops clients without timestamps inside the window and reports how
// many were removed.
type Store interface {
	Hit(ctx context.Context, key string, now time.Time) (Decision, error)
	Sweep(ctx context.Context, now time.Time) (int, error)
}
