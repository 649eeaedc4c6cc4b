// Package reqlog appends one plain-text line per handled request to a file.
package reqlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TimeLayout is the timestamp layout of every line.
const TimeLayout = "2006-01-02 15:04:05"

// AnonymousUser is written when the request carries no identity.
const AnonymousUser = "Anonymous"

// Sink is an append-only request log. Safe for concurrent use.
type Sink struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// Open opens (or creates) the log file at path for appending.
func Open(path string) (*Sink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open request log: %w", err)
	}
	return &Sink{f: f, path: path}, nil
}

// Path returns the file the sink writes to.
func (s *Sink) Path() string { return s.path }

// Record appends a single line for a request made by user at the given time.
// An empty user is written as Anonymous.
func (s *Sink) Record(at time.Time, user, path string) error {
	if user == "" {
		user = AnonymousUser
	}
	line := Format(at, user, path)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return os.ErrClosed
	}
	_, err := s.f.WriteString(line)
	return err
}

// Close flushes and closes the underlying file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// Format renders one log line including the trailing newline.
func Format(at time.Time, user, path string) string {
	return fmt.Sprintf("%s - User: %s - Path: %s\n", at.Format(TimeLayout), user, path)
}
