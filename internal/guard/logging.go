package guard

import (
	"time"

	"github.com/rs/zerolog"
)

// Recorder persists one line per request.
type Recorder interface {
	Record(at time.Time, user, path string) error
}

// RequestLogger records every request and never rejects. Write errors and
// panics from the recorder are swallowed.
type RequestLogger struct {
	rec Recorder
	now func() time.Time
	log *zerolog.Logger
}

// NewRequestLogger creates the logging stage.
func NewRequestLogger(rec Recorder, logger *zerolog.Logger) *RequestLogger {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RequestLogger{rec: rec, now: time.Now, log: logger}
}

// Name implements Stage.
func (l *RequestLogger) Name() string { return "request_log" }

// Check implements Stage.
func (l *RequestLogger) Check(req *Request) *Rejection {
	defer func() {
		if r := recover(); r != nil {
			l.log.Warn().Interface("panic", r).Msg("request log panicked")
		}
	}()

	if err := l.rec.Record(l.now(), req.User.Username, req.Path); err != nil {
		l.log.Warn().Err(err).Msg("request log write failed")
	}
	return nil
}
