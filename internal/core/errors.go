package core

// Error codes sent to websocket clients.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeUnsupported  = "unsupported"
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

// NewError builds an error event.
func NewError(code, msg string) *Event {
	return &Event{Kind: EventError, Error: &CoreError{Code: code, Message: msg}}
}
