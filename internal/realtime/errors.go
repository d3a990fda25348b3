package realtime

import (
	"errors"
	"fmt"

	"github.com/Randy-sin/dse-realtime-gateway/internal/realtime/protocol"
)

// Sentinel errors surfaced by the HTTP layer's authorization checks.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("not a member of this room")
	ErrNotFound     = errors.New("not found")
)

// ConfigError reports a required configuration value that is absent.
type ConfigError struct {
	Variable string
}

func (e *ConfigError) Error() string {
	return "missing required environment variable: " + e.Variable
}

// ValidationError reports caller input that failed validation.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// TimeoutError reports a bounded wait on a protocol step that elapsed
// without the expected event.
type TimeoutError struct {
	Step string
}

func (e *TimeoutError) Error() string {
	return "timed out waiting for " + e.Step
}

// FailureError is a failure notification from the dialogue service:
// either an error frame or a ConnectionFailed/SessionFailed event.
type FailureError struct {
	Code    int32
	EventID protocol.EventID
	Message string
}

func (e *FailureError) Error() string {
	if e.Message != "" {
		return "realtime dialogue failure: " + e.Message
	}
	return fmt.Sprintf("realtime dialogue failure: event=%s code=%d", e.EventID.Name(), e.Code)
}

// isFailure reports whether a frame signals a service-side failure.
func isFailure(f *protocol.Frame) bool {
	if f.MessageType == protocol.MsgError {
		return true
	}
	return f.HasEvent && (f.EventID == protocol.EventConnectionFailed || f.EventID == protocol.EventSessionFailed)
}

// failureError builds the typed error for a failure frame, pulling the
// service's message out of the payload when one is present.
func failureError(f *protocol.Frame) *FailureError {
	fe := &FailureError{Code: f.ErrorCode, EventID: f.EventID}
	if payload := f.DecodePayload(); payload != nil {
		if msg, ok := payload["error"].(string); ok {
			fe.Message = msg
		}
	}
	return fe
}
