package realtime

import (
	"fmt"
	"strings"
	"time"
)

// Model selects the dialogue model variant.
type Model string

const (
	ModelO  Model = "O"
	ModelSC Model = "SC"
)

// InputMode selects how the query content is interpreted upstream.
type InputMode string

const (
	InputText      InputMode = "text"
	InputAudioFile InputMode = "audio_file"
)

// MaxTextLength caps the query text accepted from callers.
const MaxTextLength = 1200

const (
	minTimeoutMs     = 5_000
	maxTimeoutMs     = 60_000
	defaultTimeoutMs = 15_000
)

// Request is the caller-facing input for one dialogue probe.
type Request struct {
	Text               string    `json:"text"`
	RoomID             string    `json:"roomId,omitempty"`
	Model              Model     `json:"model,omitempty"`
	InputMode          InputMode `json:"inputMode,omitempty"`
	Speaker            string    `json:"speaker,omitempty"`
	TimeoutMs          int       `json:"timeoutMs,omitempty"`
	IncludeAudioChunks bool      `json:"includeAudioChunks,omitempty"`
}

// Normalize validates the request in place and fills defaults: text is
// trimmed and capped, unknown models and input modes fall back to their
// defaults, and the timeout is clamped to the supported window.
func (r *Request) Normalize(requireRoomID bool) error {
	r.Text = strings.TrimSpace(r.Text)
	if r.Text == "" {
		return &ValidationError{Msg: "text is required"}
	}
	if len([]rune(r.Text)) > MaxTextLength {
		return &ValidationError{Msg: fmt.Sprintf("text is too long, max %d characters", MaxTextLength)}
	}

	if r.Model != ModelSC {
		r.Model = ModelO
	}
	if r.InputMode != InputAudioFile {
		r.InputMode = InputText
	}

	if r.TimeoutMs == 0 {
		r.TimeoutMs = defaultTimeoutMs
	}
	if r.TimeoutMs < minTimeoutMs {
		r.TimeoutMs = minTimeoutMs
	}
	if r.TimeoutMs > maxTimeoutMs {
		r.TimeoutMs = maxTimeoutMs
	}

	r.Speaker = strings.TrimSpace(r.Speaker)

	r.RoomID = strings.TrimSpace(r.RoomID)
	if requireRoomID && r.RoomID == "" {
		return &ValidationError{Msg: "roomId is required"}
	}
	return nil
}

// Timeout returns the normalized per-step wait bound.
func (r *Request) Timeout() time.Duration {
	return time.Duration(r.TimeoutMs) * time.Millisecond
}
