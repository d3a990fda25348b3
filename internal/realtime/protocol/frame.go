// Package protocol implements the binary framing of the realtime speech
// dialogue service: a 4-byte header, an optional event id, an optional
// session id for session-scoped events, and a length-prefixed payload.
// All multi-byte integers are big-endian.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidFrame reports inbound bytes that cannot be parsed as a frame.
var ErrInvalidFrame = errors.New("invalid frame")

// Header field values. Byte 1 packs messageType (high nibble) and flags
// (low nibble); byte 2 packs serialization and compression the same way.
const (
	MsgFullClientRequest = 0b0001
	MsgFullServerReply   = 0b1001
	MsgError             = 0b1111

	FlagHasEvent = 0b0100

	SerializationRaw  = 0b0000
	SerializationJSON = 0b0001

	CompressionNone = 0b0000
)

// minFrameSize is the 4-byte header plus the 4-byte payload length field.
const minFrameSize = 8

// Frame is one decoded wire message.
type Frame struct {
	MessageType   uint8
	Flags         uint8
	Serialization uint8
	Compression   uint8

	// ErrorCode is set only for error frames (MessageType == MsgError).
	ErrorCode int32

	// EventID is valid only when HasEvent is true.
	EventID  EventID
	HasEvent bool

	// SessionID is empty when the frame carries none. Session-scoped
	// events with a declared zero-length session id also decode to "".
	SessionID string

	Payload []byte
}

// EncodeEventFrame builds a full-client-request frame for the given event.
// The payload is JSON-serialized; nil means an empty object. A session id
// must only be supplied for session-scoped events (ids >= 100); the
// encoder trusts the caller, the decoder enforces the threshold.
func EncodeEventFrame(event EventID, payload any, sessionID string) ([]byte, error) {
	body := []byte("{}")
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", event.Name(), err)
		}
	}

	size := minFrameSize + 4 + len(body)
	if sessionID != "" {
		size += 4 + len(sessionID)
	}

	buf := make([]byte, 0, size)
	buf = append(buf,
		0x11, // protocol version 1, header size 1 word
		MsgFullClientRequest<<4|FlagHasEvent,
		SerializationJSON<<4|CompressionNone,
		0x00,
	)
	buf = binary.BigEndian.AppendUint32(buf, uint32(event))
	if sessionID != "" {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(sessionID)))
		buf = append(buf, sessionID...)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(body)))
	buf = append(buf, body...)
	return buf, nil
}

// ParseFrame decodes one inbound wire message. Every declared length is
// checked against the remaining buffer; overruns fail with ErrInvalidFrame
// rather than trusting the transport framing.
func ParseFrame(raw []byte) (*Frame, error) {
	if len(raw) < minFrameSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrInvalidFrame, len(raw), minFrameSize)
	}

	f := &Frame{
		MessageType:   raw[1] >> 4,
		Flags:         raw[1] & 0x0F,
		Serialization: raw[2] >> 4,
		Compression:   raw[2] & 0x0F,
	}
	offset := 4

	if f.MessageType == MsgError {
		code, err := readInt32(raw, &offset, "error code")
		if err != nil {
			return nil, err
		}
		f.ErrorCode = code
	}

	if f.Flags == FlagHasEvent {
		id, err := readInt32(raw, &offset, "event id")
		if err != nil {
			return nil, err
		}
		f.EventID = EventID(id)
		f.HasEvent = true
	}

	if f.HasEvent && f.EventID.SessionScoped() {
		n, err := readInt32(raw, &offset, "session id length")
		if err != nil {
			return nil, err
		}
		if n < 0 || offset+int(n) > len(raw) {
			return nil, fmt.Errorf("%w: session id length %d exceeds remaining %d bytes", ErrInvalidFrame, n, len(raw)-offset)
		}
		if n > 0 {
			f.SessionID = string(raw[offset : offset+int(n)])
			offset += int(n)
		}
	}

	n, err := readInt32(raw, &offset, "payload length")
	if err != nil {
		return nil, err
	}
	if n < 0 || offset+int(n) > len(raw) {
		return nil, fmt.Errorf("%w: payload length %d exceeds remaining %d bytes", ErrInvalidFrame, n, len(raw)-offset)
	}
	f.Payload = raw[offset : offset+int(n)]
	return f, nil
}

func readInt32(raw []byte, offset *int, field string) (int32, error) {
	if *offset+4 > len(raw) {
		return 0, fmt.Errorf("%w: truncated %s", ErrInvalidFrame, field)
	}
	v := int32(binary.BigEndian.Uint32(raw[*offset:]))
	*offset += 4
	return v, nil
}

// DecodePayload interprets the payload bytes according to the frame's
// serialization tag. JSON payloads decode into a generic map; malformed
// JSON falls back to {"raw": <utf8 text>} instead of failing. Raw
// payloads (audio chunks) return nil.
func (f *Frame) DecodePayload() map[string]any {
	if f.Serialization != SerializationJSON {
		return nil
	}
	if len(f.Payload) == 0 {
		return map[string]any{}
	}
	var decoded map[string]any
	if err := json.Unmarshal(f.Payload, &decoded); err != nil {
		return map[string]any{"raw": string(f.Payload)}
	}
	return decoded
}

// EventName resolves the frame's event id to its catalog name, or
// "Unknown" when the frame carries no event id.
func (f *Frame) EventName() string {
	if !f.HasEvent {
		return "Unknown"
	}
	return f.EventID.Name()
}
