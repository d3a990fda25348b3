package protocol

import "fmt"

// EventID tags the semantic meaning of a frame: commands sent by the
// client and notifications emitted by the service.
type EventID int32

const (
	// Connection lifecycle (connection-scoped, ids < 100).
	EventStartConnection   EventID = 1
	EventFinishConnection  EventID = 2
	EventConnectionStarted EventID = 50
	EventConnectionFailed  EventID = 51

	// Session lifecycle.
	EventStartSession    EventID = 100
	EventFinishSession   EventID = 102
	EventSessionStarted  EventID = 150
	EventSessionFinished EventID = 152
	EventSessionFailed   EventID = 153

	// Dialogue content. EventAudioChunk frames carry raw PCM rather
	// than JSON.
	EventAudioChunk    EventID = 352
	EventTTSEnded      EventID = 359
	EventChatTextQuery EventID = 501
	EventChatResponse  EventID = 550
)

// sessionScopedMin is the id threshold above which frames carry a
// session id block. The rule is symmetric between encode and decode.
const sessionScopedMin = 100

// SessionScoped reports whether frames for this event include a session id.
func (e EventID) SessionScoped() bool {
	return e >= sessionScopedMin
}

var eventNames = map[EventID]string{
	EventStartConnection:   "StartConnection",
	EventFinishConnection:  "FinishConnection",
	EventConnectionStarted: "ConnectionStarted",
	EventConnectionFailed:  "ConnectionFailed",
	EventStartSession:      "StartSession",
	EventFinishSession:     "FinishSession",
	EventSessionStarted:    "SessionStarted",
	EventSessionFinished:   "SessionFinished",
	EventSessionFailed:     "SessionFailed",
	EventAudioChunk:        "AudioChunk",
	EventTTSEnded:          "TTSEnded",
	EventChatTextQuery:     "ChatTextQuery",
	EventChatResponse:      "ChatResponse",
}

// Name resolves a catalog name, or a synthetic "EventN" for ids the
// catalog does not know.
func (e EventID) Name() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Event%d", e)
}
