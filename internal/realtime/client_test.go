package realtime

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Randy-sin/dse-realtime-gateway/internal/realtime/protocol"
)

var testUpgrader = websocket.Upgrader{}

type fakeConfig struct {
	url string
}

func (c fakeConfig) Resolve() (Config, error) {
	return Config{AppID: "app", AccessKey: "key", ResourceID: "res", AppKey: "ak", URL: c.url}, nil
}

// startFakePeer runs a scripted dialogue service and returns a Dialer
// pointed at it. handle is invoked once per client frame.
func startFakePeer(t *testing.T, handle func(conn *websocket.Conn, f *protocol.Frame)) *Dialer {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Api-App-ID"); got != "app" {
			t.Errorf("X-Api-App-ID = %q, want app", got)
		}
		if r.Header.Get("X-Api-Connect-Id") == "" {
			t.Error("missing X-Api-Connect-Id header")
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			f, err := protocol.ParseFrame(data)
			if err != nil {
				t.Errorf("parse client frame: %v", err)
				return
			}
			handle(conn, f)
		}
	}))
	t.Cleanup(srv.Close)

	d := NewDialer(fakeConfig{url: "ws" + strings.TrimPrefix(srv.URL, "http")})
	d.finishGrace = 200 * time.Millisecond
	return d
}

func reply(t *testing.T, conn *websocket.Conn, event protocol.EventID, payload any, sessionID string) {
	t.Helper()
	buf, err := protocol.EncodeEventFrame(event, payload, sessionID)
	if err != nil {
		t.Errorf("encode reply: %v", err)
		return
	}
	buf[1] = protocol.MsgFullServerReply<<4 | protocol.FlagHasEvent
	if err := conn.WriteMessage(websocket.BinaryMessage, buf); err != nil {
		t.Errorf("write reply: %v", err)
	}
}

// replyAudioChunk sends an AudioChunk frame carrying n raw bytes.
func replyAudioChunk(t *testing.T, conn *websocket.Conn, sessionID string, n int) {
	t.Helper()
	buf := []byte{0x11, protocol.MsgFullServerReply<<4 | protocol.FlagHasEvent, 0x00, 0x00}
	buf = binary.BigEndian.AppendUint32(buf, uint32(protocol.EventAudioChunk))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(sessionID)))
	buf = append(buf, sessionID...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(n))
	buf = append(buf, make([]byte, n)...)
	if err := conn.WriteMessage(websocket.BinaryMessage, buf); err != nil {
		t.Errorf("write audio chunk: %v", err)
	}
}

func testRequest(text string) Request {
	return Request{Text: text, Model: ModelO, InputMode: InputText, TimeoutMs: 5000}
}

func TestProbe_EndToEnd(t *testing.T) {
	d := startFakePeer(t, func(conn *websocket.Conn, f *protocol.Frame) {
		switch f.EventID {
		case protocol.EventStartConnection:
			reply(t, conn, protocol.EventConnectionStarted, nil, "")
		case protocol.EventStartSession:
			reply(t, conn, protocol.EventSessionStarted, nil, f.SessionID)
		case protocol.EventChatTextQuery:
			reply(t, conn, protocol.EventChatResponse, map[string]any{"content": "Hi"}, f.SessionID)
			reply(t, conn, protocol.EventTTSEnded, nil, f.SessionID)
		case protocol.EventFinishSession:
			reply(t, conn, protocol.EventSessionFinished, nil, f.SessionID)
		}
	})

	res, err := d.Probe(context.Background(), testRequest("Hello"))
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if res.ChatText != "Hi" {
		t.Errorf("chat text = %q, want Hi", res.ChatText)
	}
	if len(res.EventTimeline) != 5 {
		t.Errorf("timeline length = %d, want 5", len(res.EventTimeline))
	}
	if res.LatencyMs < 0 {
		t.Errorf("latency = %d, want >= 0", res.LatencyMs)
	}
	if res.SessionID == "" {
		t.Error("empty session id")
	}
	if res.TotalAudioBytes != 0 || len(res.AudioChunksBase64) != 0 {
		t.Errorf("unexpected audio: %d bytes, %d chunks", res.TotalAudioBytes, len(res.AudioChunksBase64))
	}
}

func TestProbe_AccumulatesFragmentsAndAudio(t *testing.T) {
	d := startFakePeer(t, func(conn *websocket.Conn, f *protocol.Frame) {
		switch f.EventID {
		case protocol.EventStartConnection:
			reply(t, conn, protocol.EventConnectionStarted, nil, "")
		case protocol.EventStartSession:
			reply(t, conn, protocol.EventSessionStarted, nil, f.SessionID)
		case protocol.EventChatTextQuery:
			reply(t, conn, protocol.EventChatResponse, map[string]any{"content": "Hello, "}, f.SessionID)
			reply(t, conn, protocol.EventChatResponse, map[string]any{"content": "world!"}, f.SessionID)
			replyAudioChunk(t, conn, f.SessionID, 100)
			replyAudioChunk(t, conn, f.SessionID, 200)
			replyAudioChunk(t, conn, f.SessionID, 50)
			reply(t, conn, protocol.EventTTSEnded, nil, f.SessionID)
		case protocol.EventFinishSession:
			reply(t, conn, protocol.EventSessionFinished, nil, f.SessionID)
		}
	})

	res, err := d.Probe(context.Background(), testRequest("Say hello"))
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if res.ChatText != "Hello, world!" {
		t.Errorf("chat text = %q, want %q", res.ChatText, "Hello, world!")
	}
	if res.TotalAudioBytes != 350 {
		t.Errorf("total audio bytes = %d, want 350", res.TotalAudioBytes)
	}
	if len(res.AudioChunksBase64) != 3 {
		t.Fatalf("audio chunks = %d, want 3", len(res.AudioChunksBase64))
	}
	for i, want := range []int{100, 200, 50} {
		raw, err := base64.StdEncoding.DecodeString(res.AudioChunksBase64[i])
		if err != nil {
			t.Fatalf("chunk %d: %v", i, err)
		}
		if len(raw) != want {
			t.Errorf("chunk %d length = %d, want %d", i, len(raw), want)
		}
	}
	if len(res.PCM) != 350 {
		t.Errorf("raw pcm length = %d, want 350", len(res.PCM))
	}
}

func TestProbe_MissingCredentialFailsBeforeDialing(t *testing.T) {
	os.Unsetenv("DOUBAO_APP_ID")
	os.Unsetenv("DOUBAO_ACCESS_KEY")

	d := NewDialer(EnvConfig{})
	_, err := d.Probe(context.Background(), testRequest("Hello"))

	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("Probe() error = %v, want ConfigError", err)
	}
	if ce.Variable != "DOUBAO_APP_ID" {
		t.Fatalf("missing variable = %q, want DOUBAO_APP_ID", ce.Variable)
	}
}

func TestProbe_SessionFailedAborts(t *testing.T) {
	d := startFakePeer(t, func(conn *websocket.Conn, f *protocol.Frame) {
		switch f.EventID {
		case protocol.EventStartConnection:
			reply(t, conn, protocol.EventConnectionStarted, nil, "")
		case protocol.EventStartSession:
			reply(t, conn, protocol.EventSessionFailed, map[string]any{"error": "quota exceeded"}, f.SessionID)
		}
	})

	_, err := d.Probe(context.Background(), testRequest("Hello"))
	var fe *FailureError
	if !errors.As(err, &fe) {
		t.Fatalf("Probe() error = %v, want FailureError", err)
	}
	if fe.Message != "quota exceeded" {
		t.Fatalf("failure message = %q, want quota exceeded", fe.Message)
	}
}

func TestProbe_MissingSessionFinishedIsNonFatal(t *testing.T) {
	d := startFakePeer(t, func(conn *websocket.Conn, f *protocol.Frame) {
		switch f.EventID {
		case protocol.EventStartConnection:
			reply(t, conn, protocol.EventConnectionStarted, nil, "")
		case protocol.EventStartSession:
			reply(t, conn, protocol.EventSessionStarted, nil, f.SessionID)
		case protocol.EventChatTextQuery:
			reply(t, conn, protocol.EventChatResponse, map[string]any{"content": "Hi"}, f.SessionID)
			reply(t, conn, protocol.EventTTSEnded, nil, f.SessionID)
		}
		// FinishSession deliberately unanswered.
	})

	res, err := d.Probe(context.Background(), testRequest("Hello"))
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if res.ChatText != "Hi" {
		t.Errorf("chat text = %q, want Hi", res.ChatText)
	}
	if len(res.EventTimeline) != 4 {
		t.Errorf("timeline length = %d, want 4", len(res.EventTimeline))
	}
}

func TestProbe_AwaitTimeout(t *testing.T) {
	d := startFakePeer(t, func(conn *websocket.Conn, f *protocol.Frame) {
		if f.EventID == protocol.EventStartConnection {
			reply(t, conn, protocol.EventConnectionStarted, nil, "")
		}
		// StartSession deliberately unanswered.
	})

	req := testRequest("Hello")
	req.TimeoutMs = 300
	_, err := d.Probe(context.Background(), req)

	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("Probe() error = %v, want TimeoutError", err)
	}
	if te.Step != "SessionStarted" {
		t.Fatalf("timed-out step = %q, want SessionStarted", te.Step)
	}
}
