package realtime

import (
	"errors"
	"testing"
	"time"

	"github.com/Randy-sin/dse-realtime-gateway/internal/realtime/protocol"
)

func eventFrame(id protocol.EventID) *protocol.Frame {
	return &protocol.Frame{
		MessageType:   protocol.MsgFullServerReply,
		Flags:         protocol.FlagHasEvent,
		Serialization: protocol.SerializationJSON,
		EventID:       id,
		HasEvent:      true,
		Payload:       []byte("{}"),
	}
}

func TestWaitFor_AlreadyPresent(t *testing.T) {
	tl := NewTimeline()
	tl.Append(eventFrame(protocol.EventConnectionStarted))
	tl.Append(eventFrame(protocol.EventSessionStarted))
	tl.Append(eventFrame(protocol.EventTTSEnded))

	f, err := tl.WaitFor(func(f *protocol.Frame) bool {
		return f.EventID == protocol.EventTTSEnded
	}, 50*time.Millisecond, "TTSEnded")
	if err != nil {
		t.Fatalf("WaitFor() error = %v", err)
	}
	if f.EventID != protocol.EventTTSEnded {
		t.Fatalf("matched event = %v, want TTSEnded", f.EventID)
	}
}

func TestWaitFor_RegisteredBeforeArrival(t *testing.T) {
	tl := NewTimeline()

	type waited struct {
		f   *protocol.Frame
		err error
	}
	got := make(chan waited, 1)
	go func() {
		f, err := tl.WaitFor(func(f *protocol.Frame) bool {
			return f.EventID == protocol.EventSessionStarted
		}, time.Second, "SessionStarted")
		got <- waited{f, err}
	}()

	time.Sleep(10 * time.Millisecond)
	tl.Append(eventFrame(protocol.EventConnectionStarted))
	tl.Append(eventFrame(protocol.EventSessionStarted))

	select {
	case w := <-got:
		if w.err != nil {
			t.Fatalf("WaitFor() error = %v", w.err)
		}
		if w.f.EventID != protocol.EventSessionStarted {
			t.Fatalf("matched event = %v, want SessionStarted", w.f.EventID)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter did not resolve after arrival")
	}
}

func TestWaitFor_Timeout(t *testing.T) {
	tl := NewTimeline()
	tl.Append(eventFrame(protocol.EventConnectionStarted))

	start := time.Now()
	_, err := tl.WaitFor(func(f *protocol.Frame) bool { return false }, 50*time.Millisecond, "SessionStarted")
	elapsed := time.Since(start)

	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("WaitFor() error = %v, want TimeoutError", err)
	}
	if te.Step != "SessionStarted" {
		t.Fatalf("timeout step = %q, want SessionStarted", te.Step)
	}
	if elapsed < 50*time.Millisecond {
		t.Fatalf("timed out after %v, before the deadline", elapsed)
	}
	if elapsed > 500*time.Millisecond {
		t.Fatalf("timed out after %v, far past the deadline", elapsed)
	}
}

func TestWaitFor_FailWakesWaiter(t *testing.T) {
	tl := NewTimeline()
	failErr := errors.New("socket closed")

	got := make(chan error, 1)
	go func() {
		_, err := tl.WaitFor(func(f *protocol.Frame) bool { return false }, time.Second, "TTSEnded")
		got <- err
	}()

	time.Sleep(10 * time.Millisecond)
	tl.Fail(failErr)

	select {
	case err := <-got:
		if !errors.Is(err, failErr) {
			t.Fatalf("WaitFor() error = %v, want the fail cause", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter did not observe Fail")
	}
}

func TestItems_ArrivalOrder(t *testing.T) {
	tl := NewTimeline()
	order := []protocol.EventID{
		protocol.EventConnectionStarted,
		protocol.EventSessionStarted,
		protocol.EventChatResponse,
		protocol.EventTTSEnded,
	}
	for _, id := range order {
		tl.Append(eventFrame(id))
	}

	items := tl.Items()
	if len(items) != len(order) {
		t.Fatalf("len(items) = %d, want %d", len(items), len(order))
	}
	for i, id := range order {
		if items[i].EventName != id.Name() {
			t.Errorf("items[%d] = %q, want %q", i, items[i].EventName, id.Name())
		}
		if items[i].EventID == nil || *items[i].EventID != int32(id) {
			t.Errorf("items[%d] event id mismatch", i)
		}
	}
}

func TestItems_AudioChunkByteLength(t *testing.T) {
	tl := NewTimeline()
	f := &protocol.Frame{
		MessageType:   protocol.MsgFullServerReply,
		Flags:         protocol.FlagHasEvent,
		Serialization: protocol.SerializationRaw,
		EventID:       protocol.EventAudioChunk,
		HasEvent:      true,
		Payload:       make([]byte, 320),
	}
	tl.Append(f)

	items := tl.Items()
	if items[0].AudioBytes != 320 {
		t.Fatalf("audio bytes = %d, want 320", items[0].AudioBytes)
	}
	if items[0].EventName != "AudioChunk" {
		t.Fatalf("event name = %q, want AudioChunk", items[0].EventName)
	}
}
