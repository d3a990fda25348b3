package realtime

import (
	"sync"
	"time"

	"github.com/Randy-sin/dse-realtime-gateway/internal/realtime/protocol"
)

// Item is one entry in the per-probe event timeline, recorded per
// received frame in arrival order and never mutated afterwards.
type Item struct {
	EventID    *int32         `json:"eventId,omitempty"`
	EventName  string         `json:"eventName"`
	At         time.Time      `json:"at"`
	Payload    map[string]any `json:"payload,omitempty"`
	AudioBytes int            `json:"audioBytes,omitempty"`
}

// Timeline is an append-only log of received frames with a blocking
// wait primitive. Exactly one producer (the connection read loop)
// appends; any number of waiters block on WaitFor concurrently. Waiters
// are woken by a broadcast channel that is closed and replaced on every
// append, so a waiter registered before or after arrival sees the same
// frames.
type Timeline struct {
	mu      sync.Mutex
	frames  []*protocol.Frame
	items   []Item
	err     error
	arrived chan struct{}
}

// NewTimeline creates an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{arrived: make(chan struct{})}
}

// Append records a received frame and wakes all waiters.
func (t *Timeline) Append(f *protocol.Frame) {
	item := Item{
		EventName: f.EventName(),
		At:        time.Now(),
		Payload:   f.DecodePayload(),
	}
	if f.HasEvent {
		id := int32(f.EventID)
		item.EventID = &id
		if f.EventID == protocol.EventAudioChunk {
			item.AudioBytes = len(f.Payload)
		}
	}

	t.mu.Lock()
	t.frames = append(t.frames, f)
	t.items = append(t.items, item)
	close(t.arrived)
	t.arrived = make(chan struct{})
	t.mu.Unlock()
}

// Fail terminates the timeline: pending and future waits that find no
// match among already-received frames return err instead of blocking
// until their timeout. Called by the read loop on decode or transport
// failure.
func (t *Timeline) Fail(err error) {
	t.mu.Lock()
	if t.err == nil {
		t.err = err
		close(t.arrived)
		t.arrived = make(chan struct{})
	}
	t.mu.Unlock()
}

// Items returns a snapshot of the timeline in arrival order.
func (t *Timeline) Items() []Item {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Item, len(t.items))
	copy(out, t.items)
	return out
}

// WaitFor blocks until a frame matching match has arrived, the timeline
// fails, or timeout elapses. A frame already in the log resolves
// immediately. The what label names the awaited event in the timeout
// error.
func (t *Timeline) WaitFor(match func(*protocol.Frame) bool, timeout time.Duration, what string) (*protocol.Frame, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	next := 0
	for {
		t.mu.Lock()
		frames := t.frames
		failed := t.err
		arrived := t.arrived
		t.mu.Unlock()

		for ; next < len(frames); next++ {
			if match(frames[next]) {
				return frames[next], nil
			}
		}
		if failed != nil {
			return nil, failed
		}

		select {
		case <-arrived:
		case <-deadline.C:
			return nil, &TimeoutError{Step: what}
		}
	}
}
