// Package realtime drives probe sessions against the streaming speech
// dialogue service: one websocket connection per probe, a linear
// protocol state machine, and an event timeline collected along the way.
package realtime

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Randy-sin/dse-realtime-gateway/internal/metrics"
	"github.com/Randy-sin/dse-realtime-gateway/internal/realtime/protocol"
)

// finishGraceDefault bounds the best-effort wait for SessionFinished.
// Independent of the caller's timeout: by that point the dialogue
// content is already fully captured, so a late event is non-fatal.
const finishGraceDefault = 3 * time.Second

// Dialer runs dialogue probes. Each Probe call opens its own socket and
// timeline; nothing is shared between concurrent probes.
type Dialer struct {
	cfg         ConfigProvider
	finishGrace time.Duration
}

// NewDialer creates a Dialer that resolves connection parameters
// through the given provider on every probe attempt.
func NewDialer(cfg ConfigProvider) *Dialer {
	return &Dialer{cfg: cfg, finishGrace: finishGraceDefault}
}

// session is the per-probe state. The read loop is the only writer of
// the accumulators; Probe reads them after the loop has exited.
type session struct {
	conn     *websocket.Conn
	timeline *Timeline
	done     chan struct{}

	chatText   []byte
	audioB64   []string
	audioBytes int
	pcm        []byte
}

// Probe runs one complete dialogue exchange: connect, start connection,
// start session, send the query, await completion, then tear down. The
// request must already be normalized. All-or-nothing: no partial result
// is returned on failure, and no retries are attempted here.
func (d *Dialer) Probe(ctx context.Context, req Request) (*Result, error) {
	cfg, err := d.cfg.Resolve()
	if err != nil {
		return nil, err
	}

	timeout := req.Timeout()
	if timeout <= 0 {
		timeout = defaultTimeoutMs * time.Millisecond
	}

	sessionID := uuid.NewString()
	connectID := uuid.NewString()
	start := time.Now()

	metrics.ProbesTotal.Inc()
	metrics.ProbesActive.Inc()
	defer metrics.ProbesActive.Dec()

	slog.Info("probe started", "session_id", sessionID, "model", req.Model, "timeout_ms", req.TimeoutMs)

	header := http.Header{}
	header.Set("X-Api-App-ID", cfg.AppID)
	header.Set("X-Api-Access-Key", cfg.AccessKey)
	header.Set("X-Api-Resource-Id", cfg.ResourceID)
	header.Set("X-Api-App-Key", cfg.AppKey)
	header.Set("X-Api-Connect-Id", connectID)

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(dialCtx, cfg.URL, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		metrics.ProbeErrors.WithLabelValues("connect").Inc()
		if isTimeout(err) {
			return nil, &TimeoutError{Step: "connect"}
		}
		return nil, fmt.Errorf("realtime websocket connect: %w", err)
	}

	s := &session{
		conn:     conn,
		timeline: NewTimeline(),
		done:     make(chan struct{}),
	}
	go s.readLoop()

	err = d.runSteps(s, req, sessionID, timeout)

	// Teardown runs on every exit path: best-effort FinishConnection,
	// socket close, then wait for the read loop to detach.
	if sendErr := s.send(protocol.EventFinishConnection, nil, ""); sendErr != nil {
		slog.Debug("finish connection send", "session_id", sessionID, "error", sendErr)
	}
	conn.Close()
	<-s.done

	if err != nil {
		metrics.ProbeErrors.WithLabelValues(stepLabel(err)).Inc()
		slog.Error("probe failed", "session_id", sessionID, "error", err)
		return nil, err
	}

	latency := time.Since(start)
	metrics.ProbeDuration.Observe(latency.Seconds())

	res := &Result{
		SessionID:         sessionID,
		ChatText:          string(s.chatText),
		EventTimeline:     s.timeline.Items(),
		AudioChunksBase64: s.audioB64,
		TotalAudioBytes:   s.audioBytes,
		LatencyMs:         latency.Milliseconds(),
		PCM:               s.pcm,
	}
	slog.Info("probe finished", "session_id", sessionID,
		"latency_ms", res.LatencyMs, "chat_len", len(res.ChatText),
		"audio_chunks", len(res.AudioChunksBase64), "audio_bytes", res.TotalAudioBytes)
	return res, nil
}

// runSteps walks the protocol state machine after the socket is open.
func (d *Dialer) runSteps(s *session, req Request, sessionID string, timeout time.Duration) error {
	if err := s.send(protocol.EventStartConnection, nil, ""); err != nil {
		return err
	}
	if _, err := s.await(protocol.EventConnectionStarted, timeout); err != nil {
		return err
	}

	if err := s.send(protocol.EventStartSession, startSessionPayload(req), sessionID); err != nil {
		return err
	}
	if _, err := s.await(protocol.EventSessionStarted, timeout); err != nil {
		return err
	}

	if err := s.send(protocol.EventChatTextQuery, map[string]any{"content": req.Text}, sessionID); err != nil {
		return err
	}
	if _, err := s.await(protocol.EventTTSEnded, timeout); err != nil {
		return err
	}

	if err := s.send(protocol.EventFinishSession, nil, sessionID); err != nil {
		return err
	}
	if _, err := s.await(protocol.EventSessionFinished, d.finishGrace); err != nil {
		// SessionFinished may arrive late or not at all; the dialogue
		// content is already complete, so carry on.
		slog.Warn("session finished event not received", "session_id", sessionID, "error", err)
	}
	return nil
}

// startSessionPayload selects the dialogue model variant, the optional
// speaker, and the fixed output audio shape (24kHz mono s16le PCM).
func startSessionPayload(req Request) map[string]any {
	tts := map[string]any{
		"audio_config": map[string]any{
			"channel":     1,
			"format":      "pcm_s16le",
			"sample_rate": 24000,
		},
	}
	if req.Speaker != "" {
		tts["speaker"] = req.Speaker
	}
	return map[string]any{
		"dialog": map[string]any{
			"extra": map[string]any{
				"model":     string(req.Model),
				"input_mod": string(req.InputMode),
			},
		},
		"tts": tts,
	}
}

func (s *session) send(event protocol.EventID, payload any, sessionID string) error {
	buf, err := protocol.EncodeEventFrame(event, payload, sessionID)
	if err != nil {
		return err
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, buf); err != nil {
		return fmt.Errorf("send %s: %w", event.Name(), err)
	}
	return nil
}

// await blocks until the expected event arrives, surfacing failure
// frames (error frames, ConnectionFailed, SessionFailed) as typed
// errors instead of running out the clock.
func (s *session) await(event protocol.EventID, timeout time.Duration) (*protocol.Frame, error) {
	f, err := s.timeline.WaitFor(func(f *protocol.Frame) bool {
		return isFailure(f) || (f.HasEvent && f.EventID == event)
	}, timeout, event.Name())
	if err != nil {
		return nil, err
	}
	if isFailure(f) {
		return nil, failureError(f)
	}
	return f, nil
}

// readLoop decodes every inbound message, appends it to the timeline,
// and accumulates chat text and audio chunks in arrival order. It is
// the timeline's single producer and exits when the socket closes.
func (s *session) readLoop() {
	defer close(s.done)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.timeline.Fail(fmt.Errorf("realtime socket closed: %w", err))
			return
		}

		frame, err := protocol.ParseFrame(data)
		if err != nil {
			// A malformed frame is a hard failure of the read path.
			s.timeline.Fail(err)
			s.conn.Close()
			return
		}

		metrics.FramesReceived.WithLabelValues(frame.EventName()).Inc()

		if frame.HasEvent {
			switch frame.EventID {
			case protocol.EventChatResponse:
				if payload := frame.DecodePayload(); payload != nil {
					if content, ok := payload["content"].(string); ok {
						s.chatText = append(s.chatText, content...)
					}
				}
			case protocol.EventAudioChunk:
				s.audioBytes += len(frame.Payload)
				s.audioB64 = append(s.audioB64, base64.StdEncoding.EncodeToString(frame.Payload))
				s.pcm = append(s.pcm, frame.Payload...)
				metrics.AudioBytes.Add(float64(len(frame.Payload)))
			}
		}

		s.timeline.Append(frame)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// stepLabel buckets a probe failure for metrics.
func stepLabel(err error) string {
	var te *TimeoutError
	if errors.As(err, &te) {
		return te.Step
	}
	var fe *FailureError
	if errors.As(err, &fe) {
		return "failure_event"
	}
	if errors.Is(err, protocol.ErrInvalidFrame) {
		return "decode"
	}
	return "transport"
}
