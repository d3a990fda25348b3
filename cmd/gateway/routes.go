package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Randy-sin/dse-realtime-gateway/internal/audio"
	"github.com/Randy-sin/dse-realtime-gateway/internal/history"
	"github.com/Randy-sin/dse-realtime-gateway/internal/realtime"
)

// defaultProbeListLimit is how many probes are returned when the caller
// omits the ?limit= query parameter.
const defaultProbeListLimit = 20

// prober runs one dialogue probe; satisfied by *realtime.Dialer.
type prober interface {
	Probe(ctx context.Context, req realtime.Request) (*realtime.Result, error)
}

// probeHistory is the persistence surface used by the HTTP layer;
// satisfied by *history.Store. Nil when no database is configured.
type probeHistory interface {
	SaveProbe(roomID, inputText string, res *realtime.Result) error
	ListProbes(limit, offset int) ([]history.ProbeRecord, int, error)
	GetProbe(id string) (*history.ProbeRecord, error)
	GetProbeAudio(id string) ([]byte, error)
	IsMember(roomID, userID string) (bool, error)
}

type deps struct {
	dialer  prober
	history probeHistory
}

// registerRoutes wires all HTTP endpoints to the shared mux.
func registerRoutes(mux *http.ServeMux, d deps) {
	mux.HandleFunc("POST /api/realtime/probe", d.handleProbe)
	mux.HandleFunc("POST /api/realtime/respond", d.handleRespond)
	mux.HandleFunc("GET /api/probes", d.handleProbeList)
	mux.HandleFunc("GET /api/probes/{id}", d.handleProbeGet)
	mux.HandleFunc("GET /api/probes/{id}/audio", d.handleProbeAudio)
	mux.HandleFunc("/health", handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (d deps) handleProbe(w http.ResponseWriter, r *http.Request) {
	var req realtime.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &realtime.ValidationError{Msg: "invalid request body"})
		return
	}
	if err := req.Normalize(false); err != nil {
		writeError(w, err)
		return
	}
	d.runProbe(w, r, req)
}

func (d deps) handleRespond(w http.ResponseWriter, r *http.Request) {
	var req realtime.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &realtime.ValidationError{Msg: "invalid request body"})
		return
	}
	if err := req.Normalize(true); err != nil {
		writeError(w, err)
		return
	}

	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, realtime.ErrUnauthorized)
		return
	}
	if d.history == nil {
		writeError(w, &realtime.ConfigError{Variable: "DATABASE_URL"})
		return
	}
	member, err := d.history.IsMember(req.RoomID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !member {
		writeError(w, realtime.ErrForbidden)
		return
	}
	d.runProbe(w, r, req)
}

func (d deps) runProbe(w http.ResponseWriter, r *http.Request, req realtime.Request) {
	res, err := d.dialer.Probe(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	if d.history != nil {
		if err := d.history.SaveProbe(req.RoomID, req.Text, res); err != nil {
			slog.Error("probe history save", "session_id", res.SessionID, "error", err)
		}
	}

	resp := map[string]any{
		"ok":              true,
		"sessionId":       res.SessionID,
		"chatText":        res.ChatText,
		"latencyMs":       res.LatencyMs,
		"totalAudioBytes": res.TotalAudioBytes,
		"eventTimeline":   res.EventTimeline,
		"audioChunkCount": len(res.AudioChunksBase64),
	}
	if req.IncludeAudioChunks {
		resp["audioChunksBase64"] = res.AudioChunksBase64
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d deps) handleProbeList(w http.ResponseWriter, r *http.Request) {
	if d.history == nil {
		writeError(w, realtime.ErrNotFound)
		return
	}
	limit := queryInt(r, "limit", defaultProbeListLimit)
	offset := queryInt(r, "offset", 0)
	probes, total, err := d.history.ListProbes(limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"probes": probes, "total": total})
}

func (d deps) handleProbeGet(w http.ResponseWriter, r *http.Request) {
	if d.history == nil {
		writeError(w, realtime.ErrNotFound)
		return
	}
	probe, err := d.history.GetProbe(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, probe)
}

func (d deps) handleProbeAudio(w http.ResponseWriter, r *http.Request) {
	if d.history == nil {
		writeError(w, realtime.ErrNotFound)
		return
	}
	pcm, err := d.history.GetProbeAudio(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Write(audio.PCMToWAV(pcm, audio.DialogueSampleRate))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps the typed error taxonomy to an HTTP status in one
// place; handlers never inspect error text.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, httpStatusFor(err), map[string]any{"ok": false, "error": err.Error()})
}

func httpStatusFor(err error) int {
	var ve *realtime.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, realtime.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, realtime.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, realtime.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
