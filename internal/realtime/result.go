package realtime

// Result is the terminal artifact of one dialogue probe. ChatText
// concatenates response fragments in arrival order; audio chunks keep
// arrival order, which downstream playback reconstruction relies on.
type Result struct {
	SessionID         string   `json:"sessionId"`
	ChatText          string   `json:"chatText"`
	EventTimeline     []Item   `json:"eventTimeline"`
	AudioChunksBase64 []string `json:"audioChunksBase64"`
	TotalAudioBytes   int      `json:"totalAudioBytes"`
	LatencyMs         int64    `json:"latencyMs"`

	// PCM is the raw little-endian s16 audio, all chunks concatenated.
	// Kept out of the JSON shape; the history store persists it for the
	// WAV download endpoint.
	PCM []byte `json:"-"`
}
