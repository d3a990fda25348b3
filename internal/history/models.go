package history

import (
	"time"

	"github.com/Randy-sin/dse-realtime-gateway/internal/realtime"
)

// ProbeRecord is one persisted dialogue probe.
type ProbeRecord struct {
	ID              string          `json:"id"`
	RoomID          string          `json:"roomId,omitempty"`
	InputText       string          `json:"inputText"`
	ChatText        string          `json:"chatText"`
	LatencyMs       int64           `json:"latencyMs"`
	TotalAudioBytes int             `json:"totalAudioBytes"`
	AudioChunkCount int             `json:"audioChunkCount"`
	Timeline        []realtime.Item `json:"eventTimeline,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}
