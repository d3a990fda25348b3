package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProbesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_probes_active",
		Help: "Currently running dialogue probes",
	})

	ProbesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_probes_total",
		Help: "Total dialogue probes attempted",
	})

	ProbeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "realtime_probe_duration_seconds",
		Help:    "End-to-end probe latency from connect to teardown",
		Buckets: []float64{0.5, 1.0, 2.0, 3.0, 5.0, 8.0, 12.0, 20.0, 30.0, 60.0},
	})

	ProbeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_probe_errors_total",
		Help: "Probe failures by protocol step",
	}, []string{"step"})

	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_frames_received_total",
		Help: "Inbound frames by event name",
	}, []string{"event"})

	AudioBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_audio_bytes_total",
		Help: "Total audio chunk bytes streamed from the dialogue service",
	})
)
