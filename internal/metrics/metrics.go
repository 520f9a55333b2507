package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordingsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "echojournal_recordings_active",
		Help: "1 while a recording session is open",
	})

	Recordings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "echojournal_recordings_total",
		Help: "Recording sessions by outcome",
	}, []string{"outcome"}) // started, completed, cancelled, too_short, unavailable

	RecordingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "echojournal_recording_duration_seconds",
		Help:    "Length of stopped recordings",
		Buckets: []float64{1, 1.5, 5, 15, 30, 60, 120, 300, 600},
	})

	Playbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "echojournal_playbacks_total",
		Help: "Playback tracks by outcome",
	}, []string{"outcome"}) // started, completed, stopped, unavailable

	EchosSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "echojournal_echos_saved_total",
		Help: "Echoes persisted",
	})

	SaveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "echojournal_save_failures_total",
		Help: "Recordings that could not be moved to permanent storage",
	})

	NormalizeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "echojournal_normalize_duration_seconds",
		Help:    "Waveform normalization latency",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	})

	LiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "echojournal_live_clients",
		Help: "Connected /live websocket clients",
	})
)
