package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the sound stream.
// All helper methods are safe to call on a nil *Metrics.
type Metrics struct {
	// Capture path
	BurstsRead     prometheus.Counter
	FramesCaptured prometheus.Counter
	FramesEncoded  prometheus.Counter
	EncodedBytes   prometheus.Histogram
	PendingSamples prometheus.Gauge

	// Playback path
	ChunksReceived prometheus.Counter
	FramesPlayed   prometheus.Counter

	// Errors by stage and kind
	Errors *prometheus.CounterVec

	// Event hand-off
	EventsDropped prometheus.Counter

	// Lifecycle
	StatusTransitions *prometheus.CounterVec

	// Transport
	TransportReconnects prometheus.Counter
	MethodCalls         *prometheus.CounterVec
}

// New creates all metrics and registers them with reg.
// A nil reg registers with the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		BurstsRead: f.NewCounter(prometheus.CounterOpts{
			Name: "soundstream_capture_bursts_total",
			Help: "Total number of non-empty capture bursts read from the device",
		}),
		FramesCaptured: f.NewCounter(prometheus.CounterOpts{
			Name: "soundstream_capture_frames_total",
			Help: "Total number of complete PCM frames produced by the accumulator",
		}),
		FramesEncoded: f.NewCounter(prometheus.CounterOpts{
			Name: "soundstream_encoded_frames_total",
			Help: "Total number of frames encoded and dispatched",
		}),
		EncodedBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "soundstream_encoded_frame_bytes",
			Help:    "Size of encoded frames in bytes",
			Buckets: prometheus.ExponentialBuckets(4, 2, 9), // 4B to 1KB
		}),
		PendingSamples: f.NewGauge(prometheus.GaugeOpts{
			Name: "soundstream_accumulator_pending_samples",
			Help: "Samples held in the frame accumulator after the last drain",
		}),
		ChunksReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "soundstream_playback_chunks_total",
			Help: "Total number of encoded chunks received for playback",
		}),
		FramesPlayed: f.NewCounter(prometheus.CounterOpts{
			Name: "soundstream_playback_frames_total",
			Help: "Total number of decoded frames written to the playback device",
		}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "soundstream_errors_total",
			Help: "Total number of errors by stage and kind",
		}, []string{"stage", "kind"}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "soundstream_events_dropped_total",
			Help: "Total number of platform events dropped because the hand-off buffer was full",
		}),
		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "soundstream_status_transitions_total",
			Help: "Total number of recorder/player status transitions",
		}, []string{"component", "status"}),
		TransportReconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "soundstream_transport_reconnects_total",
			Help: "Total number of transport reconnect attempts",
		}),
		MethodCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "soundstream_method_calls_total",
			Help: "Total number of boundary method calls by method and result",
		}, []string{"method", "result"}),
	}
}

// Handler returns the HTTP handler serving the registry in g.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) BurstRead() {
	if m == nil {
		return
	}
	m.BurstsRead.Inc()
}

func (m *Metrics) FrameCaptured(pending int) {
	if m == nil {
		return
	}
	m.FramesCaptured.Inc()
	m.PendingSamples.Set(float64(pending))
}

func (m *Metrics) SetPending(pending int) {
	if m == nil {
		return
	}
	m.PendingSamples.Set(float64(pending))
}

func (m *Metrics) FrameEncoded(size int) {
	if m == nil {
		return
	}
	m.FramesEncoded.Inc()
	m.EncodedBytes.Observe(float64(size))
}

func (m *Metrics) ChunkReceived() {
	if m == nil {
		return
	}
	m.ChunksReceived.Inc()
}

func (m *Metrics) FramePlayed() {
	if m == nil {
		return
	}
	m.FramesPlayed.Inc()
}

func (m *Metrics) Error(stage, kind string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(stage, kind).Inc()
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

// StatusChanged implements audio.TransitionObserver.
func (m *Metrics) StatusChanged(component, status string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(component, status).Inc()
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.TransportReconnects.Inc()
}

func (m *Metrics) MethodCall(method string, ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "error"
	}
	m.MethodCalls.WithLabelValues(method, result).Inc()
}
