package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"audioloop/internal/domain"
)

// Metrics contains all Prometheus metrics for the record/convert/play workflow.
type Metrics struct {
	// State machine
	Transitions  *prometheus.CounterVec
	CurrentState *prometheus.GaugeVec

	// Conversion
	ConversionDuration *prometheus.HistogramVec
	Conversions        *prometheus.CounterVec

	// Capture
	CaptureChunks      prometheus.Counter
	CaptureBytes       prometheus.Counter
	CaptureWriteErrors prometheus.Counter
}

// NewMetrics creates and registers all metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audioloop_state_transitions_total",
			Help: "Total number of state machine transitions",
		}, []string{"from", "to", "reason"}),
		CurrentState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "audioloop_state",
			Help: "Current recording state (1 for the active state)",
		}, []string{"state"}),

		ConversionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audioloop_conversion_duration_seconds",
			Help:    "Wall-clock duration of capture to playback transcodes",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"outcome"}),
		Conversions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audioloop_conversions_total",
			Help: "Total number of finished conversions by outcome",
		}, []string{"outcome"}),

		CaptureChunks: factory.NewCounter(prometheus.CounterOpts{
			Name: "audioloop_capture_chunks_total",
			Help: "Total number of capture chunks written",
		}),
		CaptureBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "audioloop_capture_bytes_total",
			Help: "Total number of PCM bytes written to capture artifacts",
		}),
		CaptureWriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "audioloop_capture_write_errors_total",
			Help: "Total number of capture chunks that failed to persist",
		}),
	}
}

func (m *Metrics) TransitionObserved(t domain.Transition) {
	m.Transitions.WithLabelValues(string(t.From), string(t.To), string(t.Reason)).Inc()
	for _, state := range domain.AllStates {
		value := 0.0
		if state == t.To {
			value = 1
		}
		m.CurrentState.WithLabelValues(string(state)).Set(value)
	}
}

func (m *Metrics) ConversionObserved(outcome domain.ConversionOutcome, duration time.Duration) {
	m.ConversionDuration.WithLabelValues(string(outcome)).Observe(duration.Seconds())
	m.Conversions.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) CaptureChunkWritten(bytes int) {
	m.CaptureChunks.Inc()
	m.CaptureBytes.Add(float64(bytes))
}

func (m *Metrics) CaptureWriteFailed() {
	m.CaptureWriteErrors.Inc()
}
