package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cwp"

var (
	registerOnce sync.Once

	connectionStates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "state_transitions_total",
			Help:      "Connection state machine transitions by entered state.",
		},
		[]string{"state"},
	)
	connectionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "failures_total",
			Help:      "Failed resolve, connect and I/O attempts.",
		},
		[]string{"stage"},
	)
	wireBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wire",
			Name:      "bytes_total",
			Help:      "CWP bytes read from and written to the server.",
		},
		[]string{"direction"},
	)
	keyingEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keying",
			Name:      "events_total",
			Help:      "Key up/down transitions sent and received.",
		},
		[]string{"direction", "state"},
	)
	messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "morse",
			Name:      "messages_total",
			Help:      "Morse messages sent and decoded.",
		},
		[]string{"direction"},
	)
	signalWidth = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "morse",
			Name:      "signal_width_milliseconds",
			Help:      "Unit width detected by the decoder when a message completes.",
			Buckets:   []float64{5, 10, 20, 50, 100, 200, 400, 1000},
		},
	)
)

// Direction labels.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(connectionStates, connectionFailures, wireBytes, keyingEvents, messages, signalWidth)
	})
}

func RecordStateTransition(state string) {
	RegisterMetrics()
	connectionStates.WithLabelValues(state).Inc()
}

// RecordFailure counts a failed stage: resolve, connect, io or protocol.
func RecordFailure(stage string) {
	RegisterMetrics()
	connectionFailures.WithLabelValues(stage).Inc()
}

func RecordBytes(direction string, n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	wireBytes.WithLabelValues(direction).Add(float64(n))
}

func RecordKeying(direction string, up bool) {
	RegisterMetrics()
	state := "down"
	if up {
		state = "up"
	}
	keyingEvents.WithLabelValues(direction, state).Inc()
}

func RecordMessage(direction string) {
	RegisterMetrics()
	messages.WithLabelValues(direction).Inc()
}

func RecordSignalWidth(ms float64) {
	if ms <= 0 {
		return
	}
	RegisterMetrics()
	signalWidth.Observe(ms)
}
