// Package metrics provides Prometheus metrics for the ordering assistant.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions tracks the number of live conversation sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "saddie_active_sessions",
			Help: "Number of currently active conversation sessions",
		},
	)

	// Turns counts finished turns by outcome.
	Turns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saddie_turns_total",
			Help: "Total number of conversation turns by outcome",
		},
		[]string{"outcome"},
	)

	// Utterances counts utterances handed to speech synthesis.
	Utterances = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "saddie_utterances_total",
			Help: "Total number of utterances voiced",
		},
	)

	// Interruptions counts hard cancels by what triggered them.
	Interruptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saddie_interruptions_total",
			Help: "Total number of speech interruptions by source",
		},
		[]string{"source"},
	)

	// TrailerParses counts structured trailer parses by result.
	TrailerParses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saddie_trailer_parses_total",
			Help: "Total number of structured trailer parses by result",
		},
		[]string{"result"},
	)

	// RecognitionErrors counts speech recognition errors by code.
	RecognitionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saddie_recognition_errors_total",
			Help: "Total number of speech recognition errors by code",
		},
		[]string{"code"},
	)

	// FirstFragmentLatency tracks time from user input to the first streamed reply fragment.
	FirstFragmentLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "saddie_first_fragment_latency_seconds",
			Help:    "Latency from user input to the first reply fragment",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	// OrdersSubmitted counts order hand-offs by result.
	OrdersSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saddie_orders_submitted_total",
			Help: "Total number of completed orders handed off, by result",
		},
		[]string{"result"},
	)

	// ConfirmationTexts counts Twilio delivery callbacks for order confirmations by status.
	ConfirmationTexts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saddie_confirmation_texts_total",
			Help: "Order confirmation text delivery updates, by status",
		},
		[]string{"status"},
	)
)

// Turn outcomes.
const (
	OutcomeCompleted   = "completed"
	OutcomeInterrupted = "interrupted"
	OutcomeFailed      = "failed"
)

// RecordSessionStarted increments the live session gauge.
func RecordSessionStarted() { ActiveSessions.Inc() }

// RecordSessionEnded decrements the live session gauge.
func RecordSessionEnded() { ActiveSessions.Dec() }
