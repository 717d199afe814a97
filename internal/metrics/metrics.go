// Package metrics exposes Prometheus instruments for hub connections, dispatch
// and build scheduling.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hubtrigger_connections_active",
		Help: "Number of hub connections currently running",
	})

	SubscriptionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hubtrigger_subscriptions_active",
		Help: "Number of transport-level topic subscriptions held per hub",
	}, []string{"hub"})

	FramesReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hubtrigger_frames_received_total",
		Help: "Total number of frames read from a hub transport",
	}, []string{"hub"})

	DecodeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hubtrigger_decode_failures_total",
		Help: "Total number of frames that could not be decoded, by kind",
	}, []string{"hub", "kind"})

	DispatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hubtrigger_dispatches_total",
		Help: "Total number of match callbacks invoked",
	}, []string{"hub"})

	PredicateErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hubtrigger_predicate_errors_total",
		Help: "Total number of predicates that failed and were treated as a non-match",
	}, []string{"hub"})

	FramesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hubtrigger_frames_dropped_total",
		Help: "Total number of frames dropped before reaching a connection, by reason",
	}, []string{"reason"})

	CausesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hubtrigger_causes_total",
		Help: "Total number of build causes handed to the scheduler, by outcome",
	}, []string{"outcome"})
)

// Decode failure kinds.
const (
	DecodeMalformed = "malformed"
	DecodeSchema    = "schema"
)

// Cause outcomes.
const (
	CauseQueued    = "queued"
	CauseCoalesced = "coalesced"
	CauseDropped   = "dropped"
	CauseScheduled = "scheduled"
	CauseDuplicate = "duplicate"
	CauseFailed    = "failed"
)

// IncDecodeFailure records a frame that failed decoding.
func IncDecodeFailure(hub, kind string) {
	if kind == "" {
		kind = "unknown"
	}
	DecodeFailuresTotal.WithLabelValues(hub, kind).Inc()
}

// IncFrameDrop records a frame that was dropped with a concrete reason.
func IncFrameDrop(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	FramesDroppedTotal.WithLabelValues(reason).Inc()
}

// IncCause records the outcome of handing a cause to the scheduler.
func IncCause(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	CausesTotal.WithLabelValues(outcome).Inc()
}

// ForgetHub drops the per-hub series once a connection is gone.
func ForgetHub(hub string) {
	SubscriptionsActive.DeleteLabelValues(hub)
}
