// Package metrics holds the Prometheus collectors for the relay, the pacer
// and the persistence workers.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	relayStreams = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatstream_relay_streams_total",
		Help: "Relayed streams grouped by provider and outcome",
	}, []string{"provider", "outcome"})

	relayDeltas = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatstream_relay_deltas_total",
		Help: "Text fragments written downstream",
	}, []string{"provider"})

	relayMalformed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatstream_relay_malformed_chunks_total",
		Help: "Upstream chunks skipped because no text fragment could be parsed",
	}, []string{"provider"})

	relayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatstream_relay_duration_seconds",
		Help:    "Time from first upstream read to stream close",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"provider", "outcome"})

	pacerDelay = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatstream_pacer_reveal_delay_seconds",
		Help:    "Delay waited before each reveal tick",
		Buckets: []float64{0, 0.001, 0.003, 0.005, 0.01, 0.02, 0.03, 0.04, 0.05},
	}, []string{"class"})

	pacerOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatstream_pacer_outcomes_total",
		Help: "Pacer terminal states",
	}, []string{"status"})

	workerJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatstream_worker_jobs_total",
		Help: "Persistence jobs grouped by result",
	}, []string{"result"})
)

// ObserveStream records a finished relay run.
func ObserveStream(provider, outcome string, duration time.Duration) {
	provider = orUnknown(provider)
	relayStreams.WithLabelValues(provider, outcome).Inc()
	relayDuration.WithLabelValues(provider, outcome).Observe(duration.Seconds())
}

// AddDelta counts one fragment written downstream.
func AddDelta(provider string) {
	relayDeltas.WithLabelValues(orUnknown(provider)).Inc()
}

// AddMalformed counts one skipped upstream chunk.
func AddMalformed(provider string) {
	relayMalformed.WithLabelValues(orUnknown(provider)).Inc()
}

// ObserveReveal records the delay of one reveal tick.
func ObserveReveal(class string, delay time.Duration) {
	pacerDelay.WithLabelValues(class).Observe(delay.Seconds())
}

// ObserveOutcome counts a pacer reaching a terminal state.
func ObserveOutcome(status string) {
	pacerOutcomes.WithLabelValues(status).Inc()
}

// ObserveJob counts a persistence job result ("stored", "failed", "dropped").
func ObserveJob(result string) {
	workerJobs.WithLabelValues(result).Inc()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
