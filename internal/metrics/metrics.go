// Package metrics exposes Prometheus collectors for the orchestrator.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	runnerCyclesTotal          *prometheus.CounterVec
	runnerPhaseFailuresTotal   *prometheus.CounterVec
	runnerPhaseDurationSeconds *prometheus.HistogramVec
	runnerMemoryRetriesTotal   prometheus.Counter
	runnerRestartsTotal        prometheus.Counter
	runnerLastBeatTimestamp    prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		runnerCyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runner_cycles_total",
				Help: "Total number of account cycles, labeled by account and outcome.",
			},
			[]string{"account", "outcome"},
		)

		runnerPhaseFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runner_phase_failures_total",
				Help: "Total number of exhausted phase retry budgets, labeled by phase.",
			},
			[]string{"phase"},
		)

		runnerPhaseDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "runner_phase_duration_seconds",
				Help:    "Histogram of phase durations, labeled by phase.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"phase"},
		)

		runnerMemoryRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "runner_memory_retries_total",
				Help: "Total memory-exhaustion retries taken by the guarded executor.",
			},
		)

		runnerRestartsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "runner_restarts_total",
				Help: "Total supervisor restarts after a scheduler crash.",
			},
		)

		runnerLastBeatTimestamp = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "runner_last_beat_timestamp_seconds",
				Help: "Unix time of the most recent scheduler heartbeat.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCycle increments the cycle counter for an account and outcome.
func ObserveCycle(account, outcome string) {
	runnerCyclesTotal.WithLabelValues(account, outcome).Inc()
}

// ObservePhase records one completed phase attempt window.
func ObservePhase(phase string, duration time.Duration) {
	runnerPhaseDurationSeconds.WithLabelValues(phase).Observe(duration.Seconds())
}

// ObservePhaseFailure increments the exhausted-budget counter for a phase.
func ObservePhaseFailure(phase string) {
	runnerPhaseFailuresTotal.WithLabelValues(phase).Inc()
}

// ObserveMemoryRetry increments the guarded-executor retry counter.
func ObserveMemoryRetry() {
	runnerMemoryRetriesTotal.Inc()
}

// ObserveRestart increments the supervisor restart counter.
func ObserveRestart() {
	runnerRestartsTotal.Inc()
}

// ObserveBeat records the heartbeat timestamp.
func ObserveBeat(at time.Time) {
	runnerLastBeatTimestamp.Set(float64(at.Unix()))
}
