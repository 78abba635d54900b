package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "foodloop"

// Registry holds every foodloop collector plus the Go and process collectors.
var Registry = prometheus.NewRegistry()

var (
	reconcileCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "reconcile_total",
			Help:      "Count of stock submissions by outcome (created, merged, linked, error).",
		},
		[]string{"outcome"},
	)
	lifecycleCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "commands_total",
			Help:      "Count of lifecycle commands by command and result.",
		},
		[]string{"command", "result"},
	)
	quantityConflictCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "quantity_conflicts_total",
			Help:      "Count of quantity writes that lost a version race and were retried.",
		},
	)
	oracleCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "calls_total",
			Help:      "Count of oracle calls by oracle and result.",
		},
		[]string{"oracle", "result"},
	)
	oracleLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "duration_seconds",
			Help:      "Oracle call latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"oracle"},
	)
)

var registerMetrics sync.Once

// Register all metrics.
func Register() {
	registerMetrics.Do(func() {
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		Registry.MustRegister(reconcileCounter)
		Registry.MustRegister(lifecycleCounter)
		Registry.MustRegister(quantityConflictCounter)
		Registry.MustRegister(oracleCounter)
		Registry.MustRegister(oracleLatency)
	})
}

// RecordReconcile records one catalog submission outcome.
func RecordReconcile(outcome string) {
	reconcileCounter.WithLabelValues(outcome).Inc()
}

// RecordLifecycle records a lifecycle command result ("ok" or an error class).
func RecordLifecycle(command, result string) {
	lifecycleCounter.WithLabelValues(command, result).Inc()
}

// RecordQuantityConflict records a lost optimistic-lock race.
func RecordQuantityConflict() {
	quantityConflictCounter.Inc()
}

// RecordOracleCall records an oracle call's result and latency.
func RecordOracleCall(oracle, result string, d time.Duration) {
	oracleCounter.WithLabelValues(oracle, result).Inc()
	oracleLatency.WithLabelValues(oracle).Observe(d.Seconds())
}
