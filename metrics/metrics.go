// Package metrics exposes prometheus collectors for the agent runtime.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the runtime's collectors behind a private registry so
// embedded hosts can run more than one runtime per process.
type Metrics struct {
	registry *prometheus.Registry

	TasksCreated   prometheus.Counter
	TasksSucceeded prometheus.Counter
	TasksFailed    prometheus.Counter
	TasksRunning   prometheus.Gauge
	QueueDepth     prometheus.Gauge
	StepsExecuted  *prometheus.CounterVec
	PlannerSeconds prometheus.Histogram
	ExecuteSeconds prometheus.Histogram
}

// New creates and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		TasksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webpilot_tasks_created_total",
			Help: "Tasks accepted by the runtime.",
		}),
		TasksSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webpilot_tasks_succeeded_total",
			Help: "Tasks that reached the succeeded state.",
		}),
		TasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webpilot_tasks_failed_total",
			Help: "Tasks that reached the failed state.",
		}),
		TasksRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "webpilot_tasks_running",
			Help: "Tasks currently running.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "webpilot_queue_depth",
			Help: "Pending tasks waiting for a scheduler slot.",
		}),
		StepsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webpilot_steps_executed_total",
			Help: "Steps finalized, by observation result.",
		}, []string{"result"}),
		PlannerSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "webpilot_planner_duration_seconds",
			Help:    "Planner call latency.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		ExecuteSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "webpilot_execute_duration_seconds",
			Help:    "Executor call latency.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
	registry.MustRegister(
		m.TasksCreated, m.TasksSucceeded, m.TasksFailed,
		m.TasksRunning, m.QueueDepth, m.StepsExecuted,
		m.PlannerSeconds, m.ExecuteSeconds,
	)
	return m
}

// Handler returns the prometheus exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
