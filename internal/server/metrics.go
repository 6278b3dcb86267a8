package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the counters the HTTP API exposes for scraping.
type Metrics struct {
	TasksSubmitted prometheus.Counter
	TasksFinished  *prometheus.CounterVec
	TaskDuration   prometheus.Histogram
	QueueDepth     prometheus.Gauge
}

// NewMetrics registers the API metrics on a registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "webqa",
			Name:      "tasks_submitted_total",
			Help:      "Test tasks accepted into the queue.",
		}),
		TasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webqa",
			Name:      "tasks_finished_total",
			Help:      "Test tasks finished, by final status.",
		}, []string{"status"}),
		TaskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "webqa",
			Name:      "task_duration_seconds",
			Help:      "Wall time of one full test run.",
			Buckets:   prometheus.ExponentialBuckets(10, 2, 8),
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "webqa",
			Name:      "queue_depth",
			Help:      "Tasks waiting in the queue.",
		}),
	}
	reg.MustRegister(m.TasksSubmitted, m.TasksFinished, m.TaskDuration, m.QueueDepth)
	return m
}
