package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics mirrors the shape of luxfi-dex's LXMetrics, narrowed to the
// counters this host can actually produce from one market's instruction
// stream: no consensus/network metrics, since this engine has neither.
type metrics struct {
	registry        *prometheus.Registry
	fillsEmitted    prometheus.Counter
	eventsConsumed  prometheus.Counter
	queueDepth      prometheus.Gauge
	matchLatencyNS  prometheus.Histogram
	instructionsErr *prometheus.CounterVec
}

func newMetrics(namespace string) *metrics {
	registry := prometheus.NewRegistry()
	m := &metrics{
		registry: registry,
		fillsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fills_emitted_total",
			Help:      "Total number of Fill events emitted by NewOrder.",
		}),
		eventsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_consumed_total",
			Help:      "Total number of events popped by ConsumeEvents.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_queue_depth",
			Help:      "Current count of undrained events in the queue.",
		}),
		matchLatencyNS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_latency_nanoseconds",
			Help:      "Wall time spent inside matching.NewOrder per call.",
			Buckets:   []float64{100, 500, 1000, 5000, 10000, 50000, 100000},
		}),
		instructionsErr: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instruction_errors_total",
			Help:      "Instruction failures by sentinel error.",
		}, []string{"error"}),
	}
	registry.MustRegister(m.fillsEmitted, m.eventsConsumed, m.queueDepth, m.matchLatencyNS, m.instructionsErr)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
