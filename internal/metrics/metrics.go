// Package metrics holds the Prometheus series exported by the intake service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the dedicated registry served on /metrics.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// SessionsActive counts open chat sessions.
	SessionsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "intake",
			Name:      "sessions_active",
			Help:      "Chat sessions currently connected.",
		},
	)

	// TurnsTotal counts inbound turns by kind (text, continuation).
	TurnsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "turns_total",
			Help:      "Inbound conversation turns.",
		},
		[]string{"kind"},
	)

	// FinalizationsTotal counts finalizations by outcome.
	FinalizationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "finalizations_total",
			Help:      "Conversations handed off for extraction and matching.",
		},
		[]string{"outcome"},
	)

	// LLMRequestSeconds is the latency of language model calls.
	LLMRequestSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "intake",
			Name:      "llm_request_seconds",
			Help:      "Language model call latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		},
		[]string{"op"},
	)

	// MatchesTotal counts match runs by result (matched, empty, error).
	MatchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "matches_total",
			Help:      "Provider match runs.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// ObserveLLM records the latency of one language model call started at start.
func ObserveLLM(op string, start time.Time) {
	LLMRequestSeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
