// Package metrics declares the Prometheus instruments of the capture core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chromara"

var (
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "transitions_total",
		Help:      "Session state transitions",
	}, []string{"from", "to"})

	Captures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "captures_total",
		Help:      "Still captures by outcome",
	}, []string{"result"})

	StaleFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "stale_frames_total",
		Help:      "Frames discarded because they arrived after teardown",
	})

	PipelineSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "duration_seconds",
		Help:      "Time spent grading and re-encoding one JPEG",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	DecodeFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "decode_fallbacks_total",
		Help:      "JPEGs persisted unprocessed because they could not be decoded",
	})

	Persisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "assets_total",
		Help:      "Assets handed to the sink by kind and outcome",
	}, []string{"kind", "result"})

	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "plugin",
		Name:      "commands_total",
		Help:      "Host commands by action and result code",
	}, []string{"action", "code"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Result labels an outcome for counters.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
