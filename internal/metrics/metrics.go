package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts HTTP requests by method, path, and status code.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gentlereview_requests_total",
		Help: "Total HTTP requests processed.",
	}, []string{"method", "path", "status"})

	// EnhanceDuration tracks full-stream latency per provider.
	EnhanceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gentlereview_enhance_duration_seconds",
		Help:    "Time from request to the end of the enhancement stream.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"provider"})

	// EnhanceChunks counts streamed chunks per provider.
	EnhanceChunks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gentlereview_enhance_chunks_total",
		Help: "Chunks streamed back to callers.",
	}, []string{"provider"})

	// EnhanceErrors counts failed enhancements by reason.
	EnhanceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gentlereview_enhance_errors_total",
		Help: "Enhancements that did not complete.",
	}, []string{"reason"})

	// InputChars tracks the distribution of comment lengths.
	InputChars = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gentlereview_input_chars",
		Help:    "Number of characters in enhanced comments.",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})

	// AdapterAvailable tracks whether each adapter is reachable.
	AdapterAvailable = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gentlereview_adapter_available",
		Help: "Whether an LLM adapter is available (1) or not (0).",
	}, []string{"adapter"})

	// EngineInitProgress mirrors the engine's initialization fraction.
	EngineInitProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gentlereview_engine_init_progress",
		Help: "Model initialization progress in [0,1].",
	})
)
