// Package metrics exposes prometheus instrumentation for mosaic sessions.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registration outcomes used as the "result" label.
const (
	ResultSeeded              = "seeded"
	ResultRegistered          = "registered"
	ResultInsufficientOverlap = "insufficient_overlap"
	ResultTransformNotFound   = "transform_not_found"
	ResultEmptyInput          = "empty_input"
	ResultError               = "error"
)

var (
	registerOnce sync.Once
	registry     = prometheus.NewRegistry()

	registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mosaic",
			Name:      "registrations_total",
			Help:      "Image registration attempts by outcome.",
		},
		[]string{"result"},
	)
	tiles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mosaic",
			Name:      "tiles",
			Help:      "Tiles in the most recently updated session.",
		},
	)
	rebuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mosaic",
			Name:      "rebuild_duration_seconds",
			Help:      "Full canvas rebuild duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		},
	)
	saves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mosaic",
			Name:      "saves_total",
			Help:      "Mosaic exports by outcome.",
		},
		[]string{"result"},
	)
)

func register() {
	registerOnce.Do(func() {
		registry.MustRegister(registrations, tiles, rebuildDuration, saves)
	})
}

// Registry returns the registry holding every mosaic metric.
func Registry() *prometheus.Registry {
	register()
	return registry
}

// Handler serves the mosaic registry in the prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry(), promhttp.HandlerOpts{})
}

func ObserveRegistration(result string) {
	register()
	registrations.WithLabelValues(result).Inc()
}

func SetTiles(n int) {
	register()
	tiles.Set(float64(n))
}

func ObserveRebuild(d time.Duration) {
	register()
	rebuildDuration.Observe(d.Seconds())
}

func ObserveSave(ok bool) {
	register()
	if ok {
		saves.WithLabelValues("ok").Inc()
		return
	}
	saves.WithLabelValues("failed").Inc()
}
