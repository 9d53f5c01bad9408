// Package metrics exposes pipeline counters for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "polygons_fetch_total",
		Help: "Directory fetches by outcome",
	}, []string{"outcome"})
	FetchDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "polygons_fetch_duration_ms",
		Help:    "Directory fetch duration in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})
	LoadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "polygons_loads_total",
		Help: "Load attempts by result",
	}, []string{"result"})
	RenderedFeatures = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "polygons_rendered_features",
		Help: "Features on the overlay after the last render",
	})
	SkippedRecordsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "polygons_skipped_records_total",
		Help: "Records skipped because their geometry did not decode",
	})
	TogglesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "polygons_toggles_total",
		Help: "Visibility toggles by whether a feature was found",
	}, []string{"found"})
)

func init() {
	prometheus.MustRegister(FetchTotal)
	prometheus.MustRegister(FetchDurationMs)
	prometheus.MustRegister(LoadsTotal)
	prometheus.MustRegister(RenderedFeatures)
	prometheus.MustRegister(SkippedRecordsTotal)
	prometheus.MustRegister(TogglesTotal)
}

// Handler serves the registered metrics.
func Handler() http.Handler { return promhttp.Handler() }
