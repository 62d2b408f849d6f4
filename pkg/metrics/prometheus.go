package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	forecastsTotal *prometheus.CounterVec
	ingestTotal    *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	regimeGauge    *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		forecastsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowcast_forecasts_total",
				Help: "Total number of forecasts generated",
			},
			[]string{"regime", "demo"},
		),
		ingestTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowcast_transactions_ingested_total",
				Help: "Total transactions routed to a backend",
			},
			[]string{"backend"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowcast_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		regimeGauge: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "flowcast_regime_confidence",
				Help: "Confidence of the last detected market regime",
			},
			[]string{"regime"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowcast_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordForecast records a generated forecast by regime and model mode.
func (r *Recorder) RecordForecast(regime string, demo bool) {
	r.forecastsTotal.WithLabelValues(regime, strconv.FormatBool(demo)).Inc()
}

// RecordIngest records a transaction routed to a backend.
func (r *Recorder) RecordIngest(backend string) {
	r.ingestTotal.WithLabelValues(backend).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordRegime records the latest regime detection confidence.
func (r *Recorder) RecordRegime(regime string, confidence float64) {
	r.regimeGauge.WithLabelValues(regime).Set(confidence)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
