// Package observability exports runner metrics through Prometheus or expvar.
package observability

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"harmonycore/internal/etl"
)

const namespace = "harmonycore"

var _ etl.Recorder = (*PrometheusRecorder)(nil)

// PrometheusRecorder counts field outcomes and lookup results.
type PrometheusRecorder struct {
	fields         *prometheus.CounterVec
	fieldDuration  *prometheus.HistogramVec
	lookups        *prometheus.CounterVec
	lookupAttempts *prometheus.CounterVec
	lookupDuration *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the recorder's collectors on reg. A
// collector that is already registered is reused.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusRecorder{
		fields: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fields_total",
			Help:      "Raw fields processed, by entity and outcome.",
		}, []string{"entity", "outcome"}),
		fieldDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "field_duration_seconds",
			Help:      "Time from staging to the terminal outcome of a field.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"entity"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Enrichment lookups, by family and result.",
		}, []string{"family", "result"}),
		lookupAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_attempts_total",
			Help:      "Enrichment lookup attempts including retries.",
		}, []string{"family"}),
		lookupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lookup_duration_seconds",
			Help:      "Enrichment lookup latency including backoff.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"family"}),
	}
	var err error
	if r.fields, err = register(reg, r.fields); err != nil {
		return nil, err
	}
	if r.fieldDuration, err = register(reg, r.fieldDuration); err != nil {
		return nil, err
	}
	if r.lookups, err = register(reg, r.lookups); err != nil {
		return nil, err
	}
	if r.lookupAttempts, err = register(reg, r.lookupAttempts); err != nil {
		return nil, err
	}
	if r.lookupDuration, err = register(reg, r.lookupDuration); err != nil {
		return nil, err
	}
	return r, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObserveField implements etl.Recorder.
func (r *PrometheusRecorder) ObserveField(entity string, outcome etl.Outcome, elapsed time.Duration) {
	r.fields.WithLabelValues(entity, string(outcome)).Inc()
	r.fieldDuration.WithLabelValues(entity).Observe(elapsed.Seconds())
}

// ObserveLookup implements etl.Recorder.
func (r *PrometheusRecorder) ObserveLookup(family string, attempts int, success bool, elapsed time.Duration) {
	result := "error"
	if success {
		result = "success"
	}
	r.lookups.WithLabelValues(family, result).Inc()
	r.lookupAttempts.WithLabelValues(family).Add(float64(attempts))
	r.lookupDuration.WithLabelValues(family).Observe(elapsed.Seconds())
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
