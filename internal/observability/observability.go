package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"harmonycore/internal/config"
	"harmonycore/internal/etl"
)

// NewRecorder returns the recorder selected by kind, or nil for
// config.MetricsNone. reg is only used by the Prometheus recorder.
func NewRecorder(kind string, reg prometheus.Registerer) (etl.Recorder, error) {
	switch kind {
	case config.MetricsPrometheus:
		rec, err := NewPrometheusRecorder(reg)
		if err != nil {
			return nil, err
		}
		return rec, nil
	case config.MetricsExpvar:
		return NewExpvarRecorder(""), nil
	case config.MetricsNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown metrics exporter %q", kind)
	}
}
