package analytics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink mirrors recorded points into a prometheus gauge vector so
// the embedding application can expose them on /metrics. The last recorded
// value per metric wins; series history stays in the metric store.
type PrometheusSink struct {
	gauge *prometheus.GaugeVec
}

// NewPrometheusSink registers the mirror gauge on the given registerer.
func NewPrometheusSink(reg prometheus.Registerer, namespace string) (*PrometheusSink, error) {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "recorded_sample",
		Help:      "Most recent sample recorded per metric.",
	}, []string{"metric"})

	if err := reg.Register(gauge); err != nil {
		return nil, err
	}
	return &PrometheusSink{gauge: gauge}, nil
}

// Ingest implements Sink.
func (s *PrometheusSink) Ingest(metricName string, value float64) error {
	// Prometheus label values may carry dots, but normalize to keep
	// dashboards consistent with the store's naming.
	s.gauge.WithLabelValues(strings.ToLower(metricName)).Set(value)
	return nil
}
