package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vigil-ops/vigil-backend-go/internal/core/analytics"
	"github.com/vigil-ops/vigil-backend-go/pkg/errors"
)

// latestLookback bounds how far back LatestValue searches. A metric with
// no sample in this window is reported as unavailable rather than serving
// an arbitrarily stale value.
const latestLookback = 5 * time.Minute

// Store owns metric definitions and their time series. It is memory
// resident; points are appended by producers and dropped by the periodic
// retention sweep. All methods are safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	defs      map[string]Definition
	series    map[string][]DataPoint
	retention time.Duration
	sink      analytics.Sink
	logger    *logrus.Logger
	now       func() time.Time
}

// NewStore creates a Store. A nil sink disables analytics forwarding.
func NewStore(retention time.Duration, sink analytics.Sink, logger *logrus.Logger) *Store {
	if sink == nil {
		sink = analytics.NopSink{}
	}
	return &Store{
		defs:      make(map[string]Definition),
		series:    make(map[string][]DataPoint),
		retention: retention,
		sink:      sink,
		logger:    logger,
		now:       time.Now,
	}
}

// RegisterMetric adds a metric definition. Names are unique for the life
// of the process; re-registering fails with a conflict.
func (s *Store) RegisterMetric(def Definition) error {
	if def.Name == "" {
		return errors.InvalidValue("metric name must not be empty")
	}
	if !def.Kind.Valid() {
		return errors.InvalidValue("unknown metric kind %q", def.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.defs[def.Name]; exists {
		return errors.Conflict("metric %q already registered", def.Name)
	}
	s.defs[def.Name] = def

	s.logger.WithFields(logrus.Fields{
		"metric": def.Name,
		"kind":   def.Kind,
	}).Debug("Registered metric")
	return nil
}

// Definition returns the registered definition for name.
func (s *Store) Definition(name string) (Definition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defs[name]
	return def, ok
}

// Record appends one sample to the metric's series and forwards it,
// best effort, to the analytics sink. Counter increments must be
// non-negative; a rejected sample does not touch the series.
func (s *Store) Record(name string, value float64, labels map[string]string) error {
	s.mu.Lock()
	def, ok := s.defs[name]
	if !ok {
		s.mu.Unlock()
		return errors.NotFound("metric %q not registered", name)
	}
	if def.Kind == KindCounter && value < 0 {
		s.mu.Unlock()
		return errors.InvalidValue("negative increment %v for counter %q", value, name)
	}

	point := DataPoint{Timestamp: s.now(), Value: value}
	if len(labels) > 0 {
		point.Labels = make(map[string]string, len(labels))
		for k, v := range labels {
			point.Labels[k] = v
		}
	}
	s.series[name] = append(s.series[name], point)
	s.mu.Unlock()

	if err := s.sink.Ingest(name, value); err != nil {
		s.logger.WithError(err).WithField("metric", name).Warn("Analytics sink rejected sample")
	}
	return nil
}

// Query returns time-ordered points recorded within the window ending
// now. Options may filter by exact labels and reduce per-minute buckets
// with an aggregation.
func (s *Store) Query(name string, window time.Duration, opts QueryOptions) ([]DataPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.defs[name]; !ok {
		return nil, errors.NotFound("metric %q not registered", name)
	}

	cutoff := s.now().Add(-window)
	var out []DataPoint
	for _, p := range s.series[name] {
		if p.Timestamp.Before(cutoff) {
			continue
		}
		if len(opts.LabelFilter) > 0 && !matchLabels(p.Labels, opts.LabelFilter) {
			continue
		}
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })

	if opts.Aggregation != "" {
		return bucketize(out, opts.Aggregation), nil
	}
	return out, nil
}

// LatestValue returns the most recent sample within the 5-minute
// lookback, or a not-found error when the metric has gone quiet.
func (s *Store) LatestValue(name string, labelFilter map[string]string) (DataPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.defs[name]; !ok {
		return DataPoint{}, errors.NotFound("metric %q not registered", name)
	}

	cutoff := s.now().Add(-latestLookback)
	points := s.series[name]
	for i := len(points) - 1; i >= 0; i-- {
		p := points[i]
		if p.Timestamp.Before(cutoff) {
			break
		}
		if len(labelFilter) > 0 && !matchLabels(p.Labels, labelFilter) {
			continue
		}
		return p, nil
	}
	return DataPoint{}, errors.NotFound("no recent value for metric %q", name)
}

// Prune drops points older than the retention window. Running it twice
// in a row with no new data is a no-op the second time.
func (s *Store) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.retention)
	dropped := 0
	for name, points := range s.series {
		idx := sort.Search(len(points), func(i int) bool {
			return !points[i].Timestamp.Before(cutoff)
		})
		if idx == 0 {
			continue
		}
		dropped += idx
		s.series[name] = append([]DataPoint(nil), points[idx:]...)
	}

	if dropped > 0 {
		s.logger.WithField("points", dropped).Info("Pruned expired metric points")
	}
	return dropped
}

func bucketize(points []DataPoint, agg Aggregation) []DataPoint {
	if len(points) == 0 {
		return nil
	}

	buckets := make(map[time.Time][]float64)
	for _, p := range points {
		key := p.Timestamp.Truncate(time.Minute)
		buckets[key] = append(buckets[key], p.Value)
	}

	out := make([]DataPoint, 0, len(buckets))
	for ts, values := range buckets {
		out = append(out, DataPoint{Timestamp: ts, Value: reduce(values, agg)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func reduce(values []float64, agg Aggregation) float64 {
	switch agg {
	case AggregateSum:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum
	case AggregateMin:
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min
	case AggregateMax:
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max
	default: // AggregateAvg
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	}
}
