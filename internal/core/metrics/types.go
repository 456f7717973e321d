package metrics

import "time"

// Kind describes how a metric's samples are interpreted during
// aggregation: counters sum, gauges average, histograms and summaries
// take the median.
type Kind string

const (
	KindCounter   Kind = "counter"
	KindGauge     Kind = "gauge"
	KindHistogram Kind = "histogram"
	KindSummary   Kind = "summary"
)

// Valid reports whether k is a known metric kind.
func (k Kind) Valid() bool {
	switch k {
	case KindCounter, KindGauge, KindHistogram, KindSummary:
		return true
	}
	return false
}

// Definition describes a registered metric. Definitions are created once
// at startup configuration time and live for the process; re-registering
// an existing name fails rather than overwriting.
type Definition struct {
	Name               string        `json:"name"`
	Kind               Kind          `json:"kind"`
	Unit               string        `json:"unit"`
	LabelNames         []string      `json:"label_names,omitempty"`
	CollectionInterval time.Duration `json:"collection_interval"`
}

// DataPoint is one recorded sample. Counter samples are increments.
type DataPoint struct {
	Timestamp time.Time         `json:"timestamp"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// Aggregation reduces a per-minute bucket of points to one value.
type Aggregation string

const (
	AggregateAvg Aggregation = "avg"
	AggregateSum Aggregation = "sum"
	AggregateMin Aggregation = "min"
	AggregateMax Aggregation = "max"
)

// QueryOptions refine a Query call. Zero value means raw points with no
// label filtering.
type QueryOptions struct {
	// Aggregation, when set, buckets points per minute and reduces each
	// bucket to a single point stamped at the bucket start.
	Aggregation Aggregation
	// LabelFilter keeps only points whose labels match every entry.
	LabelFilter map[string]string
}

func matchLabels(labels, filter map[string]string) bool {
	for k, v := range filter {
		if labels[k] != v {
			return false
		}
	}
	return true
}
