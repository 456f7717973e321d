package analytics

// Sink receives a best-effort copy of every recorded data point for
// downstream analytics. Implementations must be safe for concurrent use.
// Errors are logged by the caller and never surfaced to producers.
type Sink interface {
	Ingest(metricName string, value float64) error
}

// NopSink discards everything. Used when no analytics backend is wired.
type NopSink struct{}

func (NopSink) Ingest(string, float64) error { return nil }
