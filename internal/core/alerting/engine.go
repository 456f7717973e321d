package alerting

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vigil-ops/vigil-backend-go/internal/core/metrics"
	"github.com/vigil-ops/vigil-backend-go/pkg/errors"
)

// MetricSource is the slice of the metric store the rule engine reads.
type MetricSource interface {
	Definition(name string) (metrics.Definition, bool)
	Query(name string, window time.Duration, opts metrics.QueryOptions) ([]metrics.DataPoint, error)
}

// RuleEngine owns alert definitions and evaluates them against metric
// data on a fixed cadence, producing open/close transitions. At most one
// occurrence per definition is open at any time.
type RuleEngine struct {
	mu           sync.Mutex
	defs         map[string]Definition
	open         map[string]*Occurrence // keyed by definition id
	lastResolved map[string]time.Time   // definition id -> resolvedAt
	source       MetricSource
	logger       *logrus.Logger
	now          func() time.Time
}

// NewRuleEngine creates a rule engine reading from source.
func NewRuleEngine(source MetricSource, logger *logrus.Logger) *RuleEngine {
	return &RuleEngine{
		defs:         make(map[string]Definition),
		open:         make(map[string]*Occurrence),
		lastResolved: make(map[string]time.Time),
		source:       source,
		logger:       logger,
		now:          time.Now,
	}
}

// RegisterAlert adds a definition. The target metric (and the ratio
// denominator, when declared) must already be registered.
func (e *RuleEngine) RegisterAlert(def Definition) error {
	if def.ID == "" {
		return errors.InvalidValue("alert id must not be empty")
	}
	if !def.Operator.Valid() {
		return errors.InvalidValue("alert %q: unknown operator %q", def.ID, def.Operator)
	}
	if !def.Severity.Valid() {
		return errors.InvalidValue("alert %q: unknown severity %q", def.ID, def.Severity)
	}
	if _, ok := e.source.Definition(def.Metric); !ok {
		return errors.NotFound("alert %q: metric %q not registered", def.ID, def.Metric)
	}
	if def.RatioAgainstMetric != "" {
		if _, ok := e.source.Definition(def.RatioAgainstMetric); !ok {
			return errors.NotFound("alert %q: ratio metric %q not registered", def.ID, def.RatioAgainstMetric)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.defs[def.ID]; exists {
		return errors.Conflict("alert %q already registered", def.ID)
	}
	e.defs[def.ID] = def

	e.logger.WithFields(logrus.Fields{
		"alert":  def.ID,
		"metric": def.Metric,
	}).Info("Registered alert definition")
	return nil
}

// UnregisterAlert removes a definition. Any open occurrence is left for
// the lifecycle manager to resolve; the engine just stops evaluating it.
func (e *RuleEngine) UnregisterAlert(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.defs[id]; !exists {
		return errors.NotFound("alert %q not registered", id)
	}
	delete(e.defs, id)
	delete(e.open, id)
	return nil
}

// Definitions returns the registered alert definitions, sorted by id.
func (e *RuleEngine) Definitions() []Definition {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Definition, 0, len(e.defs))
	for _, def := range e.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MarkResolved closes the open occurrence for a definition after an
// operator resolved the tracked alert, so the cooldown clock starts and
// the single-open invariant holds for the next evaluation.
func (e *RuleEngine) MarkResolved(alertID, occurrenceID string, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	occ, ok := e.open[alertID]
	if !ok || occ.ID != occurrenceID {
		return
	}
	if !occ.Resolved {
		occ.Resolved = true
		t := at
		occ.ResolvedAt = &t
	}
	delete(e.open, alertID)
	e.lastResolved[alertID] = at
}

// EvaluateOnce runs one evaluation pass and returns the resulting
// transitions in definition-id order.
func (e *RuleEngine) EvaluateOnce() []Transition {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	ids := make([]string, 0, len(e.defs))
	for id := range e.defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var transitions []Transition
	for _, id := range ids {
		def := e.defs[id]
		if !def.Enabled {
			continue
		}
		if tr, ok := e.evaluate(def, now); ok {
			transitions = append(transitions, tr)
		}
	}
	return transitions
}

func (e *RuleEngine) evaluate(def Definition, now time.Time) (Transition, bool) {
	value, ok := e.comparisonValue(def)
	if !ok {
		// No data in the window: neither opens nor closes this tick.
		return Transition{}, false
	}

	firing := def.Operator.Compare(value, def.Threshold)
	open, isOpen := e.open[def.ID]

	if firing && !isOpen {
		if resolvedAt, had := e.lastResolved[def.ID]; had && now.Sub(resolvedAt) < def.Cooldown {
			e.logger.WithFields(logrus.Fields{
				"alert":    def.ID,
				"cooldown": def.Cooldown,
			}).Debug("Condition true but within cooldown, suppressing")
			return Transition{}, false
		}

		occ := &Occurrence{
			ID:        uuid.New().String(),
			AlertID:   def.ID,
			Metric:    def.Metric,
			Timestamp: now,
			Value:     value,
			Threshold: def.Threshold,
			Severity:  def.Severity,
			Labels:    copyLabels(def.LabelFilter),
		}
		e.open[def.ID] = occ

		e.logger.WithFields(logrus.Fields{
			"alert":     def.ID,
			"value":     value,
			"threshold": def.Threshold,
		}).Warn("Alert condition opened")
		// Emit an owned copy; the engine's record stays behind e.mu.
		return Transition{Kind: TransitionOpened, Occurrence: occ.clone(), At: now}, true
	}

	if !firing && isOpen {
		open.Resolved = true
		t := now
		open.ResolvedAt = &t
		delete(e.open, def.ID)
		e.lastResolved[def.ID] = now

		e.logger.WithFields(logrus.Fields{
			"alert": def.ID,
			"value": value,
		}).Info("Alert condition closed")
		return Transition{Kind: TransitionClosed, Occurrence: open.clone(), Automatic: true, At: now}, true
	}

	return Transition{}, false
}

// comparisonValue computes the single value the operator is applied to:
// counters sum over the window, gauges average, histograms and summaries
// take the median. Ratio rules divide windowed sums and scale to percent.
func (e *RuleEngine) comparisonValue(def Definition) (float64, bool) {
	points, err := e.source.Query(def.Metric, def.Window, metrics.QueryOptions{LabelFilter: def.LabelFilter})
	if err != nil {
		e.logger.WithError(err).WithField("alert", def.ID).Warn("Metric query failed during evaluation")
		return 0, false
	}
	if len(points) == 0 {
		return 0, false
	}

	if def.RatioAgainstMetric != "" {
		totals, err := e.source.Query(def.RatioAgainstMetric, def.Window, metrics.QueryOptions{})
		if err != nil {
			e.logger.WithError(err).WithField("alert", def.ID).Warn("Ratio metric query failed during evaluation")
			return 0, false
		}
		total := sum(totals)
		if total == 0 {
			return 0, false
		}
		return sum(points) / total * 100, true
	}

	srcDef, ok := e.source.Definition(def.Metric)
	if !ok {
		return 0, false
	}
	switch srcDef.Kind {
	case metrics.KindCounter:
		return sum(points), true
	case metrics.KindGauge:
		return sum(points) / float64(len(points)), true
	default: // histogram, summary
		return median(points), true
	}
}

func sum(points []metrics.DataPoint) float64 {
	var s float64
	for _, p := range points {
		s += p.Value
	}
	return s
}

// median of the point values; an even count averages the two middles.
func median(points []metrics.DataPoint) float64 {
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	sort.Float64s(values)

	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}

func copyLabels(labels map[string]string) map[string]string {
	if len(labels) == 0 {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
