package alerting

import (
	"time"
)

// Severity of an alert definition and the occurrences it produces.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// Operator compares the windowed aggregate against the threshold.
type Operator string

const (
	OpGreaterThan    Operator = ">"
	OpLessThan       Operator = "<"
	OpGreaterOrEqual Operator = ">="
	OpLessOrEqual    Operator = "<="
	OpEqual          Operator = "=="
	OpNotEqual       Operator = "!="
)

// Valid reports whether op is a known comparison operator.
func (op Operator) Valid() bool {
	switch op {
	case OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual, OpEqual, OpNotEqual:
		return true
	}
	return false
}

// Compare applies the operator to (value, threshold).
func (op Operator) Compare(value, threshold float64) bool {
	switch op {
	case OpGreaterThan:
		return value > threshold
	case OpLessThan:
		return value < threshold
	case OpGreaterOrEqual:
		return value >= threshold
	case OpLessOrEqual:
		return value <= threshold
	case OpEqual:
		return value == threshold
	case OpNotEqual:
		return value != threshold
	}
	return false
}

// Definition is a threshold rule over one metric. Definitions are
// immutable once registered; an update is unregister plus re-register.
type Definition struct {
	ID        string        `json:"id"`
	Metric    string        `json:"metric"`
	Operator  Operator      `json:"operator"`
	Threshold float64       `json:"threshold"`
	// Window is the duration of data the comparison value is computed over.
	Window      time.Duration     `json:"window"`
	Severity    Severity          `json:"severity"`
	LabelFilter map[string]string `json:"label_filter,omitempty"`
	// Cooldown is the minimum quiet period after a resolution before the
	// rule may open again.
	Cooldown time.Duration `json:"cooldown"`
	Enabled  bool          `json:"enabled"`
	// RatioAgainstMetric switches the comparison value to
	// sum(Metric)/sum(RatioAgainstMetric)*100 over the same window.
	// Used for percentage rules such as error rates.
	RatioAgainstMetric string `json:"ratio_against_metric,omitempty"`
	// EscalationPolicy optionally overrides the catalog default.
	EscalationPolicy string `json:"escalation_policy,omitempty"`
}

// Occurrence is one instance of a rule's condition being true, from open
// to close. Immutable except the resolved pair, which is set exactly once.
type Occurrence struct {
	ID         string            `json:"id"`
	AlertID    string            `json:"alert_id"`
	Metric     string            `json:"metric"`
	Timestamp  time.Time         `json:"timestamp"`
	Value      float64           `json:"value"`
	Threshold  float64           `json:"threshold"`
	Severity   Severity          `json:"severity"`
	Labels     map[string]string `json:"labels,omitempty"`
	Resolved   bool              `json:"resolved"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty"`
}

// clone returns a detached copy. The rule engine and lifecycle manager
// guard their records with separate locks, so occurrences are never
// shared across that boundary.
func (o *Occurrence) clone() *Occurrence {
	c := *o
	c.Labels = copyLabels(o.Labels)
	if o.ResolvedAt != nil {
		at := *o.ResolvedAt
		c.ResolvedAt = &at
	}
	return &c
}

// TransitionKind distinguishes openings from closings.
type TransitionKind string

const (
	TransitionOpened TransitionKind = "opened"
	TransitionClosed TransitionKind = "closed"
)

// Transition is the typed open/close signal handed from the rule engine
// to the lifecycle manager each evaluation tick. The occurrence is an
// owned copy; the consumer may mutate it freely.
type Transition struct {
	Kind       TransitionKind
	Occurrence *Occurrence
	// Automatic is true for closings produced by the evaluation tick
	// rather than an operator.
	Automatic bool
	At        time.Time
}

// Status of a tracked alert.
type Status string

const (
	StatusTriggered    Status = "triggered"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
	StatusEscalated    Status = "escalated"
)

// Acknowledgment records the operator action that froze escalation.
type Acknowledgment struct {
	By                string        `json:"by"`
	At                time.Time     `json:"at"`
	Comment           string        `json:"comment,omitempty"`
	TimeToAcknowledge time.Duration `json:"time_to_acknowledge"`
}

// Resolution records how a tracked alert ended.
type Resolution struct {
	By            string        `json:"by,omitempty"`
	At            time.Time     `json:"at"`
	Comment       string        `json:"comment,omitempty"`
	TimeToResolve time.Duration `json:"time_to_resolve"`
	Automatic     bool          `json:"automatic"`
}

// TrackedAlert is the mutable lifecycle wrapper around an occurrence
// while an operator can still act on it. All mutation goes through the
// lifecycle manager, which serializes access.
type TrackedAlert struct {
	Occurrence       *Occurrence     `json:"occurrence"`
	Status           Status          `json:"status"`
	EscalationLevel  int             `json:"escalation_level"`
	NextEscalationAt *time.Time      `json:"next_escalation_at,omitempty"`
	NotifiedChannels []string        `json:"notified_channels"`
	Tags             []string        `json:"tags"`
	Ack              *Acknowledgment `json:"acknowledgment,omitempty"`
	Resolution       *Resolution     `json:"resolution,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`

	notified map[string]struct{}
	tags     map[string]struct{}
}

func (t *TrackedAlert) addChannel(ch string) bool {
	if _, ok := t.notified[ch]; ok {
		return false
	}
	t.notified[ch] = struct{}{}
	t.NotifiedChannels = append(t.NotifiedChannels, ch)
	return true
}

func (t *TrackedAlert) addTag(tag string) {
	if _, ok := t.tags[tag]; ok {
		return
	}
	t.tags[tag] = struct{}{}
	t.Tags = append(t.Tags, tag)
}

func (t *TrackedAlert) hasTag(tag string) bool {
	_, ok := t.tags[tag]
	return ok
}

// clone returns a detached copy safe to read or marshal outside the
// lifecycle manager's lock.
func (t *TrackedAlert) clone() *TrackedAlert {
	c := *t
	c.Occurrence = t.Occurrence.clone()
	if t.NextEscalationAt != nil {
		at := *t.NextEscalationAt
		c.NextEscalationAt = &at
	}
	c.NotifiedChannels = append([]string(nil), t.NotifiedChannels...)
	c.Tags = append([]string(nil), t.Tags...)
	if t.Ack != nil {
		ack := *t.Ack
		c.Ack = &ack
	}
	if t.Resolution != nil {
		res := *t.Resolution
		c.Resolution = &res
	}
	c.notified = nil
	c.tags = nil
	return &c
}

// Snapshot is the fully formed message handed to a notification sender.
type Snapshot struct {
	AlertID         string            `json:"alert_id"`
	OccurrenceID    string            `json:"occurrence_id"`
	Metric          string            `json:"metric"`
	Severity        Severity          `json:"severity"`
	Status          Status            `json:"status"`
	Value           float64           `json:"value"`
	Threshold       float64           `json:"threshold"`
	Labels          map[string]string `json:"labels,omitempty"`
	Tags            []string          `json:"tags,omitempty"`
	EscalationLevel int               `json:"escalation_level"`
	CreatedAt       time.Time         `json:"created_at"`
}
