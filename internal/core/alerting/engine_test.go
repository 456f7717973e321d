package alerting

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigil-ops/vigil-backend-go/internal/core/metrics"
	"github.com/vigil-ops/vigil-backend-go/pkg/errors"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// fakeSource serves canned points per metric; the window is ignored so
// tests control exactly what the engine sees.
type fakeSource struct {
	defs   map[string]metrics.Definition
	points map[string][]metrics.DataPoint
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		defs:   make(map[string]metrics.Definition),
		points: make(map[string][]metrics.DataPoint),
	}
}

func (f *fakeSource) addMetric(name string, kind metrics.Kind) {
	f.defs[name] = metrics.Definition{Name: name, Kind: kind}
}

func (f *fakeSource) setValues(name string, values ...float64) {
	pts := make([]metrics.DataPoint, len(values))
	for i, v := range values {
		pts[i] = metrics.DataPoint{Timestamp: time.Now(), Value: v}
	}
	f.points[name] = pts
}

func (f *fakeSource) Definition(name string) (metrics.Definition, bool) {
	def, ok := f.defs[name]
	return def, ok
}

func (f *fakeSource) Query(name string, window time.Duration, opts metrics.QueryOptions) ([]metrics.DataPoint, error) {
	if _, ok := f.defs[name]; !ok {
		return nil, errors.NotFound("metric %q not registered", name)
	}
	return f.points[name], nil
}

func newTestRuleEngine(t *testing.T) (*RuleEngine, *fakeSource, *time.Time) {
	t.Helper()
	source := newFakeSource()
	engine := NewRuleEngine(source, testLogger())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }
	return engine, source, &now
}

func TestRegisterAlertValidation(t *testing.T) {
	engine, source, _ := newTestRuleEngine(t)
	source.addMetric("cpu", metrics.KindGauge)

	valid := Definition{
		ID: "cpu-high", Metric: "cpu", Operator: OpGreaterThan,
		Threshold: 80, Window: time.Minute, Severity: SeverityWarning, Enabled: true,
	}
	require.NoError(t, engine.RegisterAlert(valid))

	tests := []struct {
		name string
		def  Definition
		kind errors.Kind
	}{
		{"duplicate id", valid, errors.KindConflict},
		{"unknown metric", Definition{ID: "x", Metric: "ghost", Operator: OpGreaterThan, Severity: SeverityInfo}, errors.KindNotFound},
		{"bad operator", Definition{ID: "y", Metric: "cpu", Operator: "~", Severity: SeverityInfo}, errors.KindInvalidValue},
		{"bad severity", Definition{ID: "z", Metric: "cpu", Operator: OpEqual, Severity: "fatal"}, errors.KindInvalidValue},
		{"empty id", Definition{Metric: "cpu", Operator: OpEqual, Severity: SeverityInfo}, errors.KindInvalidValue},
		{"unknown ratio metric", Definition{ID: "r", Metric: "cpu", Operator: OpEqual, Severity: SeverityInfo, RatioAgainstMetric: "ghost"}, errors.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.RegisterAlert(tt.def)
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, tt.kind), "got %v", err)
		})
	}
}

func TestEvaluateOpensOnThresholdBreach(t *testing.T) {
	engine, source, _ := newTestRuleEngine(t)
	source.addMetric("cpu", metrics.KindGauge)
	require.NoError(t, engine.RegisterAlert(Definition{
		ID: "cpu-high", Metric: "cpu", Operator: OpGreaterThan,
		Threshold: 80, Window: time.Minute, Severity: SeverityWarning, Enabled: true,
	}))

	source.setValues("cpu", 90, 95, 85) // mean 90
	transitions := engine.EvaluateOnce()
	require.Len(t, transitions, 1)
	tr := transitions[0]
	assert.Equal(t, TransitionOpened, tr.Kind)
	assert.Equal(t, "cpu-high", tr.Occurrence.AlertID)
	assert.Equal(t, 90.0, tr.Occurrence.Value)
	assert.Equal(t, SeverityWarning, tr.Occurrence.Severity)
	assert.False(t, tr.Occurrence.Resolved)
}

func TestEvaluateSingleOpenOccurrenceInvariant(t *testing.T) {
	engine, source, _ := newTestRuleEngine(t)
	source.addMetric("cpu", metrics.KindGauge)
	require.NoError(t, engine.RegisterAlert(Definition{
		ID: "cpu-high", Metric: "cpu", Operator: OpGreaterThan,
		Threshold: 80, Window: time.Minute, Severity: SeverityWarning, Enabled: true,
	}))

	source.setValues("cpu", 90)
	require.Len(t, engine.EvaluateOnce(), 1)

	// Still firing: no second occurrence while one is open.
	for i := 0; i < 3; i++ {
		assert.Empty(t, engine.EvaluateOnce())
	}
}

func TestEvaluateClosesAutomatically(t *testing.T) {
	engine, source, now := newTestRuleEngine(t)
	source.addMetric("cpu", metrics.KindGauge)
	require.NoError(t, engine.RegisterAlert(Definition{
		ID: "cpu-high", Metric: "cpu", Operator: OpGreaterThan,
		Threshold: 80, Window: time.Minute, Severity: SeverityWarning, Enabled: true,
	}))

	source.setValues("cpu", 90)
	opened := engine.EvaluateOnce()
	require.Len(t, opened, 1)

	*now = (*now).Add(time.Minute)
	source.setValues("cpu", 50)
	closed := engine.EvaluateOnce()
	require.Len(t, closed, 1)
	tr := closed[0]
	assert.Equal(t, TransitionClosed, tr.Kind)
	assert.True(t, tr.Automatic)
	assert.True(t, tr.Occurrence.Resolved)
	require.NotNil(t, tr.Occurrence.ResolvedAt)
	assert.Equal(t, *now, *tr.Occurrence.ResolvedAt)
	assert.Equal(t, opened[0].Occurrence.ID, tr.Occurrence.ID)
}

func TestEvaluateSkipsWhenNoData(t *testing.T) {
	engine, source, _ := newTestRuleEngine(t)
	source.addMetric("cpu", metrics.KindGauge)
	require.NoError(t, engine.RegisterAlert(Definition{
		ID: "cpu-high", Metric: "cpu", Operator: OpGreaterThan,
		Threshold: 80, Window: time.Minute, Severity: SeverityWarning, Enabled: true,
	}))

	// No data: neither opens...
	assert.Empty(t, engine.EvaluateOnce())

	// ...nor closes an open occurrence.
	source.setValues("cpu", 90)
	require.Len(t, engine.EvaluateOnce(), 1)
	source.setValues("cpu")
	assert.Empty(t, engine.EvaluateOnce())
}

func TestEvaluateSkipsDisabledRules(t *testing.T) {
	engine, source, _ := newTestRuleEngine(t)
	source.addMetric("cpu", metrics.KindGauge)
	require.NoError(t, engine.RegisterAlert(Definition{
		ID: "cpu-high", Metric: "cpu", Operator: OpGreaterThan,
		Threshold: 80, Window: time.Minute, Severity: SeverityWarning, Enabled: false,
	}))

	source.setValues("cpu", 100)
	assert.Empty(t, engine.EvaluateOnce())
}

func TestCooldownSuppressesReopen(t *testing.T) {
	engine, source, now := newTestRuleEngine(t)
	source.addMetric("cpu", metrics.KindGauge)
	require.NoError(t, engine.RegisterAlert(Definition{
		ID: "cpu-high", Metric: "cpu", Operator: OpGreaterThan,
		Threshold: 80, Window: time.Minute, Severity: SeverityWarning,
		Cooldown: 30 * time.Minute, Enabled: true,
	}))

	base := *now

	// Open, then close at T.
	source.setValues("cpu", 90)
	require.Len(t, engine.EvaluateOnce(), 1)
	source.setValues("cpu", 50)
	require.Len(t, engine.EvaluateOnce(), 1)

	// Condition true again at T+10m: suppressed by cooldown.
	*now = base.Add(10 * time.Minute)
	source.setValues("cpu", 95)
	assert.Empty(t, engine.EvaluateOnce())

	// At T+31m the cooldown has lapsed: reopens.
	*now = base.Add(31 * time.Minute)
	transitions := engine.EvaluateOnce()
	require.Len(t, transitions, 1)
	assert.Equal(t, TransitionOpened, transitions[0].Kind)
}

func TestAggregationByMetricKind(t *testing.T) {
	tests := []struct {
		name     string
		kind     metrics.Kind
		values   []float64
		expected float64
	}{
		{"counter sums", metrics.KindCounter, []float64{1, 2, 3}, 6},
		{"gauge averages", metrics.KindGauge, []float64{10, 20, 30}, 20},
		{"histogram takes median", metrics.KindHistogram, []float64{1, 100, 3}, 3},
		{"summary even-length median averages middles", metrics.KindSummary, []float64{1, 2, 10, 20}, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, source, _ := newTestRuleEngine(t)
			source.addMetric("m", tt.kind)
			require.NoError(t, engine.RegisterAlert(Definition{
				ID: "r", Metric: "m", Operator: OpEqual, Threshold: tt.expected,
				Window: time.Minute, Severity: SeverityInfo, Enabled: true,
			}))

			source.setValues("m", tt.values...)
			transitions := engine.EvaluateOnce()
			require.Len(t, transitions, 1, "expected comparison value %v to open", tt.expected)
			assert.Equal(t, tt.expected, transitions[0].Occurrence.Value)
		})
	}
}

func TestRatioRule(t *testing.T) {
	engine, source, _ := newTestRuleEngine(t)
	source.addMetric("http.errors", metrics.KindCounter)
	source.addMetric("http.requests", metrics.KindCounter)
	require.NoError(t, engine.RegisterAlert(Definition{
		ID: "error-rate", Metric: "http.errors", Operator: OpGreaterOrEqual,
		Threshold: 5, Window: 2 * time.Minute, Severity: SeverityError,
		RatioAgainstMetric: "http.requests", Enabled: true,
	}))

	// 6 errors out of 100 requests: 6% >= 5 opens.
	source.setValues("http.errors", 2, 2, 2)
	source.setValues("http.requests", 50, 50)
	transitions := engine.EvaluateOnce()
	require.Len(t, transitions, 1)
	assert.Equal(t, TransitionOpened, transitions[0].Kind)
	assert.Equal(t, 6.0, transitions[0].Occurrence.Value)

	// 4 errors out of 100: 4% < 5 closes.
	source.setValues("http.errors", 4)
	closed := engine.EvaluateOnce()
	require.Len(t, closed, 1)
	assert.Equal(t, TransitionClosed, closed[0].Kind)
}

func TestRatioRuleSkipsOnZeroTotal(t *testing.T) {
	engine, source, _ := newTestRuleEngine(t)
	source.addMetric("http.errors", metrics.KindCounter)
	source.addMetric("http.requests", metrics.KindCounter)
	require.NoError(t, engine.RegisterAlert(Definition{
		ID: "error-rate", Metric: "http.errors", Operator: OpGreaterOrEqual,
		Threshold: 5, Window: 2 * time.Minute, Severity: SeverityError,
		RatioAgainstMetric: "http.requests", Enabled: true,
	}))

	source.setValues("http.errors", 6)
	source.setValues("http.requests")
	assert.Empty(t, engine.EvaluateOnce())
}

func TestMarkResolvedStartsCooldown(t *testing.T) {
	engine, source, now := newTestRuleEngine(t)
	source.addMetric("cpu", metrics.KindGauge)
	require.NoError(t, engine.RegisterAlert(Definition{
		ID: "cpu-high", Metric: "cpu", Operator: OpGreaterThan,
		Threshold: 80, Window: time.Minute, Severity: SeverityWarning,
		Cooldown: 30 * time.Minute, Enabled: true,
	}))

	source.setValues("cpu", 90)
	opened := engine.EvaluateOnce()
	require.Len(t, opened, 1)
	occ := opened[0].Occurrence

	// Operator resolves while the condition still holds. The caller's
	// occurrence is a detached copy and stays untouched.
	engine.MarkResolved("cpu-high", occ.ID, *now)
	assert.False(t, occ.Resolved)

	// Within cooldown: no reopen despite the condition being true.
	*now = (*now).Add(10 * time.Minute)
	assert.Empty(t, engine.EvaluateOnce())

	// After cooldown: reopens with a fresh occurrence.
	*now = (*now).Add(25 * time.Minute)
	transitions := engine.EvaluateOnce()
	require.Len(t, transitions, 1)
	assert.NotEqual(t, occ.ID, transitions[0].Occurrence.ID)
}

func TestTransitionsCarryOwnedOccurrences(t *testing.T) {
	engine, source, now := newTestRuleEngine(t)
	source.addMetric("cpu", metrics.KindGauge)
	require.NoError(t, engine.RegisterAlert(Definition{
		ID: "cpu-high", Metric: "cpu", Operator: OpGreaterThan,
		Threshold: 80, Window: time.Minute, Severity: SeverityWarning, Enabled: true,
	}))

	source.setValues("cpu", 90)
	opened := engine.EvaluateOnce()
	require.Len(t, opened, 1)

	// Mutating the emitted occurrence must not reach the engine's record.
	opened[0].Occurrence.Resolved = true
	opened[0].Occurrence.Severity = SeverityCritical

	// Still firing: the single-open invariant holds on the engine's copy.
	assert.Empty(t, engine.EvaluateOnce())

	*now = (*now).Add(time.Minute)
	source.setValues("cpu", 10)
	closed := engine.EvaluateOnce()
	require.Len(t, closed, 1)
	assert.NotSame(t, opened[0].Occurrence, closed[0].Occurrence)
	// The closed occurrence reflects the engine's state, not the
	// caller's mutations.
	assert.Equal(t, SeverityWarning, closed[0].Occurrence.Severity)
	assert.Equal(t, opened[0].Occurrence.ID, closed[0].Occurrence.ID)
}

func TestUnregisterAlert(t *testing.T) {
	engine, source, _ := newTestRuleEngine(t)
	source.addMetric("cpu", metrics.KindGauge)
	require.NoError(t, engine.RegisterAlert(Definition{
		ID: "cpu-high", Metric: "cpu", Operator: OpGreaterThan,
		Threshold: 80, Window: time.Minute, Severity: SeverityWarning, Enabled: true,
	}))

	require.NoError(t, engine.UnregisterAlert("cpu-high"))
	err := engine.UnregisterAlert("cpu-high")
	assert.True(t, errors.IsKind(err, errors.KindNotFound))

	source.setValues("cpu", 100)
	assert.Empty(t, engine.EvaluateOnce())
}

func TestOperatorCompare(t *testing.T) {
	tests := []struct {
		op        Operator
		value     float64
		threshold float64
		expected  bool
	}{
		{OpGreaterThan, 5, 4, true},
		{OpGreaterThan, 4, 4, false},
		{OpLessThan, 3, 4, true},
		{OpGreaterOrEqual, 4, 4, true},
		{OpLessOrEqual, 5, 4, false},
		{OpEqual, 4, 4, true},
		{OpNotEqual, 4, 4, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.op.Compare(tt.value, tt.threshold),
			"%v %s %v", tt.value, tt.op, tt.threshold)
	}
}
