package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigil-ops/vigil-backend-go/internal/config"
	"github.com/vigil-ops/vigil-backend-go/internal/core/alerting"
	"github.com/vigil-ops/vigil-backend-go/internal/core/metrics"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

type recordingSender struct {
	mu    sync.Mutex
	calls []string
}

func (s *recordingSender) Send(channel string, snapshot alerting.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, channel)
	return nil
}

func (s *recordingSender) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func testConfig() *config.Config {
	return &config.Config{
		Metrics: config.MetricsConfig{
			Retention:     7 * 24 * time.Hour,
			PruneInterval: time.Hour,
		},
		Alerting: config.AlertingConfig{
			EvaluationInterval:      30 * time.Second,
			EscalationSweepInterval: time.Minute,
			HistoryRetention:        90 * 24 * time.Hour,
			HistoryPruneInterval:    time.Hour,
			DefaultCooldown:         30 * time.Minute,
		},
		Notifications: config.NotificationsConfig{
			DefaultChannels: []string{"ops-email"},
		},
	}
}

func newTestEngine(t *testing.T, cfg *config.Config) (*Engine, *recordingSender) {
	t.Helper()
	sender := &recordingSender{}
	return New(cfg, sender, nil, nil, testLogger()), sender
}

func registerCPURule(t *testing.T, eng *Engine) {
	t.Helper()
	require.NoError(t, eng.RegisterMetric(metrics.Definition{Name: "cpu.percent", Kind: metrics.KindGauge}))
	require.NoError(t, eng.RegisterAlert(alerting.Definition{
		ID:        "cpu-high",
		Metric:    "cpu.percent",
		Operator:  alerting.OpGreaterThan,
		Threshold: 80,
		Window:    5 * time.Minute,
		Severity:  alerting.SeverityWarning,
		Enabled:   true,
	}))
}

func TestTickOpensAlert(t *testing.T) {
	eng, sender := newTestEngine(t, testConfig())
	registerCPURule(t, eng)

	require.NoError(t, eng.Record("cpu.percent", 95, nil))
	eng.Tick()

	active := eng.ActiveAlerts(alerting.Filter{})
	require.Len(t, active, 1)
	assert.Equal(t, "cpu-high", active[0].Occurrence.AlertID)
	assert.Equal(t, alerting.StatusTriggered, active[0].Status)
	// Stage 1 of the implicit default policy pages the default channels.
	assert.Equal(t, []string{"ops-email"}, active[0].NotifiedChannels)

	require.Eventually(t, func() bool { return sender.total() == 1 },
		2*time.Second, 5*time.Millisecond)
}

func TestTickClosesAutomatically(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig())
	registerCPURule(t, eng)

	require.NoError(t, eng.Record("cpu.percent", 95, nil))
	eng.Tick()
	require.Len(t, eng.ActiveAlerts(alerting.Filter{}), 1)

	// Pull the windowed mean back under the threshold.
	require.NoError(t, eng.Record("cpu.percent", 10, nil))
	require.NoError(t, eng.Record("cpu.percent", 10, nil))
	eng.Tick()

	assert.Empty(t, eng.ActiveAlerts(alerting.Filter{}))
	history := eng.AlertHistory(0, alerting.Filter{})
	require.Len(t, history, 1)
	require.NotNil(t, history[0].Resolution)
	assert.True(t, history[0].Resolution.Automatic)
}

func TestOperatorResolveStartsCooldown(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig())
	registerCPURule(t, eng)

	require.NoError(t, eng.Record("cpu.percent", 95, nil))
	eng.Tick()
	active := eng.ActiveAlerts(alerting.Filter{})
	require.Len(t, active, 1)
	occID := active[0].Occurrence.ID

	require.NoError(t, eng.Acknowledge(occID, "alice", "on it"))
	require.NoError(t, eng.Resolve(occID, "alice", "rebooted the box"))

	history := eng.AlertHistory(0, alerting.Filter{})
	require.Len(t, history, 1)
	assert.False(t, history[0].Resolution.Automatic)
	assert.Equal(t, "alice", history[0].Resolution.By)

	// The condition still holds, but the resolution started the cooldown.
	eng.Tick()
	assert.Empty(t, eng.ActiveAlerts(alerting.Filter{}))
}

func TestRegisterAlertDefaultsCooldown(t *testing.T) {
	cfg := testConfig()
	eng, _ := newTestEngine(t, cfg)
	registerCPURule(t, eng)

	defs := eng.AlertDefinitions()
	require.Len(t, defs, 1)
	assert.Equal(t, cfg.Alerting.DefaultCooldown, defs[0].Cooldown)
}

func TestRegisterAlertUnknownPolicyFallsBack(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig())
	require.NoError(t, eng.RegisterMetric(metrics.Definition{Name: "cpu.percent", Kind: metrics.KindGauge}))

	// An unknown policy reference is a warning, not a rejection.
	err := eng.RegisterAlert(alerting.Definition{
		ID:               "cpu-high",
		Metric:           "cpu.percent",
		Operator:         alerting.OpGreaterThan,
		Threshold:        80,
		Window:           time.Minute,
		Severity:         alerting.SeverityWarning,
		Enabled:          true,
		EscalationPolicy: "ghost",
	})
	assert.NoError(t, err)
}

func TestSeedPoliciesFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Escalation = config.EscalationConfig{
		DefaultPolicy: "standard",
		Policies: []config.PolicyConfig{
			{
				ID: "standard",
				Stages: []config.StageConfig{
					{Level: 1, DelayMinutes: 0, Channels: []string{"ops-email"}},
					{Level: 2, DelayMinutes: 30, Channels: []string{"ops-pager"}, NotifyAll: true},
				},
			},
		},
	}
	eng, _ := newTestEngine(t, cfg)

	policies := eng.EscalationPolicies()
	require.Len(t, policies, 1)
	assert.Equal(t, "standard", policies[0].ID)
	require.Len(t, policies[0].Stages, 2)
	assert.Equal(t, 30*time.Minute, policies[0].Stages[1].Delay)
	assert.True(t, policies[0].Stages[1].NotifyAll)
}

func TestSeedImplicitDefaultPolicy(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig())

	policies := eng.EscalationPolicies()
	require.Len(t, policies, 1)
	assert.Equal(t, "default", policies[0].ID)
	require.Len(t, policies[0].Stages, 1)
	assert.Equal(t, []string{"ops-email"}, policies[0].Stages[0].Channels)
}

func TestRegisterEscalationPolicyAtRuntime(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig())

	require.NoError(t, eng.RegisterEscalationPolicy(alerting.EscalationPolicy{
		ID: "paging",
		Stages: []alerting.EscalationStage{
			{Level: 1, Channels: []string{"ops-pager"}},
		},
	}))
	require.NoError(t, eng.SetDefaultEscalationPolicy("paging"))
	assert.Len(t, eng.EscalationPolicies(), 2)
}

func TestStartStop(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig())
	require.NoError(t, eng.Start())
	eng.Stop()
}

func TestEveryFallback(t *testing.T) {
	assert.Equal(t, "@every 30s", every(30*time.Second, time.Minute))
	assert.Equal(t, "@every 1m0s", every(0, time.Minute))
}
