package engine

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/vigil-ops/vigil-backend-go/internal/config"
	"github.com/vigil-ops/vigil-backend-go/internal/core/alerting"
	"github.com/vigil-ops/vigil-backend-go/internal/core/analytics"
	"github.com/vigil-ops/vigil-backend-go/internal/core/metrics"
)

// Engine composes the metric store, rule engine, lifecycle manager,
// policy catalog, and notification router into one handle, and owns the
// periodic cadences. Construct one per process (or per test); there are
// no package-level singletons.
type Engine struct {
	cfg       *config.Config
	logger    *logrus.Logger
	store     *metrics.Store
	rules     *alerting.RuleEngine
	lifecycle *alerting.LifecycleManager
	policies  *alerting.PolicyCatalog
	router    *alerting.Router
	cron      *cron.Cron
}

// New wires the engine from configuration and injected boundaries. The
// sink and broadcaster may be nil; the sender should not be in
// production but a nil sender only disables delivery.
func New(cfg *config.Config, sender alerting.Sender, broadcaster alerting.Broadcaster, sink analytics.Sink, logger *logrus.Logger) *Engine {
	store := metrics.NewStore(cfg.Metrics.Retention, sink, logger)
	catalog := alerting.NewPolicyCatalog(logger)
	router := alerting.NewRouter(sender, broadcaster, logger)
	lifecycle := alerting.NewLifecycleManager(catalog, router, cfg.Alerting.HistoryRetention, logger)
	rules := alerting.NewRuleEngine(store, logger)

	e := &Engine{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		rules:     rules,
		lifecycle: lifecycle,
		policies:  catalog,
		router:    router,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(
				cron.SkipIfStillRunning(cron.DiscardLogger),
				cron.Recover(cron.DefaultLogger),
			),
		),
	}
	e.seedPolicies()
	return e
}

// seedPolicies loads config-declared escalation policies. With none
// declared, the default notification channels become an implicit
// single-stage policy so openings still page someone.
func (e *Engine) seedPolicies() {
	for _, pc := range e.cfg.Escalation.Policies {
		policy := alerting.EscalationPolicy{
			ID:               pc.ID,
			RepeatFinalStage: pc.RepeatFinalStage,
		}
		for _, sc := range pc.Stages {
			policy.Stages = append(policy.Stages, alerting.EscalationStage{
				Level:     sc.Level,
				Delay:     time.Duration(sc.DelayMinutes) * time.Minute,
				Channels:  sc.Channels,
				NotifyAll: sc.NotifyAll,
			})
		}
		if err := e.policies.Register(policy); err != nil {
			e.logger.WithError(err).WithField("policy", pc.ID).Warn("Skipping invalid escalation policy")
		}
	}

	if e.cfg.Escalation.DefaultPolicy != "" {
		if err := e.policies.SetDefault(e.cfg.Escalation.DefaultPolicy); err != nil {
			e.logger.WithError(err).Warn("Configured default escalation policy unknown")
		}
	}

	if len(e.cfg.Escalation.Policies) == 0 && len(e.cfg.Notifications.DefaultChannels) > 0 {
		e.policies.Register(alerting.EscalationPolicy{
			ID: "default",
			Stages: []alerting.EscalationStage{
				{Level: 1, Delay: 0, Channels: e.cfg.Notifications.DefaultChannels},
			},
		})
	}
}

// Start schedules the periodic cadences: rule evaluation, the escalation
// sweep, and the hourly retention sweeps.
func (e *Engine) Start() error {
	schedules := []struct {
		spec string
		name string
		run  func()
	}{
		{every(e.cfg.Alerting.EvaluationInterval, 30*time.Second), "evaluate", e.Tick},
		{every(e.cfg.Alerting.EscalationSweepInterval, time.Minute), "escalation_sweep", e.lifecycle.Sweep},
		{every(e.cfg.Metrics.PruneInterval, time.Hour), "metric_prune", func() { e.store.Prune() }},
		{every(e.cfg.Alerting.HistoryPruneInterval, time.Hour), "history_prune", func() { e.lifecycle.PruneHistory() }},
	}

	for _, s := range schedules {
		if _, err := e.cron.AddFunc(s.spec, s.run); err != nil {
			return fmt.Errorf("scheduling %s: %w", s.name, err)
		}
	}

	e.cron.Start()
	e.logger.WithFields(logrus.Fields{
		"evaluation_interval": e.cfg.Alerting.EvaluationInterval,
		"escalation_sweep":    e.cfg.Alerting.EscalationSweepInterval,
	}).Info("Alerting engine started")
	return nil
}

// Stop halts the periodic tasks and waits for in-flight runs.
func (e *Engine) Stop() {
	ctx := e.cron.Stop()
	<-ctx.Done()
	e.logger.Info("Alerting engine stopped")
}

// Tick runs one evaluation pass and feeds the transitions to the
// lifecycle manager. Exposed so tests and tools can drive evaluation
// without waiting on the schedule.
func (e *Engine) Tick() {
	transitions := e.rules.EvaluateOnce()
	if len(transitions) == 0 {
		return
	}
	e.lifecycle.Apply(transitions)
}

func every(d, fallback time.Duration) string {
	if d <= 0 {
		d = fallback
	}
	return "@every " + d.String()
}

// --- write API ---

func (e *Engine) RegisterMetric(def metrics.Definition) error {
	return e.store.RegisterMetric(def)
}

func (e *Engine) Record(name string, value float64, labels map[string]string) error {
	return e.store.Record(name, value, labels)
}

// RegisterAlert registers a definition and binds its policy override,
// when declared.
func (e *Engine) RegisterAlert(def alerting.Definition) error {
	if def.Cooldown == 0 {
		def.Cooldown = e.cfg.Alerting.DefaultCooldown
	}
	if err := e.rules.RegisterAlert(def); err != nil {
		return err
	}
	if def.EscalationPolicy != "" {
		if err := e.policies.Bind(def.ID, def.EscalationPolicy); err != nil {
			e.logger.WithError(err).WithField("alert", def.ID).
				Warn("Alert references unknown escalation policy, falling back to default")
		}
	}
	return nil
}

func (e *Engine) UnregisterAlert(id string) error {
	return e.rules.UnregisterAlert(id)
}

func (e *Engine) Acknowledge(id, by, comment string) error {
	return e.lifecycle.Acknowledge(id, by, comment)
}

// Resolve ends a tracked alert on behalf of an operator and closes the
// matching occurrence in the rule engine so cooldown starts now.
func (e *Engine) Resolve(id, by, comment string) error {
	t, err := e.lifecycle.Resolve(id, by, comment)
	if err != nil {
		return err
	}
	e.rules.MarkResolved(t.Occurrence.AlertID, t.Occurrence.ID, t.Resolution.At)
	return nil
}

func (e *Engine) AddTags(id string, tags ...string) error {
	return e.lifecycle.AddTags(id, tags...)
}

func (e *Engine) RegisterEscalationPolicy(policy alerting.EscalationPolicy) error {
	return e.policies.Register(policy)
}

func (e *Engine) SetDefaultEscalationPolicy(id string) error {
	return e.policies.SetDefault(id)
}

// --- read API ---

func (e *Engine) Query(name string, window time.Duration, opts metrics.QueryOptions) ([]metrics.DataPoint, error) {
	return e.store.Query(name, window, opts)
}

func (e *Engine) LatestValue(name string, labelFilter map[string]string) (metrics.DataPoint, error) {
	return e.store.LatestValue(name, labelFilter)
}

func (e *Engine) ActiveAlerts(f alerting.Filter) []*alerting.TrackedAlert {
	return e.lifecycle.ActiveAlerts(f)
}

func (e *Engine) AlertHistory(limit int, f alerting.Filter) []*alerting.TrackedAlert {
	return e.lifecycle.History(limit, f)
}

func (e *Engine) AlertStatistics(window time.Duration) alerting.Statistics {
	return e.lifecycle.Statistics(window)
}

func (e *Engine) AlertDefinitions() []alerting.Definition {
	return e.rules.Definitions()
}

func (e *Engine) EscalationPolicies() []alerting.EscalationPolicy {
	return e.policies.Policies()
}

// Store exposes the metric store to in-process producers such as the
// system collector.
func (e *Engine) Store() *metrics.Store {
	return e.store
}
