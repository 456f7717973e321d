package alerting

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vigil-ops/vigil-backend-go/pkg/errors"
)

// Filter narrows active/history listings. Zero fields match everything.
type Filter struct {
	Status   Status
	Severity Severity
	Tag      string
	Since    time.Time
	Until    time.Time
}

func (f Filter) matches(t *TrackedAlert) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Severity != "" && t.Occurrence.Severity != f.Severity {
		return false
	}
	if f.Tag != "" && !t.hasTag(f.Tag) {
		return false
	}
	if !f.Since.IsZero() && t.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && t.CreatedAt.After(f.Until) {
		return false
	}
	return true
}

// Statistics summarizes alerts created within a window.
type Statistics struct {
	Total      int              `json:"total"`
	ByStatus   map[Status]int   `json:"by_status"`
	BySeverity map[Severity]int `json:"by_severity"`
	ByTag      map[string]int   `json:"by_tag"`
	// MTTR is the mean time to resolve over resolved samples, 0 if none.
	MTTR time.Duration `json:"mttr"`
	// MTTA is the mean time to acknowledge over acknowledged samples, 0 if none.
	MTTA time.Duration `json:"mtta"`
}

// LifecycleManager wraps each open occurrence in a TrackedAlert, drives
// escalation on the sweep cadence, applies operator actions, and retains
// bounded history. One mutex serializes every mutation so operator
// actions cannot tear state against the escalation sweep.
type LifecycleManager struct {
	mu               sync.Mutex
	active           map[string]*TrackedAlert // keyed by occurrence id
	history          []*TrackedAlert
	catalog          *PolicyCatalog
	router           *Router
	historyRetention time.Duration
	logger           *logrus.Logger
	now              func() time.Time
}

// NewLifecycleManager creates a lifecycle manager.
func NewLifecycleManager(catalog *PolicyCatalog, router *Router, historyRetention time.Duration, logger *logrus.Logger) *LifecycleManager {
	return &LifecycleManager{
		active:           make(map[string]*TrackedAlert),
		catalog:          catalog,
		router:           router,
		historyRetention: historyRetention,
		logger:           logger,
		now:              time.Now,
	}
}

// Apply consumes one tick's transitions from the rule engine: openings
// become tracked alerts with an immediate stage-1 escalation, closings
// resolve automatically.
func (m *LifecycleManager) Apply(transitions []Transition) {
	for _, tr := range transitions {
		switch tr.Kind {
		case TransitionOpened:
			m.track(tr.Occurrence)
		case TransitionClosed:
			if _, err := m.Resolve(tr.Occurrence.ID, "", "condition no longer met"); err != nil {
				m.logger.WithError(err).WithField("occurrence", tr.Occurrence.ID).
					Warn("Automatic resolution failed")
			}
		}
	}
}

func (m *LifecycleManager) track(occ *Occurrence) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	t := &TrackedAlert{
		Occurrence: occ,
		Status:     StatusTriggered,
		CreatedAt:  now,
		notified:   make(map[string]struct{}),
		tags:       make(map[string]struct{}),
	}
	t.addTag(string(occ.Severity))
	m.active[occ.ID] = t

	m.logger.WithFields(logrus.Fields{
		"occurrence": occ.ID,
		"alert":      occ.AlertID,
		"severity":   occ.Severity,
	}).Info("Tracking new alert")

	// Stage 1 fires immediately by convention; the escalation itself
	// schedules stage 2 when the policy defines one.
	m.escalateLocked(t, 1, now)
	m.router.Publish("alert_opened", m.snapshotLocked(t))
}

// escalateLocked advances t to the given level: notifies the stage's
// channels (plus every earlier stage's when notifyAll is set), updates
// status, and reschedules or clears the next due time. Caller holds m.mu.
func (m *LifecycleManager) escalateLocked(t *TrackedAlert, level int, now time.Time) {
	alertID := t.Occurrence.AlertID

	policy, err := m.catalog.Resolve(alertID)
	if err != nil {
		m.logger.WithError(err).WithField("alert", alertID).Warn("No escalation policy, skipping escalation")
		t.NextEscalationAt = nil
		return
	}

	stage, ok := policy.stageFor(level)
	if !ok {
		m.logger.WithFields(logrus.Fields{
			"alert":  alertID,
			"level":  level,
			"policy": policy.ID,
		}).Warn("No escalation stage for level, skipping")
		t.NextEscalationAt = nil
		return
	}

	// Build this stage's send list. notifyAll re-pages all earlier-stage
	// channels; the batch is deduplicated per call, while the alert's
	// notified-channel set grows monotonically across calls.
	seen := make(map[string]struct{})
	var batch []string
	appendChannel := func(ch string) {
		if _, dup := seen[ch]; dup {
			return
		}
		seen[ch] = struct{}{}
		batch = append(batch, ch)
	}
	for _, ch := range stage.Channels {
		appendChannel(ch)
	}
	if stage.NotifyAll {
		for _, ch := range policy.earlierChannels(level) {
			appendChannel(ch)
		}
	}
	for _, ch := range batch {
		t.addChannel(ch)
	}

	t.EscalationLevel = level
	if level > 1 {
		t.Status = StatusEscalated
	}

	snap := m.snapshotLocked(t)
	m.router.Notify(batch, snap)
	if level > 1 {
		m.router.Publish("alert_escalated", snap)
	}

	if next, hasNext := policy.stageFor(level + 1); hasNext {
		due := now.Add(next.Delay)
		t.NextEscalationAt = &due
	} else {
		t.NextEscalationAt = nil
	}

	m.logger.WithFields(logrus.Fields{
		"occurrence": t.Occurrence.ID,
		"alert":      alertID,
		"level":      level,
		"channels":   batch,
	}).Info("Escalation stage executed")
}

// Sweep advances every unacknowledged, unresolved alert whose next
// escalation is due. Runs on its own cadence, independent of evaluation.
func (m *LifecycleManager) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, t := range m.active {
		if t.Status == StatusAcknowledged || t.Status == StatusResolved {
			continue
		}
		if t.NextEscalationAt == nil || now.Before(*t.NextEscalationAt) {
			continue
		}
		m.escalateLocked(t, t.EscalationLevel+1, now)
	}
}

// Acknowledge records the operator action and freezes escalation until
// resolution. Repeat calls refresh the record.
func (m *LifecycleManager) Acknowledge(id, by, comment string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.active[id]
	if !ok {
		if m.inHistoryLocked(id) {
			return errors.AlreadyTerminal("alert %q already resolved", id)
		}
		return errors.NotFound("alert %q not found", id)
	}

	now := m.now()
	t.Ack = &Acknowledgment{
		By:                by,
		At:                now,
		Comment:           comment,
		TimeToAcknowledge: now.Sub(t.CreatedAt),
	}
	t.Status = StatusAcknowledged
	t.NextEscalationAt = nil

	m.logger.WithFields(logrus.Fields{
		"occurrence": id,
		"by":         by,
	}).Info("Alert acknowledged")
	m.router.Publish("alert_acknowledged", m.snapshotLocked(t))
	return nil
}

// Resolve ends the tracked alert and moves it to history. An empty "by"
// marks the resolution automatic (evaluation tick). Returns a detached
// copy of the resolved alert so callers can propagate the closure to the
// rule engine.
func (m *LifecycleManager) Resolve(id, by, comment string) (*TrackedAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.active[id]
	if !ok {
		if m.inHistoryLocked(id) {
			return nil, errors.AlreadyTerminal("alert %q already resolved", id)
		}
		return nil, errors.NotFound("alert %q not found", id)
	}

	now := m.now()
	t.Resolution = &Resolution{
		By:            by,
		At:            now,
		Comment:       comment,
		TimeToResolve: now.Sub(t.CreatedAt),
		Automatic:     by == "",
	}
	t.Status = StatusResolved
	t.NextEscalationAt = nil
	if !t.Occurrence.Resolved {
		t.Occurrence.Resolved = true
		at := now
		t.Occurrence.ResolvedAt = &at
	}

	delete(m.active, id)
	m.history = append(m.history, t)

	m.logger.WithFields(logrus.Fields{
		"occurrence": id,
		"alert":      t.Occurrence.AlertID,
		"automatic":  t.Resolution.Automatic,
		"ttr":        t.Resolution.TimeToResolve,
	}).Info("Alert resolved")
	m.router.Publish("alert_resolved", m.snapshotLocked(t))
	return t.clone(), nil
}

// AddTags attaches tags to an active alert. Duplicates are ignored.
func (m *LifecycleManager) AddTags(id string, tags ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.active[id]
	if !ok {
		if m.inHistoryLocked(id) {
			return errors.AlreadyTerminal("alert %q already resolved", id)
		}
		return errors.NotFound("alert %q not found", id)
	}
	for _, tag := range tags {
		t.addTag(tag)
	}
	return nil
}

// ActiveAlerts lists live alerts matching the filter, newest first. The
// returned alerts are detached copies: the sweep keeps mutating the live
// records, so callers never read them directly.
func (m *LifecycleManager) ActiveAlerts(f Filter) []*TrackedAlert {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*TrackedAlert, 0, len(m.active))
	for _, t := range m.active {
		if f.matches(t) {
			out = append(out, t.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// History lists resolved alerts matching the filter as detached copies,
// newest first. limit <= 0 returns everything retained.
func (m *LifecycleManager) History(limit int, f Filter) []*TrackedAlert {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*TrackedAlert, 0, len(m.history))
	for _, t := range m.history {
		if f.matches(t) {
			out = append(out, t.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Statistics aggregates live and historical alerts created within the
// window. window <= 0 covers everything retained. Means are 0 when no
// samples exist, never NaN.
func (m *LifecycleManager) Statistics(window time.Duration) Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Statistics{
		ByStatus:   make(map[Status]int),
		BySeverity: make(map[Severity]int),
		ByTag:      make(map[string]int),
	}

	var cutoff time.Time
	if window > 0 {
		cutoff = m.now().Add(-window)
	}

	var ttrSum, ttaSum time.Duration
	var resolved, acknowledged int

	collect := func(t *TrackedAlert) {
		if !cutoff.IsZero() && t.CreatedAt.Before(cutoff) {
			return
		}
		stats.Total++
		stats.ByStatus[t.Status]++
		stats.BySeverity[t.Occurrence.Severity]++
		for _, tag := range t.Tags {
			stats.ByTag[tag]++
		}
		if t.Resolution != nil {
			ttrSum += t.Resolution.TimeToResolve
			resolved++
		}
		if t.Ack != nil {
			ttaSum += t.Ack.TimeToAcknowledge
			acknowledged++
		}
	}

	for _, t := range m.active {
		collect(t)
	}
	for _, t := range m.history {
		collect(t)
	}

	if resolved > 0 {
		stats.MTTR = ttrSum / time.Duration(resolved)
	}
	if acknowledged > 0 {
		stats.MTTA = ttaSum / time.Duration(acknowledged)
	}
	return stats
}

// PruneHistory drops history entries resolved before the retention
// window. Idempotent: a second consecutive run removes nothing.
func (m *LifecycleManager) PruneHistory() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.historyRetention)
	kept := m.history[:0]
	dropped := 0
	for _, t := range m.history {
		if t.Resolution != nil && t.Resolution.At.Before(cutoff) {
			dropped++
			continue
		}
		kept = append(kept, t)
	}
	m.history = kept

	if dropped > 0 {
		m.logger.WithField("entries", dropped).Info("Pruned alert history")
	}
	return dropped
}

func (m *LifecycleManager) inHistoryLocked(id string) bool {
	for _, t := range m.history {
		if t.Occurrence.ID == id {
			return true
		}
	}
	return false
}

// snapshotLocked builds the notification payload. Caller holds m.mu.
func (m *LifecycleManager) snapshotLocked(t *TrackedAlert) Snapshot {
	tags := make([]string, len(t.Tags))
	copy(tags, t.Tags)
	return Snapshot{
		AlertID:         t.Occurrence.AlertID,
		OccurrenceID:    t.Occurrence.ID,
		Metric:          t.Occurrence.Metric,
		Severity:        t.Occurrence.Severity,
		Status:          t.Status,
		Value:           t.Occurrence.Value,
		Threshold:       t.Occurrence.Threshold,
		Labels:          copyLabels(t.Occurrence.Labels),
		Tags:            tags,
		EscalationLevel: t.EscalationLevel,
		CreatedAt:       t.CreatedAt,
	}
}
