package alerting

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vigil-ops/vigil-backend-go/pkg/errors"
)

// EscalationStage defines who is notified after how long. NotifyAll
// re-notifies every earlier-stage channel at this stage too; this is
// intentional re-paging, not deduplicated across stages.
type EscalationStage struct {
	Level     int           `json:"level"`
	Delay     time.Duration `json:"delay"`
	Channels  []string      `json:"channels"`
	NotifyAll bool          `json:"notify_all"`
}

// EscalationPolicy is a named, reusable ladder of stages.
type EscalationPolicy struct {
	ID               string            `json:"id"`
	Stages           []EscalationStage `json:"stages"`
	RepeatFinalStage bool              `json:"repeat_final_stage"`
}

// stageFor returns the stage serving the given level, falling back to
// the final stage when the ladder is exhausted and repeats are enabled.
func (p EscalationPolicy) stageFor(level int) (EscalationStage, bool) {
	for _, st := range p.Stages {
		if st.Level == level {
			return st, true
		}
	}
	if p.RepeatFinalStage && len(p.Stages) > 0 {
		final := p.Stages[len(p.Stages)-1]
		if level > final.Level {
			return final, true
		}
	}
	return EscalationStage{}, false
}

// earlierChannels collects every channel from stages below level.
func (p EscalationPolicy) earlierChannels(level int) []string {
	var out []string
	for _, st := range p.Stages {
		if st.Level < level {
			out = append(out, st.Channels...)
		}
	}
	return out
}

// PolicyCatalog holds named escalation policies, per-alert bindings, and
// the process-wide default.
type PolicyCatalog struct {
	mu        sync.RWMutex
	policies  map[string]EscalationPolicy
	bindings  map[string]string // alert definition id -> policy id
	defaultID string
	logger    *logrus.Logger
}

// NewPolicyCatalog creates an empty catalog.
func NewPolicyCatalog(logger *logrus.Logger) *PolicyCatalog {
	return &PolicyCatalog{
		policies: make(map[string]EscalationPolicy),
		bindings: make(map[string]string),
		logger:   logger,
	}
}

// Register upserts a policy. The first policy ever registered becomes
// the process default unless SetDefault has picked another.
func (c *PolicyCatalog) Register(policy EscalationPolicy) error {
	if policy.ID == "" {
		return errors.InvalidValue("escalation policy id must not be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.policies[policy.ID] = policy
	if c.defaultID == "" {
		c.defaultID = policy.ID
		c.logger.WithField("policy", policy.ID).Info("First escalation policy registered, using as default")
	}
	return nil
}

// SetDefault switches the process-wide default policy.
func (c *PolicyCatalog) SetDefault(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.policies[id]; !ok {
		return errors.NotFound("escalation policy %q not registered", id)
	}
	c.defaultID = id
	return nil
}

// Bind attaches a policy override to an alert definition.
func (c *PolicyCatalog) Bind(alertID, policyID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.policies[policyID]; !ok {
		return errors.NotFound("escalation policy %q not registered", policyID)
	}
	c.bindings[alertID] = policyID
	return nil
}

// Resolve returns the effective policy for an alert definition: the
// bound override when present, else the default. With no default the
// caller logs and skips escalation.
func (c *PolicyCatalog) Resolve(alertID string) (EscalationPolicy, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if id, ok := c.bindings[alertID]; ok {
		if p, found := c.policies[id]; found {
			return p, nil
		}
	}
	if c.defaultID == "" {
		return EscalationPolicy{}, errors.NotFound("no default escalation policy configured")
	}
	p, ok := c.policies[c.defaultID]
	if !ok {
		return EscalationPolicy{}, errors.Internal("default escalation policy %q missing from catalog", c.defaultID)
	}
	return p, nil
}

// Policies returns all registered policies.
func (c *PolicyCatalog) Policies() []EscalationPolicy {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]EscalationPolicy, 0, len(c.policies))
	for _, p := range c.policies {
		out = append(out, p)
	}
	return out
}
