package alerting

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Sender delivers one fully formed notification to one channel. The
// transport (email, webhook, pager) is the embedding application's
// concern; the engine only decides which channels and when.
type Sender interface {
	Send(channel string, snapshot Snapshot) error
}

// Broadcaster receives transition events for live consumers such as the
// websocket hub. Implementations must not block.
type Broadcaster interface {
	BroadcastEvent(event Event)
}

// Event is a lifecycle transition pushed to live consumers.
type Event struct {
	Type      string   `json:"type"`
	Alert     Snapshot `json:"alert"`
	Timestamp string   `json:"timestamp"`
}

// Router fans notifications out to the injected sender, one call per
// channel. Sends are fire-and-forget: a slow or failing sender never
// stalls evaluation or escalation, and failures are only logged.
type Router struct {
	sender      Sender
	broadcaster Broadcaster
	logger      *logrus.Logger
}

// NewRouter creates a Router. broadcaster may be nil.
func NewRouter(sender Sender, broadcaster Broadcaster, logger *logrus.Logger) *Router {
	return &Router{sender: sender, broadcaster: broadcaster, logger: logger}
}

// Notify dispatches one notification per channel in the background.
func (r *Router) Notify(channels []string, snapshot Snapshot) {
	if r.sender == nil || len(channels) == 0 {
		return
	}
	for _, ch := range channels {
		go func(channel string) {
			if err := r.sender.Send(channel, snapshot); err != nil {
				r.logger.WithError(err).WithFields(logrus.Fields{
					"channel": channel,
					"alert":   snapshot.AlertID,
				}).Error("Notification delivery failed")
			}
		}(ch)
	}
}

// Publish tees a transition event to the broadcaster, if one is wired.
func (r *Router) Publish(eventType string, snapshot Snapshot) {
	if r.broadcaster == nil {
		return
	}
	r.broadcaster.BroadcastEvent(Event{
		Type:      eventType,
		Alert:     snapshot,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
