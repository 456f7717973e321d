package alerting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// WebhookSender posts alert snapshots to per-channel HTTP endpoints. It
// is the default Sender wired by cmd/server; channels without a
// configured endpoint are skipped with a warning.
type WebhookSender struct {
	endpoints map[string]string
	client    *http.Client
	logger    *logrus.Logger
}

// NewWebhookSender creates a sender with the given channel->URL map.
func NewWebhookSender(endpoints map[string]string, timeout time.Duration, logger *logrus.Logger) *WebhookSender {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebhookSender{
		endpoints: endpoints,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

// Send implements Sender.
func (w *WebhookSender) Send(channel string, snapshot Snapshot) error {
	url, ok := w.endpoints[channel]
	if !ok || url == "" {
		w.logger.WithField("channel", channel).Warn("No webhook endpoint for channel, skipping")
		return nil
	}

	body, err := json.Marshal(map[string]interface{}{
		"channel": channel,
		"alert":   snapshot,
	})
	if err != nil {
		return err
	}

	resp, err := w.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s returned status %d", channel, resp.StatusCode)
	}
	return nil
}
