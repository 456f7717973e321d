package alerting

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSender struct {
	mu       sync.Mutex
	attempts int
}

func (s *failingSender) Send(channel string, snapshot Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	return fmt.Errorf("channel %s unreachable", channel)
}

func TestNotifyFansOutPerChannel(t *testing.T) {
	sender := &captureSender{}
	router := NewRouter(sender, nil, testLogger())

	router.Notify([]string{"a", "b", "c"}, Snapshot{AlertID: "cpu-high"})

	require.Eventually(t, func() bool { return sender.total() == 3 },
		2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, sender.count("a"))
	assert.Equal(t, 1, sender.count("b"))
	assert.Equal(t, 1, sender.count("c"))
}

func TestNotifySenderFailureIsSwallowed(t *testing.T) {
	sender := &failingSender{}
	router := NewRouter(sender, nil, testLogger())

	// Failures are logged; nothing panics and nothing blocks.
	router.Notify([]string{"a", "b"}, Snapshot{AlertID: "cpu-high"})

	require.Eventually(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return sender.attempts == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestNotifyNilSender(t *testing.T) {
	router := NewRouter(nil, nil, testLogger())
	assert.NotPanics(t, func() {
		router.Notify([]string{"a"}, Snapshot{})
	})
}

type captureBroadcaster struct {
	mu     sync.Mutex
	events []Event
}

func (b *captureBroadcaster) BroadcastEvent(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func TestPublishTeesToBroadcaster(t *testing.T) {
	broadcaster := &captureBroadcaster{}
	router := NewRouter(nil, broadcaster, testLogger())

	router.Publish("alert_opened", Snapshot{AlertID: "cpu-high"})

	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()
	require.Len(t, broadcaster.events, 1)
	assert.Equal(t, "alert_opened", broadcaster.events[0].Type)
	assert.Equal(t, "cpu-high", broadcaster.events[0].Alert.AlertID)
	assert.NotEmpty(t, broadcaster.events[0].Timestamp)
}

func TestPublishNilBroadcaster(t *testing.T) {
	router := NewRouter(nil, nil, testLogger())
	assert.NotPanics(t, func() {
		router.Publish("alert_opened", Snapshot{})
	})
}
