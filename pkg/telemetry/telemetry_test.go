package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversToSubscribers(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	events, cancel := hub.Subscribe()
	defer cancel()

	hub.Publish(Event{Type: EventRunStarted, ConversationID: "conv-1"})

	select {
	case event := <-events:
		assert.Equal(t, EventRunStarted, event.Type)
		assert.Equal(t, "conv-1", event.ConversationID)
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}
}

func TestHubPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	// Subscribe but never drain.
	_, cancel := hub.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			hub.Publish(Event{Type: EventToolStarted})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	events, cancel := hub.Subscribe()
	cancel()

	hub.Publish(Event{Type: EventRunCompleted})
	select {
	case _, ok := <-events:
		assert.False(t, ok, "channel should be closed after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCounters(t *testing.T) {
	reg := NewMetricsRegistry()
	c := reg.Counter("runs_total", Labels{"action": "completed"})
	c.Inc()
	c.Inc()
	assert.Equal(t, int64(2), c.Get())

	same := reg.Counter("runs_total", Labels{"action": "completed"})
	assert.Equal(t, int64(2), same.Get(), "same name+labels returns the same counter")

	other := reg.Counter("runs_total", Labels{"action": "tool_failed"})
	assert.Equal(t, int64(0), other.Get())
}

func TestHistogramMean(t *testing.T) {
	h := NewHistogram("d", nil)
	h.ObserveDuration(100 * time.Millisecond)
	h.ObserveDuration(300 * time.Millisecond)
	require.Equal(t, int64(2), h.Count())
	assert.Equal(t, 200*time.Millisecond, h.Mean())
}

func TestLabelsCanonicalOrder(t *testing.T) {
	a := Labels{"b": "2", "a": "1"}
	b := Labels{"a": "1", "b": "2"}
	assert.Equal(t, a.String(), b.String())
}
