package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitfeed/internal/common"
)

func TestEventBusSubscribe(t *testing.T) {
	tests := []struct {
		name     string
		topic    common.MessageType
		setup    func(*EventBus)
		expected int // subscriber count after the test subscription
	}{
		{
			name:     "subscribe to new topic",
			topic:    common.TypeTicker,
			expected: 1,
		},
		{
			name:  "subscribe to existing topic",
			topic: common.TypeBookUpdate,
			setup: func(b *EventBus) {
				b.Subscribe(common.TypeBookUpdate)
			},
			expected: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := NewEventBus()
			if tt.setup != nil {
				tt.setup(bus)
			}

			ch := bus.Subscribe(tt.topic)
			require.NotNil(t, ch)
			assert.Equal(t, defaultBufferSize, cap(ch))
			assert.Equal(t, tt.expected, bus.TopicSubscriberCount(tt.topic))
		})
	}
}

func TestEventBusPublish(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe(common.TypeTicker)

	bus.Publish(common.TypeTicker, "event-1")
	bus.Publish(common.TypeBookUpdate, "wrong-topic")

	select {
	case got := <-ch:
		assert.Equal(t, "event-1", got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}

	select {
	case got := <-ch:
		t.Fatalf("unexpected event on ticker topic: %v", got)
	default:
	}
}

func TestEventBusPublishFullBufferDrops(t *testing.T) {
	bus := NewEventBus()
	bus.bufferSize = 1
	ch := bus.Subscribe(common.TypeTicker)

	bus.Publish(common.TypeTicker, 1)
	bus.Publish(common.TypeTicker, 2) // buffer full, must not block

	assert.Equal(t, 1, <-ch)
	select {
	case got := <-ch:
		t.Fatalf("dropped event was delivered: %v", got)
	default:
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe(common.TypeTicker)
	require.Equal(t, 1, bus.TopicSubscriberCount(common.TypeTicker))

	bus.Unsubscribe(common.TypeTicker, ch)
	assert.Equal(t, 0, bus.TopicSubscriberCount(common.TypeTicker))

	_, open := <-ch
	assert.False(t, open, "unsubscribed channel should be closed")

	// second unsubscribe is a no-op
	bus.Unsubscribe(common.TypeTicker, ch)
}

func TestEventBusShutdown(t *testing.T) {
	bus := NewEventBus()
	ch1 := bus.Subscribe(common.TypeTicker)
	ch2 := bus.Subscribe(common.TypeBookSnapshot)

	bus.Shutdown()

	_, open := <-ch1
	assert.False(t, open)
	_, open = <-ch2
	assert.False(t, open)

	// publishing after shutdown must not panic
	bus.Publish(common.TypeTicker, "late")
}
