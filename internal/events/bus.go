package events

import (
	"sync"

	"bitfeed/internal/common"
)

const defaultBufferSize = 100

// EventBus is a concurrency-safe, non-blocking publish/subscribe bus.
// Publishing to a subscriber whose buffer is full drops the event for that
// subscriber; a slow metrics consumer must never stall the market-data path.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[common.MessageType]map[chan interface{}]struct{}
	bufferSize  int
	closed      bool
}

// NewEventBus returns a bus with the default per-subscriber buffer.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[common.MessageType]map[chan interface{}]struct{}),
		bufferSize:  defaultBufferSize,
	}
}

// Publish delivers event to every subscriber of topic without blocking.
func (b *EventBus) Publish(topic common.MessageType, event interface{}) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for ch := range b.subscribers[topic] {
		select {
		case ch <- event:
		default:
			// subscriber buffer full, drop
		}
	}
}

// Subscribe registers a new subscriber channel for topic.
func (b *EventBus) Subscribe(topic common.MessageType) <-chan interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan interface{}, b.bufferSize)
	if b.subscribers[topic] == nil {
		b.subscribers[topic] = make(map[chan interface{}]struct{})
	}
	b.subscribers[topic][ch] = struct{}{}
	return ch
}

// Unsubscribe removes ch from topic and closes it. Idempotent.
func (b *EventBus) Unsubscribe(topic common.MessageType, ch <-chan interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[topic]
	if !ok {
		return
	}
	for sub := range subs {
		if (<-chan interface{})(sub) == ch {
			delete(subs, sub)
			close(sub)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.subscribers, topic)
	}
}

// Shutdown closes every subscriber channel. Publish becomes a no-op.
func (b *EventBus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for topic, subs := range b.subscribers {
		for ch := range subs {
			close(ch)
		}
		delete(b.subscribers, topic)
	}
}

// TopicSubscriberCount reports the number of subscribers for a topic.
func (b *EventBus) TopicSubscriberCount(topic common.MessageType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}
