package events

import "bitfeed/internal/common"

// Bus is the publish/subscribe contract between the stream client and its
// consumers (metrics recorder, Kafka publisher, console view).
type Bus interface {
	// Publish sends an event to all subscribers of the topic. Never blocks.
	Publish(topic common.MessageType, event interface{})
	// Subscribe returns a buffered channel receiving events for the topic.
	Subscribe(topic common.MessageType) <-chan interface{}
	// Unsubscribe removes and closes a channel previously returned by Subscribe.
	Unsubscribe(topic common.MessageType, ch <-chan interface{})
}
