// Package kafka fans market events out to Kafka topics: one topic per event
// type, keyed by symbol so per-symbol ordering is preserved.
package kafka

// Message is one serialized event bound for a topic.
type Message struct {
	Topic   string
	Key     string
	Payload []byte
	Headers map[string]string
}

// Sender delivers messages to the broker. Implemented by Producer and
// mocked in tests.
type Sender interface {
	Send(msg Message) error
	Close() error
}
