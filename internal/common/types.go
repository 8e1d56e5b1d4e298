package common

// MessageType identifies the kind of market-data event flowing through the
// system. It doubles as the event bus topic and the Kafka topic suffix.
type MessageType string

const (
	TypeTicker       MessageType = "ticker"        // full ticker refresh for a symbol
	TypeBookSnapshot MessageType = "book_snapshot" // complete order book replacement
	TypeBookUpdate   MessageType = "book_update"   // single price-level delta
	TypeHeartbeat    MessageType = "heartbeat"     // server liveness marker
	TypeStatus       MessageType = "status"        // connection / platform status change
)
