// Package bitfinex implements the subset of the Bitfinex WebSocket v2 wire
// protocol needed for public ticker and order-book channels: classification
// of inbound frames into tagged variants and construction of outbound
// control messages.
package bitfinex

// Protocol constants. Channel identifiers are assigned by the server per
// connection and are not stable across reconnects.
const (
	EventSubscribe    = "subscribe"
	EventUnsubscribe  = "unsubscribe"
	EventSubscribed   = "subscribed"
	EventUnsubscribed = "unsubscribed"
	EventInfo         = "info"
	EventError        = "error"
	EventPing         = "ping"
	EventPong         = "pong"

	ChannelTicker = "ticker"
	ChannelBook   = "book"

	// info event codes
	CodeRestart          = 20051 // server requests the client reconnect
	CodeMaintenanceStart = 20060 // platform entering maintenance
	CodeMaintenanceEnd   = 20061 // platform back to operative

	PlatformOperative   = 1
	PlatformMaintenance = 0

	heartbeatMarker = "hb"
)

// Frame is the tagged-variant representation of one inbound message. Exactly
// one concrete type below is produced per frame; anything else is rejected
// by Parse.
type Frame interface {
	frame()
}

// InfoEvent is the `{"event":"info", ...}` control frame. The server sends
// one on connect (with platform status) and again on status transitions or
// when it wants the client to reconnect.
type InfoEvent struct {
	Version     int
	Code        int
	Platform    int // PlatformOperative or PlatformMaintenance
	HasPlatform bool
}

// SubscribedEvent acknowledges a subscribe request and carries the
// server-assigned channel identifier.
type SubscribedEvent struct {
	ChanID  int
	Channel string
	Symbol  string
}

// UnsubscribedEvent acknowledges an unsubscribe request.
type UnsubscribedEvent struct {
	ChanID int
	Status string
}

// ErrorEvent is an exchange-reported error. Non-fatal: the connection stays
// open.
type ErrorEvent struct {
	Code int
	Msg  string
}

// PongEvent answers an application-level ping, echoing its correlation id.
type PongEvent struct {
	CID int64
	TS  int64
}

// Heartbeat is the `[chanId, "hb"]` liveness marker.
type Heartbeat struct {
	ChanID int
}

// TickerFields is the 10-element ticker payload, in wire order.
type TickerFields struct {
	Bid             float64
	BidSize         float64
	Ask             float64
	AskSize         float64
	DailyChange     float64
	DailyChangePerc float64
	LastPrice       float64
	Volume          float64
	High            float64
	Low             float64
}

// TickerUpdate is a full ticker refresh on a ticker channel.
type TickerUpdate struct {
	ChanID int
	Ticker TickerFields
}

// Level is one (price, count, amount) book entry. In snapshots the sign of
// Amount selects the side (positive bid, negative ask). In updates a zero
// Amount removes the price level.
type Level struct {
	Price  float64
	Count  int
	Amount float64
}

// BookSnapshot is the first message on a book channel: a complete
// replacement of the symbol's ladder.
type BookSnapshot struct {
	ChanID int
	Levels []Level
}

// BookUpdate is a single-level delta, distinguished from a snapshot by the
// absence of nested arrays.
type BookUpdate struct {
	ChanID int
	Level  Level
}

func (*InfoEvent) frame()         {}
func (*SubscribedEvent) frame()   {}
func (*UnsubscribedEvent) frame() {}
func (*ErrorEvent) frame()        {}
func (*PongEvent) frame()         {}
func (*Heartbeat) frame()         {}
func (*TickerUpdate) frame()      {}
func (*BookSnapshot) frame()      {}
func (*BookUpdate) frame()        {}
