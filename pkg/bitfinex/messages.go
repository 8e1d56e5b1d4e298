package bitfinex

// Book subscription defaults: raw price-aggregated book, realtime frequency,
// 25 levels per side.
const (
	DefaultPrecision  = "P0"
	DefaultFrequency  = "F0"
	DefaultBookLength = "25"
)

// SubscribeRequest asks the server to open a ticker or book channel for one
// symbol. The book-only fields are omitted for ticker subscriptions.
type SubscribeRequest struct {
	Event     string `json:"event"`
	Channel   string `json:"channel"`
	Symbol    string `json:"symbol"`
	Precision string `json:"prec,omitempty"`
	Frequency string `json:"freq,omitempty"`
	Length    string `json:"len,omitempty"`
}

// NewTickerSubscription builds a ticker channel request for an
// exchange-native symbol such as tBTCUSD.
func NewTickerSubscription(symbol string) SubscribeRequest {
	return SubscribeRequest{
		Event:   EventSubscribe,
		Channel: ChannelTicker,
		Symbol:  symbol,
	}
}

// NewBookSubscription builds a book channel request. Empty precision,
// frequency or length fall back to the package defaults.
func NewBookSubscription(symbol, precision, frequency, length string) SubscribeRequest {
	if precision == "" {
		precision = DefaultPrecision
	}
	if frequency == "" {
		frequency = DefaultFrequency
	}
	if length == "" {
		length = DefaultBookLength
	}
	return SubscribeRequest{
		Event:     EventSubscribe,
		Channel:   ChannelBook,
		Symbol:    symbol,
		Precision: precision,
		Frequency: frequency,
		Length:    length,
	}
}

// UnsubscribeRequest closes a channel by its server-assigned identifier.
type UnsubscribeRequest struct {
	Event  string `json:"event"`
	ChanID int    `json:"chanId"`
}

// NewUnsubscribe builds an unsubscribe request for a channel id.
func NewUnsubscribe(chanID int) UnsubscribeRequest {
	return UnsubscribeRequest{Event: EventUnsubscribe, ChanID: chanID}
}

// PingRequest is an application-level ping carrying a correlation id the
// server echoes back in its pong.
type PingRequest struct {
	Event string `json:"event"`
	CID   int64  `json:"cid"`
}

// NewPing builds a ping with the given correlation id.
func NewPing(cid int64) PingRequest {
	return PingRequest{Event: EventPing, CID: cid}
}
