package market

import "time"

// Ticker is the last complete ticker observation for a symbol. It is
// replaced wholesale on every ticker frame; there are no partial updates.
type Ticker struct {
	Symbol          string
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
	UpdatedAt       time.Time
}

// Spread returns the best ask minus the best bid.
func (t Ticker) Spread() float64 {
	return t.Ask - t.Bid
}
