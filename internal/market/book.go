package market

import (
	"sort"
	"time"

	"bitfeed/pkg/bitfinex"
)

// PriceLevel is one rung of the bid or ask ladder. Amount is always
// positive; the side is implied by which ladder holds the level.
type PriceLevel struct {
	Price  float64
	Count  int
	Amount float64
}

// OrderBook is a consumer-facing copy of a symbol's ladder: bids sorted
// descending by price, asks ascending. Neither side contains two entries
// with the same price.
type OrderBook struct {
	Symbol    string
	Bids      []PriceLevel
	Asks      []PriceLevel
	UpdatedAt time.Time
}

// BestBid returns the highest bid, if any.
func (b OrderBook) BestBid() (PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return PriceLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask, if any.
func (b OrderBook) BestAsk() (PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return PriceLevel{}, false
	}
	return b.Asks[0], true
}

// Spread returns best ask minus best bid. ok is false when either side is
// empty.
func (b OrderBook) Spread() (float64, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return ask.Price - bid.Price, true
}

// book is the mutable ladder owned by the cache.
type book struct {
	bids      []PriceLevel // descending by price
	asks      []PriceLevel // ascending by price
	updatedAt time.Time
}

// applySnapshot replaces both sides from raw (price, count, amount) triples.
// Positive amounts are bids, negative amounts are asks stored as absolute
// values. Zero-amount snapshot entries do not occur on the wire and are
// skipped.
func (b *book) applySnapshot(levels []bitfinex.Level, now time.Time) {
	b.bids = b.bids[:0]
	b.asks = b.asks[:0]
	for _, lvl := range levels {
		switch {
		case lvl.Amount > 0:
			b.bids = append(b.bids, PriceLevel{Price: lvl.Price, Count: lvl.Count, Amount: lvl.Amount})
		case lvl.Amount < 0:
			b.asks = append(b.asks, PriceLevel{Price: lvl.Price, Count: lvl.Count, Amount: -lvl.Amount})
		}
	}
	sort.Slice(b.bids, func(i, j int) bool { return b.bids[i].Price > b.bids[j].Price })
	sort.Slice(b.asks, func(i, j int) bool { return b.asks[i].Price < b.asks[j].Price })
	b.updatedAt = now
}

// applyUpdate applies a single-level delta. A zero amount removes the price
// level from whichever side holds it; a zero count removes it from the side
// selected by the sign of amount (the exchange's deletion form); otherwise
// the level is replaced or inserted in sort order. Price identity is exact
// float equality: the exchange echoes canonical ticks.
func (b *book) applyUpdate(lvl bitfinex.Level, now time.Time) {
	switch {
	case lvl.Amount == 0:
		b.bids, _ = removeLevel(b.bids, lvl.Price)
		b.asks, _ = removeLevel(b.asks, lvl.Price)
	case lvl.Count == 0:
		if lvl.Amount > 0 {
			b.bids, _ = removeLevel(b.bids, lvl.Price)
		} else {
			b.asks, _ = removeLevel(b.asks, lvl.Price)
		}
	case lvl.Amount > 0:
		b.bids = upsertLevel(b.bids, PriceLevel{Price: lvl.Price, Count: lvl.Count, Amount: lvl.Amount}, descending)
	default:
		b.asks = upsertLevel(b.asks, PriceLevel{Price: lvl.Price, Count: lvl.Count, Amount: -lvl.Amount}, ascending)
	}
	b.updatedAt = now
}

func (b *book) snapshot(symbol string) OrderBook {
	return OrderBook{
		Symbol:    symbol,
		Bids:      append([]PriceLevel(nil), b.bids...),
		Asks:      append([]PriceLevel(nil), b.asks...),
		UpdatedAt: b.updatedAt,
	}
}

type order int

const (
	descending order = iota
	ascending
)

// upsertLevel replaces the entry with an exactly matching price, or inserts
// the level preserving the side's sort order.
func upsertLevel(side []PriceLevel, lvl PriceLevel, ord order) []PriceLevel {
	i := sort.Search(len(side), func(i int) bool {
		if ord == descending {
			return side[i].Price <= lvl.Price
		}
		return side[i].Price >= lvl.Price
	})
	if i < len(side) && side[i].Price == lvl.Price {
		side[i] = lvl
		return side
	}
	side = append(side, PriceLevel{})
	copy(side[i+1:], side[i:])
	side[i] = lvl
	return side
}

func removeLevel(side []PriceLevel, price float64) ([]PriceLevel, bool) {
	for i := range side {
		if side[i].Price == price {
			return append(side[:i], side[i+1:]...), true
		}
	}
	return side, false
}
