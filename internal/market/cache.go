// Package market holds the in-memory market-data state reconstructed from
// the stream: per-symbol tickers and incremental order books. The cache is
// owned by the stream client; consumers only ever receive copies.
package market

import (
	"sync"
	"time"

	"bitfeed/pkg/bitfinex"
)

// BookUpdate is the event published for a single applied price-level delta.
type BookUpdate struct {
	Symbol string
	Price  float64
	Count  int
	Amount float64
	At     time.Time
}

// Cache stores the latest ticker and order book per symbol.
type Cache struct {
	mu      sync.RWMutex
	tickers map[string]Ticker
	books   map[string]*book
	now     func() time.Time
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		tickers: make(map[string]Ticker),
		books:   make(map[string]*book),
		now:     time.Now,
	}
}

// SetTicker overwrites the symbol's ticker wholesale and returns the stored
// value.
func (c *Cache) SetTicker(symbol string, f bitfinex.TickerFields) Ticker {
	t := Ticker{
		Symbol:          symbol,
		Bid:             f.Bid,
		BidSize:         f.BidSize,
		Ask:             f.Ask,
		AskSize:         f.AskSize,
		DailyChange:     f.DailyChange,
		DailyChangePerc: f.DailyChangePerc,
		LastPrice:       f.LastPrice,
		Volume:          f.Volume,
		High:            f.High,
		Low:             f.Low,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	t.UpdatedAt = c.now()
	c.tickers[symbol] = t
	return t
}

// Ticker returns a copy of the symbol's last ticker observation.
func (c *Cache) Ticker(symbol string) (Ticker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tickers[symbol]
	return t, ok
}

// ApplyBookSnapshot replaces the symbol's book and returns a copy of the
// rebuilt ladder.
func (c *Cache) ApplyBookSnapshot(symbol string, levels []bitfinex.Level) OrderBook {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.books[symbol]
	if !ok {
		b = &book{}
		c.books[symbol] = b
	}
	b.applySnapshot(levels, c.now())
	return b.snapshot(symbol)
}

// ApplyBookUpdate applies a single-level delta. Updates arriving before any
// snapshot are discarded: a partial book must never be served as complete.
func (c *Cache) ApplyBookUpdate(symbol string, lvl bitfinex.Level) (BookUpdate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.books[symbol]
	if !ok {
		return BookUpdate{}, false
	}
	now := c.now()
	b.applyUpdate(lvl, now)
	return BookUpdate{
		Symbol: symbol,
		Price:  lvl.Price,
		Count:  lvl.Count,
		Amount: lvl.Amount,
		At:     now,
	}, true
}

// OrderBook returns a deep copy of the symbol's current book.
func (c *Cache) OrderBook(symbol string) (OrderBook, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, ok := c.books[symbol]
	if !ok {
		return OrderBook{}, false
	}
	return b.snapshot(symbol), true
}

// DropSymbol removes the symbol's ticker and book, after an unsubscribe.
func (c *Cache) DropSymbol(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tickers, symbol)
	delete(c.books, symbol)
}

// DropTicker removes only the symbol's ticker.
func (c *Cache) DropTicker(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tickers, symbol)
}

// DropBook removes only the symbol's order book.
func (c *Cache) DropBook(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.books, symbol)
}

// DropBooks discards every order book. Called on connection loss: channel
// ids are gone and a fresh snapshot is mandatory after reconnect, so stale
// ladders must not remain visible. Tickers survive; they are self-contained
// observations.
func (c *Cache) DropBooks() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for symbol := range c.books {
		delete(c.books, symbol)
	}
}

// Symbols lists symbols that currently have a book.
func (c *Cache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.books))
	for symbol := range c.books {
		out = append(out, symbol)
	}
	return out
}
