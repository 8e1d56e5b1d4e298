// Package ui renders a periodically refreshed console view of the market
// state: one row per symbol with the latest ticker and book summary, plus a
// connection status line.
package ui

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"bitfeed/internal/common"
	"bitfeed/internal/events"
	"bitfeed/internal/logger"
	"bitfeed/internal/market"
	"bitfeed/internal/stream"
)

const defaultRefresh = time.Second

// Updater consumes bus events and redraws the view at a fixed interval.
type Updater struct {
	bus     events.Bus
	out     io.Writer
	refresh time.Duration
	log     *logrus.Entry

	mu      sync.Mutex
	tickers map[string]market.Ticker
	books   map[string]market.OrderBook
	status  stream.StatusChange
}

// NewUpdater builds an updater writing to out.
func NewUpdater(bus events.Bus, out io.Writer) *Updater {
	return &Updater{
		bus:     bus,
		out:     out,
		refresh: defaultRefresh,
		log:     logger.WithComponent("ui"),
		tickers: make(map[string]market.Ticker),
		books:   make(map[string]market.OrderBook),
	}
}

// Run consumes events and redraws until ctx is cancelled.
func (u *Updater) Run(ctx context.Context) {
	tickers := u.bus.Subscribe(common.TypeTicker)
	books := u.bus.Subscribe(common.TypeBookSnapshot)
	statuses := u.bus.Subscribe(common.TypeStatus)
	defer u.bus.Unsubscribe(common.TypeTicker, tickers)
	defer u.bus.Unsubscribe(common.TypeBookSnapshot, books)
	defer u.bus.Unsubscribe(common.TypeStatus, statuses)

	redraw := time.NewTicker(u.refresh)
	defer redraw.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-tickers:
			if !ok {
				return
			}
			if t, ok := ev.(market.Ticker); ok {
				u.mu.Lock()
				u.tickers[t.Symbol] = t
				u.mu.Unlock()
			}
		case ev, ok := <-books:
			if !ok {
				return
			}
			if ob, ok := ev.(market.OrderBook); ok {
				u.mu.Lock()
				u.books[ob.Symbol] = ob
				u.mu.Unlock()
			}
		case ev, ok := <-statuses:
			if !ok {
				return
			}
			if sc, ok := ev.(stream.StatusChange); ok {
				u.mu.Lock()
				u.status = sc
				u.mu.Unlock()
			}
		case <-redraw.C:
			u.Render()
		}
	}
}

// Render writes the current view once.
func (u *Updater) Render() {
	u.mu.Lock()
	defer u.mu.Unlock()

	platform := "operative"
	if !u.status.PlatformOperative {
		platform = "maintenance"
	}
	fmt.Fprintf(u.out, "\nconnection: %s  platform: %s  %s\n",
		u.status.State, platform, time.Now().Format("15:04:05"))

	symbols := make([]string, 0, len(u.tickers))
	for s := range u.tickers {
		symbols = append(symbols, s)
	}
	for s := range u.books {
		if _, ok := u.tickers[s]; !ok {
			symbols = append(symbols, s)
		}
	}
	sort.Strings(symbols)

	w := tabwriter.NewWriter(u.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tBID\tASK\tLAST\tSPREAD\tBOOK(B/A)")
	for _, s := range symbols {
		t := u.tickers[s]
		depth := "-"
		if ob, ok := u.books[s]; ok {
			depth = fmt.Sprintf("%d/%d", len(ob.Bids), len(ob.Asks))
		}
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%s\n",
			s, t.Bid, t.Ask, t.LastPrice, t.Spread(), depth)
	}
	if err := w.Flush(); err != nil {
		u.log.WithError(err).Debug("render failed")
	}
}
