// Package stream implements the Bitfinex market-data stream client: one
// WebSocket connection with automatic reconnection and exponential backoff, a
// subscription registry that survives reconnects, a router that turns wire
// frames into cache updates and bus events, and a liveness monitor built on
// application pings and server heartbeats.
package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"bitfeed/internal/common"
	"bitfeed/internal/events"
	"bitfeed/internal/logger"
	"bitfeed/internal/market"
	"bitfeed/internal/metrics"
	"bitfeed/internal/ws"
	"bitfeed/pkg/bitfinex"
)

// Client is the stream client. All methods are safe for concurrent use.
type Client struct {
	cfg   Config
	dial  ws.Dialer
	bus   events.Bus
	rec   *metrics.Recorder
	cache *market.Cache
	reg   *registry
	log   *logrus.Entry
	now   func() time.Time

	limiter *rate.Limiter

	mu      sync.Mutex
	state   State
	gen     uint64 // session generation, fences stale callbacks
	conn    ws.Conn
	cancel  context.CancelFunc
	retry   *time.Timer
	baseCtx context.Context

	attempts int
	lastErr  error

	platformOperative bool
	nextCID           int64
	pings             map[int64]time.Time
	latency           time.Duration
}

// New builds a client. The zero Config is usable; every field falls back to
// its default.
func New(cfg Config, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:   cfg,
		cache: market.NewCache(),
		reg:   newRegistry(),
		log:   logger.WithComponent("stream_client"),
		now:   time.Now,
		state: StateIdle,
	}
	if cfg.SendRate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.SendRate), cfg.SendBurst)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dial == nil {
		c.dial = ws.NewDialer(cfg.HandshakeTimeout)
	}
	return c
}

// Connect starts the connection. It is idempotent: while a connection is
// open or being established it does nothing. ctx bounds the whole client
// lifetime, including reconnect dials.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateOpen:
		c.mu.Unlock()
		return nil
	case StateClosing:
		c.mu.Unlock()
		return ErrClosing
	}

	c.baseCtx = ctx
	c.attempts = 0
	c.lastErr = nil
	c.gen++
	gen := c.gen
	c.setStateLocked(StateConnecting, nil)

	sctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	c.log.WithField("url", c.cfg.URL).Info("connecting")
	go c.runSession(sctx, gen)
	return nil
}

// Close shuts the connection down deliberately: pending reconnects are
// cancelled, a normal close frame is sent, and the client goes idle without
// scheduling a reconnect.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == StateIdle || c.state == StateClosing {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	cancel := c.cancel
	c.cancel = nil
	conn := c.conn
	c.conn = nil
	c.teardownSessionLocked()
	c.setStateLocked(StateClosing, nil)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if conn != nil {
		err = conn.CloseNormal()
	}

	c.mu.Lock()
	c.attempts = 0
	c.setStateLocked(StateIdle, nil)
	c.mu.Unlock()
	c.log.Info("closed")
	return err
}

// SubscribeTicker adds the symbol's ticker channel to the desired set,
// subscribing now if connected and on every future connection otherwise.
func (c *Client) SubscribeTicker(symbol string) error {
	return c.subscribe(subscription{Channel: bitfinex.ChannelTicker, Symbol: symbol})
}

// SubscribeBook adds the symbol's order book channel to the desired set.
func (c *Client) SubscribeBook(symbol string) error {
	return c.subscribe(subscription{Channel: bitfinex.ChannelBook, Symbol: symbol})
}

// UnsubscribeTicker removes the symbol's ticker channel from the desired set
// and closes it if currently open.
func (c *Client) UnsubscribeTicker(symbol string) error {
	return c.unsubscribe(subscription{Channel: bitfinex.ChannelTicker, Symbol: symbol})
}

// UnsubscribeBook removes the symbol's order book channel.
func (c *Client) UnsubscribeBook(symbol string) error {
	return c.unsubscribe(subscription{Channel: bitfinex.ChannelBook, Symbol: symbol})
}

// GetTicker returns the last ticker observation for the symbol.
func (c *Client) GetTicker(symbol string) (market.Ticker, bool) {
	return c.cache.Ticker(symbol)
}

// GetOrderBook returns a copy of the symbol's current order book.
func (c *Client) GetOrderBook(symbol string) (market.OrderBook, bool) {
	return c.cache.OrderBook(symbol)
}

// Status returns a snapshot of the client state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:             c.state,
		PlatformOperative: c.platformOperative,
		Attempts:          c.attempts,
		PingLatency:       c.latency,
		Subscriptions:     c.reg.DesiredCount(),
		LastError:         c.lastErr,
	}
}

func (c *Client) subscribe(sub subscription) error {
	if sub.Channel != bitfinex.ChannelTicker && sub.Channel != bitfinex.ChannelBook {
		return fmt.Errorf("unsupported channel %q", sub.Channel)
	}
	if !c.reg.Want(sub) {
		return nil
	}
	c.mu.Lock()
	conn, open := c.conn, c.state == StateOpen
	c.mu.Unlock()
	if !open {
		c.log.WithFields(logrus.Fields{"channel": sub.Channel, "symbol": sub.Symbol}).
			Debug("subscription deferred until connected")
		return nil
	}
	return c.send(conn, c.subscribeMessage(sub))
}

func (c *Client) unsubscribe(sub subscription) error {
	if !c.reg.Forget(sub) {
		return nil
	}
	chanID, confirmed := c.reg.ChannelFor(sub)
	c.mu.Lock()
	conn, open := c.conn, c.state == StateOpen
	c.mu.Unlock()
	if !confirmed || !open {
		return nil
	}
	return c.send(conn, bitfinex.NewUnsubscribe(chanID))
}

func (c *Client) subscribeMessage(sub subscription) interface{} {
	if sub.Channel == bitfinex.ChannelBook {
		return bitfinex.NewBookSubscription(sub.Symbol, c.cfg.BookPrecision, c.cfg.BookFrequency, c.cfg.BookLength)
	}
	return bitfinex.NewTickerSubscription(sub.Symbol)
}

// send serializes v and writes it, honoring the outbound rate limit.
func (c *Client) send(conn ws.Conn, v interface{}) error {
	if conn == nil {
		return nil
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(context.Background()); err != nil {
			return err
		}
	}
	return conn.WriteJSON(v)
}

// runSession dials and, on success, runs the read loop plus the liveness
// goroutines until the connection dies or the session is superseded.
func (c *Client) runSession(ctx context.Context, gen uint64) {
	conn, err := c.dial(ctx, c.cfg.URL)
	if err != nil {
		c.rec.RecordConnectionError()
		c.log.WithError(err).Warn("dial failed")
		c.handleDisconnect(gen, err)
		return
	}

	c.mu.Lock()
	if c.gen != gen || c.state != StateConnecting {
		// superseded while dialing
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.attempts = 0
	c.lastErr = nil
	c.pings = make(map[int64]time.Time)
	c.setStateLocked(StateOpen, nil)
	c.mu.Unlock()
	c.log.Info("connected")

	c.replaySubscriptions(conn)

	beat := make(chan struct{}, 1)
	go c.pingLoop(ctx, gen)
	go c.watchdog(ctx, gen, beat)
	c.readLoop(ctx, gen, conn, beat)
}

// replaySubscriptions re-requests every desired channel on a fresh
// connection.
func (c *Client) replaySubscriptions(conn ws.Conn) {
	for _, sub := range c.reg.Desired() {
		if err := c.send(conn, c.subscribeMessage(sub)); err != nil {
			c.log.WithError(err).WithField("symbol", sub.Symbol).Warn("subscription replay failed")
			return
		}
	}
}

func (c *Client) readLoop(ctx context.Context, gen uint64, conn ws.Conn, beat chan struct{}) {
	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.rec.RecordConnectionError()
			c.handleDisconnect(gen, err)
			return
		}
		// any inbound traffic proves the server is alive
		select {
		case beat <- struct{}{}:
		default:
		}
		c.route(gen, conn, raw)
	}
}

// route classifies one inbound frame and applies it. Malformed or unroutable
// frames are dropped without affecting the connection.
func (c *Client) route(gen uint64, conn ws.Conn, raw []byte) {
	frame, err := bitfinex.Parse(raw)
	if err != nil {
		c.rec.CountDropped()
		c.log.WithError(err).Debug("dropping frame")
		return
	}

	switch f := frame.(type) {
	case *bitfinex.InfoEvent:
		c.handleInfo(gen, f)

	case *bitfinex.SubscribedEvent:
		sub := subscription{Channel: f.Channel, Symbol: f.Symbol}
		c.reg.Confirm(f.ChanID, sub)
		c.log.WithFields(logrus.Fields{
			"channel": f.Channel, "symbol": f.Symbol, "chan_id": f.ChanID,
		}).Info("subscribed")
		// unsubscribed while the ack was in flight
		if !c.reg.IsDesired(sub) {
			c.send(conn, bitfinex.NewUnsubscribe(f.ChanID))
		}

	case *bitfinex.UnsubscribedEvent:
		if sub, ok := c.reg.Release(f.ChanID); ok {
			if sub.Channel == bitfinex.ChannelBook {
				c.cache.DropBook(sub.Symbol)
			} else {
				c.cache.DropTicker(sub.Symbol)
			}
			c.log.WithFields(logrus.Fields{
				"channel": sub.Channel, "symbol": sub.Symbol,
			}).Info("unsubscribed")
		}

	case *bitfinex.ErrorEvent:
		err := &ExchangeError{Code: f.Code, Msg: f.Msg}
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		c.log.WithField("code", f.Code).Warn(err.Error())

	case *bitfinex.PongEvent:
		c.handlePong(f)

	case *bitfinex.Heartbeat:
		c.rec.CountFrame(common.TypeHeartbeat)

	case *bitfinex.TickerUpdate:
		sub, ok := c.reg.Lookup(f.ChanID)
		if !ok {
			c.rec.CountDropped()
			return
		}
		t := c.cache.SetTicker(sub.Symbol, f.Ticker)
		c.rec.CountFrame(common.TypeTicker)
		c.rec.ObserveTickerSpread(t)
		c.publish(common.TypeTicker, t)

	case *bitfinex.BookSnapshot:
		sub, ok := c.reg.Lookup(f.ChanID)
		if !ok {
			c.rec.CountDropped()
			return
		}
		ob := c.cache.ApplyBookSnapshot(sub.Symbol, f.Levels)
		c.rec.CountFrame(common.TypeBookSnapshot)
		c.rec.ObserveBook(ob)
		c.publish(common.TypeBookSnapshot, ob)

	case *bitfinex.BookUpdate:
		sub, ok := c.reg.Lookup(f.ChanID)
		if !ok {
			c.rec.CountDropped()
			return
		}
		upd, ok := c.cache.ApplyBookUpdate(sub.Symbol, f.Level)
		if !ok {
			// update before any snapshot, a partial book must not be built
			c.rec.CountDropped()
			return
		}
		c.rec.CountFrame(common.TypeBookUpdate)
		if c.rec != nil {
			if ob, ok := c.cache.OrderBook(sub.Symbol); ok {
				c.rec.ObserveBook(ob)
			}
		}
		c.publish(common.TypeBookUpdate, upd)
	}
}

func (c *Client) handleInfo(gen uint64, f *bitfinex.InfoEvent) {
	c.rec.CountFrame(common.TypeStatus)

	if f.HasPlatform {
		c.setPlatform(f.Platform == bitfinex.PlatformOperative)
	}

	switch f.Code {
	case 0:
	case bitfinex.CodeRestart:
		c.log.Warn("server requested reconnect")
		c.forceReconnect(gen)
	case bitfinex.CodeMaintenanceStart:
		c.setPlatform(false)
	case bitfinex.CodeMaintenanceEnd:
		c.setPlatform(true)
	default:
		c.log.WithField("code", f.Code).Debug("unhandled info code")
	}
}

func (c *Client) setPlatform(operative bool) {
	c.mu.Lock()
	changed := c.platformOperative != operative
	c.platformOperative = operative
	state := c.state
	c.mu.Unlock()

	c.rec.SetPlatformStatus(operative)
	if changed {
		c.log.WithField("operative", operative).Info("platform status changed")
		c.publish(common.TypeStatus, StatusChange{
			State:             state,
			PlatformOperative: operative,
			At:                c.now(),
		})
	}
}

func (c *Client) handlePong(f *bitfinex.PongEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sent, ok := c.pings[f.CID]
	if !ok {
		// pong for a retired ping, likely from before a reconnect
		return
	}
	delete(c.pings, f.CID)
	c.latency = c.now().Sub(sent)
	c.rec.SetPingLatency(c.latency)
}

// pingLoop sends an application ping every PingInterval, each with a fresh
// correlation id so latency is measured against the matching pong.
func (c *Client) pingLoop(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sendPing(gen)
		}
	}
}

func (c *Client) sendPing(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateOpen || c.conn == nil {
		c.mu.Unlock()
		return
	}
	c.nextCID++
	cid := c.nextCID
	c.pings[cid] = c.now()
	conn := c.conn
	c.mu.Unlock()

	if err := c.send(conn, bitfinex.NewPing(cid)); err != nil {
		c.log.WithError(err).Warn("ping failed")
	}
}

// watchdog forces a reconnect when no frame arrives within the heartbeat
// window. The reconnect follows the normal backoff schedule.
func (c *Client) watchdog(ctx context.Context, gen uint64, beat <-chan struct{}) {
	timer := time.NewTimer(c.cfg.HeartbeatTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-beat:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(c.cfg.HeartbeatTimeout)
		case <-timer.C:
			c.rec.RecordHeartbeatTimeout()
			c.log.WithField("timeout", c.cfg.HeartbeatTimeout).Warn("heartbeat timed out")
			c.handleDisconnect(gen, ErrHeartbeatTimeout)
			return
		}
	}
}

// forceReconnect tears the session down and redials immediately, bypassing
// backoff. Used when the server itself asks for a reconnect.
func (c *Client) forceReconnect(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || (c.state != StateOpen && c.state != StateConnecting) {
		c.mu.Unlock()
		return
	}
	c.gen++
	newGen := c.gen
	cancel := c.cancel
	conn := c.conn
	c.conn = nil
	c.teardownSessionLocked()
	c.setStateLocked(StateConnecting, nil)

	sctx, newCancel := context.WithCancel(c.baseCtx)
	c.cancel = newCancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	go c.runSession(sctx, newGen)
}

// handleDisconnect is the single exit path for a dead session: it tears the
// session down and either goes idle (deliberate closure or exhausted
// attempts) or schedules the next dial per the backoff schedule.
func (c *Client) handleDisconnect(gen uint64, err error) {
	c.mu.Lock()
	if c.gen != gen || c.state == StateClosing || c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	c.gen++
	newGen := c.gen
	cancel := c.cancel
	c.cancel = nil
	conn := c.conn
	c.conn = nil
	c.teardownSessionLocked()
	c.lastErr = err

	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		c.setStateLocked(StateIdle, err)
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if conn != nil {
			conn.Close()
		}
		c.log.Info("server closed the connection")
		return
	}

	if c.attempts >= c.cfg.MaxReconnectAttempts {
		c.lastErr = fmt.Errorf("%w after %d attempts: %v", ErrReconnectExhausted, c.attempts, err)
		terminal := c.lastErr
		c.setStateLocked(StateIdle, terminal)
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if conn != nil {
			conn.Close()
		}
		c.log.WithError(terminal).Error("giving up, call Connect to retry")
		return
	}

	delay := backoffDelay(c.cfg.ReconnectBaseDelay, c.cfg.ReconnectMaxDelay, c.attempts)
	c.attempts++
	attempt := c.attempts
	c.setStateLocked(StateConnecting, err)
	c.rec.RecordReconnect()
	c.retry = time.AfterFunc(delay, func() { c.redial(newGen) })
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	c.log.WithError(err).WithFields(logrus.Fields{
		"attempt": attempt, "delay": delay,
	}).Warn("connection lost, reconnecting")
}

func (c *Client) redial(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.retry = nil
	sctx, cancel := context.WithCancel(c.baseCtx)
	c.cancel = cancel
	c.mu.Unlock()
	go c.runSession(sctx, gen)
}

// teardownSessionLocked invalidates everything scoped to one connection:
// channel id mappings, order books, and outstanding pings. The desired
// subscription set and the last ticker observations survive.
func (c *Client) teardownSessionLocked() {
	c.reg.Clear()
	c.cache.DropBooks()
	c.pings = nil
}

// setStateLocked transitions the lifecycle state, updating the gauge and
// publishing a status event. Caller holds c.mu.
func (c *Client) setStateLocked(s State, err error) {
	if c.state == s {
		return
	}
	c.state = s
	c.rec.SetConnectionState(int(s))
	c.publish(common.TypeStatus, StatusChange{
		State:             s,
		PlatformOperative: c.platformOperative,
		Err:               err,
		At:                c.now(),
	})
}

func (c *Client) publish(topic common.MessageType, event interface{}) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(topic, event)
}
