package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitfeed/internal/common"
	"bitfeed/internal/events"
	"bitfeed/internal/market"
	wspkg "bitfeed/internal/ws"
)

var errConnReset = errors.New("connection reset by peer")

// fakeConn is a scripted connection: frames queued with push are delivered to
// ReadMessage, writes are recorded, and fail terminates the read loop with an
// error of the test's choosing.
type fakeConn struct {
	in     chan []byte
	closed chan struct{}

	mu           sync.Mutex
	writes       [][]byte
	readErr      error
	closedNormal bool
	closeOnce    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) push(frame string) {
	select {
	case f.in <- []byte(frame):
	case <-f.closed:
	}
}

func (f *fakeConn) fail(err error) {
	f.mu.Lock()
	f.readErr = err
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.closed) })
}

func (f *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case msg := <-f.in:
		return msg, nil
	case <-f.closed:
		f.mu.Lock()
		err := f.readErr
		f.mu.Unlock()
		if err == nil {
			err = errConnReset
		}
		return nil, err
	}
}

func (f *fakeConn) WriteMessage(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, data)
	return nil
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return f.WriteMessage(data)
}

func (f *fakeConn) CloseNormal() error {
	f.mu.Lock()
	f.closedNormal = true
	f.mu.Unlock()
	f.fail(nil)
	return nil
}

func (f *fakeConn) Close() error {
	f.fail(nil)
	return nil
}

func (f *fakeConn) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.writes))
	for i, w := range f.writes {
		out[i] = string(w)
	}
	return out
}

func (f *fakeConn) sentContaining(substr string) []string {
	var out []string
	for _, s := range f.sent() {
		if strings.Contains(s, substr) {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeConn) wasClosedNormally() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closedNormal
}

// fakeDialer counts dial attempts and hands out fakeConns, optionally
// failing some or all attempts.
type fakeDialer struct {
	mu      sync.Mutex
	dials   []time.Time
	conns   []*fakeConn
	failN   int // first failN dials fail
	failAll bool
}

func (d *fakeDialer) dial(_ context.Context, _ string) (wspkg.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials = append(d.dials, time.Now())
	if d.failAll || len(d.dials) <= d.failN {
		return nil, errConnReset
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

func (d *fakeDialer) dialTimes() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]time.Time, len(d.dials))
	copy(out, d.dials)
	return out
}

func (d *fakeDialer) setFailAll(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAll = on
}

// conn waits for the i-th successful connection.
func (d *fakeDialer) conn(t *testing.T, i int) *fakeConn {
	t.Helper()
	var conn *fakeConn
	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		if len(d.conns) <= i {
			return false
		}
		conn = d.conns[i]
		return true
	}, 2*time.Second, 5*time.Millisecond)
	return conn
}

// quietConfig keeps the liveness machinery out of the way unless a test
// wants it.
func quietConfig() Config {
	return Config{
		URL:                  "ws://fake",
		ReconnectBaseDelay:   10 * time.Millisecond,
		ReconnectMaxDelay:    200 * time.Millisecond,
		MaxReconnectAttempts: 3,
		PingInterval:         time.Hour,
		HeartbeatTimeout:     time.Hour,
	}
}

func newTestClient(t *testing.T, cfg Config, d *fakeDialer, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithDialer(d.dial)}, opts...)
	c := New(cfg, opts...)
	t.Cleanup(func() { c.Close() })
	return c
}

func waitForState(t *testing.T, c *Client, s State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Status().State == s
	}, 2*time.Second, 5*time.Millisecond, "expected state %s", s)
}

const tickerFrame10 = `[%d,[50000,12.5,50010,8.2,150,0.003,50005,3200,50500,49400]]`

func TestConnectIsIdempotent(t *testing.T) {
	d := &fakeDialer{}
	c := newTestClient(t, quietConfig(), d)

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Connect(context.Background()))
	waitForState(t, c, StateOpen)
	require.NoError(t, c.Connect(context.Background()))

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, d.dialCount(), "repeat Connect must not dial again")
}

func TestSubscribeBeforeConnectIsDeferred(t *testing.T) {
	d := &fakeDialer{}
	c := newTestClient(t, quietConfig(), d)

	require.NoError(t, c.SubscribeTicker("tBTCUSD"))
	assert.Equal(t, 0, d.dialCount())

	require.NoError(t, c.Connect(context.Background()))
	conn := d.conn(t, 0)
	require.Eventually(t, func() bool {
		return len(conn.sentContaining(`"channel":"ticker"`)) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, conn.sentContaining(`"channel":"ticker"`)[0], `"symbol":"tBTCUSD"`)
}

func TestDuplicateSubscribeSendsOnce(t *testing.T) {
	d := &fakeDialer{}
	c := newTestClient(t, quietConfig(), d)
	require.NoError(t, c.Connect(context.Background()))
	waitForState(t, c, StateOpen)
	conn := d.conn(t, 0)

	require.NoError(t, c.SubscribeTicker("tBTCUSD"))
	require.NoError(t, c.SubscribeTicker("tBTCUSD"))

	require.Eventually(t, func() bool {
		return len(conn.sentContaining(`"event":"subscribe"`)) >= 1
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, conn.sentContaining(`"event":"subscribe"`), 1)
}

func TestTickerFlow(t *testing.T) {
	d := &fakeDialer{}
	bus := events.NewEventBus()
	tickers := bus.Subscribe(common.TypeTicker)
	c := newTestClient(t, quietConfig(), d, WithBus(bus))

	require.NoError(t, c.SubscribeTicker("tBTCUSD"))
	require.NoError(t, c.Connect(context.Background()))
	conn := d.conn(t, 0)

	conn.push(`{"event":"subscribed","channel":"ticker","chanId":7,"symbol":"tBTCUSD"}`)
	conn.push(fmt.Sprintf(tickerFrame10, 7))

	require.Eventually(t, func() bool {
		_, ok := c.GetTicker("tBTCUSD")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	tk, _ := c.GetTicker("tBTCUSD")
	assert.Equal(t, 50000.0, tk.Bid)
	assert.Equal(t, 50010.0, tk.Ask)
	assert.Equal(t, 50005.0, tk.LastPrice)
	assert.Equal(t, "tBTCUSD", tk.Symbol)

	select {
	case ev := <-tickers:
		published, ok := ev.(market.Ticker)
		require.True(t, ok, "unexpected event type %T", ev)
		assert.Equal(t, "tBTCUSD", published.Symbol)
	case <-time.After(time.Second):
		t.Fatal("no ticker event published on the bus")
	}
}

func TestBookLifecycle(t *testing.T) {
	d := &fakeDialer{}
	c := newTestClient(t, quietConfig(), d)

	require.NoError(t, c.SubscribeBook("tBTCUSD"))
	require.NoError(t, c.Connect(context.Background()))
	conn := d.conn(t, 0)

	conn.push(`{"event":"subscribed","channel":"book","chanId":5,"symbol":"tBTCUSD"}`)
	conn.push(`[5,[[50000,2,1.5],[49990,1,0.3],[50010,1,-0.4],[50020,2,-1.1]]]`)

	require.Eventually(t, func() bool {
		_, ok := c.GetOrderBook("tBTCUSD")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	ob, _ := c.GetOrderBook("tBTCUSD")
	require.Len(t, ob.Bids, 2)
	require.Len(t, ob.Asks, 2)
	assert.Equal(t, 50000.0, ob.Bids[0].Price, "bids sorted descending")
	assert.Equal(t, 50010.0, ob.Asks[0].Price, "asks sorted ascending")
	assert.Equal(t, 0.4, ob.Asks[0].Amount, "ask amounts stored positive")

	// insert a new bid level
	conn.push(`[5,[49995,3,0.6]]`)
	require.Eventually(t, func() bool {
		ob, _ := c.GetOrderBook("tBTCUSD")
		return len(ob.Bids) == 3
	}, 2*time.Second, 5*time.Millisecond)
	ob, _ = c.GetOrderBook("tBTCUSD")
	assert.Equal(t, []float64{50000, 49995, 49990}, []float64{ob.Bids[0].Price, ob.Bids[1].Price, ob.Bids[2].Price})

	// count zero with positive amount deletes the bid at that price
	conn.push(`[5,[50000,0,1]]`)
	require.Eventually(t, func() bool {
		ob, _ := c.GetOrderBook("tBTCUSD")
		return len(ob.Bids) == 2
	}, 2*time.Second, 5*time.Millisecond)
	ob, _ = c.GetOrderBook("tBTCUSD")
	assert.Equal(t, 49995.0, ob.Bids[0].Price)

	// amount zero removes the level from whichever side holds it
	conn.push(`[5,[50010,1,0]]`)
	require.Eventually(t, func() bool {
		ob, _ := c.GetOrderBook("tBTCUSD")
		return len(ob.Asks) == 1
	}, 2*time.Second, 5*time.Millisecond)
	ob, _ = c.GetOrderBook("tBTCUSD")
	assert.Equal(t, 50020.0, ob.Asks[0].Price)
}

func TestBookSubscribeSnapshotThenRemoval(t *testing.T) {
	d := &fakeDialer{}
	c := newTestClient(t, quietConfig(), d)

	require.NoError(t, c.SubscribeBook("tBTCUSD"))
	require.NoError(t, c.Connect(context.Background()))
	conn := d.conn(t, 0)

	conn.push(`{"event":"subscribed","channel":"book","chanId":5,"symbol":"tBTCUSD"}`)
	conn.push(`[5,[[100,1,2],[99,1,-3]]]`)

	require.Eventually(t, func() bool {
		_, ok := c.GetOrderBook("tBTCUSD")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	ob, _ := c.GetOrderBook("tBTCUSD")
	require.Len(t, ob.Bids, 1)
	require.Len(t, ob.Asks, 1)
	assert.Equal(t, 100.0, ob.Bids[0].Price)
	assert.Equal(t, 2.0, ob.Bids[0].Amount)
	assert.Equal(t, 99.0, ob.Asks[0].Price)
	assert.Equal(t, 3.0, ob.Asks[0].Amount)

	conn.push(`[5,[100,1,0]]`)
	require.Eventually(t, func() bool {
		ob, _ := c.GetOrderBook("tBTCUSD")
		return len(ob.Bids) == 0
	}, 2*time.Second, 5*time.Millisecond)
	ob, _ = c.GetOrderBook("tBTCUSD")
	require.Len(t, ob.Asks, 1)
	assert.Equal(t, 99.0, ob.Asks[0].Price)
}

func TestBookUpdateBeforeSnapshotIsDiscarded(t *testing.T) {
	d := &fakeDialer{}
	c := newTestClient(t, quietConfig(), d)

	require.NoError(t, c.SubscribeBook("tBTCUSD"))
	require.NoError(t, c.Connect(context.Background()))
	conn := d.conn(t, 0)

	conn.push(`{"event":"subscribed","channel":"book","chanId":5,"symbol":"tBTCUSD"}`)
	conn.push(`[5,[50000,2,1.5]]`)
	conn.push(`[5,"hb"]`)

	// heartbeat after the update guarantees the update was processed
	require.Eventually(t, func() bool {
		return c.Status().State == StateOpen
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	_, ok := c.GetOrderBook("tBTCUSD")
	assert.False(t, ok, "a partial book must never be served")
}

func TestUnknownChannelAndMalformedFramesAreDropped(t *testing.T) {
	d := &fakeDialer{}
	c := newTestClient(t, quietConfig(), d)
	require.NoError(t, c.Connect(context.Background()))
	waitForState(t, c, StateOpen)
	conn := d.conn(t, 0)

	conn.push(`not json at all`)
	conn.push(`{"event":"mystery"}`)
	conn.push(fmt.Sprintf(tickerFrame10, 99)) // never subscribed
	conn.push(`[1,2,3]`)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, StateOpen, c.Status().State, "bad frames must not kill the connection")
	_, ok := c.GetTicker("tBTCUSD")
	assert.False(t, ok)
}

func TestReconnectReplaysSubscriptionsAndInvalidatesChannels(t *testing.T) {
	d := &fakeDialer{}
	c := newTestClient(t, quietConfig(), d)

	require.NoError(t, c.SubscribeBook("tBTCUSD"))
	require.NoError(t, c.Connect(context.Background()))
	conn0 := d.conn(t, 0)
	conn0.push(`{"event":"subscribed","channel":"book","chanId":3,"symbol":"tBTCUSD"}`)
	conn0.push(`[3,[[50000,2,1.5],[50010,1,-0.4]]]`)
	require.Eventually(t, func() bool {
		_, ok := c.GetOrderBook("tBTCUSD")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	conn0.fail(errConnReset)
	conn1 := d.conn(t, 1)

	// desired set replayed on the new connection
	require.Eventually(t, func() bool {
		return len(conn1.sentContaining(`"event":"subscribe"`)) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, conn1.sentContaining(`"event":"subscribe"`)[0], `"channel":"book"`)

	// stale book dropped, stale channel id no longer routes
	_, ok := c.GetOrderBook("tBTCUSD")
	assert.False(t, ok, "books must not survive a disconnect")

	conn1.push(`[3,[50000,2,1.5]]`)
	conn1.push(`[3,"hb"]`)
	time.Sleep(20 * time.Millisecond)
	_, ok = c.GetOrderBook("tBTCUSD")
	assert.False(t, ok, "old channel ids must not route after reconnect")
}

func TestBackoffScheduleAndTerminalError(t *testing.T) {
	d := &fakeDialer{failAll: true}
	cfg := quietConfig()
	cfg.ReconnectBaseDelay = 20 * time.Millisecond
	cfg.ReconnectMaxDelay = 500 * time.Millisecond
	cfg.MaxReconnectAttempts = 3
	c := newTestClient(t, cfg, d)

	require.NoError(t, c.Connect(context.Background()))
	waitForState(t, c, StateIdle)

	require.Equal(t, 4, d.dialCount(), "initial dial plus three retries")
	times := d.dialTimes()
	assert.GreaterOrEqual(t, times[1].Sub(times[0]), 20*time.Millisecond)
	assert.GreaterOrEqual(t, times[2].Sub(times[1]), 40*time.Millisecond)
	assert.GreaterOrEqual(t, times[3].Sub(times[2]), 80*time.Millisecond)

	st := c.Status()
	assert.ErrorIs(t, st.LastError, ErrReconnectExhausted)

	// a fresh Connect restarts the cycle
	d.setFailAll(false)
	require.NoError(t, c.Connect(context.Background()))
	waitForState(t, c, StateOpen)
	assert.Equal(t, 0, c.Status().Attempts)
}

func TestAttemptCounterResetsOnSuccess(t *testing.T) {
	d := &fakeDialer{failN: 2}
	c := newTestClient(t, quietConfig(), d)

	require.NoError(t, c.Connect(context.Background()))
	waitForState(t, c, StateOpen)

	assert.Equal(t, 3, d.dialCount())
	assert.Equal(t, 0, c.Status().Attempts)
	assert.NoError(t, c.Status().LastError)
}

func TestServerRestartCodeReconnectsImmediately(t *testing.T) {
	d := &fakeDialer{}
	c := newTestClient(t, quietConfig(), d)
	require.NoError(t, c.Connect(context.Background()))
	waitForState(t, c, StateOpen)
	conn := d.conn(t, 0)

	start := time.Now()
	conn.push(`{"event":"info","code":20051,"msg":"please reconnect"}`)

	d.conn(t, 1)
	assert.Less(t, time.Since(start), 200*time.Millisecond, "restart must redial without backoff")
	waitForState(t, c, StateOpen)
	assert.Equal(t, 0, c.Status().Attempts)
}

func TestMaintenanceCodesToggleThePlatformFlag(t *testing.T) {
	d := &fakeDialer{}
	c := newTestClient(t, quietConfig(), d)
	require.NoError(t, c.Connect(context.Background()))
	waitForState(t, c, StateOpen)
	conn := d.conn(t, 0)

	conn.push(`{"event":"info","version":2,"platform":{"status":1}}`)
	require.Eventually(t, func() bool {
		return c.Status().PlatformOperative
	}, 2*time.Second, 5*time.Millisecond)

	conn.push(`{"event":"info","code":20060}`)
	require.Eventually(t, func() bool {
		return !c.Status().PlatformOperative
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateOpen, c.Status().State, "maintenance must not drop the connection")

	conn.push(`{"event":"info","code":20061}`)
	require.Eventually(t, func() bool {
		return c.Status().PlatformOperative
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHeartbeatTimeoutForcesReconnect(t *testing.T) {
	d := &fakeDialer{}
	cfg := quietConfig()
	cfg.HeartbeatTimeout = 40 * time.Millisecond
	c := newTestClient(t, cfg, d)

	require.NoError(t, c.Connect(context.Background()))
	waitForState(t, c, StateOpen)

	// no frames arrive, the watchdog must tear the session down and redial
	d.conn(t, 1)
	waitForState(t, c, StateOpen)
}

func TestHeartbeatsKeepTheWatchdogQuiet(t *testing.T) {
	d := &fakeDialer{}
	cfg := quietConfig()
	cfg.HeartbeatTimeout = 60 * time.Millisecond
	c := newTestClient(t, cfg, d)

	require.NoError(t, c.Connect(context.Background()))
	waitForState(t, c, StateOpen)
	conn := d.conn(t, 0)

	for i := 0; i < 6; i++ {
		conn.push(`[1,"hb"]`)
		time.Sleep(25 * time.Millisecond)
	}
	assert.Equal(t, 1, d.dialCount(), "regular heartbeats must prevent a reconnect")
}

func TestPingPongMeasuresLatency(t *testing.T) {
	d := &fakeDialer{}
	cfg := quietConfig()
	cfg.PingInterval = 15 * time.Millisecond
	c := newTestClient(t, cfg, d)

	require.NoError(t, c.Connect(context.Background()))
	conn := d.conn(t, 0)

	var pings []string
	require.Eventually(t, func() bool {
		pings = conn.sentContaining(`"event":"ping"`)
		return len(pings) >= 1
	}, 2*time.Second, 5*time.Millisecond)

	var req struct {
		CID int64 `json:"cid"`
	}
	require.NoError(t, json.Unmarshal([]byte(pings[0]), &req))

	// a pong with an unknown cid must be ignored
	conn.push(`{"event":"pong","cid":999999999}`)
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, c.Status().PingLatency)

	conn.push(fmt.Sprintf(`{"event":"pong","cid":%d}`, req.CID))
	require.Eventually(t, func() bool {
		return c.Status().PingLatency > 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestNormalServerClosureGoesIdle(t *testing.T) {
	d := &fakeDialer{}
	c := newTestClient(t, quietConfig(), d)
	require.NoError(t, c.Connect(context.Background()))
	waitForState(t, c, StateOpen)

	d.conn(t, 0).fail(&websocket.CloseError{Code: websocket.CloseNormalClosure})
	waitForState(t, c, StateIdle)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, d.dialCount(), "normal closure must not trigger a reconnect")
}

func TestCloseCancelsPendingReconnect(t *testing.T) {
	d := &fakeDialer{failAll: true}
	cfg := quietConfig()
	cfg.ReconnectBaseDelay = 60 * time.Millisecond
	c := newTestClient(t, cfg, d)

	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, func() bool {
		return d.dialCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.Close())
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, d.dialCount(), "Close must stop the retry timer")
	assert.Equal(t, StateIdle, c.Status().State)
}

func TestCloseSendsNormalClosure(t *testing.T) {
	d := &fakeDialer{}
	c := newTestClient(t, quietConfig(), d)
	require.NoError(t, c.Connect(context.Background()))
	waitForState(t, c, StateOpen)

	require.NoError(t, c.Close())
	assert.True(t, d.conn(t, 0).wasClosedNormally())
	assert.Equal(t, StateIdle, c.Status().State)
}

func TestUnsubscribeSendsRequestAndDropsState(t *testing.T) {
	d := &fakeDialer{}
	c := newTestClient(t, quietConfig(), d)

	require.NoError(t, c.SubscribeBook("tBTCUSD"))
	require.NoError(t, c.Connect(context.Background()))
	conn := d.conn(t, 0)
	conn.push(`{"event":"subscribed","channel":"book","chanId":9,"symbol":"tBTCUSD"}`)
	conn.push(`[9,[[50000,2,1.5],[50010,1,-0.4]]]`)
	require.Eventually(t, func() bool {
		_, ok := c.GetOrderBook("tBTCUSD")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.UnsubscribeBook("tBTCUSD"))
	require.Eventually(t, func() bool {
		return len(conn.sentContaining(`"event":"unsubscribe"`)) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, conn.sentContaining(`"event":"unsubscribe"`)[0], `"chanId":9`)

	conn.push(`{"event":"unsubscribed","status":"OK","chanId":9}`)
	require.Eventually(t, func() bool {
		_, ok := c.GetOrderBook("tBTCUSD")
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, c.Status().Subscriptions)
}

func TestRateLimitedSendsStillDeliver(t *testing.T) {
	d := &fakeDialer{}
	cfg := quietConfig()
	cfg.SendRate = 500
	cfg.SendBurst = 5
	c := newTestClient(t, cfg, d)

	require.NoError(t, c.Connect(context.Background()))
	waitForState(t, c, StateOpen)
	conn := d.conn(t, 0)

	symbols := []string{"tBTCUSD", "tETHUSD", "tLTCUSD", "tXRPUSD", "tSOLUSD", "tDOTUSD", "tADAUSD", "tDOGEUSD"}
	for _, s := range symbols {
		require.NoError(t, c.SubscribeTicker(s))
	}

	require.Eventually(t, func() bool {
		return len(conn.sentContaining(`"event":"subscribe"`)) == len(symbols)
	}, 2*time.Second, 5*time.Millisecond, "limiter must delay, not drop")
}

func TestStatusEventsPublishedOnTransitions(t *testing.T) {
	d := &fakeDialer{}
	bus := events.NewEventBus()
	statuses := bus.Subscribe(common.TypeStatus)
	c := newTestClient(t, quietConfig(), d, WithBus(bus))

	require.NoError(t, c.Connect(context.Background()))
	waitForState(t, c, StateOpen)

	var seen []State
	deadline := time.After(time.Second)
	for len(seen) < 2 {
		select {
		case ev := <-statuses:
			if sc, ok := ev.(StatusChange); ok {
				seen = append(seen, sc.State)
			}
		case <-deadline:
			t.Fatalf("timed out, saw %v", seen)
		}
	}
	assert.Equal(t, []State{StateConnecting, StateOpen}, seen[:2])
}
