package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitfeed/internal/ws/wstest"
)

// These tests run the client against a real WebSocket server speaking the
// exchange protocol, exercising the gorilla transport end to end.

func TestClientAgainstMockServer(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()

	cfg := Config{
		URL:                  srv.URL,
		ReconnectBaseDelay:   10 * time.Millisecond,
		ReconnectMaxDelay:    100 * time.Millisecond,
		MaxReconnectAttempts: 3,
		PingInterval:         time.Hour,
		HeartbeatTimeout:     time.Hour,
	}
	c := New(cfg)
	defer c.Close()

	// deferred subscriptions; replay order is book before ticker, so the
	// server assigns chanId 1 to the book and 2 to the ticker
	require.NoError(t, c.SubscribeBook("tBTCUSD"))
	require.NoError(t, c.SubscribeTicker("tBTCUSD"))
	require.NoError(t, c.Connect(context.Background()))
	waitForState(t, c, StateOpen)

	// greeting from the server carries the platform flag
	require.Eventually(t, func() bool {
		return c.Status().PlatformOperative
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(srv.Received()) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	srv.Push(`[1,[[50000,2,1.5],[50010,1,-0.4]]]`)
	srv.Push(`[2,[50000,12.5,50010,8.2,150,0.003,50005,3200,50500,49400]]`)

	require.Eventually(t, func() bool {
		_, okBook := c.GetOrderBook("tBTCUSD")
		_, okTicker := c.GetTicker("tBTCUSD")
		return okBook && okTicker
	}, 2*time.Second, 5*time.Millisecond)

	ob, _ := c.GetOrderBook("tBTCUSD")
	assert.Equal(t, 50000.0, ob.Bids[0].Price)
	tk, _ := c.GetTicker("tBTCUSD")
	assert.Equal(t, 50005.0, tk.LastPrice)
}

func TestClientRecoversFromDroppedConnection(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()

	cfg := Config{
		URL:                  srv.URL,
		ReconnectBaseDelay:   10 * time.Millisecond,
		ReconnectMaxDelay:    100 * time.Millisecond,
		MaxReconnectAttempts: 5,
		PingInterval:         time.Hour,
		HeartbeatTimeout:     time.Hour,
	}
	c := New(cfg)
	defer c.Close()

	require.NoError(t, c.SubscribeBook("tBTCUSD"))
	require.NoError(t, c.Connect(context.Background()))
	waitForState(t, c, StateOpen)

	require.Eventually(t, func() bool {
		return len(srv.Received()) >= 1
	}, 2*time.Second, 5*time.Millisecond)
	before := len(srv.Received())

	srv.Push(`[1,[[50000,2,1.5],[50010,1,-0.4]]]`)
	require.Eventually(t, func() bool {
		_, ok := c.GetOrderBook("tBTCUSD")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	srv.DropClients()

	// the client redials and replays the book subscription
	require.Eventually(t, func() bool {
		return len(srv.Received()) > before && c.Status().State == StateOpen
	}, 5*time.Second, 10*time.Millisecond)

	_, ok := c.GetOrderBook("tBTCUSD")
	assert.False(t, ok, "the book must wait for a fresh snapshot after reconnect")

	// server assigned a new channel id on the second connection
	srv.Push(`[2,[[50100,1,0.5],[50110,1,-0.2]]]`)
	require.Eventually(t, func() bool {
		ob, ok := c.GetOrderBook("tBTCUSD")
		return ok && len(ob.Bids) == 1 && ob.Bids[0].Price == 50100
	}, 2*time.Second, 5*time.Millisecond)
}

func TestClientPingAgainstMockServer(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()

	cfg := Config{
		URL:                  srv.URL,
		ReconnectBaseDelay:   10 * time.Millisecond,
		ReconnectMaxDelay:    100 * time.Millisecond,
		MaxReconnectAttempts: 3,
		PingInterval:         20 * time.Millisecond,
		HeartbeatTimeout:     time.Hour,
	}
	c := New(cfg)
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))
	waitForState(t, c, StateOpen)

	require.Eventually(t, func() bool {
		return c.Status().PingLatency > 0
	}, 2*time.Second, 5*time.Millisecond)
}
