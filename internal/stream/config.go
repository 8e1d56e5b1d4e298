package stream

import (
	"time"

	"bitfeed/internal/events"
	"bitfeed/internal/metrics"
	"bitfeed/internal/ws"
	"bitfeed/pkg/bitfinex"
)

// DefaultURL is the public Bitfinex WebSocket v2 endpoint.
const DefaultURL = "wss://api-pub.bitfinex.com/ws/2"

// Config carries the tunables of the stream client. Zero values fall back to
// the defaults below.
type Config struct {
	URL              string
	HandshakeTimeout time.Duration

	// Reconnect schedule: delay grows as base*2^attempt capped at max, and
	// after MaxReconnectAttempts failed attempts the client goes idle with a
	// terminal error.
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts int

	// Liveness: application pings every PingInterval, and a reconnect is
	// forced when nothing arrives for HeartbeatTimeout.
	PingInterval     time.Duration
	HeartbeatTimeout time.Duration

	// Book channel parameters, passed through on subscribe.
	BookPrecision string
	BookFrequency string
	BookLength    string

	// Outbound message rate limit in messages per second, with burst.
	// Zero or negative disables limiting.
	SendRate  float64
	SendBurst int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		URL:                  DefaultURL,
		HandshakeTimeout:     10 * time.Second,
		ReconnectBaseDelay:   5 * time.Second,
		ReconnectMaxDelay:    60 * time.Second,
		MaxReconnectAttempts: 3,
		PingInterval:         30 * time.Second,
		HeartbeatTimeout:     20 * time.Second,
		BookPrecision:        bitfinex.DefaultPrecision,
		BookFrequency:        bitfinex.DefaultFrequency,
		BookLength:           bitfinex.DefaultBookLength,
		SendRate:             10,
		SendBurst:            20,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.URL == "" {
		c.URL = def.URL
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if c.ReconnectMaxDelay <= 0 {
		c.ReconnectMaxDelay = def.ReconnectMaxDelay
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if c.BookPrecision == "" {
		c.BookPrecision = def.BookPrecision
	}
	if c.BookFrequency == "" {
		c.BookFrequency = def.BookFrequency
	}
	if c.BookLength == "" {
		c.BookLength = def.BookLength
	}
	return c
}

// Option customizes a Client at construction time.
type Option func(*Client)

// WithDialer substitutes the WebSocket dialer, used by tests to script
// connections.
func WithDialer(d ws.Dialer) Option {
	return func(c *Client) { c.dial = d }
}

// WithBus attaches an event bus the client publishes market events to.
func WithBus(b events.Bus) Option {
	return func(c *Client) { c.bus = b }
}

// WithMetrics attaches a metrics recorder. A nil recorder is valid.
func WithMetrics(r *metrics.Recorder) Option {
	return func(c *Client) { c.rec = r }
}

// WithClock substitutes the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}
