// Package metrics collects Prometheus metrics for the feed: frame counts by
// type, connection lifecycle events, ping latency and per-symbol order book
// health, plus Kafka publishing outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"bitfeed/internal/common"
	"bitfeed/internal/market"
)

// Recorder owns all feed metrics. A nil *Recorder is valid and records
// nothing, so wiring metrics stays optional.
type Recorder struct {
	framesTotal       *prometheus.CounterVec
	framesDropped     prometheus.Counter
	connectionErrors  prometheus.Counter
	reconnects        prometheus.Counter
	heartbeatTimeouts prometheus.Counter

	connectionState prometheus.Gauge
	platformStatus  prometheus.Gauge
	pingLatency     prometheus.Gauge

	bookDepth  *prometheus.GaugeVec
	bookSpread *prometheus.GaugeVec

	kafkaSent    *prometheus.CounterVec
	kafkaErrors  prometheus.Counter
	kafkaLatency prometheus.Histogram
}

// NewRecorder registers all metrics with reg. Pass
// prometheus.DefaultRegisterer in production and a private registry in
// tests.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	r := &Recorder{}

	r.framesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feed",
		Name:      "frames_total",
		Help:      "Number of inbound frames by type",
	}, []string{"type"})

	r.framesDropped = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "feed",
		Name:      "frames_dropped_total",
		Help:      "Frames dropped as malformed, unknown, or unroutable",
	})

	r.connectionErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "feed",
		Name:      "connection_errors_total",
		Help:      "Dial, read and write failures on the WebSocket connection",
	})

	r.reconnects = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "feed",
		Name:      "reconnects_total",
		Help:      "Scheduled reconnect attempts",
	})

	r.heartbeatTimeouts = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "feed",
		Name:      "heartbeat_timeouts_total",
		Help:      "Reconnects forced by a missed server heartbeat",
	})

	r.connectionState = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "feed",
		Name:      "connection_state",
		Help:      "Connection lifecycle state (0 idle, 1 connecting, 2 open, 3 closing)",
	})

	r.platformStatus = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "feed",
		Name:      "platform_operative",
		Help:      "Exchange platform status (1 operative, 0 maintenance)",
	})

	r.pingLatency = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "feed",
		Name:      "ping_latency_seconds",
		Help:      "Round-trip latency of the most recent ping/pong",
	})

	r.bookDepth = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "orderbook",
		Name:      "depth_levels",
		Help:      "Current number of price levels per symbol and side",
	}, []string{"symbol", "side"})

	r.bookSpread = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "orderbook",
		Name:      "price_spread",
		Help:      "Current spread between best bid and best ask per symbol",
	}, []string{"symbol"})

	r.kafkaSent = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kafka",
		Name:      "messages_sent_total",
		Help:      "Messages delivered to Kafka by topic",
	}, []string{"topic"})

	r.kafkaErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "kafka",
		Name:      "send_errors_total",
		Help:      "Failed Kafka sends",
	})

	r.kafkaLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kafka",
		Name:      "send_latency_seconds",
		Help:      "Latency of Kafka message production",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	return r
}

// CountFrame increments the frame counter for a message type.
func (r *Recorder) CountFrame(t common.MessageType) {
	if r == nil {
		return
	}
	r.framesTotal.WithLabelValues(string(t)).Inc()
}

// CountDropped increments the dropped-frame counter.
func (r *Recorder) CountDropped() {
	if r == nil {
		return
	}
	r.framesDropped.Inc()
}

// RecordConnectionError counts a transport failure.
func (r *Recorder) RecordConnectionError() {
	if r == nil {
		return
	}
	r.connectionErrors.Inc()
}

// RecordReconnect counts a scheduled reconnect attempt.
func (r *Recorder) RecordReconnect() {
	if r == nil {
		return
	}
	r.reconnects.Inc()
}

// RecordHeartbeatTimeout counts a heartbeat-forced reconnect.
func (r *Recorder) RecordHeartbeatTimeout() {
	if r == nil {
		return
	}
	r.heartbeatTimeouts.Inc()
}

// SetConnectionState publishes the lifecycle state as a gauge.
func (r *Recorder) SetConnectionState(state int) {
	if r == nil {
		return
	}
	r.connectionState.Set(float64(state))
}

// SetPlatformStatus publishes the exchange platform status.
func (r *Recorder) SetPlatformStatus(operative bool) {
	if r == nil {
		return
	}
	if operative {
		r.platformStatus.Set(1)
	} else {
		r.platformStatus.Set(0)
	}
}

// SetPingLatency publishes the last measured round trip.
func (r *Recorder) SetPingLatency(d time.Duration) {
	if r == nil {
		return
	}
	r.pingLatency.Set(d.Seconds())
}

// ObserveBook publishes depth and spread for a symbol's current book.
func (r *Recorder) ObserveBook(ob market.OrderBook) {
	if r == nil {
		return
	}
	r.bookDepth.WithLabelValues(ob.Symbol, "bid").Set(float64(len(ob.Bids)))
	r.bookDepth.WithLabelValues(ob.Symbol, "ask").Set(float64(len(ob.Asks)))
	if spread, ok := ob.Spread(); ok {
		r.bookSpread.WithLabelValues(ob.Symbol).Set(spread)
	}
}

// ObserveTickerSpread publishes the spread from a ticker observation.
func (r *Recorder) ObserveTickerSpread(t market.Ticker) {
	if r == nil {
		return
	}
	r.bookSpread.WithLabelValues(t.Symbol).Set(t.Spread())
}

// RecordKafkaSent counts a successful Kafka send and its latency.
func (r *Recorder) RecordKafkaSent(topic string, d time.Duration) {
	if r == nil {
		return
	}
	r.kafkaSent.WithLabelValues(topic).Inc()
	r.kafkaLatency.Observe(d.Seconds())
}

// RecordKafkaError counts a failed Kafka send.
func (r *Recorder) RecordKafkaError() {
	if r == nil {
		return
	}
	r.kafkaErrors.Inc()
}
