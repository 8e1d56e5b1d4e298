package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bitfeed/internal/circuitbreaker"
	"bitfeed/internal/common"
	"bitfeed/internal/events"
	"bitfeed/internal/logger"
	"bitfeed/internal/market"
	"bitfeed/internal/metrics"
	"bitfeed/internal/stream"
)

// defaultTopics are the event types forwarded to Kafka.
var defaultTopics = []common.MessageType{
	common.TypeTicker,
	common.TypeBookSnapshot,
	common.TypeBookUpdate,
	common.TypeStatus,
}

// PublisherConfig wires a Publisher.
type PublisherConfig struct {
	// TopicPrefix is prepended to the event type, e.g. prefix "bitfeed"
	// yields topic "bitfeed.ticker".
	TopicPrefix string
	// Topics overrides the default set of forwarded event types.
	Topics []common.MessageType
	// Breaker, when set, gates sends so a dead broker does not burn retries
	// on every event.
	Breaker *circuitbreaker.CircuitBreaker
	// Recorder, when set, counts sends and failures. Nil is valid.
	Recorder *metrics.Recorder
}

// Publisher subscribes to the event bus and forwards each market event to a
// Kafka topic derived from its type.
type Publisher struct {
	cfg    PublisherConfig
	bus    events.Bus
	sender Sender
	log    *logrus.Entry
	wg     sync.WaitGroup
}

// NewPublisher builds a publisher over an existing sender.
func NewPublisher(bus events.Bus, sender Sender, cfg PublisherConfig) *Publisher {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "bitfeed"
	}
	if len(cfg.Topics) == 0 {
		cfg.Topics = defaultTopics
	}
	return &Publisher{
		cfg:    cfg,
		bus:    bus,
		sender: sender,
		log:    logger.WithComponent("kafka_publisher"),
	}
}

// Run consumes events until ctx is cancelled, then unsubscribes and drains.
func (p *Publisher) Run(ctx context.Context) {
	for _, topic := range p.cfg.Topics {
		ch := p.bus.Subscribe(topic)
		p.wg.Add(1)
		go p.forward(ctx, topic, ch)
	}
	<-ctx.Done()
	p.wg.Wait()
}

func (p *Publisher) forward(ctx context.Context, topic common.MessageType, ch <-chan interface{}) {
	defer p.wg.Done()
	defer p.bus.Unsubscribe(topic, ch)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			p.publish(topic, event)
		}
	}
}

func (p *Publisher) publish(topic common.MessageType, event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.log.WithError(err).WithField("topic", topic).Warn("event not serializable")
		return
	}

	symbol := symbolOf(event)
	msg := Message{
		Topic:   p.cfg.TopicPrefix + "." + string(topic),
		Key:     symbol,
		Payload: payload,
		Headers: map[string]string{
			"message_id": uuid.NewString(),
			"type":       string(topic),
		},
	}
	if symbol != "" {
		msg.Headers["symbol"] = symbol
	}

	start := time.Now()
	send := func() error { return p.sender.Send(msg) }
	if p.cfg.Breaker != nil {
		err = p.cfg.Breaker.Execute(send)
	} else {
		err = send()
	}
	if err != nil {
		p.cfg.Recorder.RecordKafkaError()
		p.log.WithError(err).WithField("topic", msg.Topic).Warn("send failed")
		return
	}
	p.cfg.Recorder.RecordKafkaSent(msg.Topic, time.Since(start))
}

// symbolOf extracts the partition key from known event payloads.
func symbolOf(event interface{}) string {
	switch e := event.(type) {
	case market.Ticker:
		return e.Symbol
	case market.OrderBook:
		return e.Symbol
	case market.BookUpdate:
		return e.Symbol
	case stream.StatusChange:
		return ""
	default:
		return ""
	}
}
