package kafka

import (
	"fmt"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"bitfeed/internal/logger"
)

// Producer is a synchronous Kafka producer requiring acknowledgment from all
// in-sync replicas before a send is considered delivered.
type Producer struct {
	producer sarama.SyncProducer
	log      *logrus.Entry
}

// NewProducer connects to the brokers.
func NewProducer(brokers []string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("creating kafka producer: %w", err)
	}
	return &Producer{
		producer: producer,
		log:      logger.WithComponent("kafka_producer"),
	}, nil
}

// Send delivers one message synchronously.
func (p *Producer) Send(msg Message) error {
	pm := &sarama.ProducerMessage{
		Topic: msg.Topic,
		Value: sarama.ByteEncoder(msg.Payload),
	}
	if msg.Key != "" {
		pm.Key = sarama.StringEncoder(msg.Key)
	}
	for k, v := range msg.Headers {
		pm.Headers = append(pm.Headers, sarama.RecordHeader{
			Key:   []byte(k),
			Value: []byte(v),
		})
	}

	partition, offset, err := p.producer.SendMessage(pm)
	if err != nil {
		return fmt.Errorf("sending to topic %s: %w", msg.Topic, err)
	}
	p.log.WithFields(logrus.Fields{
		"topic": msg.Topic, "partition": partition, "offset": offset,
	}).Trace("message delivered")
	return nil
}

// Close flushes and shuts the producer down.
func (p *Producer) Close() error {
	return p.producer.Close()
}
