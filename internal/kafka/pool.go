package kafka

import (
	"fmt"
	"sync/atomic"

	"bitfeed/internal/logger"
)

// Pool round-robins sends over several senders so one slow broker
// acknowledgment does not serialize the whole event stream.
type Pool struct {
	senders []Sender
	next    uint64
}

// SenderFactory builds one pool member. Injected so tests can pool fakes.
type SenderFactory func() (Sender, error)

// NewPool builds size senders from the factory.
func NewPool(size int, factory SenderFactory) (*Pool, error) {
	if size < 1 {
		size = 1
	}
	p := &Pool{senders: make([]Sender, 0, size)}
	for i := 0; i < size; i++ {
		s, err := factory()
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("creating pool sender %d: %w", i, err)
		}
		p.senders = append(p.senders, s)
	}
	logger.WithComponent("kafka_pool").WithField("size", size).Debug("producer pool ready")
	return p, nil
}

// NewProducerPool is a convenience for a pool of real producers.
func NewProducerPool(brokers []string, size int) (*Pool, error) {
	return NewPool(size, func() (Sender, error) { return NewProducer(brokers) })
}

// Send dispatches to the next sender in round-robin order.
func (p *Pool) Send(msg Message) error {
	i := atomic.AddUint64(&p.next, 1)
	return p.senders[i%uint64(len(p.senders))].Send(msg)
}

// Close closes every pool member, returning the first error.
func (p *Pool) Close() error {
	var first error
	for _, s := range p.senders {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
