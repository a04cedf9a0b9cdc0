package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

//go:generate mockgen -destination=mock/writer.go -package=mock_kafka . Writer

// Writer is the subset of *kafka.Writer the producer needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter builds a topic-less writer; every message names its own topic.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// Producer decouples request handlers from broker latency: Publish only
// enqueues, a single goroutine writes.
type Producer struct {
	w            Writer
	inbox        chan kafka.Message
	closeCh      chan struct{}
	log          zerolog.Logger
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
}

func NewProducer(w Writer, buf int, log zerolog.Logger) *Producer {
	if buf <= 0 {
		buf = 1
	}
	return &Producer{
		w:            w,
		inbox:        make(chan kafka.Message, buf),
		closeCh:      make(chan struct{}),
		log:          log,
		writeTimeout: 5 * time.Second,
	}
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		defer func() {
			if err := p.w.Close(); err != nil {
				p.log.Error().Err(err).Msg("close kafka writer")
			}
		}()
		for {
			select {
			case <-ctx.Done():
				p.drain()
				return
			case m, ok := <-p.inbox:
				if !ok {
					return
				}
				p.write(m)
			}
		}
	}()
}

// Publish enqueues without blocking. A full inbox or a closed producer drops
// the message and logs it.
func (p *Producer) Publish(topic string, key, value []byte, headers ...kafka.Header) {
	m := kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.log.Warn().Str("topic", topic).Str("key", string(key)).Msg("producer closed, event dropped")
		return
	}
	select {
	case p.inbox <- m:
	default:
		p.log.Warn().Str("topic", topic).Str("key", string(key)).Msg("producer inbox full, event dropped")
	}
}

// Close stops intake; the loop flushes what is buffered and exits.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.inbox)
}

func (p *Producer) WaitClosed() { <-p.closeCh }

func (p *Producer) drain() {
	for {
		select {
		case m, ok := <-p.inbox:
			if !ok {
				return
			}
			p.write(m)
		default:
			return
		}
	}
}

func (p *Producer) write(m kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
	defer cancel()
	if err := p.w.WriteMessages(ctx, m); err != nil {
		p.log.Error().Err(err).Str("topic", m.Topic).Str("key", string(m.Key)).Msg("kafka write failed")
	}
}
