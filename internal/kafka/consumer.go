package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Handler returns nil only when the message is done and its offset may be
// committed.
type Handler func(ctx context.Context, m kafka.Message) error

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r       Reader
	workers int
	retries int
	backoff time.Duration
	log     zerolog.Logger
}

func NewReader(brokers []string, group, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
}

func NewConsumer(r Reader, workers int, log zerolog.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, retries: 3, backoff: 200 * time.Millisecond, log: log}
}

// Start fetches until ctx is done. Each partition is owned by exactly one
// worker, which handles and commits its messages in offset order. A commit
// therefore never covers an offset that is still being retried, and keyed
// ordering holds because the producer partitions by key.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range jobs {
		jobs[i] = make(chan kafka.Message, 64)
		wg.Add(1)
		go func(in <-chan kafka.Message) {
			defer wg.Done()
			for m := range in {
				c.process(ctx, h, m)
			}
		}(jobs[i])
	}
	stop := func() {
		for _, ch := range jobs {
			close(ch)
		}
		wg.Wait()
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			stop()
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		select {
		case jobs[c.slot(m.Partition)] <- m:
		case <-ctx.Done():
			stop()
			return nil
		}
	}
}

func (c *Consumer) slot(partition int) int {
	if partition < 0 {
		return 0
	}
	return partition % c.workers
}

func (c *Consumer) process(ctx context.Context, h Handler, m kafka.Message) {
	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if err = h(ctx, m); err == nil {
			break
		}
		if ctx.Err() != nil {
			return
		}
		c.log.Warn().Err(err).Str("topic", m.Topic).Int64("offset", m.Offset).Int("attempt", attempt+1).Msg("handler failed")
		time.Sleep(c.backoff * time.Duration(attempt+1))
	}
	if err != nil {
		// give up on this message but keep the partition moving
		c.log.Error().Err(err).Str("topic", m.Topic).Int("partition", m.Partition).Int64("offset", m.Offset).Msg("message skipped")
	}
	if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.log.Error().Err(err).Int64("offset", m.Offset).Msg("commit failed")
	}
}
