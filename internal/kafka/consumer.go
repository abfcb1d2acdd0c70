package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler returns nil only when the message was handled and its offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

// Backoff paces retries of a failing message: the pause doubles from
// Initial up to Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

var DefaultBackoff = Backoff{Initial: 200 * time.Millisecond, Max: 5 * time.Second}

// Handle runs h until it returns nil or ctx is done, in which case it
// returns ctx's error. Each failure is logged.
func (b Backoff) Handle(ctx context.Context, h Handler, m kafka.Message, log *zap.Logger) error {
	if b.Initial <= 0 {
		b.Initial = DefaultBackoff.Initial
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
	if log == nil {
		log = zap.NewNop()
	}

	delay := b.Initial
	for attempt := 1; ; attempt++ {
		err := h(ctx, m)
		if err == nil {
			return nil
		}
		log.Error("handle message",
			zap.Int("attempt", attempt),
			zap.Int64("offset", m.Offset),
			zap.Int("partition", m.Partition),
			zap.Duration("retry_in", delay),
			zap.Error(err))
		if ctx.Err() != nil {
			return ctx.Err()
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		delay = min(delay*2, b.Max)
	}
}

type Consumer struct {
	r       *kafka.Reader
	workers int
	backoff Backoff
	log     *zap.Logger
}

func NewConsumer(brokers []string, group, topic string, workers int, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{
		r:       r,
		workers: workers,
		backoff: DefaultBackoff,
		log:     log.With(zap.String("topic", topic), zap.String("group", group)),
	}
}

// Start dispatches messages to a worker pool until ctx is cancelled. Each
// partition is served by one worker, and a failing message is retried
// before anything after it on that partition, so a commit never passes an
// unhandled offset.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	queues := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan kafka.Message, 128)
		wg.Add(1)
		go func(id int, jobs <-chan kafka.Message) {
			defer wg.Done()
			log := c.log.With(zap.Int("worker", id))
			for m := range jobs {
				if err := c.backoff.Handle(ctx, h, m, log); err != nil {
					// shutting down; the offset stays uncommitted for redelivery
					continue
				}
				if err := c.r.CommitMessages(ctx, m); err != nil {
					log.Error("commit", zap.Int64("offset", m.Offset), zap.Error(err))
				}
			}
		}(i, queues[i])
	}
	closeAll := func() {
		for _, q := range queues {
			close(q)
		}
	}
	defer wg.Wait()

	for {
		// FetchMessage leaves committing to the workers.
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			closeAll()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case queues[m.Partition%c.workers] <- m:
		case <-ctx.Done():
			closeAll()
			return nil
		}
	}
}
