package kafka

import (
	"context"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"sync"
	"time"
)

// Handler harus return nil hanya jika proses sukses & boleh commit offset.
type Handler func(ctx context.Context, m kafka.Message) error

// reader is the slice of *kafka.Reader the consumer drives.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r          reader
	workers    int
	log        *zap.Logger
	backoff    time.Duration
	maxBackoff time.Duration
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
	return newConsumer(r, workers, log)
}

func newConsumer(r reader, workers int, log *zap.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{r: r, workers: workers, log: log, backoff: 200 * time.Millisecond, maxBackoff: 10 * time.Second}
}

// Start fetches without auto-commit and commits each message only after h succeeds.
// Group commits are cumulative per partition, so every partition is pinned to one
// worker and a failing message is retried in place until it succeeds or ctx ends.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	lanes := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup

	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 128)
		wg.Add(1)
		go func(id int, jobs <-chan kafka.Message) {
			defer wg.Done()
			for m := range jobs {
				if !c.process(ctx, id, h, m) {
					return
				}
			}
		}(i, lanes[i])
	}
	defer wg.Wait()
	defer func() {
		for _, l := range lanes {
			close(l)
		}
	}()

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			// kecilkan noise saat shutdown
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case lanes[m.Partition%len(lanes)] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

// process returns false when ctx ended before m was handled; m stays uncommitted.
func (c *Consumer) process(ctx context.Context, id int, h Handler, m kafka.Message) bool {
	wait := c.backoff
	for attempt := 1; ; attempt++ {
		err := h(ctx, m)
		if err == nil {
			break
		}
		c.log.Error("handler failed", zap.Int("worker", id), zap.String("topic", m.Topic),
			zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset),
			zap.Int("attempt", attempt), zap.Duration("retry_in", wait), zap.Error(err))
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
		if wait *= 2; wait > c.maxBackoff {
			wait = c.maxBackoff
		}
	}
	// commit gagal tidak fatal, commit berikutnya di partisi yang sama ikut menutupnya
	if err := c.r.CommitMessages(ctx, m); err != nil {
		c.log.Warn("commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
	}
	return true
}
