package kafka

import (
	"context"
	"github.com/ariefcatur/woodchain/internal/orders"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"sync"
	"time"
)

// Producer writes to any topic through one async writer; the topic travels on each message.
type Producer struct {
	w        *kafka.Writer
	inbox    chan kafka.Message
	stop     chan struct{}
	closeCh  chan struct{}
	stopOnce sync.Once
	log      *zap.Logger
}

func NewProducer(brokers []string, buf int, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			Async:                  true, // fire-and-forget; delivery errors land in Completion
			AllowAutoTopicCreation: true,
			Completion: func(msgs []kafka.Message, err error) {
				if err != nil && len(msgs) > 0 {
					log.Error("kafka write failed", zap.Int("messages", len(msgs)), zap.String("topic", msgs[0].Topic), zap.Error(err))
				}
			},
		},
		inbox:   make(chan kafka.Message, buf),
		stop:    make(chan struct{}),
		closeCh: make(chan struct{}),
		log:     log,
	}
}

// Start runs the writer loop until ctx is done or Close is called, then flushes what is queued.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				p.drain()
				return
			case <-p.stop:
				p.drain()
				return
			case m := <-p.inbox:
				p.write(m)
			}
		}
	}()
}

func (p *Producer) drain() {
	defer func() {
		if err := p.w.Close(); err != nil {
			p.log.Warn("kafka writer close", zap.Error(err))
		}
	}()
	for {
		select {
		case m := <-p.inbox:
			p.write(m)
		default:
			return
		}
	}
}

func (p *Producer) write(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		p.log.Error("kafka enqueue failed", zap.String("topic", m.Topic), zap.Error(err))
	}
}

func (p *Producer) Publish(topic string, key, value []byte, headers ...kafka.Header) {
	m := kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
	select {
	case p.inbox <- m:
	case <-p.closeCh:
		p.log.Warn("producer closed, event dropped", zap.String("topic", topic), zap.ByteString("key", key))
	}
}

// PublishEvent keys the message by the envelope's correlation id (the order id).
func (p *Producer) PublishEvent(topic string, env orders.Envelope) {
	p.Publish(topic, []byte(env.CorrelationID), MustMarshal(env), Headers(env)...)
}

// Close asks the loop to flush and exit. Safe to call more than once.
func (p *Producer) Close() { p.stopOnce.Do(func() { close(p.stop) }) }

// Tunggu sampai goroutine selesai.
func (p *Producer) WaitClosed() { <-p.closeCh }
