package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/linhhnbkdn/brokerage/internal/infra"
)

// Mirror copies every bus envelope to a Kafka topic per logical channel, so
// external consumers get the same feed as connected sessions. It is a plain
// bus subscriber: the venue never depends on the broker being reachable, and
// a circuit breaker sheds writes while the broker is down.
type Mirror struct {
	writers map[string]*kafka.Writer
	breaker *infra.CircuitBreaker

	subID  int64
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMirror builds writers for the three channels under the given topic
// prefix (for example "brokerage." yields "brokerage.price_updates").
func NewMirror(brokers []string, topicPrefix string) *Mirror {
	writers := make(map[string]*kafka.Writer, 3)
	for _, channel := range []string{ChannelPriceUpdates, ChannelMarketEvents, ChannelOrderUpdates} {
		writers[channel] = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topicPrefix + channel,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		}
	}
	return &Mirror{
		writers: writers,
		breaker: infra.NewCircuitBreaker("kafka-mirror", 5, 2, 30*time.Second),
	}
}

// Start subscribes to the bus and begins mirroring until Stop or ctx cancel.
func (m *Mirror) Start(ctx context.Context, b *Bus) {
	ctx, m.cancel = context.WithCancel(ctx)

	id, ch := b.Subscribe()
	m.subID = id

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-ch:
				if !ok {
					return
				}
				m.forward(ctx, env)
			}
		}
	}()

	slog.Info("kafka mirror started", slog.Int("writers", len(m.writers)))
}

// Stop unsubscribes and waits for the forward loop, then closes the writers.
func (m *Mirror) Stop(b *Bus) {
	if m.cancel != nil {
		m.cancel()
	}
	b.Unsubscribe(m.subID)
	m.wg.Wait()

	for channel, w := range m.writers {
		if err := w.Close(); err != nil {
			slog.Warn("failed to close kafka writer",
				slog.String("channel", channel), slog.Any("error", err))
		}
	}
}

func (m *Mirror) forward(ctx context.Context, env Envelope) {
	w, ok := m.writers[env.Channel]
	if !ok {
		return
	}
	if !m.breaker.Allow() {
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := w.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(env.Key),
		Value: env.Payload,
	})
	if err != nil {
		m.breaker.RecordFailure()
		slog.Warn("kafka mirror write failed",
			slog.String("channel", env.Channel),
			slog.String("key", env.Key),
			slog.Any("error", err))
		return
	}
	m.breaker.RecordSuccess()
}
