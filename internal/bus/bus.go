package bus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Logical channels. Payloads carry their routing key (symbol or user id)
// alongside, so consumers demultiplex by channel plus key.
const (
	ChannelPriceUpdates = "price_updates"
	ChannelMarketEvents = "market_events"
	ChannelOrderUpdates = "order_updates"
)

const subscriberBuffer = 256

// Envelope is one published message: the logical channel, a routing key
// (symbol for market channels, user id for order updates) and the JSON
// payload, carried opaquely.
type Envelope struct {
	Channel string
	Key     string
	Payload []byte
}

// Bus is the in-process pub/sub fabric between the simulation loops and the
// fan-out dispatcher. Publish is fire-and-forget with at-most-once delivery:
// a subscriber whose buffer is full loses that envelope rather than blocking
// the publisher. Per-subscriber buffered channels keep delivery FIFO per
// publisher.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int64]chan Envelope
	seq     atomic.Int64
	dropped atomic.Int64
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int64]chan Envelope),
	}
}

// Subscribe registers a consumer for all channels and returns its id and
// receive channel. The channel is closed by Unsubscribe.
func (b *Bus) Subscribe() (int64, <-chan Envelope) {
	id := b.seq.Add(1)
	ch := make(chan Envelope, subscriberBuffer)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	return id, ch
}

// Unsubscribe removes a consumer and closes its channel. Idempotent.
func (b *Bus) Unsubscribe(id int64) {
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish marshals payload and delivers it to every subscriber without
// blocking. Returns an error only for marshal failures.
func (b *Bus) Publish(channel, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", channel, err)
	}

	env := Envelope{Channel: channel, Key: key, Payload: data}

	b.mu.RLock()
	for id, ch := range b.subs {
		select {
		case ch <- env:
		default:
			// Lagging subscriber: drop this envelope for it. At-most-once
			// delivery, never a stalled publisher.
			b.dropped.Add(1)
			slog.Warn("bus subscriber lagging, envelope dropped",
				slog.Int64("subscriber", id),
				slog.String("channel", channel),
				slog.String("key", key))
		}
	}
	b.mu.RUnlock()

	return nil
}

// Dropped returns how many envelopes were lost to lagging subscribers.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Subscribers returns the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
