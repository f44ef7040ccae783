package server

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/linhhnbkdn/brokerage/internal/bus"
	"github.com/linhhnbkdn/brokerage/internal/session"
)

// Dispatcher fans bus envelopes out to connected sessions. Market channels
// route by symbol to subscribed sessions; order updates route by user id to
// the user's own sessions. Sessions never see anything they did not ask for.
type Dispatcher struct {
	bus      *bus.Bus
	registry *session.Registry
	logger   *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*ConnectionSession

	subID int64
	done  chan struct{}
}

// NewDispatcher creates a dispatcher over the bus and registry.
func NewDispatcher(b *bus.Bus, registry *session.Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		bus:      b,
		registry: registry,
		logger:   logger,
		sessions: make(map[string]*ConnectionSession),
		done:     make(chan struct{}),
	}
}

// Start subscribes to the bus and launches the routing loop.
func (d *Dispatcher) Start(ctx context.Context) {
	id, ch := d.bus.Subscribe()
	d.subID = id

	go func() {
		defer close(d.done)
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-ch:
				if !ok {
					return
				}
				d.route(env)
			}
		}
	}()
}

// Stop detaches from the bus and waits for the routing loop to exit.
func (d *Dispatcher) Stop() {
	d.bus.Unsubscribe(d.subID)
	<-d.done
}

// Attach registers a live connection for routing.
func (d *Dispatcher) Attach(cs *ConnectionSession) {
	d.mu.Lock()
	d.sessions[cs.ID()] = cs
	d.mu.Unlock()
}

// Detach removes a connection from routing.
func (d *Dispatcher) Detach(sessionID string) {
	d.mu.Lock()
	delete(d.sessions, sessionID)
	d.mu.Unlock()
}

// CloseAll shuts down every attached session, for server drain.
func (d *Dispatcher) CloseAll() {
	d.mu.Lock()
	sessions := make([]*ConnectionSession, 0, len(d.sessions))
	for _, cs := range d.sessions {
		sessions = append(sessions, cs)
	}
	d.sessions = make(map[string]*ConnectionSession)
	d.mu.Unlock()

	for _, cs := range sessions {
		cs.shutdown()
	}
}

func (d *Dispatcher) route(env bus.Envelope) {
	var targets []string
	switch env.Channel {
	case bus.ChannelPriceUpdates, bus.ChannelMarketEvents:
		targets = d.registry.SessionsForSymbol(env.Key)
	case bus.ChannelOrderUpdates:
		userID, err := strconv.ParseInt(env.Key, 10, 64)
		if err != nil {
			d.logger.Error("bad order update key", "key", env.Key)
			return
		}
		targets = d.registry.SessionsForUser(userID)
	default:
		return
	}

	if len(targets) == 0 {
		return
	}

	d.mu.RLock()
	for _, id := range targets {
		if cs, ok := d.sessions[id]; ok {
			cs.Push(env.Payload)
		}
	}
	d.mu.RUnlock()
}
