package sim

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/linhhnbkdn/brokerage/internal/bus"
	"github.com/linhhnbkdn/brokerage/internal/domain"
	"github.com/linhhnbkdn/brokerage/internal/events"
	"github.com/linhhnbkdn/brokerage/internal/matching"
	"github.com/linhhnbkdn/brokerage/internal/pricing"
	"github.com/linhhnbkdn/brokerage/internal/storage"
)

// Options sets the cadence of the three venue loops.
type Options struct {
	PriceInterval    time.Duration
	MatchingInterval time.Duration
	EventsInterval   time.Duration
	EventChance      float64
}

// Simulator runs the venue's background loops: the price walk, the matching
// scan and the market event roll. Each loop runs on its own ticker until the
// context is cancelled; Stop blocks until all three have drained.
type Simulator struct {
	prices  *pricing.Process
	matcher *matching.Loop
	events  *events.Generator
	store   *storage.Store
	bus     *bus.Bus
	logger  *slog.Logger
	opts    Options

	wg sync.WaitGroup
}

// New wires a simulator; Start kicks off the loops.
func New(prices *pricing.Process, matcher *matching.Loop, gen *events.Generator,
	store *storage.Store, b *bus.Bus, logger *slog.Logger, opts Options) *Simulator {
	return &Simulator{
		prices:  prices,
		matcher: matcher,
		events:  gen,
		store:   store,
		bus:     b,
		logger:  logger,
		opts:    opts,
	}
}

// Start launches the price, matching and event loops.
func (s *Simulator) Start(ctx context.Context) {
	s.wg.Add(3)
	go s.priceLoop(ctx)
	go s.matchingLoop(ctx)
	go s.eventLoop(ctx)
	s.logger.Info("simulator started",
		"price_interval", s.opts.PriceInterval,
		"matching_interval", s.opts.MatchingInterval,
		"events_interval", s.opts.EventsInterval,
	)
}

// Stop waits for every loop to exit. Callers cancel the Start context first.
func (s *Simulator) Stop() {
	s.wg.Wait()
	s.logger.Info("simulator stopped")
}

func (s *Simulator) priceLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.PriceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickPrices(ctx)
		}
	}
}

func (s *Simulator) tickPrices(ctx context.Context) {
	for _, snap := range s.prices.TickAll() {
		if err := s.store.SaveSnapshot(ctx, &snap); err != nil {
			s.logger.Error("failed to save snapshot", "symbol", snap.Symbol, "error", err)
			continue
		}
		if err := s.bus.Publish(bus.ChannelPriceUpdates, snap.Symbol, domain.NewPricePush(snap)); err != nil {
			s.logger.Error("failed to publish price update", "symbol", snap.Symbol, "error", err)
		}
	}
}

func (s *Simulator) matchingLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.MatchingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if filled := s.matcher.RunCycle(ctx); filled > 0 {
				s.logger.Debug("matching cycle complete", "fills", filled)
			}
		}
	}
}

func (s *Simulator) eventLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.EventsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ev, ok := s.events.Maybe(s.opts.EventChance)
			if !ok {
				continue
			}
			if err := s.store.SaveMarketEvent(ctx, ev); err != nil {
				s.logger.Error("failed to save market event", "event_id", ev.ID, "error", err)
				continue
			}
			if err := s.bus.Publish(bus.ChannelMarketEvents, ev.Symbol, domain.NewAlertPush(ev)); err != nil {
				s.logger.Error("failed to publish market event", "event_id", ev.ID, "error", err)
			}
			s.logger.Info("market event",
				"event_id", ev.ID,
				"symbol", ev.Symbol,
				"event_type", ev.EventType,
				"impact", ev.Impact,
			)
		}
	}
}
