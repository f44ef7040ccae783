package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/linhhnbkdn/brokerage/internal/auth"
	"github.com/linhhnbkdn/brokerage/internal/bus"
	"github.com/linhhnbkdn/brokerage/internal/events"
	"github.com/linhhnbkdn/brokerage/internal/infra"
	"github.com/linhhnbkdn/brokerage/internal/ledger"
	"github.com/linhhnbkdn/brokerage/internal/matching"
	"github.com/linhhnbkdn/brokerage/internal/pricing"
	"github.com/linhhnbkdn/brokerage/internal/server"
	"github.com/linhhnbkdn/brokerage/internal/session"
	"github.com/linhhnbkdn/brokerage/internal/sim"
	"github.com/linhhnbkdn/brokerage/internal/storage"
)

// App wires the venue together: storage, the event bus with its optional
// Kafka mirror, the simulator loops and the websocket server.
type App struct {
	cfg    *infra.Config
	logger *slog.Logger

	store  *storage.Store
	bus    *bus.Bus
	mirror *bus.Mirror
	sim    *sim.Simulator
	disp   *server.Dispatcher
	srv    *server.Server
}

// New builds the venue from config.
func New(cfg *infra.Config) (*App, error) {
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	store, err := storage.NewStore(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	commissionRate, err := decimal.NewFromString(cfg.Orders.CommissionRate)
	if err != nil {
		return nil, fmt.Errorf("bad commission rate %q: %w", cfg.Orders.CommissionRate, err)
	}
	commissionCap, err := decimal.NewFromString(cfg.Orders.CommissionCap)
	if err != nil {
		return nil, fmt.Errorf("bad commission cap %q: %w", cfg.Orders.CommissionCap, err)
	}

	b := bus.New()
	var mirror *bus.Mirror
	if len(cfg.Kafka.Brokers) > 0 {
		mirror = bus.NewMirror(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix)
	}

	registry := session.NewRegistry(auth.NewHMACValidator(cfg.Auth.Secret), cfg.Session.MaxSubscriptions)
	l := ledger.New(store, b, logger)
	matcher := matching.New(store, l, logger, commissionRate, commissionCap)

	seed := time.Now().UnixNano()
	prices := pricing.New(cfg.Market.Symbols, seed)
	gen := events.New(prices.Symbols(), seed+1)

	simulator := sim.New(prices, matcher, gen, store, b, logger, sim.Options{
		PriceInterval:    cfg.PriceInterval(),
		MatchingInterval: cfg.MatchingInterval(),
		EventsInterval:   cfg.EventsInterval(),
		EventChance:      cfg.Simulator.EventChance,
	})

	disp := server.NewDispatcher(b, registry, logger)
	srv := server.New(cfg, registry, l, disp, logger)

	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
		bus:    b,
		mirror: mirror,
		sim:    simulator,
		disp:   disp,
		srv:    srv,
	}, nil
}

// Run starts every component and blocks until ctx is cancelled, then drains
// in reverse order: server first so no new work arrives, then the loops, then
// the bus consumers, then storage.
func (a *App) Run(ctx context.Context) error {
	a.disp.Start(ctx)
	if a.mirror != nil {
		a.mirror.Start(ctx, a.bus)
	}
	a.sim.Start(ctx)

	err := a.srv.Run(ctx)

	a.sim.Stop()
	if a.mirror != nil {
		a.mirror.Stop(a.bus)
	}
	a.disp.Stop()

	if cerr := a.store.Close(); cerr != nil {
		a.logger.Error("failed to close store", "error", cerr)
	}
	a.logger.Info("venue stopped")
	return err
}
