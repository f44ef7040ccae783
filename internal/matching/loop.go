package matching

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/linhhnbkdn/brokerage/internal/domain"
	"github.com/linhhnbkdn/brokerage/internal/ledger"
	"github.com/linhhnbkdn/brokerage/internal/storage"
)

// Loop fills open orders against the latest simulated quote. Each cycle scans
// every submitted or partial order; per-order failures are logged and the
// scan continues, so one bad order never stalls the batch.
//
// Market orders always execute, buys at the ask and sells at the bid. Limit
// orders trigger when the last price crosses the limit and then execute at
// the limit price itself. Stop orders rest untouched; there is no stop
// trigger in this venue.
type Loop struct {
	store  *storage.Store
	ledger *ledger.Ledger
	logger *slog.Logger

	commissionRate decimal.Decimal
	commissionCap  decimal.Decimal
}

// New creates a matching loop with the given commission schedule.
func New(store *storage.Store, l *ledger.Ledger, logger *slog.Logger, commissionRate, commissionCap decimal.Decimal) *Loop {
	return &Loop{
		store:          store,
		ledger:         l,
		logger:         logger,
		commissionRate: commissionRate,
		commissionCap:  commissionCap,
	}
}

// RunCycle scans open orders once and returns how many fills it applied.
func (m *Loop) RunCycle(ctx context.Context) int {
	orders, err := m.store.OpenOrders(ctx)
	if err != nil {
		m.logger.Error("failed to load open orders", "error", err)
		return 0
	}

	filled := 0
	for _, o := range orders {
		if ctx.Err() != nil {
			return filled
		}
		ok, err := m.tryFill(ctx, o)
		if err != nil {
			m.logger.Error("failed to fill order", "order_id", o.ID, "error", err)
			continue
		}
		if ok {
			filled++
		}
	}
	return filled
}

func (m *Loop) tryFill(ctx context.Context, o *domain.Order) (bool, error) {
	snap, err := m.store.LatestSnapshot(ctx, o.Symbol)
	if errors.Is(err, sql.ErrNoRows) {
		// No quote yet for this symbol; the order waits.
		return false, nil
	}
	if err != nil {
		return false, err
	}

	price, ok := executionPrice(o, snap)
	if !ok {
		return false, nil
	}

	qty := o.RemainingQuantity()
	commission := m.Commission(qty, price)
	if _, _, err := m.ledger.Fill(ctx, o.ID, qty, price, commission); err != nil {
		return false, err
	}
	return true, nil
}

// executionPrice decides whether the order executes against the quote and at
// what price.
func executionPrice(o *domain.Order, snap *domain.PriceSnapshot) (decimal.Decimal, bool) {
	switch o.Type {
	case domain.TypeMarket:
		if o.Side == domain.SideBuy {
			return snap.Ask, true
		}
		return snap.Bid, true

	case domain.TypeLimit:
		if o.Side == domain.SideBuy && snap.Price.LessThanOrEqual(*o.Price) {
			return *o.Price, true
		}
		if o.Side == domain.SideSell && snap.Price.GreaterThanOrEqual(*o.Price) {
			return *o.Price, true
		}
		return decimal.Zero, false

	default:
		// stop and stop_limit rest until cancelled or expired
		return decimal.Zero, false
	}
}

// Commission is value * rate, capped.
func (m *Loop) Commission(qty, price decimal.Decimal) decimal.Decimal {
	return decimal.Min(m.commissionCap, qty.Mul(price).Mul(m.commissionRate))
}
