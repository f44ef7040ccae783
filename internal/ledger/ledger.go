package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/linhhnbkdn/brokerage/internal/bus"
	"github.com/linhhnbkdn/brokerage/internal/domain"
	"github.com/linhhnbkdn/brokerage/internal/storage"
)

// PlaceRequest carries the fields of a place_order command after decoding.
type PlaceRequest struct {
	Symbol      string
	Side        string
	Type        string
	Quantity    decimal.Decimal
	Price       *decimal.Decimal
	StopPrice   *decimal.Decimal
	TimeInForce string
}

// Ledger owns order placement and the mutate-persist-publish sequence for
// every order state change. A per-order lock serializes fills and cancels on
// the same order; different orders proceed concurrently.
type Ledger struct {
	store  *storage.Store
	bus    *bus.Bus
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a ledger over the store and event bus.
func New(store *storage.Store, b *bus.Bus, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		bus:    b,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Place validates and records a new order. Validation failures return a
// *domain.ValidationError and nothing is persisted. On success the order is
// submitted, saved, and announced on the order_updates channel.
func (l *Ledger) Place(ctx context.Context, userID int64, req PlaceRequest) (*domain.Order, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	now := time.Now().UnixMicro()
	o := &domain.Order{
		ID:           newID("ord_"),
		UserID:       userID,
		Symbol:       strings.ToUpper(req.Symbol),
		Side:         req.Side,
		Type:         req.Type,
		Quantity:     req.Quantity,
		Price:        req.Price,
		StopPrice:    req.StopPrice,
		FilledQty:    decimal.Zero,
		Status:       domain.StatusPending,
		TimeInForce:  req.TimeInForce,
		CreatedUnixM: now,
	}
	if o.TimeInForce == "" {
		o.TimeInForce = domain.TIFDay
	}

	if err := o.Submit(); err != nil {
		return nil, fmt.Errorf("failed to submit order %s: %w", o.ID, err)
	}
	if err := l.store.SaveOrder(ctx, o); err != nil {
		return nil, err
	}

	l.publishUpdate(o)
	l.logger.Info("order placed",
		"order_id", o.ID,
		"user_id", userID,
		"symbol", o.Symbol,
		"side", o.Side,
		"type", o.Type,
		"quantity", o.Quantity.String(),
	)
	return o, nil
}

// Fill applies one execution to the order. The order is reloaded from the
// store under its lock, so the fill always sees the latest filled quantity.
func (l *Ledger) Fill(ctx context.Context, orderID string, qty, price, commission decimal.Decimal) (*domain.Order, *domain.Execution, error) {
	lock := l.lockFor(orderID)
	lock.Lock()
	defer lock.Unlock()

	o, err := l.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}
	if err := o.Fill(qty, price); err != nil {
		return nil, nil, fmt.Errorf("fill order %s: %w", orderID, err)
	}

	exec := &domain.Execution{
		ID:            newID("exec_"),
		OrderID:       o.ID,
		Quantity:      qty,
		Price:         price,
		Commission:    commission,
		ExecutedUnixM: time.Now().UnixMicro(),
	}
	if err := l.store.SaveOrder(ctx, o); err != nil {
		return nil, nil, err
	}
	if err := l.store.SaveExecution(ctx, exec); err != nil {
		return nil, nil, err
	}
	if o.IsTerminal() {
		l.releaseLock(orderID)
	}

	l.publishUpdate(o)
	l.logger.Info("order filled",
		"order_id", o.ID,
		"status", o.Status,
		"fill_quantity", qty.String(),
		"fill_price", price.String(),
		"filled_quantity", o.FilledQty.String(),
	)
	return o, exec, nil
}

// Cancel transitions the user's active order to cancelled. Orders belonging
// to another user are reported as not found.
func (l *Ledger) Cancel(ctx context.Context, userID int64, orderID string) (*domain.Order, error) {
	lock := l.lockFor(orderID)
	lock.Lock()
	defer lock.Unlock()

	o, err := l.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}
	if o.UserID != userID {
		return nil, fmt.Errorf("order %s does not belong to user %d", orderID, userID)
	}
	if err := o.Cancel(); err != nil {
		return nil, fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	if err := l.store.SaveOrder(ctx, o); err != nil {
		return nil, err
	}
	l.releaseLock(orderID)

	l.publishUpdate(o)
	l.logger.Info("order cancelled", "order_id", o.ID, "user_id", userID)
	return o, nil
}

// Reject forces the order to terminal rejected with a reason.
func (l *Ledger) Reject(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	lock := l.lockFor(orderID)
	lock.Lock()
	defer lock.Unlock()

	o, err := l.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}
	o.Reject(reason)
	if err := l.store.SaveOrder(ctx, o); err != nil {
		return nil, err
	}
	l.releaseLock(orderID)

	l.publishUpdate(o)
	l.logger.Warn("order rejected", "order_id", o.ID, "reason", reason)
	return o, nil
}

// Get loads one order.
func (l *Ledger) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	return l.store.GetOrder(ctx, orderID)
}

// UserOrders lists a user's orders, optionally filtered by status.
func (l *Ledger) UserOrders(ctx context.Context, userID int64, status string, limit int) ([]*domain.Order, error) {
	return l.store.UserOrders(ctx, userID, status, limit)
}

// Executions lists an order's fills.
func (l *Ledger) Executions(ctx context.Context, orderID string) ([]*domain.Execution, error) {
	return l.store.ExecutionsForOrder(ctx, orderID)
}

func (l *Ledger) publishUpdate(o *domain.Order) {
	key := strconv.FormatInt(o.UserID, 10)
	if err := l.bus.Publish(bus.ChannelOrderUpdates, key, domain.NewOrderPush(o)); err != nil {
		l.logger.Error("failed to publish order update", "order_id", o.ID, "error", err)
	}
}

func (l *Ledger) lockFor(orderID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[orderID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[orderID] = lock
	}
	return lock
}

// releaseLock drops the per-order lock entry once the order is terminal.
// Callers still hold the mutex itself; only the map entry goes away. A waiter
// blocked on the old mutex, or a later caller that mints a fresh one, may
// briefly proceed alongside it — that is safe only because entries are
// deleted strictly after the order reaches a terminal state: every guarded
// mutation reloads the order from the store first and fails with
// ErrInvalidState on terminal orders, while Reject is unconditional anyway.
// Deleting any earlier would break per-order fill exclusivity.
func (l *Ledger) releaseLock(orderID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, orderID)
}

func newID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func validate(req PlaceRequest) error {
	if req.Symbol == "" {
		return domain.NewValidationError("symbol", "is required")
	}
	switch req.Side {
	case domain.SideBuy, domain.SideSell:
	default:
		return domain.NewValidationError("side", "must be buy or sell")
	}
	switch req.Type {
	case domain.TypeMarket, domain.TypeLimit, domain.TypeStop, domain.TypeStopLimit:
	default:
		return domain.NewValidationError("order_type", "must be market, limit, stop or stop_limit")
	}
	if !req.Quantity.IsPositive() {
		return domain.NewValidationError("quantity", "must be positive")
	}
	if req.Type == domain.TypeLimit || req.Type == domain.TypeStopLimit {
		if req.Price == nil {
			return domain.NewValidationError("price", "is required for limit orders")
		}
		if !req.Price.IsPositive() {
			return domain.NewValidationError("price", "must be positive")
		}
	}
	if req.Type == domain.TypeStop || req.Type == domain.TypeStopLimit {
		if req.StopPrice == nil {
			return domain.NewValidationError("stop_price", "is required for stop orders")
		}
		if !req.StopPrice.IsPositive() {
			return domain.NewValidationError("stop_price", "must be positive")
		}
	}
	switch req.TimeInForce {
	case "", domain.TIFDay, domain.TIFGTC, domain.TIFIOC, domain.TIFFOK:
	default:
		return domain.NewValidationError("time_in_force", "must be day, gtc, ioc or fok")
	}
	return nil
}
